package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.BackendURL != "http://localhost:8000" {
		t.Fatalf("unexpected backend URL: %s", cfg.BackendURL)
	}
	if cfg.BackendTimeout != 30*time.Second {
		t.Fatalf("unexpected backend timeout: %s", cfg.BackendTimeout)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Fatalf("unexpected model: %s", cfg.DeepgramModel)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %d/%d", cfg.SampleRate, cfg.Channels)
	}
	if cfg.RestartDebounce != 500*time.Millisecond {
		t.Fatalf("unexpected restart debounce: %s", cfg.RestartDebounce)
	}
	if cfg.NetworkBackoff != 3*time.Second {
		t.Fatalf("unexpected network backoff: %s", cfg.NetworkBackoff)
	}
	if cfg.SettleDelay != 2*time.Second {
		t.Fatalf("unexpected settle delay: %s", cfg.SettleDelay)
	}
	if cfg.TranscriptClear != 5*time.Second {
		t.Fatalf("unexpected transcript clear: %s", cfg.TranscriptClear)
	}
	if cfg.DataDir == "" {
		t.Fatalf("expected a data dir default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CAREVA_BACKEND_URL", "https://notes.example.com")
	t.Setenv("CAREVA_BACKEND_TIMEOUT_MS", "5000")
	t.Setenv("CAREVA_AUDIO_SAMPLE_RATE", "44100")
	t.Setenv("CAREVA_RESTART_DEBOUNCE_MS", "250")
	t.Setenv("DEEPGRAM_API_KEY", "dg-secret")

	cfg := Load()

	if cfg.BackendURL != "https://notes.example.com" {
		t.Fatalf("unexpected backend URL: %s", cfg.BackendURL)
	}
	if cfg.BackendTimeout != 5*time.Second {
		t.Fatalf("unexpected backend timeout: %s", cfg.BackendTimeout)
	}
	if cfg.SampleRate != 44100 {
		t.Fatalf("unexpected sample rate: %d", cfg.SampleRate)
	}
	if cfg.RestartDebounce != 250*time.Millisecond {
		t.Fatalf("unexpected restart debounce: %s", cfg.RestartDebounce)
	}
	if cfg.DeepgramAPIKey != "dg-secret" {
		t.Fatalf("unexpected api key: %s", cfg.DeepgramAPIKey)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CAREVA_AUDIO_SAMPLE_RATE", "not-a-number")
	t.Setenv("CAREVA_NETWORK_BACKOFF_MS", "-40")
	t.Setenv("CAREVA_BACKEND_URL", "   ")

	cfg := Load()

	if cfg.SampleRate != 16000 {
		t.Fatalf("malformed int should fall back, got %d", cfg.SampleRate)
	}
	if cfg.NetworkBackoff != 3*time.Second {
		t.Fatalf("negative duration should fall back, got %s", cfg.NetworkBackoff)
	}
	if cfg.BackendURL != "http://localhost:8000" {
		t.Fatalf("blank URL should fall back, got %s", cfg.BackendURL)
	}
}
