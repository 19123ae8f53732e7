package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is loaded once at startup from environment variables. Every
// field has a usable default except the secrets, which stay empty and
// fail closed at the component that needs them.
type Config struct {
	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration

	DeepgramAPIKey  string
	DeepgramBaseURL string
	DeepgramModel   string
	Language        string

	SampleRate    int
	Channels      int
	InputFormat   string
	InputDevice   string
	FFmpegCommand string

	RestartDebounce time.Duration
	NetworkBackoff  time.Duration
	SettleDelay     time.Duration
	TranscriptClear time.Duration

	DataDir string
}

func Load() Config {
	return Config{
		BackendURL:     envString("CAREVA_BACKEND_URL", "http://localhost:8000"),
		BackendToken:   envString("CAREVA_BACKEND_TOKEN", ""),
		BackendTimeout: envDurationMS("CAREVA_BACKEND_TIMEOUT_MS", 30*time.Second),

		DeepgramAPIKey:  envString("DEEPGRAM_API_KEY", ""),
		DeepgramBaseURL: envString("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
		DeepgramModel:   envString("DEEPGRAM_MODEL", "nova-2"),
		Language:        envString("CAREVA_LANGUAGE", "en-US"),

		SampleRate:    envInt("CAREVA_AUDIO_SAMPLE_RATE", 16000),
		Channels:      envInt("CAREVA_AUDIO_CHANNELS", 1),
		InputFormat:   envString("CAREVA_AUDIO_INPUT_FORMAT", "pulse"),
		InputDevice:   envString("CAREVA_AUDIO_INPUT_DEVICE", "default"),
		FFmpegCommand: envString("CAREVA_FFMPEG_COMMAND", "ffmpeg"),

		RestartDebounce: envDurationMS("CAREVA_RESTART_DEBOUNCE_MS", 500*time.Millisecond),
		NetworkBackoff:  envDurationMS("CAREVA_NETWORK_BACKOFF_MS", 3*time.Second),
		SettleDelay:     envDurationMS("CAREVA_SETTLE_DELAY_MS", 2*time.Second),
		TranscriptClear: envDurationMS("CAREVA_TRANSCRIPT_CLEAR_MS", 5*time.Second),

		DataDir: envString("CAREVA_DATA_DIR", defaultDataDir()),
	}
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".careva"
	}
	return filepath.Join(base, "careva")
}

func envString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func envInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("ignoring invalid integer env var", "key", key, "value", value)
		return fallback
	}
	return parsed
}

func envDurationMS(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		slog.Warn("ignoring invalid duration env var", "key", key, "value", value)
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
