package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"careva/internal/audio"
	"careva/internal/backend"
	"careva/internal/config"
	"careva/internal/ports"
	"careva/internal/prefs"
	"careva/internal/providers/deepgram"
	"careva/internal/usecase"
	"careva/internal/wake"
)

// Services is the assembled application graph. The UI bridge owns it
// and closes it on shutdown.
type Services struct {
	Config    config.Config
	Prefs     ports.PreferenceStore
	Probe     ports.PermissionProbe
	Listener  *usecase.Listener
	Capture   *usecase.Capture
	Assistant *usecase.Assistant
}

// Build wires the application from configuration. The event sink is the
// UI bridge; everything emitted downstream flows through it.
func Build(cfg config.Config, events ports.EventSink) (*Services, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	spoolDir := filepath.Join(cfg.DataDir, "spool")
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}

	store, err := prefs.Open(filepath.Join(cfg.DataDir, "prefs"))
	if err != nil {
		return nil, err
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Token:   cfg.BackendToken,
		Timeout: cfg.BackendTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
		InputFormat: cfg.InputFormat,
		InputDevice: cfg.InputDevice,
	}
	capture := audio.NewFFmpegCapture(cfg.FFmpegCommand)
	probe := audio.NewProbe(capture, audioCfg, store, cfg.FFmpegCommand)
	recorder := audio.NewSpoolRecorder(capture, afero.NewOsFs(), spoolDir)

	engine := deepgram.NewEngine(deepgram.Config{
		APIKey:     cfg.DeepgramAPIKey,
		APIBaseURL: cfg.DeepgramBaseURL,
		Model:      cfg.DeepgramModel,
		Language:   cfg.Language,
	}, capture, audioCfg)

	listener := usecase.NewListener(engine, wake.NewMatcher(), probe, store, events, usecase.ListenerConfig{
		Recognition: ports.RecognitionConfig{
			Language:   cfg.Language,
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Encoding:   "linear16",
		},
		RestartDebounce: cfg.RestartDebounce,
		NetworkBackoff:  cfg.NetworkBackoff,
		SettleDelay:     cfg.SettleDelay,
		TranscriptClear: cfg.TranscriptClear,
	})

	captureFlow := usecase.NewCapture(recorder, client, events, listener, audioCfg)
	assistant := usecase.NewAssistant(client, events)

	return &Services{
		Config:    cfg,
		Prefs:     store,
		Probe:     probe,
		Listener:  listener,
		Capture:   captureFlow,
		Assistant: assistant,
	}, nil
}

// Close releases everything the graph holds open.
func (s *Services) Close() error {
	s.Listener.Suspend()
	return s.Prefs.Close()
}
