package audio

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"careva/internal/domain"
	"careva/internal/ports"
	"careva/internal/prefs"
)

// Probe checks for microphone support and permission by exercising the
// capture path. RequestAccess opens a real capture session and closes
// it immediately; only the grant side effect is wanted. Outcomes are
// cached in the preference store so QueryPermission can answer without
// touching the device.
type Probe struct {
	capture ports.AudioCapture
	cfg     ports.AudioConfig
	store   ports.PreferenceStore
	command string
}

func NewProbe(capture ports.AudioCapture, cfg ports.AudioConfig, store ports.PreferenceStore, command string) *Probe {
	if command == "" {
		command = "ffmpeg"
	}
	return &Probe{capture: capture, cfg: cfg, store: store, command: command}
}

// Supported reports whether a capture binary is available at all.
func (p *Probe) Supported() bool {
	_, err := exec.LookPath(p.command)
	return err == nil
}

// QueryPermission is best-effort: it answers from the cached outcome of
// the last access request and reports unknown when nothing is cached.
// It never prompts.
func (p *Probe) QueryPermission(_ context.Context) domain.PermissionState {
	if !p.Supported() {
		return domain.PermissionUnknown
	}
	value, ok := p.store.Get(prefs.KeyMicPermission)
	if !ok {
		return domain.PermissionPrompt
	}
	switch domain.PermissionState(value) {
	case domain.PermissionGranted:
		return domain.PermissionGranted
	case domain.PermissionDenied:
		return domain.PermissionDenied
	default:
		return domain.PermissionUnknown
	}
}

// RequestAccess opens a capture session to trigger the platform consent
// flow, then stops it immediately.
func (p *Probe) RequestAccess(ctx context.Context) error {
	session, err := p.capture.Start(ctx, p.cfg)
	if err != nil {
		if isPermissionError(err) {
			p.remember(domain.PermissionDenied)
			return ports.ErrPermissionDenied
		}
		return err
	}

	if err := session.Stop(); err != nil {
		slog.Warn("probe capture did not stop cleanly", "err", err)
	}
	p.remember(domain.PermissionGranted)
	return nil
}

func (p *Probe) remember(state domain.PermissionState) {
	if err := p.store.Set(prefs.KeyMicPermission, string(state)); err != nil {
		slog.Warn("failed to cache mic permission", "err", err)
	}
}

func isPermissionError(err error) bool {
	detail := strings.ToLower(err.Error())
	return strings.Contains(detail, "permission denied") ||
		strings.Contains(detail, "operation not permitted") ||
		strings.Contains(detail, "access denied") ||
		strings.Contains(detail, "not authorized")
}
