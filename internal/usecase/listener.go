package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"

	"careva/internal/domain"
	"careva/internal/ports"
	"careva/internal/wake"
)

// ListenerConfig carries the listener's recognition settings and timing
// knobs. The defaults mirror field-tested values: a short debounce for
// benign restarts, a longer backoff after network drops, and a settle
// delay after an activation before listening resumes.
type ListenerConfig struct {
	Recognition     ports.RecognitionConfig
	RestartDebounce time.Duration
	NetworkBackoff  time.Duration
	SettleDelay     time.Duration
	TranscriptClear time.Duration
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.RestartDebounce <= 0 {
		c.RestartDebounce = 500 * time.Millisecond
	}
	if c.NetworkBackoff <= 0 {
		c.NetworkBackoff = 3 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.TranscriptClear <= 0 {
		c.TranscriptClear = 5 * time.Second
	}
	if c.Recognition.MaxAlternatives <= 0 {
		c.Recognition.MaxAlternatives = 5
	}
	c.Recognition.Continuous = true
	c.Recognition.InterimResults = true
	return c
}

// Listener owns the always-on wake-phrase recognition loop. All state
// transitions funnel through one mutex; recognition events from stale
// sessions are discarded by generation tag. At most one activation fires
// per recognition session.
//
// The event sink is invoked while the lock is held and must not call
// back into the listener.
type Listener struct {
	engine  ports.RecognitionEngine
	matcher *wake.Matcher
	probe   ports.PermissionProbe
	prefs   ports.PreferenceStore
	events  ports.EventSink
	cfg     ListenerConfig

	onWake func(query string)

	clearTranscript func(f func())

	mu             sync.Mutex
	state          domain.ListenerState
	session        ports.RecognitionSession
	generation     string
	activated      bool
	restartPending bool
	suspended      bool
}

func NewListener(
	engine ports.RecognitionEngine,
	matcher *wake.Matcher,
	probe ports.PermissionProbe,
	prefs ports.PreferenceStore,
	events ports.EventSink,
	cfg ListenerConfig,
) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		engine:          engine,
		matcher:         matcher,
		probe:           probe,
		prefs:           prefs,
		events:          events,
		cfg:             cfg,
		clearTranscript: debounce.New(cfg.TranscriptClear),
		state:           domain.ListenerUninitialized,
	}
}

// SetActivationHandler registers the callback invoked with the spoken
// query after a wake phrase is detected. The callback runs outside the
// listener's lock.
func (l *Listener) SetActivationHandler(fn func(query string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onWake = fn
}

// Status reports the current listener state for the UI.
func (l *Listener) Status() domain.ListenerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.ListenerStatus{
		State:     l.state,
		Enabled:   l.prefs.VoiceEnabled(),
		Supported: l.probe.Supported(),
	}
}

// Enable turns voice activation on. It runs the platform consent flow,
// persists the preference, and starts listening. A denied consent
// force-clears the stored preference so the app never auto-resumes into
// a denied microphone.
func (l *Listener) Enable(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.probe.Supported() {
		l.setStateLocked(domain.ListenerDisabled, domain.ListenerReasonUnsupported)
		l.events.Notice(domain.ErrorCodeStartup, "voice recognition is not available on this device")
		return errors.New("voice recognition is not supported")
	}

	if err := l.probe.RequestAccess(ctx); err != nil {
		if errors.Is(err, ports.ErrPermissionDenied) {
			l.forceDisableLocked(domain.ListenerReasonPermissionDenied)
			l.events.Notice(domain.ErrorCodePermissionDenied, "microphone access was denied")
			return err
		}
		l.events.Notice(domain.ErrorCodeStartup, "could not access the microphone")
		return err
	}

	if err := l.prefs.SetVoiceEnabled(true); err != nil {
		l.events.Notice(domain.ErrorCodePreferences, "failed to save voice preference")
	}
	return l.startSessionLocked(ctx, domain.ListenerReasonEnabled)
}

// Disable turns voice activation off and persists the preference.
func (l *Listener) Disable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forceDisableLocked(domain.ListenerReasonDisabled)
	return nil
}

// Resume restarts listening without prompting. It is used at startup and
// after a recorder session hands the microphone back: listening resumes
// only when the stored preference is on and the cached permission is an
// explicit grant.
func (l *Listener) Resume(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.suspended = false
	if l.state == domain.ListenerListening || l.state == domain.ListenerProcessing {
		return nil
	}
	if !l.probe.Supported() || !l.prefs.VoiceEnabled() {
		return nil
	}
	if l.probe.QueryPermission(ctx) != domain.PermissionGranted {
		return nil
	}
	return l.startSessionLocked(ctx, domain.ListenerReasonAutoResumed)
}

// Suspend stops listening so another component can own the microphone.
// The stored preference is untouched; Resume restores listening.
func (l *Listener) Suspend() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.suspended = true
	l.restartPending = false
	l.dropSessionLocked()
	if l.state == domain.ListenerListening || l.state == domain.ListenerProcessing {
		l.setStateLocked(domain.ListenerDisabled, domain.ListenerReasonSuspended)
	}
}

func (l *Listener) startSessionLocked(ctx context.Context, reason domain.ListenerReason) error {
	l.dropSessionLocked()

	session, err := l.engine.Start(ctx, l.cfg.Recognition)
	if err != nil {
		if errors.Is(err, ports.ErrPermissionDenied) {
			l.forceDisableLocked(domain.ListenerReasonPermissionDenied)
			l.events.Notice(domain.ErrorCodePermissionDenied, "microphone access was denied")
			return err
		}
		l.setStateLocked(domain.ListenerDisabled, domain.ListenerReasonDisabled)
		l.events.Notice(domain.ErrorCodeStartup, "failed to start voice recognition")
		return err
	}

	generation := uuid.NewString()
	l.session = session
	l.generation = generation
	l.activated = false
	l.restartPending = false
	l.suspended = false
	l.setStateLocked(domain.ListenerListening, reason)

	go l.consume(generation, session)
	return nil
}

func (l *Listener) consume(generation string, session ports.RecognitionSession) {
	for event := range session.Events() {
		l.handleEvent(generation, event)
	}
}

func (l *Listener) handleEvent(generation string, event domain.RecognitionEvent) {
	l.mu.Lock()

	if generation != l.generation {
		l.mu.Unlock()
		return
	}

	switch event.Kind {
	case domain.RecognitionStarted:
		l.mu.Unlock()

	case domain.RecognitionPartial, domain.RecognitionFinal:
		l.handleTranscriptLocked(event)

	case domain.RecognitionError:
		l.handleErrorLocked(event)
		l.mu.Unlock()

	case domain.RecognitionEnded:
		// A session that ends while we still think we are listening was
		// dropped by the provider; restart it quietly.
		if l.state == domain.ListenerListening && !l.restartPending {
			l.scheduleRestartLocked(l.cfg.RestartDebounce, domain.ListenerReasonRestarted)
		}
		l.mu.Unlock()

	default:
		l.mu.Unlock()
	}
}

// handleTranscriptLocked is entered with the lock held and releases it.
func (l *Listener) handleTranscriptLocked(event domain.RecognitionEvent) {
	if l.state != domain.ListenerListening || l.activated {
		l.mu.Unlock()
		return
	}

	l.events.LiveTranscript(event.Text)
	l.clearTranscript(func() { l.events.LiveTranscript("") })

	candidates := append([]string{event.Text}, event.Alternatives...)
	var match domain.WakeMatch
	for _, candidate := range candidates {
		if found := l.matcher.Match(candidate); found.Found {
			match = found
			break
		}
	}
	if !match.Found {
		l.mu.Unlock()
		return
	}

	l.activated = true
	l.dropSessionLocked()
	l.setStateLocked(domain.ListenerProcessing, domain.ListenerReasonWakeDetected)
	l.events.LiveTranscript("")
	l.events.Activation(match.Remainder)
	l.scheduleRestartLocked(l.cfg.SettleDelay, domain.ListenerReasonSettled)

	onWake := l.onWake
	query := match.Remainder
	l.mu.Unlock()

	if onWake != nil {
		onWake(query)
	}
}

func (l *Listener) handleErrorLocked(event domain.RecognitionEvent) {
	switch event.Err {
	case domain.RecognitionErrNotAllowed:
		l.forceDisableLocked(domain.ListenerReasonPermissionDenied)
		l.events.Notice(domain.ErrorCodePermissionDenied, "microphone access was revoked")

	case domain.RecognitionErrNetwork:
		l.events.Notice(domain.ErrorCodeRecognitionNetwork, "voice recognition lost its connection")
		l.scheduleRestartLocked(l.cfg.NetworkBackoff, domain.ListenerReasonRestarted)

	case domain.RecognitionErrAudioCapture:
		l.events.Notice(domain.ErrorCodeAudioCapture, "microphone capture failed")
		l.scheduleRestartLocked(l.cfg.NetworkBackoff, domain.ListenerReasonRestarted)

	case domain.RecognitionErrNoSpeech, domain.RecognitionErrAborted:
		l.scheduleRestartLocked(l.cfg.RestartDebounce, domain.ListenerReasonRestarted)

	default:
		l.scheduleRestartLocked(l.cfg.RestartDebounce, domain.ListenerReasonRestarted)
	}
}

// scheduleRestartLocked arms a single restart timer. Repeated errors
// from the same dying session collapse into one pending restart.
func (l *Listener) scheduleRestartLocked(delay time.Duration, reason domain.ListenerReason) {
	if l.restartPending || l.suspended {
		return
	}
	if l.state == domain.ListenerDisabled || l.state == domain.ListenerUninitialized {
		return
	}

	l.restartPending = true
	l.dropSessionLocked()
	time.AfterFunc(delay, func() { l.restart(reason) })
}

func (l *Listener) restart(reason domain.ListenerReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.restartPending || l.suspended {
		return
	}
	l.restartPending = false

	if !l.prefs.VoiceEnabled() {
		l.setStateLocked(domain.ListenerDisabled, domain.ListenerReasonDisabled)
		return
	}
	if err := l.startSessionLocked(context.Background(), reason); err != nil {
		slog.Warn("listener restart failed", "reason", reason, "err", err)
	}
}

// forceDisableLocked stops listening and clears the stored preference.
// Used on explicit disable and on any permission denial, so a denied
// microphone never auto-resumes.
func (l *Listener) forceDisableLocked(reason domain.ListenerReason) {
	l.restartPending = false
	l.dropSessionLocked()
	if err := l.prefs.SetVoiceEnabled(false); err != nil {
		slog.Warn("failed to clear voice preference", "err", err)
	}
	l.setStateLocked(domain.ListenerDisabled, reason)
}

func (l *Listener) dropSessionLocked() {
	if l.session == nil {
		l.generation = ""
		return
	}
	session := l.session
	l.session = nil
	l.generation = ""
	go func() {
		if err := session.Stop(); err != nil {
			slog.Debug("recognition session stop failed", "err", err)
		}
	}()
}

func (l *Listener) setStateLocked(state domain.ListenerState, reason domain.ListenerReason) {
	// Listening re-announces itself after silent restarts; other states
	// collapse duplicate transitions.
	if l.state == state && state != domain.ListenerListening {
		return
	}
	l.state = state
	l.events.ListenerStateChanged(state, reason)
}
