package ports

import (
	"context"
	"errors"
	"io"

	"careva/internal/domain"
)

// ErrPermissionDenied is returned when microphone access is refused.
var ErrPermissionDenied = errors.New("microphone permission denied")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecognitionConfig describes provider-agnostic recognition settings.
// The listener runs continuous, interim-enabled sessions with multiple
// alternatives so short trigger words survive mis-transcription.
type RecognitionConfig struct {
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
	Language        string
	SampleRate      int
	Channels        int
	Encoding        string
}

// RecognitionSession is an active recognition engine session. Events is
// closed after the Ended event is delivered.
type RecognitionSession interface {
	Events() <-chan domain.RecognitionEvent
	Stop() error
}

// RecognitionEngine starts continuous recognition sessions.
type RecognitionEngine interface {
	Start(ctx context.Context, cfg RecognitionConfig) (RecognitionSession, error)
}

// PermissionProbe queries and requests microphone access.
type PermissionProbe interface {
	// Supported reports whether a recognition capability exists at all.
	Supported() bool
	// QueryPermission is best-effort and non-blocking. Platforms without
	// a way to ask report PermissionUnknown, not an error.
	QueryPermission(ctx context.Context) domain.PermissionState
	// RequestAccess triggers the platform consent flow. Any stream it
	// opens is closed immediately; only the grant side effect matters.
	// Returns ErrPermissionDenied on refusal.
	RequestAccess(ctx context.Context) error
}

// Recording is a finished audio recording backed by a releasable local
// resource. Release is idempotent; the second call is a no-op.
type Recording interface {
	Open() (io.ReadCloser, error)
	MimeType() string
	Size() int64
	DurationSeconds() float64
	Release() error
}

// RecordingSession is an in-progress microphone recording.
type RecordingSession interface {
	// Stop finalizes the recording. The caller owns the returned
	// Recording and must Release it.
	Stop() (Recording, error)
	// Abort discards the recording and its backing resource.
	Abort() error
}

// Recorder starts voice-note recordings.
type Recorder interface {
	Start(ctx context.Context, cfg AudioConfig) (RecordingSession, error)
}

// PreferenceStore persists user preference flags across restarts.
//
// Invariant: VoiceEnabled must never remain true after a
// PermissionDenied recognition error; the listener force-clears it.
type PreferenceStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	VoiceEnabled() bool
	SetVoiceEnabled(enabled bool) error
	WelcomeShown() bool
	SetWelcomeShown(shown bool) error
	Close() error
}

// TranscribeRequest carries recorded audio to the backend.
type TranscribeRequest struct {
	Audio         io.Reader
	Filename      string
	MimeType      string
	ParticipantID string
}

// NotesBackend is the remote transcription/submission/assistant API.
// Every call is single-attempt; callers decide whether to retry.
type NotesBackend interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (domain.TranscriptionResult, error)
	SubmitVoiceNote(ctx context.Context, req TranscribeRequest) (domain.SubmitResult, error)
	SubmitTextNote(ctx context.Context, participantID, text string) (domain.SubmitResult, error)
	Ask(ctx context.Context, question, participantID string) (domain.AssistantReply, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	ListenerStateChanged(state domain.ListenerState, reason domain.ListenerReason)
	LiveTranscript(text string)
	Activation(query string)
	CaptureStateChanged(state domain.CaptureState, reason domain.CaptureReason)
	Notice(code domain.ErrorCode, detail string)
}
