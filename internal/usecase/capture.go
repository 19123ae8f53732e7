package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"careva/internal/backend"
	"careva/internal/domain"
	"careva/internal/ports"
)

// MicOwner hands the microphone between the wake-phrase listener and
// the recorder. The device is a singleton resource; whoever records
// must suspend the listener first and resume it afterwards.
type MicOwner interface {
	Suspend()
	Resume(ctx context.Context) error
}

var (
	ErrNotOpen       = errors.New("recorder dialog is not open")
	ErrNoRecording   = errors.New("no recording to act on")
	ErrBadTransition = errors.New("operation is not valid in the current state")
	ErrEmptyText     = errors.New("text note is empty")
	ErrNoParticipant = errors.New("no participant selected")
)

// Capture drives one recording-to-submission cycle. Transitions funnel
// through a single mutex; backend calls run outside the lock and are
// checked against a per-dialog generation tag on return, so responses
// that arrive after the dialog closed are discarded.
type Capture struct {
	recorder ports.Recorder
	client   ports.NotesBackend
	events   ports.EventSink
	mic      MicOwner
	audio    ports.AudioConfig

	mu            sync.Mutex
	state         domain.CaptureState
	mode          domain.NoteMode
	participantID string
	generation    string
	session       ports.RecordingSession
	recording     ports.Recording
	transcript    string
}

func NewCapture(recorder ports.Recorder, client ports.NotesBackend, events ports.EventSink, mic MicOwner, audio ports.AudioConfig) *Capture {
	return &Capture{
		recorder: recorder,
		client:   client,
		events:   events,
		mic:      mic,
		audio:    audio,
		state:    domain.CaptureIdle,
		mode:     domain.NoteModeVoice,
	}
}

// Status reports the current capture state for the UI.
func (c *Capture) Status() domain.CaptureStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.CaptureStatus{
		State:         c.state,
		Mode:          c.mode,
		ParticipantID: c.participantID,
		HasRecording:  c.recording != nil,
	}
	if c.recording != nil {
		status.DurationSeconds = c.recording.DurationSeconds()
	}
	return status
}

// Transcript returns the last preview transcription for this dialog.
func (c *Capture) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// Open starts a new capture dialog. Opening while already open is a
// no-op so a double-tap cannot lose an in-progress recording.
func (c *Capture) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.CaptureIdle {
		return
	}
	c.generation = uuid.NewString()
	c.mode = domain.NoteModeVoice
	c.transcript = ""
	c.setStateLocked(domain.CaptureSetup, domain.CaptureReasonOpened)
}

// SelectParticipant picks who the note is about.
func (c *Capture) SelectParticipant(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.CaptureIdle {
		return ErrNotOpen
	}
	c.participantID = strings.TrimSpace(id)
	return nil
}

// SetMode switches between voice and text note entry. Only valid during
// setup; a session never mixes modes.
func (c *Capture) SetMode(mode domain.NoteMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.CaptureSetup {
		return ErrBadTransition
	}
	if mode != domain.NoteModeVoice && mode != domain.NoteModeText {
		return fmt.Errorf("unknown note mode %q", mode)
	}
	c.mode = mode
	return nil
}

// StartRecording suspends the listener, takes the microphone, and
// begins spooling audio.
func (c *Capture) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CaptureSetup {
		c.mu.Unlock()
		return ErrBadTransition
	}
	if c.mode != domain.NoteModeVoice {
		c.mu.Unlock()
		return ErrBadTransition
	}
	if c.participantID == "" {
		c.events.Notice(domain.ErrorCodeInvalidSubmission, "select a participant first")
		c.mu.Unlock()
		return ErrNoParticipant
	}
	generation := c.generation
	c.mu.Unlock()

	c.mic.Suspend()

	session, err := c.recorder.Start(ctx, c.audio)
	if err != nil {
		c.resumeMic(ctx)
		c.mu.Lock()
		c.events.Notice(domain.ErrorCodeAudioCapture, "could not start recording")
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation || c.state != domain.CaptureSetup {
		// Dialog closed while the recorder was spinning up.
		go func() {
			if abortErr := session.Abort(); abortErr != nil {
				slog.Warn("failed to abort orphaned recording", "err", abortErr)
			}
		}()
		return ErrBadTransition
	}
	c.session = session
	c.setStateLocked(domain.CaptureRecording, domain.CaptureReasonRecordingStarted)
	return nil
}

// StopRecording finalizes the spool and moves to review. A recording
// that captured no audio abandons the dialog: the microphone produced
// nothing, so there is nothing to review.
func (c *Capture) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CaptureRecording || c.session == nil {
		c.mu.Unlock()
		return ErrBadTransition
	}
	session := c.session
	c.session = nil
	c.mu.Unlock()

	recording, err := session.Stop()
	c.resumeMic(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.events.Notice(domain.ErrorCodeAudioCapture, "recording captured no audio")
		c.setStateLocked(domain.CaptureIdle, domain.CaptureReasonRecordingFailed)
		return err
	}

	if c.state != domain.CaptureRecording {
		// Dialog closed mid-stop; the recording has no owner left.
		releaseRecording(recording)
		return ErrBadTransition
	}

	c.recording = recording
	c.setStateLocked(domain.CaptureReview, domain.CaptureReasonRecordingStopped)
	return nil
}

// CancelRecording aborts an in-progress recording and returns to setup.
func (c *Capture) CancelRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CaptureRecording || c.session == nil {
		c.mu.Unlock()
		return ErrBadTransition
	}
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if err := session.Abort(); err != nil {
		slog.Warn("failed to abort recording", "err", err)
	}
	c.resumeMic(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(domain.CaptureSetup, domain.CaptureReasonCancelled)
	return nil
}

// DeleteRecording discards the reviewed recording and returns to setup.
func (c *Capture) DeleteRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.CaptureReview || c.recording == nil {
		return ErrNoRecording
	}
	releaseRecording(c.recording)
	c.recording = nil
	c.transcript = ""
	c.setStateLocked(domain.CaptureSetup, domain.CaptureReasonRecordingDeleted)
	return nil
}

// RetryRecording discards the reviewed recording and immediately starts
// a fresh one.
func (c *Capture) RetryRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.CaptureReview || c.recording == nil {
		c.mu.Unlock()
		return ErrNoRecording
	}
	if c.participantID == "" {
		c.events.Notice(domain.ErrorCodeInvalidSubmission, "select a participant first")
		c.mu.Unlock()
		return ErrNoParticipant
	}
	releaseRecording(c.recording)
	c.recording = nil
	c.transcript = ""
	generation := c.generation
	c.mu.Unlock()

	c.mic.Suspend()

	session, err := c.recorder.Start(ctx, c.audio)
	if err != nil {
		c.resumeMic(ctx)
		c.mu.Lock()
		c.events.Notice(domain.ErrorCodeAudioCapture, "could not start recording")
		c.setStateLocked(domain.CaptureSetup, domain.CaptureReasonRecordingFailed)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		go func() {
			if abortErr := session.Abort(); abortErr != nil {
				slog.Warn("failed to abort orphaned recording", "err", abortErr)
			}
		}()
		return ErrBadTransition
	}
	c.session = session
	c.setStateLocked(domain.CaptureRecording, domain.CaptureReasonRetry)
	return nil
}

// PreviewTranscription sends the reviewed recording for transcription
// without saving it as a note. The recording is kept either way.
func (c *Capture) PreviewTranscription(ctx context.Context) (domain.TranscriptionResult, error) {
	c.mu.Lock()
	if c.state != domain.CaptureReview || c.recording == nil {
		c.mu.Unlock()
		return domain.TranscriptionResult{}, ErrNoRecording
	}
	generation := c.generation
	participant := c.participantID
	reader, err := c.recording.Open()
	if err != nil {
		c.mu.Unlock()
		return domain.TranscriptionResult{}, err
	}
	mimeType := c.recording.MimeType()
	c.setStateLocked(domain.CaptureTranscribing, domain.CaptureReasonTranscribing)
	c.mu.Unlock()

	result, err := c.client.Transcribe(ctx, ports.TranscribeRequest{
		Audio:         reader,
		Filename:      "note.wav",
		MimeType:      mimeType,
		ParticipantID: participant,
	})
	if closeErr := reader.Close(); closeErr != nil {
		slog.Debug("failed to close recording reader", "err", closeErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return domain.TranscriptionResult{}, ErrBadTransition
	}

	if err != nil {
		c.events.Notice(noticeCodeFor(err), "transcription failed")
		c.setStateLocked(domain.CaptureReview, domain.CaptureReasonSubmitFailed)
		return domain.TranscriptionResult{}, err
	}

	c.transcript = result.Text
	c.setStateLocked(domain.CaptureReview, domain.CaptureReasonTranscriptReady)
	return result, nil
}

// SubmitVoiceNote sends the reviewed recording as a note. The call is
// single-attempt: on success the recording is released and the dialog
// closes; on failure the recording survives for review and retry.
func (c *Capture) SubmitVoiceNote(ctx context.Context) (domain.SubmitResult, error) {
	c.mu.Lock()
	if c.state != domain.CaptureReview || c.recording == nil {
		c.mu.Unlock()
		return domain.SubmitResult{}, ErrNoRecording
	}
	if c.participantID == "" {
		c.events.Notice(domain.ErrorCodeInvalidSubmission, "select a participant first")
		c.mu.Unlock()
		return domain.SubmitResult{}, ErrNoParticipant
	}
	generation := c.generation
	participant := c.participantID
	reader, err := c.recording.Open()
	if err != nil {
		c.mu.Unlock()
		return domain.SubmitResult{}, err
	}
	mimeType := c.recording.MimeType()
	c.setStateLocked(domain.CaptureSubmitting, domain.CaptureReasonSubmitting)
	c.mu.Unlock()

	result, err := c.client.SubmitVoiceNote(ctx, ports.TranscribeRequest{
		Audio:         reader,
		Filename:      "note.wav",
		MimeType:      mimeType,
		ParticipantID: participant,
	})
	if closeErr := reader.Close(); closeErr != nil {
		slog.Debug("failed to close recording reader", "err", closeErr)
	}

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return domain.SubmitResult{}, ErrBadTransition
	}

	if err != nil {
		c.events.Notice(noticeCodeFor(err), "failed to save voice note")
		c.setStateLocked(domain.CaptureReview, domain.CaptureReasonSubmitFailed)
		c.mu.Unlock()
		return domain.SubmitResult{}, err
	}

	releaseRecording(c.recording)
	c.recording = nil
	c.transcript = ""
	c.session = nil
	c.setStateLocked(domain.CaptureIdle, domain.CaptureReasonNoteSaved)
	c.mu.Unlock()

	c.resumeMic(ctx)
	return result, nil
}

// SubmitTextNote sends a typed note. On failure the dialog returns to
// setup with the typed text left in the caller's hands.
func (c *Capture) SubmitTextNote(ctx context.Context, text string) (domain.SubmitResult, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.state != domain.CaptureSetup {
		c.mu.Unlock()
		return domain.SubmitResult{}, ErrBadTransition
	}
	if c.participantID == "" {
		c.events.Notice(domain.ErrorCodeInvalidSubmission, "select a participant first")
		c.mu.Unlock()
		return domain.SubmitResult{}, ErrNoParticipant
	}
	if text == "" {
		c.events.Notice(domain.ErrorCodeInvalidSubmission, "note text is empty")
		c.mu.Unlock()
		return domain.SubmitResult{}, ErrEmptyText
	}
	generation := c.generation
	participant := c.participantID
	c.mode = domain.NoteModeText
	c.setStateLocked(domain.CaptureSubmitting, domain.CaptureReasonSubmitting)
	c.mu.Unlock()

	result, err := c.client.SubmitTextNote(ctx, participant, text)

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return domain.SubmitResult{}, ErrBadTransition
	}

	if err != nil {
		c.events.Notice(noticeCodeFor(err), "failed to save note")
		c.setStateLocked(domain.CaptureSetup, domain.CaptureReasonSubmitFailed)
		c.mu.Unlock()
		return domain.SubmitResult{}, err
	}

	c.setStateLocked(domain.CaptureIdle, domain.CaptureReasonNoteSaved)
	c.mu.Unlock()

	c.resumeMic(ctx)
	return result, nil
}

// Close abandons the dialog from any state, discarding recordings and
// invalidating in-flight backend responses, and hands the microphone
// back to the listener.
func (c *Capture) Close(ctx context.Context) {
	c.mu.Lock()
	if c.state == domain.CaptureIdle {
		c.mu.Unlock()
		return
	}

	c.generation = uuid.NewString()
	if c.session != nil {
		session := c.session
		c.session = nil
		go func() {
			if err := session.Abort(); err != nil {
				slog.Warn("failed to abort recording on close", "err", err)
			}
		}()
	}
	if c.recording != nil {
		releaseRecording(c.recording)
		c.recording = nil
	}
	c.transcript = ""
	c.participantID = ""
	c.setStateLocked(domain.CaptureIdle, domain.CaptureReasonClosed)
	c.mu.Unlock()

	c.resumeMic(ctx)
}

func (c *Capture) resumeMic(ctx context.Context) {
	if err := c.mic.Resume(ctx); err != nil {
		slog.Warn("failed to resume wake listener", "err", err)
	}
}

func (c *Capture) setStateLocked(state domain.CaptureState, reason domain.CaptureReason) {
	c.state = state
	c.events.CaptureStateChanged(state, reason)
}

func releaseRecording(recording ports.Recording) {
	if recording == nil {
		return
	}
	if err := recording.Release(); err != nil {
		slog.Warn("failed to release recording", "err", err)
	}
}

// noticeCodeFor maps backend error kinds to user-visible notice codes.
func noticeCodeFor(err error) domain.ErrorCode {
	switch backend.KindOf(err) {
	case backend.ErrKindInvalidPayload:
		return domain.ErrorCodeInvalidSubmission
	case backend.ErrKindPayloadTooLarge:
		return domain.ErrorCodePayloadTooLarge
	case backend.ErrKindTimeout:
		return domain.ErrorCodeRequestTimeout
	default:
		return domain.ErrorCodeTranscription
	}
}
