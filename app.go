package main

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"careva/internal/bootstrap"
	"careva/internal/config"
	"careva/internal/domain"
)

const (
	eventListener   = "careva:listener"
	eventTranscript = "careva:transcript"
	eventActivation = "careva:activation"
	eventCapture    = "careva:capture"
	eventError      = "careva:error"
)

// App is the Wails application root. It implements the event sink the
// backend emits through and exposes the bound methods the frontend
// calls.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	cfg      config.Config
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(config.Load(), a)
	if err != nil {
		a.bootErr = err
		a.Notice(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config

	if err := services.Listener.Resume(ctx); err != nil {
		a.Notice(domain.ErrorCodeStartup, err.Error())
	}
}

func (a *App) shutdown(_ context.Context) {
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			a.Notice(domain.ErrorCodePreferences, err.Error())
		}
	}
}

// EnableVoice turns wake-phrase listening on, prompting for microphone
// access if needed.
func (a *App) EnableVoice() (domain.ListenerStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.ListenerStatus{}, err
	}
	if err := a.services.Listener.Enable(a.ctx); err != nil {
		return a.services.Listener.Status(), err
	}
	return a.services.Listener.Status(), nil
}

// DisableVoice turns wake-phrase listening off.
func (a *App) DisableVoice() (domain.ListenerStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.ListenerStatus{}, err
	}
	if err := a.services.Listener.Disable(); err != nil {
		return domain.ListenerStatus{}, err
	}
	return a.services.Listener.Status(), nil
}

// VoiceStatus reports the listener state for the UI.
func (a *App) VoiceStatus() domain.ListenerStatus {
	if a.services == nil {
		return domain.ListenerStatus{State: domain.ListenerUninitialized}
	}
	return a.services.Listener.Status()
}

// WelcomeShown reports whether the voice feature intro has been seen.
func (a *App) WelcomeShown() bool {
	if a.services == nil {
		return false
	}
	return a.services.Prefs.WelcomeShown()
}

// MarkWelcomeShown records that the voice feature intro was seen.
func (a *App) MarkWelcomeShown() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Prefs.SetWelcomeShown(true)
}

// OpenRecorder opens the note capture dialog.
func (a *App) OpenRecorder() (domain.CaptureStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureStatus{}, err
	}
	a.services.Capture.Open()
	return a.services.Capture.Status(), nil
}

// SelectParticipant picks who the note is about.
func (a *App) SelectParticipant(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Capture.SelectParticipant(id)
}

// SetNoteMode switches the open dialog between voice and text entry.
func (a *App) SetNoteMode(mode string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Capture.SetMode(domain.NoteMode(mode))
}

// StartRecording begins recording a voice note.
func (a *App) StartRecording() (domain.CaptureStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureStatus{}, err
	}
	err := a.services.Capture.StartRecording(a.ctx)
	return a.services.Capture.Status(), err
}

// StopRecording finishes the recording and moves to review.
func (a *App) StopRecording() (domain.CaptureStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureStatus{}, err
	}
	err := a.services.Capture.StopRecording(a.ctx)
	return a.services.Capture.Status(), err
}

// CancelRecording aborts the in-progress recording.
func (a *App) CancelRecording() (domain.CaptureStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureStatus{}, err
	}
	err := a.services.Capture.CancelRecording(a.ctx)
	return a.services.Capture.Status(), err
}

// DeleteRecording discards the reviewed recording.
func (a *App) DeleteRecording() (domain.CaptureStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureStatus{}, err
	}
	err := a.services.Capture.DeleteRecording()
	return a.services.Capture.Status(), err
}

// RetryRecording discards the reviewed recording and records again.
func (a *App) RetryRecording() (domain.CaptureStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureStatus{}, err
	}
	err := a.services.Capture.RetryRecording(a.ctx)
	return a.services.Capture.Status(), err
}

// PreviewTranscription transcribes the reviewed recording without
// saving it.
func (a *App) PreviewTranscription() (domain.TranscriptionResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.TranscriptionResult{}, err
	}
	return a.services.Capture.PreviewTranscription(a.ctx)
}

// SubmitVoiceNote saves the reviewed recording as a note.
func (a *App) SubmitVoiceNote() (domain.SubmitResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.SubmitResult{}, err
	}
	return a.services.Capture.SubmitVoiceNote(a.ctx)
}

// SubmitTextNote saves a typed note.
func (a *App) SubmitTextNote(text string) (domain.SubmitResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.SubmitResult{}, err
	}
	return a.services.Capture.SubmitTextNote(a.ctx, text)
}

// CloseRecorder abandons the capture dialog.
func (a *App) CloseRecorder() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Capture.Close(a.ctx)
	return nil
}

// RecorderStatus reports the capture dialog state for the UI.
func (a *App) RecorderStatus() domain.CaptureStatus {
	if a.services == nil {
		return domain.CaptureStatus{State: domain.CaptureIdle}
	}
	return a.services.Capture.Status()
}

// AskNova forwards a spoken or typed question to the assistant.
func (a *App) AskNova(question, participantID string) (domain.AssistantReply, error) {
	if err := a.requireReady(); err != nil {
		return domain.AssistantReply{}, err
	}
	return a.services.Assistant.Ask(a.ctx, question, participantID)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// ListenerStateChanged emits listener lifecycle updates to the frontend.
func (a *App) ListenerStateChanged(state domain.ListenerState, reason domain.ListenerReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventListener, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": listenerReasonMessage(reason),
	})
}

// LiveTranscript emits interim recognition text.
func (a *App) LiveTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// Activation emits a detected wake phrase with the remaining query.
func (a *App) Activation(query string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventActivation, map[string]string{"query": query})
}

// CaptureStateChanged emits capture dialog updates to the frontend.
func (a *App) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCapture, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": captureReasonMessage(reason),
	})
}

// Notice emits backend errors to the UI.
func (a *App) Notice(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func listenerReasonMessage(reason domain.ListenerReason) string {
	switch reason {
	case domain.ListenerReasonEnabled:
		return "Voice activation on"
	case domain.ListenerReasonAutoResumed:
		return "Listening resumed"
	case domain.ListenerReasonDisabled:
		return "Voice activation off"
	case domain.ListenerReasonWakeDetected:
		return "Heard you"
	case domain.ListenerReasonSettled:
		return "Listening again"
	case domain.ListenerReasonRestarted:
		return "Listening"
	case domain.ListenerReasonPermissionDenied:
		return "Microphone access denied"
	case domain.ListenerReasonUnsupported:
		return "Voice recognition unavailable"
	case domain.ListenerReasonSuspended:
		return "Listening paused while recording"
	default:
		return ""
	}
}

func captureReasonMessage(reason domain.CaptureReason) string {
	switch reason {
	case domain.CaptureReasonOpened:
		return "Ready to record"
	case domain.CaptureReasonRecordingStarted:
		return "Recording..."
	case domain.CaptureReasonRecordingStopped:
		return "Recording ready for review"
	case domain.CaptureReasonRecordingFailed:
		return "Recording captured no audio"
	case domain.CaptureReasonRecordingDeleted:
		return "Recording deleted"
	case domain.CaptureReasonRetry:
		return "Recording again; previous take discarded"
	case domain.CaptureReasonCancelled:
		return "Recording cancelled"
	case domain.CaptureReasonTranscribing:
		return "Transcribing..."
	case domain.CaptureReasonTranscriptReady:
		return "Transcript ready"
	case domain.CaptureReasonSubmitting:
		return "Saving note..."
	case domain.CaptureReasonNoteSaved:
		return "Note saved"
	case domain.CaptureReasonSubmitFailed:
		return "Could not save note"
	case domain.CaptureReasonClosed:
		return "Recorder closed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Microphone access denied"
	case domain.ErrorCodeRecognitionNetwork:
		return "Voice recognition connection lost"
	case domain.ErrorCodeAudioCapture:
		return "Microphone capture issue"
	case domain.ErrorCodeTranscription:
		return "Transcription unavailable"
	case domain.ErrorCodeRequestTimeout:
		return "Request timed out"
	case domain.ErrorCodePayloadTooLarge:
		return "Recording is too large to upload"
	case domain.ErrorCodeInvalidSubmission:
		return "Note could not be accepted"
	case domain.ErrorCodePreferences:
		return "Could not save preferences"
	case domain.ErrorCodeAssistant:
		return "Assistant unavailable"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
