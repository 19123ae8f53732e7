package domain

// ListenerState models the wake-phrase listener lifecycle.
type ListenerState string

const (
	ListenerUninitialized ListenerState = "uninitialized"
	ListenerDisabled      ListenerState = "disabled"
	ListenerListening     ListenerState = "listening"
	ListenerProcessing    ListenerState = "processing"
)

// ListenerReason provides a structured reason for listener transitions.
type ListenerReason string

const (
	ListenerReasonEnabled          ListenerReason = "enabled"
	ListenerReasonAutoResumed      ListenerReason = "auto_resumed"
	ListenerReasonDisabled         ListenerReason = "disabled"
	ListenerReasonWakeDetected     ListenerReason = "wake_detected"
	ListenerReasonSettled          ListenerReason = "settled"
	ListenerReasonRestarted        ListenerReason = "restarted"
	ListenerReasonPermissionDenied ListenerReason = "permission_denied"
	ListenerReasonUnsupported      ListenerReason = "unsupported"
	ListenerReasonSuspended        ListenerReason = "suspended"
)

// RecognitionEventKind tags events emitted by a recognition session.
type RecognitionEventKind string

const (
	RecognitionStarted RecognitionEventKind = "started"
	RecognitionPartial RecognitionEventKind = "partial"
	RecognitionFinal   RecognitionEventKind = "final"
	RecognitionError   RecognitionEventKind = "error"
	RecognitionEnded   RecognitionEventKind = "ended"
)

// RecognitionErrorKind classifies recognition failures. The benign kinds
// (no-speech, aborted) trigger silent restarts and never reach the user.
type RecognitionErrorKind string

const (
	RecognitionErrNone         RecognitionErrorKind = ""
	RecognitionErrNoSpeech     RecognitionErrorKind = "no-speech"
	RecognitionErrAborted      RecognitionErrorKind = "aborted"
	RecognitionErrNetwork      RecognitionErrorKind = "network"
	RecognitionErrNotAllowed   RecognitionErrorKind = "not-allowed"
	RecognitionErrAudioCapture RecognitionErrorKind = "audio-capture"
	RecognitionErrUnknown      RecognitionErrorKind = "unknown"
)

// RecognitionEvent is one event from the recognition engine. Text carries
// the best transcript; Alternatives holds extra hypotheses on final
// results.
type RecognitionEvent struct {
	Kind         RecognitionEventKind `json:"kind"`
	Text         string               `json:"text,omitempty"`
	Alternatives []string             `json:"alternatives,omitempty"`
	Err          RecognitionErrorKind `json:"error,omitempty"`
}

// WakeMatch is the result of running recognized text through the phrase
// matcher. Remainder is the text after the matched phrase, used as the
// spoken query.
type WakeMatch struct {
	Found       bool   `json:"found"`
	MatchedText string `json:"matchedText,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	Remainder   string `json:"remainder,omitempty"`
}

// PermissionState is the best-effort microphone permission status.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
	PermissionUnknown PermissionState = "unknown"
)

// CaptureState models one recording-to-submission cycle.
type CaptureState string

const (
	CaptureIdle         CaptureState = "idle"
	CaptureSetup        CaptureState = "setup"
	CaptureRecording    CaptureState = "recording"
	CaptureReview       CaptureState = "review"
	CaptureTranscribing CaptureState = "transcribing"
	CaptureSubmitting   CaptureState = "submitting"
)

// CaptureReason provides a structured reason for capture transitions.
type CaptureReason string

const (
	CaptureReasonOpened           CaptureReason = "dialog_opened"
	CaptureReasonRecordingStarted CaptureReason = "recording_started"
	CaptureReasonRecordingStopped CaptureReason = "recording_stopped"
	CaptureReasonRecordingFailed  CaptureReason = "recording_failed"
	CaptureReasonRecordingDeleted CaptureReason = "recording_deleted"
	CaptureReasonRetry            CaptureReason = "recording_retried"
	CaptureReasonCancelled        CaptureReason = "recording_cancelled"
	CaptureReasonTranscribing     CaptureReason = "transcribing"
	CaptureReasonTranscriptReady  CaptureReason = "transcript_ready"
	CaptureReasonSubmitting       CaptureReason = "submitting"
	CaptureReasonNoteSaved        CaptureReason = "note_saved"
	CaptureReasonSubmitFailed     CaptureReason = "submit_failed"
	CaptureReasonClosed           CaptureReason = "dialog_closed"
)

// NoteMode selects what a capture session submits. The modes are
// mutually exclusive per session.
type NoteMode string

const (
	NoteModeVoice NoteMode = "voice"
	NoteModeText  NoteMode = "text"
)

// ErrorCode identifies user-visible error notifications.
type ErrorCode string

const (
	ErrorCodeStartup            ErrorCode = "startup"
	ErrorCodePermissionDenied   ErrorCode = "permission_denied"
	ErrorCodeRecognitionNetwork ErrorCode = "recognition_network"
	ErrorCodeAudioCapture       ErrorCode = "audio_capture"
	ErrorCodeTranscription      ErrorCode = "transcription_unavailable"
	ErrorCodeRequestTimeout     ErrorCode = "request_timeout"
	ErrorCodePayloadTooLarge    ErrorCode = "payload_too_large"
	ErrorCodeInvalidSubmission  ErrorCode = "invalid_submission"
	ErrorCodePreferences        ErrorCode = "preferences"
	ErrorCodeAssistant          ErrorCode = "assistant"
)

// TranscriptionResult is the outcome of a voice-to-text call.
type TranscriptionResult struct {
	Text            string `json:"text"`
	RPFlag          bool   `json:"rpFlag"`
	NoteID          int64  `json:"noteId,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// SubmitResult is the outcome of a note submission.
type SubmitResult struct {
	RPFlag bool  `json:"rpFlag"`
	NoteID int64 `json:"noteId,omitempty"`
}

// AssistantReply is the assistant's answer to an activation query.
type AssistantReply struct {
	Response     string   `json:"response"`
	Tags         []string `json:"tags,omitempty"`
	Intent       string   `json:"intent,omitempty"`
	RPFlag       bool     `json:"rpFlag"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// ListenerStatus summarizes the listener for the UI.
type ListenerStatus struct {
	State     ListenerState `json:"state"`
	Enabled   bool          `json:"enabled"`
	Supported bool          `json:"supported"`
}

// CaptureStatus summarizes the capture machine for the UI.
type CaptureStatus struct {
	State           CaptureState `json:"state"`
	Mode            NoteMode     `json:"mode,omitempty"`
	ParticipantID   string       `json:"participantId,omitempty"`
	HasRecording    bool         `json:"hasRecording"`
	DurationSeconds float64      `json:"durationSeconds,omitempty"`
}
