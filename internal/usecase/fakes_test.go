package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"careva/internal/domain"
	"careva/internal/ports"
)

type fakeRecognitionSession struct {
	mu      sync.Mutex
	events  chan domain.RecognitionEvent
	stopped bool
}

func newFakeRecognitionSession() *fakeRecognitionSession {
	return &fakeRecognitionSession{events: make(chan domain.RecognitionEvent, 16)}
}

func (s *fakeRecognitionSession) Events() <-chan domain.RecognitionEvent { return s.events }

func (s *fakeRecognitionSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.events)
	}
	return nil
}

func (s *fakeRecognitionSession) Emit(t *testing.T, event domain.RecognitionEvent) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.events <- event:
	default:
		t.Fatalf("fake session event buffer full")
	}
}

func (s *fakeRecognitionSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeEngine struct {
	mu       sync.Mutex
	sessions []*fakeRecognitionSession
	err      error
}

func (e *fakeEngine) Start(_ context.Context, _ ports.RecognitionConfig) (ports.RecognitionSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	session := newFakeRecognitionSession()
	e.sessions = append(e.sessions, session)
	return session, nil
}

func (e *fakeEngine) Sessions() []*fakeRecognitionSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*fakeRecognitionSession(nil), e.sessions...)
}

func (e *fakeEngine) waitSessions(t *testing.T, n int) []*fakeRecognitionSession {
	t.Helper()
	waitFor(t, func() bool { return len(e.Sessions()) >= n })
	return e.Sessions()
}

type fakeProbe struct {
	mu         sync.Mutex
	supported  bool
	permission domain.PermissionState
	requestErr error
	requests   int
}

func (p *fakeProbe) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported
}

func (p *fakeProbe) QueryPermission(_ context.Context) domain.PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

func (p *fakeProbe) RequestAccess(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	if p.requestErr != nil {
		return p.requestErr
	}
	p.permission = domain.PermissionGranted
	return nil
}

type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{values: map[string]string{}} }

func (f *fakeStore) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeStore) VoiceEnabled() bool {
	v, _ := f.Get("voice_enabled")
	return v == "true"
}

func (f *fakeStore) SetVoiceEnabled(enabled bool) error {
	if enabled {
		return f.Set("voice_enabled", "true")
	}
	return f.Set("voice_enabled", "false")
}

func (f *fakeStore) WelcomeShown() bool {
	v, _ := f.Get("voice_welcome_shown")
	return v == "true"
}

func (f *fakeStore) SetWelcomeShown(shown bool) error {
	if shown {
		return f.Set("voice_welcome_shown", "true")
	}
	return f.Set("voice_welcome_shown", "false")
}

func (f *fakeStore) Close() error { return nil }

type fakeSink struct {
	mu          sync.Mutex
	listener    []string
	transcripts []string
	activations []string
	captures    []string
	notices     []string
}

func (s *fakeSink) ListenerStateChanged(state domain.ListenerState, reason domain.ListenerReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = append(s.listener, fmt.Sprintf("%s/%s", state, reason))
}

func (s *fakeSink) LiveTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, text)
}

func (s *fakeSink) Activation(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations = append(s.activations, query)
}

func (s *fakeSink) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures = append(s.captures, fmt.Sprintf("%s/%s", state, reason))
}

func (s *fakeSink) Notice(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, string(code))
}

func (s *fakeSink) ListenerEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.listener...)
}

func (s *fakeSink) Transcripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.transcripts...)
}

func (s *fakeSink) Activations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.activations...)
}

func (s *fakeSink) CaptureEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.captures...)
}

func (s *fakeSink) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notices...)
}

type fakeRecording struct {
	mu       sync.Mutex
	data     string
	duration float64
	released bool
}

func (r *fakeRecording) Open() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, errors.New("recording has been released")
	}
	return io.NopCloser(strings.NewReader(r.data)), nil
}

func (r *fakeRecording) MimeType() string         { return "audio/wav" }
func (r *fakeRecording) Size() int64              { return int64(len(r.data)) }
func (r *fakeRecording) DurationSeconds() float64 { return r.duration }

func (r *fakeRecording) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	return nil
}

func (r *fakeRecording) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

type fakeRecordingSession struct {
	mu        sync.Mutex
	recording *fakeRecording
	stopErr   error
	aborted   bool
}

func (s *fakeRecordingSession) Stop() (ports.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopErr != nil {
		return nil, s.stopErr
	}
	return s.recording, nil
}

func (s *fakeRecordingSession) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	return nil
}

func (s *fakeRecordingSession) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

type fakeRecorder struct {
	mu       sync.Mutex
	sessions []*fakeRecordingSession
	next     *fakeRecordingSession
	err      error
}

func (r *fakeRecorder) Start(_ context.Context, _ ports.AudioConfig) (ports.RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	session := r.next
	if session == nil {
		session = &fakeRecordingSession{recording: &fakeRecording{data: "pcm", duration: 1.5}}
	}
	r.next = nil
	r.sessions = append(r.sessions, session)
	return session, nil
}

func (r *fakeRecorder) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type fakeBackend struct {
	mu sync.Mutex

	transcribeResult domain.TranscriptionResult
	transcribeErr    error
	transcribeBlock  chan struct{}
	transcribed      []string

	submitResult domain.SubmitResult
	submitErr    error
	voiceNotes   []string

	textResult domain.SubmitResult
	textErr    error
	textNotes  []string

	askReply domain.AssistantReply
	askErr   error
	asked    []string
}

func (b *fakeBackend) Transcribe(_ context.Context, req ports.TranscribeRequest) (domain.TranscriptionResult, error) {
	b.mu.Lock()
	block := b.transcribeBlock
	b.transcribed = append(b.transcribed, req.ParticipantID)
	result, err := b.transcribeResult, b.transcribeErr
	b.mu.Unlock()
	if block != nil {
		<-block
	}
	return result, err
}

func (b *fakeBackend) SubmitVoiceNote(_ context.Context, req ports.TranscribeRequest) (domain.SubmitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voiceNotes = append(b.voiceNotes, req.ParticipantID)
	return b.submitResult, b.submitErr
}

func (b *fakeBackend) SubmitTextNote(_ context.Context, participantID, text string) (domain.SubmitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.textNotes = append(b.textNotes, participantID+":"+text)
	return b.textResult, b.textErr
}

func (b *fakeBackend) Ask(_ context.Context, question, participantID string) (domain.AssistantReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asked = append(b.asked, question)
	return b.askReply, b.askErr
}

func (b *fakeBackend) setSubmitErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitErr = err
}

type fakeMic struct {
	mu       sync.Mutex
	suspends int
	resumes  int
}

func (m *fakeMic) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspends++
}

func (m *fakeMic) Resume(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	return nil
}

func (m *fakeMic) Counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspends, m.resumes
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
