package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"careva/internal/domain"
	"careva/internal/ports"
)

type fakeAudioSession struct {
	mu     sync.Mutex
	chunks [][]byte
	index  int
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }
func (f *fakeAudioSession) Stop() error  { return nil }

type fakeAudioCapture struct {
	session ports.AudioSession
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	return f.session, nil
}

func TestBuildListenURL(t *testing.T) {
	t.Parallel()

	got, err := buildListenURL(
		Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2", Language: "en-US"},
		ports.RecognitionConfig{InterimResults: true, MaxAlternatives: 5, SampleRate: 16000, Channels: 1},
	)
	if err != nil {
		t.Fatalf("buildListenURL failed: %v", err)
	}
	if !strings.HasPrefix(got, "wss://api.deepgram.com/v1/listen?") {
		t.Fatalf("unexpected URL: %s", got)
	}
	for _, want := range []string{
		"model=nova-2",
		"encoding=linear16",
		"sample_rate=16000",
		"channels=1",
		"interim_results=true",
		"alternatives=5",
		"language=en-US",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("URL missing %q: %s", want, got)
		}
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	got, err := buildListenURL(Config{Model: "nova-2"}, ports.RecognitionConfig{})
	if err != nil {
		t.Fatalf("buildListenURL failed: %v", err)
	}
	for _, want := range []string{"sample_rate=16000", "channels=1", "alternatives=5", "encoding=linear16"} {
		if !strings.Contains(got, want) {
			t.Fatalf("URL missing default %q: %s", want, got)
		}
	}
}

func TestExtractTranscriptsDropsBlanksAndDuplicates(t *testing.T) {
	t.Parallel()

	var response deepgramResponse
	response.Channel.Alternatives = []struct {
		Transcript string `json:"transcript"`
	}{
		{Transcript: "hey nova"},
		{Transcript: "  "},
		{Transcript: "hey nova"},
		{Transcript: "hey noah"},
	}

	got := extractTranscripts(response)
	if len(got) != 2 || got[0] != "hey nova" || got[1] != "hey noah" {
		t.Fatalf("unexpected transcripts: %v", got)
	}
}

func TestClassifyProviderError(t *testing.T) {
	t.Parallel()

	if got := classifyProviderError("request timed out waiting for audio"); got != domain.RecognitionErrNoSpeech {
		t.Fatalf("expected no-speech, got %s", got)
	}
	if got := classifyProviderError("Unauthorized"); got != domain.RecognitionErrNotAllowed {
		t.Fatalf("expected not-allowed, got %s", got)
	}
	if got := classifyProviderError("internal server error"); got != domain.RecognitionErrNetwork {
		t.Fatalf("expected network, got %s", got)
	}
}

func TestSessionDeliversTranscriptsAndEnds(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			if !strings.Contains(string(payload), "CloseStream") {
				continue
			}
			partial := `{"is_final":false,"channel":{"alternatives":[{"transcript":"hey no"}]}}`
			final := `{"is_final":true,"channel":{"alternatives":[{"transcript":"hey nova open notes"},{"transcript":"hey noah open notes"}]}}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(partial)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(final)); err != nil {
				return
			}
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}))
	defer server.Close()

	capture := &fakeAudioCapture{session: &fakeAudioSession{chunks: [][]byte{{1, 2, 3, 4}}}}
	engine := NewEngine(Config{APIKey: "test-key", APIBaseURL: server.URL}, capture, ports.AudioConfig{})

	session, err := engine.Start(context.Background(), ports.RecognitionConfig{InterimResults: true, MaxAlternatives: 5})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var events []domain.RecognitionEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				assertSessionEvents(t, events)
				return
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", events)
		}
	}
}

func assertSessionEvents(t *testing.T, events []domain.RecognitionEvent) {
	t.Helper()
	if len(events) == 0 || events[0].Kind != domain.RecognitionStarted {
		t.Fatalf("expected started first, got %v", events)
	}
	if events[len(events)-1].Kind != domain.RecognitionEnded {
		t.Fatalf("expected ended last, got %v", events)
	}

	var sawPartial, sawFinal bool
	for _, ev := range events {
		switch ev.Kind {
		case domain.RecognitionPartial:
			sawPartial = true
			if ev.Text != "hey no" {
				t.Fatalf("unexpected partial text: %q", ev.Text)
			}
		case domain.RecognitionFinal:
			sawFinal = true
			if ev.Text != "hey nova open notes" {
				t.Fatalf("unexpected final text: %q", ev.Text)
			}
			if len(ev.Alternatives) != 1 || ev.Alternatives[0] != "hey noah open notes" {
				t.Fatalf("unexpected alternatives: %v", ev.Alternatives)
			}
		case domain.RecognitionError:
			t.Fatalf("unexpected error event: %v", ev)
		}
	}
	if !sawPartial || !sawFinal {
		t.Fatalf("missing transcript events: %v", events)
	}
}
