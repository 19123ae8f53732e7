package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"careva/internal/domain"
	"careva/internal/ports"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

// Engine implements ports.RecognitionEngine over Deepgram's streaming
// API. Each session owns its own microphone capture and pumps audio
// into the websocket until stopped.
type Engine struct {
	cfg     Config
	capture ports.AudioCapture
	audio   ports.AudioConfig
}

func NewEngine(cfg Config, capture ports.AudioCapture, audio ports.AudioConfig) *Engine {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Engine{cfg: cfg, capture: capture, audio: audio}
}

func (e *Engine) Start(ctx context.Context, cfg ports.RecognitionConfig) (ports.RecognitionSession, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(e.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	audioSession, err := e.capture.Start(ctx, e.audio)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	session := &recognitionSession{
		conn:   conn,
		audio:  audioSession,
		events: make(chan domain.RecognitionEvent, 64),
		done:   make(chan struct{}),
	}

	session.emit(domain.RecognitionEvent{Kind: domain.RecognitionStarted})

	session.wg.Add(2)
	go session.readLoop()
	go session.pumpLoop()
	go session.finish()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Stop()
		case <-session.done:
		}
	}()

	return session, nil
}

type recognitionSession struct {
	conn  *websocket.Conn
	audio ports.AudioSession

	events chan domain.RecognitionEvent
	done   chan struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once

	errMu   sync.Mutex
	errKind domain.RecognitionErrorKind
	errText string
}

func (s *recognitionSession) Events() <-chan domain.RecognitionEvent {
	return s.events
}

// Stop stops the microphone and asks Deepgram to flush. Events stays
// open until the Ended event has been delivered.
func (s *recognitionSession) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.audio.Stop()
		// If the server does not close the stream in time, tear the
		// connection down so readLoop cannot hang.
		time.AfterFunc(4*time.Second, func() {
			select {
			case <-s.done:
			default:
				_ = s.conn.Close()
			}
		})
	})
	<-s.done
	return nil
}

func (s *recognitionSession) finish() {
	s.wg.Wait()

	s.errMu.Lock()
	kind, detail := s.errKind, s.errText
	s.errMu.Unlock()
	if kind != domain.RecognitionErrNone {
		s.emit(domain.RecognitionEvent{Kind: domain.RecognitionError, Err: kind, Text: detail})
	}
	s.emit(domain.RecognitionEvent{Kind: domain.RecognitionEnded})

	close(s.events)
	close(s.done)
	_ = s.conn.Close()
}

func (s *recognitionSession) pumpLoop() {
	defer s.wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if writeErr := s.conn.WriteMessage(websocket.BinaryMessage, chunk); writeErr != nil {
				s.setErr(domain.RecognitionErrNetwork, "failed to send audio")
				return
			}
		}
		if err != nil {
			if writeErr := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); writeErr != nil {
				slog.Debug("deepgram close-stream write failed", "err", writeErr)
			}
			return
		}
	}
}

func (s *recognitionSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !isNormalClose(err) {
				s.setErr(domain.RecognitionErrNetwork, "recognition stream dropped")
			}
			// Reads never finish on their own; stop the audio pump so
			// the session can wind down.
			_ = s.audio.Stop()
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			s.setErr(classifyProviderError(response.Message), strings.TrimSpace(response.Message))
			_ = s.audio.Stop()
			return
		}

		transcripts := extractTranscripts(response)
		if len(transcripts) == 0 {
			continue
		}

		event := domain.RecognitionEvent{Text: transcripts[0]}
		if response.IsFinal || response.SpeechFinal {
			event.Kind = domain.RecognitionFinal
			event.Alternatives = transcripts[1:]
		} else {
			event.Kind = domain.RecognitionPartial
		}
		s.emit(event)
	}
}

func (s *recognitionSession) emit(event domain.RecognitionEvent) {
	select {
	case s.events <- event:
	default:
		slog.Debug("recognition event dropped", "kind", event.Kind)
	}
}

func (s *recognitionSession) setErr(kind domain.RecognitionErrorKind, detail string) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errKind == domain.RecognitionErrNone {
		s.errKind = kind
		s.errText = detail
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, net.ErrClosed)
}

func classifyProviderError(message string) domain.RecognitionErrorKind {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "no audio"), strings.Contains(lower, "timed out"):
		return domain.RecognitionErrNoSpeech
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "forbidden"):
		return domain.RecognitionErrNotAllowed
	default:
		return domain.RecognitionErrNetwork
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscripts(response deepgramResponse) []string {
	out := make([]string, 0, len(response.Channel.Alternatives))
	seen := map[string]struct{}{}
	for _, alt := range response.Channel.Alternatives {
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}
	return out
}

func buildListenURL(engineCfg Config, cfg ports.RecognitionConfig) (string, error) {
	base := strings.TrimSpace(engineCfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = 5
	}

	query := listenURL.Query()
	query.Set("model", engineCfg.Model)
	query.Set("encoding", cfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	query.Set("channels", strconv.Itoa(cfg.Channels))
	query.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	query.Set("alternatives", strconv.Itoa(cfg.MaxAlternatives))
	query.Set("smart_format", strconv.FormatBool(engineCfg.SmartFormat))
	if engineCfg.Language != "" {
		query.Set("language", engineCfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
