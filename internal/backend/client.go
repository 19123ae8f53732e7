package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"careva/internal/domain"
	"careva/internal/ports"
)

// ErrorKind classifies backend failures. Every error leaving this
// package carries a kind; nothing is left generic.
type ErrorKind string

const (
	ErrKindInvalidPayload  ErrorKind = "invalid_payload"
	ErrKindPayloadTooLarge ErrorKind = "payload_too_large"
	ErrKindTimeout         ErrorKind = "timeout"
	ErrKindUnavailable     ErrorKind = "unavailable"
)

// Error is a classified backend failure.
type Error struct {
	Kind   ErrorKind
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend %s (HTTP %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("backend %s: %s", e.Kind, e.Detail)
}

// KindOf extracts the error kind, defaulting to unavailable.
func KindOf(err error) ErrorKind {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Kind
	}
	return ErrKindUnavailable
}

// Config controls the notes backend client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the notes backend over HTTP. Every call is a single
// attempt; retry policy belongs to the caller.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a backend client. The per-request deadline comes
// from Config.Timeout unless the caller's context is shorter.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend base URL is not configured")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type voiceToTextResponse struct {
	NoteID          int64  `json:"note_id"`
	TranscribedText string `json:"transcribed_text"`
	RPFlag          bool   `json:"rp_flag"`
	AudioDuration   int    `json:"audio_duration"`
}

// Transcribe posts recorded audio for transcription preview.
func (c *Client) Transcribe(ctx context.Context, req ports.TranscribeRequest) (domain.TranscriptionResult, error) {
	var parsed voiceToTextResponse
	if err := c.postAudio(ctx, req, &parsed); err != nil {
		return domain.TranscriptionResult{}, err
	}
	return domain.TranscriptionResult{
		Text:            parsed.TranscribedText,
		RPFlag:          parsed.RPFlag,
		NoteID:          parsed.NoteID,
		DurationSeconds: parsed.AudioDuration,
	}, nil
}

// SubmitVoiceNote posts recorded audio as a finished voice note. The
// backend transcribes and stores it in one call.
func (c *Client) SubmitVoiceNote(ctx context.Context, req ports.TranscribeRequest) (domain.SubmitResult, error) {
	var parsed voiceToTextResponse
	if err := c.postAudio(ctx, req, &parsed); err != nil {
		return domain.SubmitResult{}, err
	}
	return domain.SubmitResult{RPFlag: parsed.RPFlag, NoteID: parsed.NoteID}, nil
}

// SubmitTextNote posts a typed note.
func (c *Client) SubmitTextNote(ctx context.Context, participantID, text string) (domain.SubmitResult, error) {
	payload := map[string]string{
		"participant_id": participantID,
		"text":           text,
	}
	var parsed struct {
		ID     int64 `json:"id"`
		RPFlag bool  `json:"rp_flag"`
	}
	if err := c.postJSON(ctx, "/api/notes", payload, &parsed); err != nil {
		return domain.SubmitResult{}, err
	}
	return domain.SubmitResult{RPFlag: parsed.RPFlag, NoteID: parsed.ID}, nil
}

// Ask sends an activation query to the assistant.
func (c *Client) Ask(ctx context.Context, question, participantID string) (domain.AssistantReply, error) {
	payload := map[string]any{
		"question": question,
		"context":  map[string]string{},
	}
	if participantID != "" {
		payload["context"] = map[string]string{"participant_id": participantID}
	}

	var parsed struct {
		Response     string   `json:"response"`
		Tags         []string `json:"tags"`
		Intent       string   `json:"intent"`
		RPFlag       bool     `json:"rp_flag"`
		Alternatives []string `json:"alternatives"`
	}
	if err := c.postJSON(ctx, "/api/ask-nova", payload, &parsed); err != nil {
		return domain.AssistantReply{}, err
	}
	return domain.AssistantReply{
		Response:     parsed.Response,
		Tags:         parsed.Tags,
		Intent:       parsed.Intent,
		RPFlag:       parsed.RPFlag,
		Alternatives: parsed.Alternatives,
	}, nil
}

func (c *Client) postAudio(ctx context.Context, req ports.TranscribeRequest, out any) error {
	body, contentType, err := buildAudioForm(req)
	if err != nil {
		return &Error{Kind: ErrKindInvalidPayload, Detail: err.Error()}
	}
	return c.do(ctx, "/api/voice-to-text", contentType, body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return &Error{Kind: ErrKindInvalidPayload, Detail: err.Error()}
	}
	return c.do(ctx, path, "application/json", bytes.NewReader(encoded), out)
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return &Error{Kind: ErrKindUnavailable, Detail: err.Error()}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return &Error{Kind: ErrKindTimeout, Detail: "request deadline exceeded"}
		}
		return &Error{Kind: ErrKindUnavailable, Detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Kind: ErrKindUnavailable, Detail: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		classified := classifyStatus(resp.StatusCode, respBody)
		slog.Warn("backend request failed", "path", path, "status", resp.StatusCode, "kind", classified.Kind)
		return classified
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: ErrKindUnavailable, Status: resp.StatusCode, Detail: "malformed response body"}
	}
	return nil
}

func classifyStatus(status int, body []byte) *Error {
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = http.StatusText(status)
	}
	switch status {
	case http.StatusUnprocessableEntity:
		return &Error{Kind: ErrKindInvalidPayload, Status: status, Detail: detail}
	case http.StatusRequestEntityTooLarge:
		return &Error{Kind: ErrKindPayloadTooLarge, Status: status, Detail: detail}
	case http.StatusGatewayTimeout:
		return &Error{Kind: ErrKindTimeout, Status: status, Detail: detail}
	default:
		return &Error{Kind: ErrKindUnavailable, Status: status, Detail: detail}
	}
}

func buildAudioForm(req ports.TranscribeRequest) (io.Reader, string, error) {
	if req.Audio == nil {
		return nil, "", errors.New("audio reader is nil")
	}
	filename := req.Filename
	if filename == "" {
		filename = "recording.wav"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fileWriter, req.Audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("participant_id", req.ParticipantID); err != nil {
		return nil, "", fmt.Errorf("failed to write participant field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
