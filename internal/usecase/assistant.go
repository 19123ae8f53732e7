package usecase

import (
	"context"
	"strings"

	"careva/internal/domain"
	"careva/internal/ports"
)

// Assistant answers spoken queries captured after a wake phrase.
type Assistant struct {
	client ports.NotesBackend
	events ports.EventSink
}

func NewAssistant(client ports.NotesBackend, events ports.EventSink) *Assistant {
	return &Assistant{client: client, events: events}
}

// Ask forwards a question to the assistant backend. An empty question
// is rejected locally so the wake phrase alone never burns a request.
func (a *Assistant) Ask(ctx context.Context, question, participantID string) (domain.AssistantReply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.AssistantReply{}, ErrEmptyText
	}

	reply, err := a.client.Ask(ctx, question, participantID)
	if err != nil {
		a.events.Notice(domain.ErrorCodeAssistant, "the assistant is unavailable")
		return domain.AssistantReply{}, err
	}
	return reply, nil
}
