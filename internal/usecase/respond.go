package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"commission-intake/internal/domain"
)

const taggedOnlyReply = "Got it! Is there anything else you'd like the maker to know?"

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// Response is one generated assistant turn.
type Response struct {
	Reply   string
	Summary string
	Tagged  bool
}

// Responder produces assistant turns through a text-generation service.
type Responder struct {
	llm LLMClient
}

func NewResponder(llm LLMClient) (*Responder, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &Responder{llm: llm}, nil
}

// Respond asks the model for the next reply. A reply without a summary tag
// is returned verbatim with Tagged=false.
func (r *Responder) Respond(ctx context.Context, model string, transcript []domain.Message, categories []string) (Response, error) {
	raw, err := r.llm.Chat(ctx, model, buildPromptMessages(transcript, categories))
	if err != nil {
		return Response{}, fmt.Errorf("usecase: generate reply: %w", err)
	}
	reply, summary, tagged := parseSummaryTag(raw)
	if !tagged {
		reply = strings.TrimSpace(raw)
	}
	if reply == "" {
		if !tagged {
			return Response{}, errors.New("usecase: generate reply: empty reply")
		}
		reply = taggedOnlyReply
	}
	return Response{Reply: reply, Summary: summary, Tagged: tagged}, nil
}
