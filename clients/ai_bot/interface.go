package ai_bot

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("completion returned no text")

type AIBotAPI interface {
	SendPrompt(ctx context.Context, systemPrompt, prompt string) (string, error)
}
