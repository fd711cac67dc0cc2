package ai_bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

type chatImpl struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// NewChat sends prompts to an OpenAI-compatible chat completions endpoint.
func NewChat(cfg *ChatConfig) (AIBotAPI, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is empty")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}

	c := &chatImpl{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}

	if c.model == "" {
		c.model = DefaultModel
	}

	if c.temperature <= 0 {
		c.temperature = DefaultTemperature
	}

	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}

	return c, nil
}

func (c *chatImpl) SendPrompt(ctx context.Context, systemPrompt, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
