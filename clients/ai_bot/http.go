package ai_bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type clientImpl struct {
	apiHost    string
	httpClient *http.Client
}

type Config struct {
	ApiHost string
	Timeout time.Duration
}

// NewClient talks to a plain bot server exposing GET /get_prompt_response.
func NewClient(cfg *Config) (AIBotAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.ApiHost == "" {
		return nil, errors.New("missing parameter: cfg.ApiHost")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &clientImpl{
		apiHost:    strings.TrimRight(cfg.ApiHost, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (client *clientImpl) SendPrompt(ctx context.Context, systemPrompt, prompt string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.apiHost+"/get_prompt_response", nil)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Add("prompt", prompt)
	if systemPrompt != "" {
		q.Add("system", systemPrompt)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug().Int("status", resp.StatusCode).Str("body", string(body)).Msg("bot server rejected prompt")

		return "", fmt.Errorf("bot server returned %s", resp.Status)
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
