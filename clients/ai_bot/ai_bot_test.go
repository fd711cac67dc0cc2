package ai_bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-assistant/metrics"
)

func TestHTTPClient(t *testing.T) {
	t.Run("the prompt is sent as a query parameter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/get_prompt_response", r.URL.Path)
			assert.Equal(t, "what is the weather", r.URL.Query().Get("prompt"))
			assert.Equal(t, "be brief", r.URL.Query().Get("system"))

			_, _ = w.Write([]byte(" Sunny. \n"))
		}))
		defer server.Close()

		client, err := NewClient(&Config{ApiHost: server.URL + "/"})
		require.NoError(t, err)

		text, err := client.SendPrompt(context.Background(), "be brief", "what is the weather")
		require.NoError(t, err)
		assert.Equal(t, "Sunny.", text)
	})

	t.Run("a non-2xx status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model offline", http.StatusBadGateway)
		}))
		defer server.Close()

		client, err := NewClient(&Config{ApiHost: server.URL})
		require.NoError(t, err)

		_, err = client.SendPrompt(context.Background(), "", "hi")
		assert.Error(t, err)
	})

	t.Run("missing config is rejected", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.Error(t, err)

		_, err = NewClient(&Config{})
		assert.Error(t, err)
	})
}

func TestChat(t *testing.T) {
	var request map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "llama-3.3-70b-versatile",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "Hello Ada! How can I help?"}
			}]
		}`))
	}))
	defer server.Close()

	client, err := NewChat(&ChatConfig{APIKey: "gsk-test", BaseURL: server.URL + "/v1/"})
	require.NoError(t, err)

	text, err := client.SendPrompt(context.Background(), "You are Jarvis.", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada! How can I help?", text)

	assert.Equal(t, DefaultModel, request["model"])
	assert.InDelta(t, DefaultTemperature, request["temperature"], 0.0001)
	assert.EqualValues(t, DefaultMaxTokens, request["max_tokens"])

	messages, ok := request["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

type failingBot struct {
	calls int
	err   error
}

func (f *failingBot) SendPrompt(context.Context, string, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}

	return "ok", nil
}

func TestBreaker(t *testing.T) {
	t.Run("consecutive failures open the breaker", func(t *testing.T) {
		next := &failingBot{err: errors.New("rate limited")}

		bot, err := NewBreaker(&BreakerConfig{Next: next, Failures: 3, Cooldown: time.Minute})
		require.NoError(t, err)

		before := testutil.ToFloat64(metrics.CompletionFailuresTotal)

		for i := 0; i < 3; i++ {
			_, err := bot.SendPrompt(context.Background(), "", "hi")
			assert.Error(t, err)
		}

		_, err = bot.SendPrompt(context.Background(), "", "hi")
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, 3, next.calls)
		assert.Equal(t, before+4, testutil.ToFloat64(metrics.CompletionFailuresTotal))
	})

	t.Run("successes pass through", func(t *testing.T) {
		bot, err := NewBreaker(&BreakerConfig{Next: &failingBot{}})
		require.NoError(t, err)

		text, err := bot.SendPrompt(context.Background(), "", "hi")
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
	})
}
