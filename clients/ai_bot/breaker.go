package ai_bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"voice-assistant/metrics"
)

type breakerImpl struct {
	next AIBotAPI
	cb   *gobreaker.CircuitBreaker
}

type BreakerConfig struct {
	Next AIBotAPI
	// Failures is the number of consecutive failures that opens the breaker.
	Failures uint32
	// Cooldown is how long the breaker stays open before a trial request.
	Cooldown time.Duration
}

// NewBreaker stops calling a failing completion backend for a while so the
// assistant can apologise immediately instead of waiting on timeouts.
func NewBreaker(cfg *BreakerConfig) (AIBotAPI, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Next == nil {
		return nil, fmt.Errorf("next is nil")
	}

	failures := cfg.Failures
	if failures == 0 {
		failures = 3
	}

	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &breakerImpl{
		next: cfg.Next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "completion",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		}),
	}, nil
}

func (b *breakerImpl) SendPrompt(ctx context.Context, systemPrompt, prompt string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.SendPrompt(ctx, systemPrompt, prompt)
	})
	if err != nil {
		metrics.CompletionFailuresTotal.Inc()

		return "", err
	}

	return out.(string), nil
}
