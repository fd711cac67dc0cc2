package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_commands_total",
		Help: "Commands dispatched, by intent and outcome",
	}, []string{"intent", "status"})

	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_assistant_dispatch_seconds",
		Help:    "Time spent executing an action handler",
		Buckets: prometheus.DefBuckets,
	})

	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_captures_total",
		Help: "Utterance captures, by outcome",
	}, []string{"outcome"})

	WakeTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_wake_triggers_total",
		Help: "Wake phrase detections, by phrase",
	}, []string{"phrase"})

	SpeechQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_assistant_speech_queue_depth",
		Help: "Speech requests waiting to be spoken",
	})

	CompletionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_assistant_completion_failures_total",
		Help: "Completion requests that failed or were rejected by the breaker",
	})
)

func ObserveCommand(intent string, success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}

	CommandsTotal.WithLabelValues(intent, status).Inc()
	DispatchLatency.Observe(elapsed.Seconds())
}

// Serve exposes /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
