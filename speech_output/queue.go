// Package speech_output serializes everything the assistant says through a
// single voice.
package speech_output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"voice-assistant/metrics"
	"voice-assistant/status"
	"voice-assistant/text_to_speech"
)

var ErrClosed = errors.New("speech queue is closed")

type request struct {
	text string
	done chan struct{}
}

// Queue speaks requests one at a time in the order they were enqueued.
// Speak never blocks the caller.
type Queue struct {
	engine   text_to_speech.Interface
	observer status.Observer
	console  io.Writer

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []*request
	last     *request
	closed   bool
	started  bool
	finished chan struct{}
}

type Config struct {
	Engine   text_to_speech.Interface
	Observer status.Observer
	// Console receives an "Assistant: <text>" line per request.
	Console io.Writer
}

func New(cfg *Config) (*Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}

	q := &Queue{
		engine:   cfg.Engine,
		observer: cfg.Observer,
		console:  cfg.Console,
		finished: make(chan struct{}),
	}

	if q.observer == nil {
		q.observer = status.Nop{}
	}

	q.cond = sync.NewCond(&q.mu)

	return q, nil
}

// Start runs the worker. ctx is passed to the engine for each request.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}

	q.started = true

	go q.work(ctx)
}

func (q *Queue) Speak(text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	if q.console != nil {
		fmt.Fprintf(q.console, "Assistant: %s\n", text)
	}

	r := &request{text: text, done: make(chan struct{})}
	q.pending = append(q.pending, r)
	q.last = r

	metrics.SpeechQueueDepth.Inc()
	q.cond.Signal()

	return nil
}

// Drain waits until everything enqueued before the call has been spoken.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	last := q.last
	q.mu.Unlock()

	if last == nil {
		return nil
	}

	select {
	case <-last.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the worker.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	started := q.started
	q.cond.Broadcast()
	q.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-q.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) next() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.pending) == 0 {
		return nil, false
	}

	r := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]

	return r, true
}

func (q *Queue) work(ctx context.Context) {
	defer close(q.finished)

	for {
		r, ok := q.next()
		if !ok {
			return
		}

		q.say(ctx, r)
	}
}

func (q *Queue) say(ctx context.Context, r *request) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("speech engine panicked")
		}

		metrics.SpeechQueueDepth.Dec()
		q.observer.OnState(status.StateIdle, "")
		close(r.done)
	}()

	q.observer.OnState(status.StateSpeaking, r.text)

	if err := q.engine.Speak(ctx, r.text); err != nil {
		log.Warn().Err(err).Str("text", r.text).Msg("failed to speak")
	}
}
