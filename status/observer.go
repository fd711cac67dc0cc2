// Package status carries state and audio level notifications from the
// interaction engine to whatever displays them. Observers never drive the
// engine.
package status

import (
	"sync"

	"github.com/rs/zerolog"
)

type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateCapturing State = "capturing"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
)

type Observer interface {
	OnState(state State, detail string)
	OnLevel(level int)
}

type Nop struct{}

func (Nop) OnState(State, string) {}
func (Nop) OnLevel(int)           {}

// Multi fans every notification out to each observer in order.
type Multi []Observer

func (m Multi) OnState(state State, detail string) {
	for _, o := range m {
		o.OnState(state, detail)
	}
}

func (m Multi) OnLevel(level int) {
	for _, o := range m {
		o.OnLevel(level)
	}
}

// LogObserver writes transitions to a zerolog logger. Levels at or above
// LevelFloor are logged at debug.
type LogObserver struct {
	Logger     zerolog.Logger
	LevelFloor int
}

func (l LogObserver) OnState(state State, detail string) {
	event := l.Logger.Debug().Str("state", string(state))
	if detail != "" {
		event = event.Str("detail", detail)
	}

	event.Msg("status")
}

func (l LogObserver) OnLevel(level int) {
	if level < l.LevelFloor {
		return
	}

	l.Logger.Debug().Int("level", level).Msg("audio detected")
}

// Recorder keeps every notification in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	states []State
	levels []int
}

func (r *Recorder) OnState(state State, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, state)
}

func (r *Recorder) OnLevel(level int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.levels = append(r.levels, level)
}

func (r *Recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]State(nil), r.states...)
}

func (r *Recorder) Levels() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int(nil), r.levels...)
}
