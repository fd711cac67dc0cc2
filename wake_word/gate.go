package wake_word

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"voice-assistant/metrics"
	"voice-assistant/status"
	"voice-assistant/voice_activity_detection"
)

const (
	DefaultLevelEvery = 50
	DefaultLevelFloor = 500
)

type Gate struct {
	engine     Engine
	observer   status.Observer
	levelEvery int
	levelFloor int
	frames     int
}

type Config struct {
	Engine Engine
	// FrameLength and SampleRate describe the audio source feeding the gate.
	FrameLength int
	SampleRate  int
	Observer    status.Observer
	// LevelEvery reports the peak level once per this many frames.
	LevelEvery int
	// LevelFloor is the peak level above which detected audio is logged.
	LevelFloor int
}

func New(cfg *Config) (*Gate, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}

	if cfg.FrameLength != cfg.Engine.FrameLength() {
		return nil, fmt.Errorf("%w: source frame length %d, engine requires %d",
			ErrFrameMismatch, cfg.FrameLength, cfg.Engine.FrameLength())
	}

	if cfg.SampleRate != cfg.Engine.SampleRate() {
		return nil, fmt.Errorf("%w: source sample rate %d, engine requires %d",
			ErrFrameMismatch, cfg.SampleRate, cfg.Engine.SampleRate())
	}

	g := &Gate{
		engine:     cfg.Engine,
		observer:   cfg.Observer,
		levelEvery: cfg.LevelEvery,
		levelFloor: cfg.LevelFloor,
	}

	if g.observer == nil {
		g.observer = status.Nop{}
	}

	if g.levelEvery <= 0 {
		g.levelEvery = DefaultLevelEvery
	}

	if g.levelFloor <= 0 {
		g.levelFloor = DefaultLevelFloor
	}

	return g, nil
}

// Poll feeds one frame to the engine and returns the index of the phrase that
// fired, or -1.
func (g *Gate) Poll(frame []int16) (int, error) {
	if len(frame) != g.engine.FrameLength() {
		return -1, fmt.Errorf("%w: got %d samples, want %d", ErrFrameMismatch, len(frame), g.engine.FrameLength())
	}

	g.frames++
	if g.frames%g.levelEvery == 0 {
		level := voice_activity_detection.Peak(frame)
		g.observer.OnLevel(level)

		if level > g.levelFloor {
			log.Debug().Int("level", level).Msg("audio detected")
		}
	}

	idx, err := g.engine.Process(frame)
	if err != nil {
		return -1, fmt.Errorf("wake engine: %w", err)
	}

	if idx >= 0 {
		phrase := g.Phrase(idx)

		metrics.WakeTriggersTotal.WithLabelValues(phrase).Inc()
		log.Info().Str("phrase", phrase).Msg("wake word detected")
	}

	return idx, nil
}

func (g *Gate) Phrase(idx int) string {
	phrases := g.engine.Phrases()
	if idx < 0 || idx >= len(phrases) {
		return ""
	}

	return phrases[idx]
}

func (g *Gate) FrameLength() int {
	return g.engine.FrameLength()
}

func (g *Gate) Close() error {
	return g.engine.Close()
}
