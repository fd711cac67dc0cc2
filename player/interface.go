package player

import (
	"context"
	"errors"
)

var (
	ErrNotPlaying = errors.New("nothing is playing")
	ErrNoPlayer   = errors.New("no media player available")
)

// Interface plays one media file at a time.
type Interface interface {
	// Play stops any current playback before starting path.
	Play(ctx context.Context, name, path string) error
	Pause() error
	Resume() error
	Stop() error
	// Active reports the name of what is playing.
	Active() (string, bool)
}

// Process is a running player.
type Process interface {
	Suspend() error
	Continue() error
	Kill() error
	Done() <-chan struct{}
}

// Starter launches a player command.
type Starter func(name string, args ...string) (Process, error)
