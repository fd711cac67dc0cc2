package listener

import (
	"context"
	"errors"
	"io"
)

var ErrDeviceLost = errors.New("audio device lost")

type Interface interface {
	ListenLoop(ctx context.Context) error
	RunText(ctx context.Context, in io.Reader) error
	ControlInterface
}

type ControlInterface interface {
	HaltListening()
	ListenForWake()
	ListenForCommand()
}
