package launcher

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("application not found")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Launcher starts applications and hands URLs and URIs to the desktop.
type Launcher interface {
	Launch(ctx context.Context, target string) error
	OpenURL(ctx context.Context, url string) error
}

// Runner executes processes. Start does not wait for the process; Run waits
// and fails on a non-zero exit.
type Runner interface {
	Start(ctx context.Context, name string, args ...string) error
	Run(ctx context.Context, name string, args ...string) error
}
