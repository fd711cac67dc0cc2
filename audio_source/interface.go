package audio_source

import "errors"

var (
	ErrClosed        = errors.New("audio source is closed")
	ErrLeaseReleased = errors.New("audio lease already released")
)

// Interface produces fixed-length frames of signed 16-bit mono samples.
// Read returns io.EOF when a finite source is exhausted.
type Interface interface {
	Open() error
	Read() ([]int16, error)
	Close() error
	FrameLength() int
	SampleRate() int
}
