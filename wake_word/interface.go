package wake_word

import "errors"

var ErrFrameMismatch = errors.New("frame does not match wake engine")

// Engine recognizes trigger phrases in fixed-length frames. Process returns
// the index of the phrase heard in the frame, or -1.
type Engine interface {
	Process(frame []int16) (int, error)
	FrameLength() int
	SampleRate() int
	Phrases() []string
	Close() error
}
