package speech_extraction

import (
	"context"
	"errors"
	"time"
)

var ErrAudioRead = errors.New("audio read failed")

type OutcomeKind string

const (
	OutcomeOK             OutcomeKind = "ok"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeUnintelligible OutcomeKind = "unintelligible"
	OutcomeError          OutcomeKind = "error"
)

type Utterance struct {
	Text       string
	CapturedAt time.Time
}

// Outcome is the result of one capture. Timeout and Unintelligible are
// expected outcomes, not failures.
type Outcome struct {
	Kind      OutcomeKind
	Utterance Utterance
	Reason    string
	Err       error
}

type Interface interface {
	// Capture waits up to timeout for speech to begin and records at most
	// phraseLimit of it.
	Capture(ctx context.Context, timeout, phraseLimit time.Duration) Outcome
}
