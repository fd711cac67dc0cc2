package text_to_speech

import "context"

const DefaultRate = 175

// Interface vocalizes text and returns when playback has finished.
type Interface interface {
	Speak(ctx context.Context, text string) error
}

// Silent speaks nothing. Typed sessions use it when the console echo is
// enough.
type Silent struct{}

func (Silent) Speak(context.Context, string) error { return nil }
