package speech_to_text

import (
	"context"
	"errors"

	"github.com/go-audio/audio"
)

// ErrNoSpeech is returned when the engine produced no usable text.
var ErrNoSpeech = errors.New("no speech recognized")

type Interface interface {
	Transcribe(ctx context.Context, buf *audio.IntBuffer) (string, error)
}

// NewBuffer wraps mono 16-bit samples for transcription.
func NewBuffer(samples []int16, sampleRate int) *audio.IntBuffer {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}
