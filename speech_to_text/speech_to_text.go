package speech_to_text

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/audio"
	"github.com/rs/zerolog/log"
)

type whisperImpl struct {
	// whisper contexts share model state and are not safe to run in parallel
	mu       sync.Mutex
	model    whisper.Model
	language string
}

type Config struct {
	Model    whisper.Model
	Language string
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	return &whisperImpl{
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

func (stt *whisperImpl) Transcribe(ctx context.Context, buf *audio.IntBuffer) (string, error) {
	if buf == nil || len(buf.Data) == 0 {
		return "", ErrNoSpeech
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	stt.mu.Lock()
	defer stt.mu.Unlock()

	whisperCtx, err := stt.model.NewContext()
	if err != nil {
		return "", err
	}

	if stt.language != "" {
		if err := whisperCtx.SetLanguage(stt.language); err != nil {
			return "", fmt.Errorf("set language %q: %w", stt.language, err)
		}
	}

	data := make([]float32, len(buf.Data))
	for i, sample := range buf.Data {
		data[i] = float32(sample) / 32768
	}

	if err := whisperCtx.Process(data, nil); err != nil {
		return "", err
	}

	segments, err := outputSegments(whisperCtx)
	if err != nil {
		return "", err
	}

	texts := make([]string, 0, len(segments))

	for _, segment := range segments {
		log.Debug().Msgf("[%6s->%6s] %s",
			segment.Start.Truncate(time.Millisecond), segment.End.Truncate(time.Millisecond), segment.Text)

		texts = append(texts, strings.TrimSpace(segment.Text))
	}

	text := strings.TrimSpace(strings.Join(texts, " "))
	if text == "" {
		return "", ErrNoSpeech
	}

	return text, nil
}

func outputSegments(context whisper.Context) ([]whisper.Segment, error) {
	seenText := make(map[string]bool)

	segments := make([]whisper.Segment, 0)

	for {
		segment, err := context.NextSegment()
		if err == io.EOF {
			return segments, nil
		} else if err != nil {
			return nil, err
		}

		if !keepSegment(segment.Text) {
			continue
		}

		// whisper repeats itself on trailing silence
		if seenText[segment.Text] {
			continue
		}

		seenText[segment.Text] = true

		segments = append(segments, segment)
	}
}

// keepSegment drops annotations such as "[BLANK_AUDIO]" or "(music)".
func keepSegment(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	first, last := text[0], text[len(text)-1]

	return first != '(' && first != '[' && last != ')' && last != ']'
}
