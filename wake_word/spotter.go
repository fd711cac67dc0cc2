package wake_word

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"voice-assistant/ring_buffer"
	"voice-assistant/speech_to_text"
	"voice-assistant/voice_activity_detection"
)

const spotterTranscribeTimeout = 3 * time.Second

// spotterImpl listens for short bursts of speech and transcribes each one,
// firing when the transcript contains a configured phrase.
type spotterImpl struct {
	stt         speech_to_text.Interface
	phrases     []string
	frameLength int
	sampleRate  int

	segmenter *voice_activity_detection.Segmenter
	preRoll   *ring_buffer.Buffer
	segment   []int16
}

type SpotterConfig struct {
	STT         speech_to_text.Interface
	Phrases     []string
	FrameLength int
	SampleRate  int
	// QuietTime ends a segment after this much silence.
	QuietTime time.Duration
	// MaxTime bounds a segment. Wake phrases are short.
	MaxTime time.Duration
}

func NewSpotter(cfg *SpotterConfig) (Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.STT == nil {
		return nil, fmt.Errorf("stt is nil")
	}

	if len(cfg.Phrases) == 0 {
		return nil, fmt.Errorf("no wake phrases configured")
	}

	if cfg.FrameLength <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("frame length and sample rate must be positive")
	}

	quiet := cfg.QuietTime
	if quiet <= 0 {
		quiet = 200 * time.Millisecond
	}

	maxTime := cfg.MaxTime
	if maxTime <= 0 {
		maxTime = 2 * time.Second
	}

	frameDur := time.Duration(cfg.FrameLength) * time.Second / time.Duration(cfg.SampleRate)

	phrases := make([]string, len(cfg.Phrases))
	for i, p := range cfg.Phrases {
		phrases[i] = normalizeTranscript(p)
	}

	return &spotterImpl{
		stt:         cfg.STT,
		phrases:     phrases,
		frameLength: cfg.FrameLength,
		sampleRate:  cfg.SampleRate,
		segmenter: voice_activity_detection.NewSegmenter(voice_activity_detection.SegmenterConfig{
			EnergyThreshold: voice_activity_detection.DefaultEnergyThreshold,
			FluxRatio:       voice_activity_detection.DefaultFluxRatio,
			QuietFrames:     voice_activity_detection.FramesFor(quiet, frameDur),
			MaxFrames:       voice_activity_detection.FramesFor(maxTime, frameDur),
			FrameSize:       cfg.FrameLength,
		}),
		preRoll: ring_buffer.New(cfg.FrameLength * 2),
	}, nil
}

func (s *spotterImpl) Process(frame []int16) (int, error) {
	switch s.segmenter.Feed(frame) {
	case voice_activity_detection.EventSilence:
		s.preRoll.Add(frame)

		return -1, nil
	case voice_activity_detection.EventOnset:
		s.segment = append(s.segment[:0], s.preRoll.Read()...)
		s.segment = append(s.segment, frame...)

		return -1, nil
	case voice_activity_detection.EventSpeech:
		s.segment = append(s.segment, frame...)

		return -1, nil
	}

	s.segment = append(s.segment, frame...)
	samples := s.segment

	s.segment = nil
	s.segmenter.Reset()
	s.preRoll.Clear()

	return s.match(samples)
}

func (s *spotterImpl) match(samples []int16) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), spotterTranscribeTimeout)
	defer cancel()

	text, err := s.stt.Transcribe(ctx, speech_to_text.NewBuffer(samples, s.sampleRate))
	if errors.Is(err, speech_to_text.ErrNoSpeech) {
		return -1, nil
	} else if err != nil {
		// a failed transcription only costs this segment
		log.Warn().Err(err).Msg("wake phrase transcription failed")

		return -1, nil
	}

	heard := normalizeTranscript(text)
	log.Debug().Str("heard", heard).Msg("wake segment transcribed")

	for i, phrase := range s.phrases {
		if phrase != "" && strings.Contains(heard, phrase) {
			return i, nil
		}
	}

	return -1, nil
}

func (s *spotterImpl) FrameLength() int {
	return s.frameLength
}

func (s *spotterImpl) SampleRate() int {
	return s.sampleRate
}

func (s *spotterImpl) Phrases() []string {
	return s.phrases
}

func (s *spotterImpl) Close() error {
	return nil
}

// normalizeTranscript keeps only lowercase letters, digits and single spaces
// so punctuation in a transcript never hides a phrase.
func normalizeTranscript(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '\t', r == '\n', r == '-':
			return ' '
		}

		return -1
	}, text)

	return strings.Join(strings.Fields(cleaned), " ")
}
