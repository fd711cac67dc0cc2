package text_to_speech

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gordonklaus/portaudio"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// the speech endpoint returns raw 24kHz 16-bit mono PCM
	speechSampleRate = 24000
	playbackFrames   = 2048

	DefaultSpeechModel = "tts-1"
	DefaultSpeechVoice = "alloy"
)

// PCMSink plays signed 16-bit mono samples and blocks until they are heard.
type PCMSink interface {
	Play(ctx context.Context, samples io.Reader, sampleRate int) error
}

type openAIImpl struct {
	client openai.Client
	model  string
	voice  string
	speed  float64
	sink   PCMSink
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	// Speed is a multiplier in [0.25, 4]. Zero means normal speed.
	Speed float64
	// Sink defaults to the portaudio output device.
	Sink PCMSink
}

func NewOpenAI(cfg *OpenAIConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	impl := &openAIImpl{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		voice:  cfg.Voice,
		speed:  cfg.Speed,
		sink:   cfg.Sink,
	}

	if impl.model == "" {
		impl.model = DefaultSpeechModel
	}

	if impl.voice == "" {
		impl.voice = DefaultSpeechVoice
	}

	if impl.sink == nil {
		impl.sink = PortAudioSink{}
	}

	return impl, nil
}

func (o *openAIImpl) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.model),
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}

	if o.speed > 0 {
		params.Speed = openai.Float(o.speed)
	}

	resp, err := o.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}

	defer resp.Body.Close()

	return o.sink.Play(ctx, resp.Body, speechSampleRate)
}

// PortAudioSink writes to the default output device.
type PortAudioSink struct{}

func (PortAudioSink) Play(ctx context.Context, samples io.Reader, sampleRate int) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}

	defer portaudio.Terminate()

	out := make([]int16, playbackFrames)

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}

	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}

	defer stream.Stop()

	raw := make([]byte, len(out)*2)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(samples, raw)
		if n > 0 {
			// zero the tail of a short final chunk
			for i := range out {
				if 2*i+1 < n {
					out[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
				} else {
					out[i] = 0
				}
			}

			if writeErr := stream.Write(); writeErr != nil && !errors.Is(writeErr, portaudio.OutputUnderflowed) {
				return writeErr
			}
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		} else if err != nil {
			return err
		}
	}
}
