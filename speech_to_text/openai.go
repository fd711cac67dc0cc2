package speech_to_text

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/afero"
)

const (
	DefaultGroqBaseURL        = "https://api.groq.com/openai/v1"
	DefaultTranscriptionModel = "whisper-large-v3"
)

type openAIImpl struct {
	client   openai.Client
	model    string
	language string
	fileSys  afero.Fs
}

type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	// FileSys stages the encoded upload. Defaults to an in-memory filesystem.
	FileSys afero.Fs
}

// NewOpenAI transcribes through an OpenAI-compatible /audio/transcriptions
// endpoint.
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

	model := cfg.Model
	if model == "" {
		model = DefaultTranscriptionModel
	}

	fileSys := cfg.FileSys
	if fileSys == nil {
		fileSys = afero.NewMemMapFs()
	}

	return &openAIImpl{
		client:   openai.NewClient(opts...),
		model:    model,
		language: cfg.Language,
		fileSys:  fileSys,
	}, nil
}

func (stt *openAIImpl) Transcribe(ctx context.Context, buf *audio.IntBuffer) (string, error) {
	if buf == nil || len(buf.Data) == 0 {
		return "", ErrNoSpeech
	}

	name := "utterance-" + uuid.NewString() + ".wav"

	f, err := stt.fileSys.Create(name)
	if err != nil {
		return "", err
	}

	defer func() {
		f.Close()
		_ = stt.fileSys.Remove(name)
	}()

	if err := encodeWAV(f, buf); err != nil {
		return "", fmt.Errorf("encode upload: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(stt.model),
	}

	if stt.language != "" {
		params.Language = openai.String(stt.language)
	}

	transcription, err := stt.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(transcription.Text)
	if text == "" {
		return "", ErrNoSpeech
	}

	return text, nil
}

func encodeWAV(w io.WriteSeeker, buf *audio.IntBuffer) error {
	rate := 16000
	if buf.Format != nil && buf.Format.SampleRate > 0 {
		rate = buf.Format.SampleRate
	}

	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return err
	}

	return enc.Close()
}
