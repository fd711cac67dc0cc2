package wake_word

import (
	"fmt"
	"path/filepath"
	"strings"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"
)

type porcupineImpl struct {
	handle  *porcupine.Porcupine
	phrases []string
}

type PorcupineConfig struct {
	AccessKey string
	// Keywords are built-in keyword names such as "jarvis" or "computer".
	Keywords []string
	// KeywordPaths are custom .ppn files. They take precedence over Keywords.
	KeywordPaths []string
	ModelPath    string
	Sensitivity  float32
}

func NewPorcupine(cfg *PorcupineConfig) (Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("porcupine access key is empty")
	}

	handle := &porcupine.Porcupine{
		AccessKey: cfg.AccessKey,
		ModelPath: cfg.ModelPath,
	}

	var phrases []string

	switch {
	case len(cfg.KeywordPaths) > 0:
		handle.KeywordPaths = cfg.KeywordPaths

		for _, p := range cfg.KeywordPaths {
			phrases = append(phrases, phraseFromPath(p))
		}
	case len(cfg.Keywords) > 0:
		for _, k := range cfg.Keywords {
			handle.BuiltInKeywords = append(handle.BuiltInKeywords, porcupine.BuiltInKeyword(strings.ToLower(k)))
			phrases = append(phrases, strings.ToLower(k))
		}
	default:
		return nil, fmt.Errorf("no wake keywords configured")
	}

	sensitivity := cfg.Sensitivity
	if sensitivity <= 0 || sensitivity > 1 {
		sensitivity = 0.5
	}

	handle.Sensitivities = make([]float32, len(phrases))
	for i := range handle.Sensitivities {
		handle.Sensitivities[i] = sensitivity
	}

	if err := handle.Init(); err != nil {
		return nil, fmt.Errorf("init porcupine: %w", err)
	}

	return &porcupineImpl{handle: handle, phrases: phrases}, nil
}

func (p *porcupineImpl) Process(frame []int16) (int, error) {
	return p.handle.Process(frame)
}

func (p *porcupineImpl) FrameLength() int {
	return porcupine.FrameLength
}

func (p *porcupineImpl) SampleRate() int {
	return porcupine.SampleRate
}

func (p *porcupineImpl) Phrases() []string {
	return p.phrases
}

func (p *porcupineImpl) Close() error {
	return p.handle.Delete()
}

// phraseFromPath turns "hey-jarvis_en_linux_v3_0_0.ppn" into "hey jarvis".
func phraseFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.Index(name, "_"); i > 0 {
		name = name[:i]
	}

	return strings.ReplaceAll(name, "-", " ")
}
