// Package config loads settings from config.yaml, VOICE_ASSISTANT_* env vars
// and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "VOICE_ASSISTANT"
	DirName   = ".voice-assistant"
)

type Config struct {
	Audio    AudioConfig    `mapstructure:"audio"`
	Wake     WakeConfig     `mapstructure:"wake"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	STT      STTConfig      `mapstructure:"stt"`
	TTS      TTSConfig      `mapstructure:"tts"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Player   PlayerConfig   `mapstructure:"player"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Status   StatusConfig   `mapstructure:"status"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type AudioConfig struct {
	// Device is a portaudio input device index; -1 is the system default.
	Device      int `mapstructure:"device"`
	SampleRate  int `mapstructure:"sample_rate"`
	FrameLength int `mapstructure:"frame_length"`
	// WAV replays a file instead of opening the microphone.
	WAV string `mapstructure:"wav"`
}

type WakeConfig struct {
	Engine       string   `mapstructure:"engine"` // porcupine, whisper
	AccessKey    string   `mapstructure:"access_key"`
	Keywords     []string `mapstructure:"keywords"`
	KeywordPaths []string `mapstructure:"keyword_paths"`
	ModelPath    string   `mapstructure:"model_path"`
	Sensitivity  float32  `mapstructure:"sensitivity"`
	// Phrases are matched by the whisper keyword spotter.
	Phrases    []string `mapstructure:"phrases"`
	LevelEvery int      `mapstructure:"level_every"`
	LevelFloor int      `mapstructure:"level_floor"`
}

type CaptureConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	PhraseLimit     time.Duration `mapstructure:"phrase_limit"`
	Calibration     time.Duration `mapstructure:"calibration"`
	Quiet           time.Duration `mapstructure:"quiet"`
	PreRoll         time.Duration `mapstructure:"pre_roll"`
	EnergyThreshold float64       `mapstructure:"energy_threshold"`
	DynamicRatio    float64       `mapstructure:"dynamic_ratio"`
	RecordDir       string        `mapstructure:"record_dir"`
}

type STTConfig struct {
	Provider  string `mapstructure:"provider"` // groq, openai, whisper
	ModelPath string `mapstructure:"model_path"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Language  string `mapstructure:"language"`
}

type TTSConfig struct {
	Provider string  `mapstructure:"provider"` // system, openai, none
	Rate     int     `mapstructure:"rate"`
	Voice    string  `mapstructure:"voice"`
	Model    string  `mapstructure:"model"`
	BaseURL  string  `mapstructure:"base_url"`
	APIKey   string  `mapstructure:"api_key"`
	Speed    float64 `mapstructure:"speed"`
}

type LLMConfig struct {
	Provider        string        `mapstructure:"provider"` // groq, openai, http
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int64         `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BotHost         string        `mapstructure:"bot_host"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	Persona         string        `mapstructure:"persona"`
}

type ResolverConfig struct {
	Threshold      float64 `mapstructure:"threshold"`
	DefaultService string  `mapstructure:"default_service"`
}

type CatalogConfig struct {
	AppDirs   []string `mapstructure:"app_dirs"`
	MediaDirs []string `mapstructure:"media_dirs"`
	Watch     bool     `mapstructure:"watch"`
}

type PlayerConfig struct {
	Command string `mapstructure:"command"`
}

type MemoryConfig struct {
	Path     string `mapstructure:"path"`
	MaxTurns int    `mapstructure:"max_turns"`
}

type StatusConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Audio: AudioConfig{
			Device:      -1,
			SampleRate:  16000,
			FrameLength: 512,
		},
		Wake: WakeConfig{
			Engine:      "porcupine",
			Keywords:    []string{"jarvis"},
			Sensitivity: 0.5,
			Phrases:     []string{"jarvis", "hey jarvis"},
			LevelEvery:  50,
			LevelFloor:  500,
		},
		Capture: CaptureConfig{
			Timeout:         5 * time.Second,
			PhraseLimit:     10 * time.Second,
			Calibration:     500 * time.Millisecond,
			Quiet:           800 * time.Millisecond,
			PreRoll:         300 * time.Millisecond,
			EnergyThreshold: 300,
			DynamicRatio:    1.5,
		},
		STT: STTConfig{
			Provider: "groq",
			Language: "en",
		},
		TTS: TTSConfig{
			Provider: "system",
			Rate:     175,
			Speed:    1.0,
		},
		LLM: LLMConfig{
			Provider:        "groq",
			Temperature:     0.7,
			MaxTokens:       500,
			Timeout:         20 * time.Second,
			BreakerFailures: 3,
			BreakerCooldown: 30 * time.Second,
			Persona:         "Jarvis",
		},
		Resolver: ResolverConfig{
			Threshold:      55,
			DefaultService: "youtube",
		},
		Catalog: CatalogConfig{
			Watch: true,
		},
		Memory: MemoryConfig{
			Path:     filepath.Join(home, DirName, "user_memory.json"),
			MaxTurns: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"device":    "audio.device",
	"wav":       "audio.wav",
}

// envAliases are the conventional variable names accepted alongside the
// VOICE_ASSISTANT_* form.
var envAliases = map[string][]string{
	"wake.access_key": {"PORCUPINE_ACCESS_KEY"},
}

type LoadOptions struct {
	// ConfigFile is an explicit path. Otherwise config.yaml is searched in
	// ~/.voice-assistant and the working directory.
	ConfigFile string
	Flags      *pflag.FlagSet
	FileSys    afero.Fs
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	if opts.FileSys != nil {
		v.SetFs(opts.FileSys)
	}

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, DirName))
		}

		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"audio.device":             cfg.Audio.Device,
		"audio.sample_rate":        cfg.Audio.SampleRate,
		"audio.frame_length":       cfg.Audio.FrameLength,
		"audio.wav":                cfg.Audio.WAV,
		"wake.engine":              cfg.Wake.Engine,
		"wake.access_key":          cfg.Wake.AccessKey,
		"wake.keywords":            cfg.Wake.Keywords,
		"wake.keyword_paths":       cfg.Wake.KeywordPaths,
		"wake.model_path":          cfg.Wake.ModelPath,
		"wake.sensitivity":         cfg.Wake.Sensitivity,
		"wake.phrases":             cfg.Wake.Phrases,
		"wake.level_every":         cfg.Wake.LevelEvery,
		"wake.level_floor":         cfg.Wake.LevelFloor,
		"capture.timeout":          cfg.Capture.Timeout,
		"capture.phrase_limit":     cfg.Capture.PhraseLimit,
		"capture.calibration":      cfg.Capture.Calibration,
		"capture.quiet":            cfg.Capture.Quiet,
		"capture.pre_roll":         cfg.Capture.PreRoll,
		"capture.energy_threshold": cfg.Capture.EnergyThreshold,
		"capture.dynamic_ratio":    cfg.Capture.DynamicRatio,
		"capture.record_dir":       cfg.Capture.RecordDir,
		"stt.provider":             cfg.STT.Provider,
		"stt.model_path":           cfg.STT.ModelPath,
		"stt.model":                cfg.STT.Model,
		"stt.base_url":             cfg.STT.BaseURL,
		"stt.api_key":              cfg.STT.APIKey,
		"stt.language":             cfg.STT.Language,
		"tts.provider":             cfg.TTS.Provider,
		"tts.rate":                 cfg.TTS.Rate,
		"tts.voice":                cfg.TTS.Voice,
		"tts.model":                cfg.TTS.Model,
		"tts.base_url":             cfg.TTS.BaseURL,
		"tts.api_key":              cfg.TTS.APIKey,
		"tts.speed":                cfg.TTS.Speed,
		"llm.provider":             cfg.LLM.Provider,
		"llm.base_url":             cfg.LLM.BaseURL,
		"llm.model":                cfg.LLM.Model,
		"llm.api_key":              cfg.LLM.APIKey,
		"llm.temperature":          cfg.LLM.Temperature,
		"llm.max_tokens":           cfg.LLM.MaxTokens,
		"llm.timeout":              cfg.LLM.Timeout,
		"llm.bot_host":             cfg.LLM.BotHost,
		"llm.breaker_failures":     cfg.LLM.BreakerFailures,
		"llm.breaker_cooldown":     cfg.LLM.BreakerCooldown,
		"llm.persona":              cfg.LLM.Persona,
		"resolver.threshold":       cfg.Resolver.Threshold,
		"resolver.default_service": cfg.Resolver.DefaultService,
		"catalog.app_dirs":         cfg.Catalog.AppDirs,
		"catalog.media_dirs":       cfg.Catalog.MediaDirs,
		"catalog.watch":            cfg.Catalog.Watch,
		"player.command":           cfg.Player.Command,
		"memory.path":              cfg.Memory.Path,
		"memory.max_turns":         cfg.Memory.MaxTurns,
		"status.listen_addr":       cfg.Status.ListenAddr,
		"metrics.listen_addr":      cfg.Metrics.ListenAddr,
		"log.level":                cfg.Log.Level,
		"log.file":                 cfg.Log.File,
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate rejects settings that cannot work regardless of credentials.
func (c *Config) Validate() error {
	var errs []error

	switch c.Wake.Engine {
	case "porcupine", "whisper":
	default:
		errs = append(errs, fmt.Errorf("wake.engine %q is not one of porcupine, whisper", c.Wake.Engine))
	}

	switch c.STT.Provider {
	case "groq", "openai":
	case "whisper":
		if c.STT.ModelPath == "" {
			errs = append(errs, errors.New("stt.model_path is required for the whisper provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("stt.provider %q is not one of groq, openai, whisper", c.STT.Provider))
	}

	switch c.TTS.Provider {
	case "system", "openai", "none":
	default:
		errs = append(errs, fmt.Errorf("tts.provider %q is not one of system, openai, none", c.TTS.Provider))
	}

	switch c.LLM.Provider {
	case "groq", "openai":
	case "http":
		if c.LLM.BotHost == "" {
			errs = append(errs, errors.New("llm.bot_host is required for the http provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of groq, openai, http", c.LLM.Provider))
	}

	switch c.Resolver.DefaultService {
	case "youtube", "spotify":
	default:
		errs = append(errs, fmt.Errorf("resolver.default_service %q is not one of youtube, spotify", c.Resolver.DefaultService))
	}

	if c.Resolver.Threshold < 0 || c.Resolver.Threshold > 100 {
		errs = append(errs, fmt.Errorf("resolver.threshold %v is outside [0, 100]", c.Resolver.Threshold))
	}

	if c.Audio.SampleRate <= 0 || c.Audio.FrameLength <= 0 {
		errs = append(errs, errors.New("audio.sample_rate and audio.frame_length must be positive"))
	}

	if c.Memory.Path == "" {
		errs = append(errs, errors.New("memory.path is empty"))
	}

	return errors.Join(errs...)
}
