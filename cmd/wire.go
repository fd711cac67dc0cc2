package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"voice-assistant/actions"
	"voice-assistant/audio_source"
	"voice-assistant/catalog"
	"voice-assistant/clients/ai_bot"
	"voice-assistant/config"
	"voice-assistant/intent"
	"voice-assistant/launcher"
	"voice-assistant/listener"
	"voice-assistant/logging"
	"voice-assistant/memory_store"
	"voice-assistant/metrics"
	"voice-assistant/player"
	"voice-assistant/speech_extraction"
	"voice-assistant/speech_output"
	"voice-assistant/speech_to_text"
	"voice-assistant/status"
	"voice-assistant/system_info"
	"voice-assistant/text_to_speech"
	"voice-assistant/wake_word"
)

const (
	shutdownTimeout = 30 * time.Second

	openAIBaseURL            = "https://api.openai.com/v1/"
	openAIChatModel          = "gpt-4o-mini"
	openAITranscriptionModel = "whisper-1"
)

// assistant holds everything both the spoken and the typed session need.
type assistant struct {
	cfg        *config.Config
	fileSys    afero.Fs
	observer   status.Observer
	speech     *speech_output.Queue
	memory     *memory_store.Store
	catalogs   *catalogs
	player     player.Interface
	dispatcher *actions.Dispatcher
	session    *listener.Session
	closers    []func() error
}

type wireOptions struct {
	// voice asks for the wake word and speech recognition secrets too.
	voice    bool
	console  io.Writer
	prompter config.Prompter
}

func wireAssistant(ctx context.Context, cfg *config.Config, opts wireOptions) (a *assistant, err error) {
	if err := cfg.ResolveCredentials(opts.voice, os.Getenv, opts.prompter); err != nil {
		return nil, err
	}

	a = &assistant{
		cfg:     cfg,
		fileSys: afero.NewOsFs(),
		session: listener.NewSession(),
	}

	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.observer = wireObservers(ctx, cfg)

	engine, err := newSpeechEngine(cfg.TTS)
	if err != nil {
		return nil, err
	}

	a.speech, err = speech_output.New(&speech_output.Config{
		Engine:   engine,
		Observer: a.observer,
		Console:  opts.console,
	})
	if err != nil {
		return nil, err
	}

	// the farewell must still be heard after an interrupt cancels ctx
	a.speech.Start(context.WithoutCancel(ctx))

	a.memory, err = memory_store.Open(&memory_store.Config{
		FileSys:  a.fileSys,
		Path:     cfg.Memory.Path,
		MaxTurns: cfg.Memory.MaxTurns,
	})
	if err != nil {
		return nil, err
	}

	a.catalogs = newCatalogs(cfg.Catalog, a.fileSys)
	if cfg.Catalog.Watch {
		a.catalogs.watch(ctx)
	}

	if err := a.wireDispatcher(); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *assistant) wireDispatcher() error {
	launch, err := launcher.New(runtime.GOOS, launcher.ExecRunner{})
	if err != nil {
		return err
	}

	a.player, err = player.New(&player.Config{Command: a.cfg.Player.Command})
	if err != nil {
		return err
	}

	a.closers = append(a.closers, a.stopPlayback)

	info, err := system_info.New(&system_info.Config{
		GOOS:    runtime.GOOS,
		FileSys: a.fileSys,
	})
	if err != nil {
		return err
	}

	bot, err := newBot(a.cfg.LLM)
	if err != nil {
		return err
	}

	service, ok := intent.ParseService(a.cfg.Resolver.DefaultService)
	if !ok {
		service = intent.ServiceYouTube
	}

	a.dispatcher, err = actions.New(&actions.Config{
		Resolver:          intent.NewResolver(nil),
		Apps:              a.catalogs.apps,
		Media:             a.catalogs.media,
		Launcher:          launch,
		Player:            a.player,
		SystemInfo:        info,
		Bot:               bot,
		Memory:            a.memory,
		Speaker:           a.speech,
		Session:           a.session,
		Threshold:         a.cfg.Resolver.Threshold,
		DefaultService:    service,
		Persona:           a.cfg.LLM.Persona,
		CompletionTimeout: a.cfg.LLM.Timeout,
	})

	return err
}

// wireListener builds the microphone to dispatcher chain for spoken
// sessions.
func (a *assistant) wireListener(console io.Writer) (listener.Interface, error) {
	stt, closeSTT, err := newTranscriber(a.cfg.STT)
	if err != nil {
		return nil, err
	}

	a.closers = append(a.closers, closeSTT)

	source, err := newSource(a.cfg.Audio, a.fileSys)
	if err != nil {
		return nil, err
	}

	engine, err := newWakeEngine(a.cfg, stt)
	if err != nil {
		return nil, err
	}

	a.closers = append(a.closers, engine.Close)

	gate, err := wake_word.New(&wake_word.Config{
		Engine:      engine,
		FrameLength: source.FrameLength(),
		SampleRate:  source.SampleRate(),
		Observer:    a.observer,
		LevelEvery:  a.cfg.Wake.LevelEvery,
		LevelFloor:  a.cfg.Wake.LevelFloor,
	})
	if err != nil {
		return nil, err
	}

	owner := audio_source.NewOwner(source)
	capture := a.cfg.Capture

	extractor, err := speech_extraction.New(&speech_extraction.Config{
		Owner:           owner,
		STTEngine:       stt,
		Observer:        a.observer,
		FileSys:         a.fileSys,
		RecordDir:       capture.RecordDir,
		CalibrationTime: capture.Calibration,
		QuietTime:       capture.Quiet,
		PreRollTime:     capture.PreRoll,
		EnergyThreshold: capture.EnergyThreshold,
		DynamicRatio:    capture.DynamicRatio,
	})
	if err != nil {
		return nil, err
	}

	return listener.New(&listener.Config{
		Owner:           owner,
		Gate:            gate,
		Capture:         extractor,
		Handler:         a.dispatcher,
		Speaker:         a.speech,
		Session:         a.session,
		Observer:        a.observer,
		Console:         console,
		CaptureTimeout:  capture.Timeout,
		PhraseLimit:     capture.PhraseLimit,
		ShutdownTimeout: shutdownTimeout,
	})
}

// onboard greets the user, asking for any missing profile details first.
// A failure here only costs the greeting.
func (a *assistant) onboard(ctx context.Context, asker listener.Asker) {
	if err := listener.Onboard(ctx, a.memory, asker, a.speech); err != nil {
		log.Warn().Err(err).Msg("onboarding skipped")
	}
}

func (a *assistant) stopPlayback() error {
	if _, playing := a.player.Active(); !playing {
		return nil
	}

	return a.player.Stop()
}

// Close drains pending speech, then releases resources in reverse order.
func (a *assistant) Close() {
	if a.speech != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.speech.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("speech queue did not drain")
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to release resource")
		}
	}
}

func wireObservers(ctx context.Context, cfg *config.Config) status.Observer {
	observers := status.Multi{
		status.LogObserver{Logger: logging.Component("status"), LevelFloor: cfg.Wake.LevelFloor},
	}

	if addr := cfg.Status.ListenAddr; addr != "" {
		broadcaster := status.NewBroadcaster()
		observers = append(observers, broadcaster)

		go func() {
			if err := broadcaster.Serve(ctx, addr); err != nil {
				log.Error().Err(err).Str("addr", addr).Msg("status feed stopped")
			}
		}()
	}

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
			}
		}()
	}

	return observers
}

func newSpeechEngine(cfg config.TTSConfig) (text_to_speech.Interface, error) {
	switch cfg.Provider {
	case "openai":
		return text_to_speech.NewOpenAI(&text_to_speech.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Voice:   cfg.Voice,
			Speed:   cfg.Speed,
		})
	case "none":
		return text_to_speech.Silent{}, nil
	default:
		return text_to_speech.NewSystem(&text_to_speech.SystemConfig{
			GOOS:  runtime.GOOS,
			Rate:  cfg.Rate,
			Voice: cfg.Voice,
		})
	}
}

// newBot picks the completion backend and puts it behind a circuit breaker.
func newBot(cfg config.LLMConfig) (ai_bot.AIBotAPI, error) {
	var (
		next ai_bot.AIBotAPI
		err  error
	)

	switch cfg.Provider {
	case "http":
		next, err = ai_bot.NewClient(&ai_bot.Config{
			ApiHost: cfg.BotHost,
			Timeout: cfg.Timeout,
		})
	case "openai":
		baseURL, model := cfg.BaseURL, cfg.Model
		if baseURL == "" {
			baseURL = openAIBaseURL
		}

		if model == "" {
			model = openAIChatModel
		}

		next, err = ai_bot.NewChat(&ai_bot.ChatConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     baseURL,
			Model:       model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	default:
		next, err = ai_bot.NewChat(&ai_bot.ChatConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("completion backend: %w", err)
	}

	return ai_bot.NewBreaker(&ai_bot.BreakerConfig{
		Next:     next,
		Failures: cfg.BreakerFailures,
		Cooldown: cfg.BreakerCooldown,
	})
}

// newTranscriber returns the speech recognizer and a func releasing it.
func newTranscriber(cfg config.STTConfig) (speech_to_text.Interface, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case "whisper":
		model, err := whisper.New(cfg.ModelPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load whisper model %s: %w", cfg.ModelPath, err)
		}

		stt, err := speech_to_text.New(&speech_to_text.Config{
			Model:    model,
			Language: cfg.Language,
		})
		if err != nil {
			_ = model.Close()

			return nil, nil, err
		}

		return stt, model.Close, nil
	case "openai":
		model := cfg.Model
		if model == "" {
			model = openAITranscriptionModel
		}

		stt, err := speech_to_text.NewOpenAI(&speech_to_text.OpenAIConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    model,
			Language: cfg.Language,
		})

		return stt, noop, err
	default:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = speech_to_text.DefaultGroqBaseURL
		}

		stt, err := speech_to_text.NewOpenAI(&speech_to_text.OpenAIConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  baseURL,
			Model:    cfg.Model,
			Language: cfg.Language,
		})

		return stt, noop, err
	}
}

func newSource(cfg config.AudioConfig, fileSys afero.Fs) (audio_source.Interface, error) {
	if cfg.WAV != "" {
		return audio_source.NewWAVFile(fileSys, cfg.WAV, cfg.SampleRate, cfg.FrameLength)
	}

	return audio_source.NewMicrophone(&audio_source.Config{
		DeviceIndex: cfg.Device,
		SampleRate:  cfg.SampleRate,
		FrameLength: cfg.FrameLength,
	})
}

func newWakeEngine(cfg *config.Config, stt speech_to_text.Interface) (wake_word.Engine, error) {
	wake := cfg.Wake

	if wake.Engine == "whisper" {
		return wake_word.NewSpotter(&wake_word.SpotterConfig{
			STT:         stt,
			Phrases:     wake.Phrases,
			FrameLength: cfg.Audio.FrameLength,
			SampleRate:  cfg.Audio.SampleRate,
		})
	}

	return wake_word.NewPorcupine(&wake_word.PorcupineConfig{
		AccessKey:    wake.AccessKey,
		Keywords:     wake.Keywords,
		KeywordPaths: wake.KeywordPaths,
		ModelPath:    wake.ModelPath,
		Sensitivity:  wake.Sensitivity,
	})
}

// catalogs are the application and media indexes with the directories they
// are built from.
type catalogs struct {
	apps      *catalog.Index
	media     *catalog.Index
	appDirs   []string
	mediaDirs []string
}

func newCatalogs(cfg config.CatalogConfig, fileSys afero.Fs) *catalogs {
	home, _ := os.UserHomeDir()

	c := &catalogs{
		appDirs:   cfg.AppDirs,
		mediaDirs: cfg.MediaDirs,
	}

	if len(c.appDirs) == 0 {
		c.appDirs = catalog.DefaultAppDirs(runtime.GOOS, home)
	}

	if len(c.mediaDirs) == 0 {
		c.mediaDirs = catalog.DefaultMediaDirs(home)
	}

	c.apps = catalog.NewIndex("apps", catalog.AppBuilder(fileSys, runtime.GOOS, c.appDirs))
	c.media = catalog.NewIndex("media", catalog.MediaFiles(fileSys, c.mediaDirs))

	return c
}

func (c *catalogs) index(name string) (*catalog.Index, bool) {
	switch name {
	case "apps":
		return c.apps, true
	case "media":
		return c.media, true
	default:
		return nil, false
	}
}

// watch rebuilds an index lazily after its directories change.
func (c *catalogs) watch(ctx context.Context) {
	for _, w := range []struct {
		idx  *catalog.Index
		dirs []string
	}{{c.apps, c.appDirs}, {c.media, c.mediaDirs}} {
		go func(idx *catalog.Index, dirs []string) {
			if err := catalog.Watch(ctx, idx, dirs); err != nil {
				log.Warn().Err(err).Str("index", idx.Name()).Msg("catalog watcher stopped")
			}
		}(w.idx, w.dirs)
	}
}
