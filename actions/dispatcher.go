// Package actions turns an intent into an effect on the machine and a
// sentence for the user.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-assistant/catalog"
	"voice-assistant/clients/ai_bot"
	"voice-assistant/fuzzy_match"
	"voice-assistant/intent"
	"voice-assistant/launcher"
	"voice-assistant/metrics"
	"voice-assistant/player"
)

const (
	Farewell       = "Goodbye! Have a great day!"
	Apology        = "Sorry, I'm having trouble thinking right now."
	NotUnderstood  = "Sorry, I didn't understand that."
	NothingPlaying = "Nothing is playing right now."
	DefaultPersona = "Jarvis"
	contextTurns   = 5
	defaultTimeout = 20 * time.Second
)

type Dispatcher struct {
	resolver          *intent.Resolver
	apps              *catalog.Index
	media             *catalog.Index
	launcher          launcher.Launcher
	player            player.Interface
	systemInfo        SystemInfo
	bot               ai_bot.AIBotAPI
	memory            Memory
	speaker           Speaker
	session           Stopper
	threshold         float64
	defaultService    intent.Service
	persona           string
	completionTimeout time.Duration
}

type Config struct {
	Resolver   *intent.Resolver
	Apps       *catalog.Index
	Media      *catalog.Index
	Launcher   launcher.Launcher
	Player     player.Interface
	SystemInfo SystemInfo
	Bot        ai_bot.AIBotAPI
	Memory     Memory
	Speaker    Speaker
	Session    Stopper

	Threshold         float64
	DefaultService    intent.Service
	Persona           string
	CompletionTimeout time.Duration
}

func New(cfg *Config) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Launcher == nil {
		return nil, fmt.Errorf("launcher is nil")
	}

	if cfg.SystemInfo == nil {
		return nil, fmt.Errorf("systemInfo is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	d := &Dispatcher{
		resolver:          cfg.Resolver,
		apps:              cfg.Apps,
		media:             cfg.Media,
		launcher:          cfg.Launcher,
		player:            cfg.Player,
		systemInfo:        cfg.SystemInfo,
		bot:               cfg.Bot,
		memory:            cfg.Memory,
		speaker:           cfg.Speaker,
		session:           cfg.Session,
		threshold:         cfg.Threshold,
		defaultService:    cfg.DefaultService,
		persona:           cfg.Persona,
		completionTimeout: cfg.CompletionTimeout,
	}

	if d.resolver == nil {
		d.resolver = intent.NewResolver(nil)
	}

	if d.threshold <= 0 {
		d.threshold = fuzzy_match.DefaultThreshold
	}

	if d.defaultService == "" {
		d.defaultService = intent.ServiceYouTube
	}

	if d.persona == "" {
		d.persona = DefaultPersona
	}

	if d.completionTimeout <= 0 {
		d.completionTimeout = defaultTimeout
	}

	return d, nil
}

// Handle resolves text, runs the matching handler, speaks the result and
// records the exchange. Terminate stops the session after the farewell is
// queued.
func (d *Dispatcher) Handle(ctx context.Context, text string) Result {
	in := d.resolver.Resolve(text)

	zerolog.Ctx(ctx).Info().
		Str("text", text).
		Str("intent", string(in.Kind)).
		Msg("command resolved")

	res := d.Dispatch(ctx, in)

	if res.Message != "" {
		if err := d.speaker.Speak(res.Message); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to queue response")
		}
	}

	if in.Kind == intent.KindTerminate {
		if d.session != nil {
			d.session.Stop()
		}

		return res
	}

	if d.memory != nil && recordable(in) {
		if err := d.memory.AddConversation(text, res.Message); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to record conversation")
		}
	}

	return res
}

// recordable excludes blank conversation.
func recordable(in intent.Intent) bool {
	return in.Kind != intent.KindConverse || in.Text != ""
}

// Dispatch runs the handler for in. It never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, in intent.Intent) (res Result) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("intent", string(in.Kind)).Msg("action handler panicked")

			res = Result{Success: false, Message: Apology}
		}

		metrics.ObserveCommand(string(in.Kind), res.Success, time.Since(start))
	}()

	switch in.Kind {
	case intent.KindLaunchApp:
		return d.launchApp(ctx, in.Name)
	case intent.KindPlayLocal:
		return d.playLocal(ctx, in.Query)
	case intent.KindPlayOnline:
		return d.playOnline(ctx, in.Query, in.Service)
	case intent.KindMediaControl:
		return d.mediaControl(in.Control)
	case intent.KindSystemQuery:
		return d.systemQuery(ctx, in.Info)
	case intent.KindTerminate:
		return Result{Success: true, Message: Farewell}
	case intent.KindConverse:
		return d.converse(ctx, in.Text)
	}

	return Result{Success: false, Message: NotUnderstood}
}
