package actions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"voice-assistant/catalog"
	"voice-assistant/intent"
	"voice-assistant/player"
)

// webApps are spoken names that open a site rather than a program.
var webApps = map[string]struct {
	name string
	url  string
}{
	"youtube":          {"YouTube", "https://www.youtube.com"},
	"youtube homepage": {"YouTube", "https://www.youtube.com"},
	"youtube site":     {"YouTube", "https://www.youtube.com"},
}

var serviceNames = map[intent.Service]string{
	intent.ServiceYouTube: "YouTube",
	intent.ServiceSpotify: "Spotify",
}

func (d *Dispatcher) launchApp(ctx context.Context, name string) Result {
	logger := zerolog.Ctx(ctx)

	if site, ok := webApps[strings.ToLower(name)]; ok {
		if err := d.launcher.OpenURL(ctx, site.url); err != nil {
			logger.Warn().Err(err).Str("url", site.url).Msg("failed to open site")

			return notAvailable(name)
		}

		return Result{Success: true, Message: "Opening " + site.name}
	}

	target, display := name, name

	if c, ok := d.resolveApp(ctx, name); ok {
		target, display = c.Handle, c.Name
	}

	if err := d.launcher.Launch(ctx, target); err != nil {
		logger.Warn().Err(err).Str("app", name).Str("target", target).Msg("launch failed")

		return notAvailable(name)
	}

	return Result{Success: true, Message: "Opening " + display}
}

// resolveApp tries an exact name first, then the fuzzy resolver.
func (d *Dispatcher) resolveApp(ctx context.Context, name string) (catalog.Candidate, bool) {
	if d.apps == nil {
		return catalog.Candidate{}, false
	}

	logger := zerolog.Ctx(ctx)

	c, ok, err := d.apps.Lookup(ctx, name)
	if err != nil {
		logger.Warn().Err(err).Msg("application index unavailable")

		return catalog.Candidate{}, false
	}

	if ok {
		return c, true
	}

	c, score, ok, err := d.apps.Resolve(ctx, name, d.threshold)
	if err != nil || !ok {
		return catalog.Candidate{}, false
	}

	logger.Debug().Str("query", name).Str("match", c.Name).Float64("score", score).Msg("application resolved")

	return c, true
}

func notAvailable(name string) Result {
	return Result{
		Success: false,
		Message: fmt.Sprintf("%s is not available on this machine or could not be launched.", name),
	}
}

func (d *Dispatcher) playLocal(ctx context.Context, query string) Result {
	logger := zerolog.Ctx(ctx)

	if d.media != nil && d.player != nil {
		c, score, ok, err := d.media.Resolve(ctx, query, d.threshold)
		if err != nil {
			logger.Warn().Err(err).Msg("media index unavailable")
		}

		if ok {
			logger.Debug().Str("query", query).Str("match", c.Name).Float64("score", score).Msg("media resolved")

			err := d.player.Play(ctx, c.Name, c.Handle)
			if err == nil {
				return Result{Success: true, Message: "Playing " + c.Name}
			}

			logger.Warn().Err(err).Str("path", c.Handle).Msg("local playback failed")
		}
	}

	return d.playOnline(ctx, query, d.defaultService)
}

func (d *Dispatcher) playOnline(ctx context.Context, query string, service intent.Service) Result {
	logger := zerolog.Ctx(ctx)

	if service == "" {
		service = d.defaultService
	}

	label := serviceNames[service]
	playing := Result{Success: true, Message: fmt.Sprintf("Playing %s on %s", query, label)}

	switch service {
	case intent.ServiceSpotify:
		err := d.launcher.OpenURL(ctx, "spotify:search:"+query)
		if err == nil {
			return playing
		}

		logger.Debug().Err(err).Msg("spotify uri not handled, using the web player")

		if err := d.launcher.OpenURL(ctx, "https://open.spotify.com/search/"+url.PathEscape(query)); err != nil {
			logger.Warn().Err(err).Msg("failed to open spotify")

			break
		}

		return playing
	default:
		if err := d.launcher.OpenURL(ctx, "https://www.youtube.com/results?search_query="+url.QueryEscape(query)); err != nil {
			logger.Warn().Err(err).Msg("failed to open youtube")

			break
		}

		return playing
	}

	return Result{Success: false, Message: fmt.Sprintf("I couldn't open %s for %s.", label, query)}
}

func (d *Dispatcher) mediaControl(control intent.Control) Result {
	if d.player == nil {
		return Result{Success: false, Message: NothingPlaying}
	}

	name, ok := d.player.Active()
	if !ok {
		return Result{Success: false, Message: NothingPlaying}
	}

	var (
		err     error
		message string
	)

	switch control {
	case intent.ControlPause:
		err = d.player.Pause()
		message = "Paused " + name
	case intent.ControlResume:
		err = d.player.Resume()
		message = "Resuming " + name
	default:
		err = d.player.Stop()
		message = "Stopped " + name
	}

	if errors.Is(err, player.ErrNotPlaying) {
		return Result{Success: false, Message: NothingPlaying}
	} else if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("I couldn't %s the playback.", control)}
	}

	return Result{Success: true, Message: message}
}

func (d *Dispatcher) systemQuery(ctx context.Context, info intent.QueryKind) Result {
	switch info {
	case intent.QueryTime:
		return Result{Success: true, Message: "It's currently " + d.systemInfo.Time()}
	case intent.QueryDate:
		return Result{Success: true, Message: "Today is " + d.systemInfo.Date()}
	case intent.QueryBattery:
		return Result{Success: true, Message: "Your battery is at " + d.systemInfo.Battery(ctx)}
	}

	return Result{Success: true, Message: "You're running " + d.systemInfo.System(ctx)}
}

func (d *Dispatcher) converse(ctx context.Context, text string) Result {
	if text == "" {
		return Result{Success: false, Message: NotUnderstood}
	}

	if d.bot == nil {
		return Result{Success: false, Message: Apology}
	}

	ctx, cancel := context.WithTimeout(ctx, d.completionTimeout)
	defer cancel()

	reply, err := d.bot.SendPrompt(ctx, d.systemPrompt(ctx), text)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("completion failed")

		return Result{Success: false, Message: Apology}
	}

	return Result{Success: true, Message: reply}
}

func (d *Dispatcher) systemPrompt(ctx context.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a helpful AI assistant named %s. ", d.persona)
	b.WriteString("You have access to system information and maintain memory of conversations with users.\n\n")
	b.WriteString("Current System Info:\n")
	fmt.Fprintf(&b, "- Time: %s\n", d.systemInfo.Time())
	fmt.Fprintf(&b, "- Date: %s\n", d.systemInfo.Date())
	fmt.Fprintf(&b, "- Battery: %s\n", d.systemInfo.Battery(ctx))
	fmt.Fprintf(&b, "- System: %s\n\n", d.systemInfo.System(ctx))

	if d.memory != nil {
		b.WriteString(d.memory.Context(contextTurns))
		b.WriteString("\n")
	}

	b.WriteString("Be conversational, friendly, and helpful. Keep responses concise (2-3 sentences unless more detail is needed).")

	return b.String()
}
