package launcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

type linuxLauncher struct {
	platform
}

// Launch accepts an Exec line from a desktop entry, a path or a spoken name.
func (l *linuxLauncher) Launch(ctx context.Context, target string) error {
	fields := strings.Fields(target)
	if len(fields) == 0 {
		return ErrNotFound
	}

	if l.exists(fields[0]) {
		return l.runner.Start(ctx, fields[0], fields[1:]...)
	}

	if len(fields) > 1 {
		if path, err := l.lookPath(fields[0]); err == nil {
			return l.runner.Start(ctx, path, fields[1:]...)
		}
	}

	for _, cand := range candidates(target) {
		path, err := l.lookPath(cand)
		if err != nil {
			continue
		}

		log.Debug().Str("target", target).Str("executable", path).Msg("launching from PATH")

		return l.runner.Start(ctx, path)
	}

	return fmt.Errorf("%w: %s", ErrNotFound, target)
}

func (l *linuxLauncher) OpenURL(ctx context.Context, url string) error {
	return l.runner.Run(ctx, "xdg-open", url)
}

type darwinLauncher struct {
	platform
}

func (d *darwinLauncher) Launch(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrNotFound
	}

	if filepath.Ext(target) == ".app" || d.exists(target) {
		return d.runner.Run(ctx, "open", target)
	}

	var lastErr error

	for _, cand := range candidates(target) {
		// open -a exits non-zero when no application has that name
		err := d.runner.Run(ctx, "open", "-a", cand)
		if err == nil {
			return nil
		}

		lastErr = err
	}

	return fmt.Errorf("%w: %s: %v", ErrNotFound, target, lastErr)
}

func (d *darwinLauncher) OpenURL(ctx context.Context, url string) error {
	return d.runner.Run(ctx, "open", url)
}

type windowsLauncher struct {
	platform
}

func (w *windowsLauncher) Launch(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrNotFound
	}

	if w.exists(target) {
		return w.startProcess(ctx, target)
	}

	for _, cand := range candidates(target) {
		if path, err := w.lookPath(cand); err == nil {
			return w.runner.Start(ctx, path)
		}
	}

	// Start-Process also resolves App Paths registrations such as "chrome"
	if err := w.startProcess(ctx, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, target, err)
	}

	return nil
}

func (w *windowsLauncher) OpenURL(ctx context.Context, url string) error {
	return w.startProcess(ctx, url)
}

func (w *windowsLauncher) startProcess(ctx context.Context, target string) error {
	return w.runner.Run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command",
		"Start-Process -FilePath "+quotePowerShell(target))
}

func quotePowerShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
