package launcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const runTimeout = 15 * time.Second

// aliases maps spoken names to the executables that usually provide them.
var aliases = map[string][]string{
	"spotify":            {"spotify"},
	"vlc":                {"vlc"},
	"mpv":                {"mpv"},
	"calculator":         {"gnome-calculator", "kcalc", "galculator", "calc"},
	"notepad":            {"notepad", "gedit", "gnome-text-editor", "kate"},
	"code":               {"code", "codium"},
	"visual studio code": {"code", "codium"},
	"vs code":            {"code", "codium"},
	"terminal":           {"gnome-terminal", "konsole", "xterm"},
	"chrome":             {"google-chrome", "google-chrome-stable", "chromium"},
	"google chrome":      {"google-chrome", "google-chrome-stable", "chromium"},
	"firefox":            {"firefox"},
	"file manager":       {"nautilus", "dolphin", "thunar"},
}

type platform struct {
	goos     string
	runner   Runner
	lookPath func(string) (string, error)
	exists   func(string) bool
}

// New selects the launch strategy for goos.
func New(goos string, runner Runner) (Launcher, error) {
	if runner == nil {
		runner = ExecRunner{}
	}

	p := platform{
		goos:     goos,
		runner:   runner,
		lookPath: exec.LookPath,
		exists:   fileExists,
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return &linuxLauncher{p}, nil
	case "darwin":
		return &darwinLauncher{p}, nil
	case "windows":
		return &windowsLauncher{p}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
}

// candidates lists the executables worth trying for a spoken name.
func candidates(target string) []string {
	name := strings.TrimSpace(target)
	lower := strings.ToLower(name)

	list := append([]string(nil), aliases[lower]...)
	list = append(list, name)

	if lower != name {
		list = append(list, lower)
	}

	if strings.Contains(lower, " ") {
		list = append(list, strings.ReplaceAll(lower, " ", "-"), strings.ReplaceAll(lower, " ", ""))
	}

	return list
}

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

// ExecRunner runs processes with os/exec.
type ExecRunner struct{}

func (ExecRunner) Start(_ context.Context, name string, args ...string) error {
	// launched applications must outlive the request that started them
	cmd := exec.Command(name, args...)

	if err := cmd.Start(); err != nil {
		return err
	}

	go func() {
		_ = cmd.Wait()
	}()

	log.Debug().Str("command", name).Strs("args", args).Int("pid", cmd.Process.Pid).Msg("process started")

	return nil
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}

		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}
