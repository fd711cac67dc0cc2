package text_to_speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type systemImpl struct {
	goos     string
	rate     int
	voice    string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

type SystemConfig struct {
	GOOS string
	// Rate is in words per minute.
	Rate  int
	Voice string
}

// NewSystem speaks through the platform's built-in voice: say on macOS,
// espeak or spd-say on Linux, SAPI on Windows.
func NewSystem(cfg *SystemConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	rate := cfg.Rate
	if rate <= 0 {
		rate = DefaultRate
	}

	return &systemImpl{
		goos:     cfg.GOOS,
		rate:     rate,
		voice:    cfg.Voice,
		lookPath: exec.LookPath,
		run:      runCommand,
	}, nil
}

func (s *systemImpl) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	name, args, err := s.commandFor(text)
	if err != nil {
		return err
	}

	return s.run(ctx, name, args...)
}

func (s *systemImpl) commandFor(text string) (string, []string, error) {
	switch s.goos {
	case "darwin":
		args := []string{"-r", strconv.Itoa(s.rate)}
		if s.voice != "" {
			args = append(args, "-v", s.voice)
		}

		return "say", append(args, text), nil
	case "windows":
		script := "Add-Type -AssemblyName System.Speech; " +
			"$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; " +
			"$s.Rate = " + strconv.Itoa(sapiRate(s.rate)) + "; "
		if s.voice != "" {
			script += "$s.SelectVoice('" + strings.ReplaceAll(s.voice, "'", "''") + "'); "
		}

		script += "$s.Speak('" + strings.ReplaceAll(text, "'", "''") + "')"

		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}, nil
	}

	if _, err := s.lookPath("espeak"); err == nil {
		args := []string{"-s", strconv.Itoa(s.rate)}
		if s.voice != "" {
			args = append(args, "-v", s.voice)
		}

		return "espeak", append(args, "--", text), nil
	}

	if _, err := s.lookPath("spd-say"); err == nil {
		// spd-say takes a rate in [-100, 100] and needs -w to block
		return "spd-say", []string{"-w", "-r", strconv.Itoa(spdRate(s.rate)), "--", text}, nil
	}

	return "", nil, fmt.Errorf("no speech synthesizer found (install espeak or speech-dispatcher)")
}

// sapiRate maps words per minute onto SAPI's -10..10 scale, where 0 is
// roughly 175 wpm.
func sapiRate(wpm int) int {
	return clamp((wpm-175)/20, -10, 10)
}

func spdRate(wpm int) int {
	return clamp((wpm-175)/2, -100, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

func runCommand(ctx context.Context, name string, args ...string) error {
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
