// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// File receives JSON lines in addition to the console.
	File    string
	FileSys afero.Fs
	Console io.Writer
}

// Setup installs the global logger and returns a func that closes the log
// file, if any.
func Setup(cfg *Config) (func() error, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}}
	closer := func() error { return nil }

	if cfg.File != "" {
		fileSys := cfg.FileSys
		if fileSys == nil {
			fileSys = afero.NewOsFs()
		}

		if err := fileSys.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := fileSys.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		writers = append(writers, f)
		closer = f.Close
	}

	zerolog.SetGlobalLevel(level)

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().
		Timestamp().
		Str("app", "voice-assistant").
		Logger()

	zerolog.DefaultContextLogger = &log.Logger

	return closer, nil
}

func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}

	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
