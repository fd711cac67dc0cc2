package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// knownPlayers are tried in order when no command is configured. The media
// path is appended to the arguments.
var knownPlayers = [][]string{
	{"mpv", "--no-video", "--really-quiet"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
	{"cvlc", "--play-and-exit", "--quiet"},
	{"afplay"},
}

type playback struct {
	name   string
	proc   Process
	paused bool
}

type playerImpl struct {
	mu       sync.Mutex
	command  []string
	start    Starter
	lookPath func(string) (string, error)
	current  *playback
}

type Config struct {
	// Command overrides player detection, e.g. "mpv --volume=50".
	Command string
	Starter Starter
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	p := &playerImpl{
		command:  strings.Fields(cfg.Command),
		start:    cfg.Starter,
		lookPath: cfg.LookPath,
	}

	if p.start == nil {
		p.start = startProcess
	}

	if p.lookPath == nil {
		p.lookPath = exec.LookPath
	}

	return p, nil
}

func (p *playerImpl) Play(_ context.Context, name, path string) error {
	command, err := p.resolveCommand()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	args := append(append([]string(nil), command[1:]...), path)

	proc, err := p.start(command[0], args...)
	if err != nil {
		return fmt.Errorf("start %s: %w", command[0], err)
	}

	pb := &playback{name: name, proc: proc}
	p.current = pb

	go p.reap(pb)

	log.Info().Str("media", name).Str("player", command[0]).Msg("playback started")

	return nil
}

func (p *playerImpl) resolveCommand() ([]string, error) {
	if len(p.command) > 0 {
		if _, err := p.lookPath(p.command[0]); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoPlayer, p.command[0])
		}

		return p.command, nil
	}

	for _, cmd := range knownPlayers {
		if _, err := p.lookPath(cmd[0]); err == nil {
			return cmd, nil
		}
	}

	return nil, ErrNoPlayer
}

// reap clears the current playback once its process exits on its own.
func (p *playerImpl) reap(pb *playback) {
	<-pb.proc.Done()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == pb {
		p.current = nil

		log.Debug().Str("media", pb.name).Msg("playback finished")
	}
}

func (p *playerImpl) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNotPlaying
	}

	if p.current.paused {
		return nil
	}

	if err := p.current.proc.Suspend(); err != nil {
		return err
	}

	p.current.paused = true

	return nil
}

func (p *playerImpl) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNotPlaying
	}

	if !p.current.paused {
		return nil
	}

	if err := p.current.proc.Continue(); err != nil {
		return err
	}

	p.current.paused = false

	return nil
}

func (p *playerImpl) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNotPlaying
	}

	p.stopLocked()

	return nil
}

func (p *playerImpl) stopLocked() {
	if p.current == nil {
		return
	}

	pb := p.current
	p.current = nil

	if pb.paused {
		// a stopped process cannot act on the kill until continued
		_ = pb.proc.Continue()
	}

	if err := pb.proc.Kill(); err != nil {
		log.Warn().Err(err).Str("media", pb.name).Msg("failed to stop playback")
	}
}

func (p *playerImpl) Active() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return "", false
	}

	return p.current.name, true
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func startProcess(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	proc := &execProcess{cmd: cmd, done: make(chan struct{})}

	go func() {
		_ = cmd.Wait()
		close(proc.done)
	}()

	return proc, nil
}

func (e *execProcess) Suspend() error {
	return suspend(e.cmd.Process)
}

func (e *execProcess) Continue() error {
	return resume(e.cmd.Process)
}

func (e *execProcess) Kill() error {
	err := e.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	return nil
}

func (e *execProcess) Done() <-chan struct{} {
	return e.done
}
