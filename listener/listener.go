package listener

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"voice-assistant/actions"
	"voice-assistant/audio_source"
	"voice-assistant/speech_extraction"
	"voice-assistant/status"
	"voice-assistant/wake_word"
)

const (
	NoSpeechPrompt         = "I didn't hear anything. Try again."
	NotUnderstoodPrompt    = "Sorry, I didn't understand that."
	FailurePrompt          = actions.Apology
	DefaultAcknowledgement = "Yes?"

	defaultShutdownTimeout = 30 * time.Second
	waitPollInterval       = 100 * time.Millisecond
)

type ListenAction string

const (
	ListenActionWait    ListenAction = "wait"
	ListenActionWake    ListenAction = "wake"
	ListenActionCommand ListenAction = "command"
)

var errSourceExhausted = errors.New("audio source exhausted")

// Handler resolves and executes one command.
type Handler interface {
	Handle(ctx context.Context, text string) actions.Result
}

type Speaker interface {
	Speak(text string) error
	Drain(ctx context.Context) error
}

type listenerImpl struct {
	owner    *audio_source.Owner
	gate     *wake_word.Gate
	capture  speech_extraction.Interface
	handler  Handler
	speaker  Speaker
	session  *Session
	observer status.Observer
	console  io.Writer

	captureTimeout  time.Duration
	phraseLimit     time.Duration
	shutdownTimeout time.Duration
	acknowledgement string

	triggeredAction atomic.Value
	failures        int
}

type Config struct {
	Owner    *audio_source.Owner
	Gate     *wake_word.Gate
	Capture  speech_extraction.Interface
	Handler  Handler
	Speaker  Speaker
	Session  *Session
	Observer status.Observer
	// Console receives "You said: ..." lines and the typed-mode prompt.
	Console io.Writer

	CaptureTimeout  time.Duration
	PhraseLimit     time.Duration
	ShutdownTimeout time.Duration
	Acknowledgement string
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	if cfg.Session == nil {
		return nil, fmt.Errorf("session is nil")
	}

	l := &listenerImpl{
		owner:           cfg.Owner,
		gate:            cfg.Gate,
		capture:         cfg.Capture,
		handler:         cfg.Handler,
		speaker:         cfg.Speaker,
		session:         cfg.Session,
		observer:        cfg.Observer,
		console:         cfg.Console,
		captureTimeout:  cfg.CaptureTimeout,
		phraseLimit:     cfg.PhraseLimit,
		shutdownTimeout: cfg.ShutdownTimeout,
		acknowledgement: cfg.Acknowledgement,
	}

	if l.observer == nil {
		l.observer = status.Nop{}
	}

	if l.console == nil {
		l.console = io.Discard
	}

	if l.captureTimeout <= 0 {
		l.captureTimeout = 5 * time.Second
	}

	if l.phraseLimit <= 0 {
		l.phraseLimit = 10 * time.Second
	}

	if l.shutdownTimeout <= 0 {
		l.shutdownTimeout = defaultShutdownTimeout
	}

	if l.acknowledgement == "" {
		l.acknowledgement = DefaultAcknowledgement
	}

	l.triggeredAction.Store(ListenActionWake)

	return l, nil
}

func (l *listenerImpl) action() ListenAction {
	return l.triggeredAction.Load().(ListenAction)
}

// HaltListening pauses the loop until ListenForWake or ListenForCommand.
func (l *listenerImpl) HaltListening() {
	l.triggeredAction.Store(ListenActionWait)

	log.Info().Msg("waiting due to interrupt")
}

func (l *listenerImpl) ListenForWake() {
	l.triggeredAction.Store(ListenActionWake)

	log.Info().Msg("resetting to waiting for wake")
}

// ListenForCommand skips the wake phrase for the next command.
func (l *listenerImpl) ListenForCommand() {
	l.triggeredAction.Store(ListenActionCommand)

	log.Info().Msg("resetting to expecting a command")
}

// ListenLoop runs wake, capture and dispatch until the session stops, ctx is
// cancelled or the audio source ends. Queued speech is drained before it
// returns.
func (l *listenerImpl) ListenLoop(ctx context.Context) error {
	if l.owner == nil || l.gate == nil || l.capture == nil {
		return fmt.Errorf("voice mode needs an audio source, wake gate and capture")
	}

	if err := l.owner.Source().Open(); err != nil {
		return fmt.Errorf("open audio source: %w", err)
	}

	defer func() {
		if err := l.owner.Source().Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close audio source")
		}
	}()

	defer l.shutdown()

	log.Info().Msg("starting to listen")

	for l.session.Running() {
		if ctx.Err() != nil {
			log.Info().Msg("exiting gracefully")

			return nil
		}

		var err error

		switch l.action() {
		case ListenActionWake:
			err = l.listenForWake(ctx)
		case ListenActionCommand:
			err = l.listenForCommand(ctx)
		default:
			select {
			case <-ctx.Done():
			case <-time.After(waitPollInterval):
			}
		}

		if errors.Is(err, errSourceExhausted) {
			log.Info().Msg("audio source exhausted")

			return nil
		} else if err != nil {
			return err
		}
	}

	log.Info().Msg("exiting gracefully")

	return nil
}

func (l *listenerImpl) shutdown() {
	l.observer.OnState(status.StateIdle, "")

	ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()

	if err := l.speaker.Drain(ctx); err != nil {
		log.Warn().Err(err).Msg("speech queue not drained before exit")
	}
}

// listenForWake polls the gate until a phrase fires, then switches the loop
// to command capture.
func (l *listenerImpl) listenForWake(ctx context.Context) error {
	lease, err := l.owner.Acquire(ctx, "wake")
	if err != nil {
		return nil
	}
	defer lease.Release()

	l.observer.OnState(status.StateListening, "")

	for l.session.Running() && l.action() == ListenActionWake {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := lease.Read()
		if errors.Is(err, io.EOF) {
			return errSourceExhausted
		} else if err != nil {
			if err := l.recoverSource(lease, err); err != nil {
				return err
			}

			continue
		}

		l.failures = 0

		idx, err := l.gate.Poll(frame)
		if err != nil {
			return err
		}

		if idx >= 0 {
			l.triggeredAction.Store(ListenActionCommand)

			return nil
		}
	}

	return nil
}

// listenForCommand captures and handles a single command, then returns the
// loop to the wake phrase.
func (l *listenerImpl) listenForCommand(ctx context.Context) error {
	defer l.triggeredAction.CompareAndSwap(ListenActionCommand, ListenActionWake)

	requestID := uuid.NewString()
	logger := log.With().Str("request_id", requestID).Logger()
	ctx = logger.WithContext(ctx)

	if err := l.speaker.Speak(l.acknowledgement); err != nil {
		logger.Warn().Err(err).Msg("failed to acknowledge wake")
	}

	// the acknowledgement must not end up in the recording
	if err := l.speaker.Drain(ctx); err != nil {
		return nil
	}

	outcome := l.capture.Capture(ctx, l.captureTimeout, l.phraseLimit)

	logger.Debug().Str("outcome", string(outcome.Kind)).Msg("capture finished")

	switch outcome.Kind {
	case speech_extraction.OutcomeOK:
		l.failures = 0

		fmt.Fprintf(l.console, "You said: %s\n", outcome.Utterance.Text)

		l.handler.Handle(ctx, outcome.Utterance.Text)
	case speech_extraction.OutcomeTimeout:
		l.failures = 0
		l.say(NoSpeechPrompt)
	case speech_extraction.OutcomeUnintelligible:
		l.failures = 0
		l.say(NotUnderstoodPrompt)
	default:
		logger.Error().Err(outcome.Err).Str("reason", outcome.Reason).Msg("capture failed")

		if errors.Is(outcome.Err, speech_extraction.ErrAudioRead) {
			return l.recoverAfterCapture(ctx, outcome.Err)
		}

		l.failures = 0
		l.say(FailurePrompt)
	}

	return nil
}

func (l *listenerImpl) recoverAfterCapture(ctx context.Context, cause error) error {
	lease, err := l.owner.Acquire(ctx, "recover")
	if err != nil {
		return nil
	}
	defer lease.Release()

	return l.recoverSource(lease, cause)
}

// recoverSource reopens the source once. A second consecutive failure, or a
// failed reopen, loses the device.
func (l *listenerImpl) recoverSource(lease *audio_source.Lease, cause error) error {
	l.failures++
	if l.failures > 1 {
		return fmt.Errorf("%w: %w", ErrDeviceLost, cause)
	}

	log.Warn().Err(cause).Msg("audio read failed, reopening source")

	if err := lease.Reopen(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceLost, err)
	}

	return nil
}

func (l *listenerImpl) say(text string) {
	if err := l.speaker.Speak(text); err != nil {
		log.Warn().Err(err).Msg("failed to queue speech")
	}
}

// RunText handles typed lines until the session stops or in is exhausted.
func (l *listenerImpl) RunText(ctx context.Context, in io.Reader) error {
	defer l.shutdown()

	scanner := bufio.NewScanner(in)

	for l.session.Running() && ctx.Err() == nil {
		fmt.Fprint(l.console, "You: ")

		if !scanner.Scan() {
			fmt.Fprintln(l.console)

			break
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		logger := log.With().Str("request_id", uuid.NewString()).Logger()

		l.handler.Handle(logger.WithContext(ctx), text)

		if err := l.speaker.Drain(ctx); err != nil {
			return nil
		}
	}

	return scanner.Err()
}
