package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-assistant/actions"
	"voice-assistant/audio_source"
	"voice-assistant/speech_extraction"
	"voice-assistant/wake_word"
)

const (
	frameLength = 4
	sampleRate  = 16000
	trigger     = 999
)

var (
	silence = []int16{0, 0, 0, 0}
	wake    = []int16{trigger, 0, 0, 0}
)

// scriptedSource replays frames in order. A nil frame is a read error.
type scriptedSource struct {
	mu      sync.Mutex
	frames  [][]int16
	endless bool
	pos     int
	opens   int
	closes  int
}

func (s *scriptedSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens++

	return nil
}

func (s *scriptedSource) Read() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.frames) {
		if s.endless {
			return silence, nil
		}

		return nil, io.EOF
	}

	f := s.frames[s.pos]
	s.pos++

	if f == nil {
		return nil, errors.New("device unplugged")
	}

	return f, nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes++

	return nil
}

func (s *scriptedSource) FrameLength() int { return frameLength }
func (s *scriptedSource) SampleRate() int  { return sampleRate }

type stubEngine struct{}

func (stubEngine) Process(frame []int16) (int, error) {
	if frame[0] == trigger {
		return 0, nil
	}

	return -1, nil
}

func (stubEngine) FrameLength() int  { return frameLength }
func (stubEngine) SampleRate() int   { return sampleRate }
func (stubEngine) Phrases() []string { return []string{"jarvis"} }
func (stubEngine) Close() error      { return nil }

type scriptedCapture struct {
	owner    *audio_source.Owner
	outcomes []speech_extraction.Outcome
	holders  []string
}

func (c *scriptedCapture) Capture(context.Context, time.Duration, time.Duration) speech_extraction.Outcome {
	c.holders = append(c.holders, c.owner.Holder())

	if len(c.outcomes) == 0 {
		return speech_extraction.Outcome{Kind: speech_extraction.OutcomeTimeout}
	}

	o := c.outcomes[0]
	c.outcomes = c.outcomes[1:]

	return o
}

func heard(text string) speech_extraction.Outcome {
	return speech_extraction.Outcome{
		Kind:      speech_extraction.OutcomeOK,
		Utterance: speech_extraction.Utterance{Text: text, CapturedAt: time.Now()},
	}
}

type recordingHandler struct {
	session *Session
	stopOn  map[string]bool
	texts   []string
}

func (h *recordingHandler) Handle(_ context.Context, text string) actions.Result {
	h.texts = append(h.texts, text)
	if h.stopOn[text] {
		h.session.Stop()
	}

	return actions.Result{Success: true, Message: "ok"}
}

type recordingSpeaker struct {
	mu     sync.Mutex
	texts  []string
	drains int
}

func (s *recordingSpeaker) Speak(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.texts = append(s.texts, text)

	return nil
}

func (s *recordingSpeaker) Drain(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drains++

	return nil
}

type fixture struct {
	listener Interface
	source   *scriptedSource
	capture  *scriptedCapture
	handler  *recordingHandler
	speaker  *recordingSpeaker
	console  *bytes.Buffer
}

func newFixture(t *testing.T, source *scriptedSource, outcomes ...speech_extraction.Outcome) *fixture {
	t.Helper()

	owner := audio_source.NewOwner(source)

	gate, err := wake_word.New(&wake_word.Config{
		Engine:      stubEngine{},
		FrameLength: frameLength,
		SampleRate:  sampleRate,
	})
	require.NoError(t, err)

	session := NewSession()

	f := &fixture{
		source:  source,
		capture: &scriptedCapture{owner: owner, outcomes: outcomes},
		handler: &recordingHandler{session: session, stopOn: map[string]bool{"goodbye": true, "quit": true}},
		speaker: &recordingSpeaker{},
		console: &bytes.Buffer{},
	}

	f.listener, err = New(&Config{
		Owner:   owner,
		Gate:    gate,
		Capture: f.capture,
		Handler: f.handler,
		Speaker: f.speaker,
		Session: session,
		Console: f.console,
	})
	require.NoError(t, err)

	return f
}

func TestListenLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("a wake phrase hands the source to capture and dispatches once", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{frames: [][]int16{silence, wake, silence}}, heard("open chrome"))

		require.NoError(t, f.listener.ListenLoop(ctx))

		assert.Equal(t, []string{"open chrome"}, f.handler.texts)
		assert.Equal(t, []string{DefaultAcknowledgement}, f.speaker.texts)
		assert.Equal(t, []string{""}, f.capture.holders, "wake loop must release the source before capture")
		assert.Contains(t, f.console.String(), "You said: open chrome")
		assert.Equal(t, 1, f.source.opens)
		assert.Equal(t, 1, f.source.closes)
	})

	t.Run("timeouts and unintelligible speech prompt a retry", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{frames: [][]int16{wake, wake, wake}},
			speech_extraction.Outcome{Kind: speech_extraction.OutcomeTimeout},
			speech_extraction.Outcome{Kind: speech_extraction.OutcomeUnintelligible},
			heard("goodbye"),
		)

		require.NoError(t, f.listener.ListenLoop(ctx))

		assert.Equal(t, []string{
			DefaultAcknowledgement, NoSpeechPrompt,
			DefaultAcknowledgement, NotUnderstoodPrompt,
			DefaultAcknowledgement,
		}, f.speaker.texts)
		assert.Equal(t, []string{"goodbye"}, f.handler.texts)
	})

	t.Run("a failed transcription is apologised for and the loop continues", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{frames: [][]int16{wake, wake}},
			speech_extraction.Outcome{Kind: speech_extraction.OutcomeError, Reason: "transcription failed", Err: errors.New("503 service unavailable")},
			heard("goodbye"),
		)

		require.NoError(t, f.listener.ListenLoop(ctx))

		assert.Equal(t, []string{
			DefaultAcknowledgement, FailurePrompt,
			DefaultAcknowledgement,
		}, f.speaker.texts)
		assert.Equal(t, []string{"goodbye"}, f.handler.texts)
		assert.Equal(t, 1, f.source.opens)
	})

	t.Run("a read failure reopens the source once", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{frames: [][]int16{silence, nil, wake}}, heard("goodbye"))

		require.NoError(t, f.listener.ListenLoop(ctx))

		assert.Equal(t, 2, f.source.opens)
		assert.Equal(t, []string{"goodbye"}, f.handler.texts)
	})

	t.Run("a second consecutive failure loses the device", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{frames: [][]int16{silence, nil, silence, nil, nil, wake}})

		err := f.listener.ListenLoop(ctx)

		assert.ErrorIs(t, err, ErrDeviceLost)
		assert.Equal(t, 3, f.source.opens)
		assert.Empty(t, f.handler.texts)
	})

	t.Run("a capture read failure counts towards losing the device", func(t *testing.T) {
		readErr := fmt.Errorf("%w: %w", speech_extraction.ErrAudioRead, errors.New("overflow"))

		f := newFixture(t, &scriptedSource{frames: [][]int16{wake, nil}},
			speech_extraction.Outcome{Kind: speech_extraction.OutcomeError, Reason: "audio read failed", Err: readErr},
		)

		err := f.listener.ListenLoop(ctx)

		assert.ErrorIs(t, err, ErrDeviceLost)
		assert.Equal(t, 2, f.source.opens)
	})

	t.Run("cancelling the context stops the loop and drains speech", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{endless: true})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() {
			done <- f.listener.ListenLoop(ctx)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop")
		}

		assert.GreaterOrEqual(t, f.speaker.drains, 1)
	})

	t.Run("listen for command skips the wake phrase", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{frames: [][]int16{silence}}, heard("quit"))

		f.listener.ListenForCommand()
		require.NoError(t, f.listener.ListenLoop(ctx))

		assert.Equal(t, []string{"quit"}, f.handler.texts)
		assert.Zero(t, f.source.pos)
	})

	t.Run("halted listening ignores the wake phrase", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{frames: [][]int16{wake}})
		f.listener.HaltListening()

		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()

		require.NoError(t, f.listener.ListenLoop(ctx))

		assert.Empty(t, f.capture.holders)
		assert.Zero(t, f.source.pos)
	})
}

func TestRunText(t *testing.T) {
	t.Run("typed lines are handled until a termination word", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{})

		err := f.listener.RunText(context.Background(), strings.NewReader("open chrome\n\n  quit \nplay music\n"))
		require.NoError(t, err)

		assert.Equal(t, []string{"open chrome", "quit"}, f.handler.texts)
		assert.Contains(t, f.console.String(), "You: ")
		assert.Zero(t, f.source.opens)
	})

	t.Run("end of input ends the session", func(t *testing.T) {
		f := newFixture(t, &scriptedSource{})

		require.NoError(t, f.listener.RunText(context.Background(), strings.NewReader("what time is it")))

		assert.Equal(t, []string{"what time is it"}, f.handler.texts)
	})
}

type mapProfile map[string]string

func (m mapProfile) Profile() map[string]string {
	out := map[string]string{}
	for k, v := range m {
		out[k] = v
	}

	return out
}

func (m mapProfile) IsProfileComplete() bool {
	return m["name"] != "" && m["age"] != "" && m["gender"] != ""
}

func (m mapProfile) UpdateProfile(key, value string) error {
	m[key] = value

	return nil
}

type answers []string

func (a *answers) Prompt(string, bool) (string, error) {
	next := (*a)[0]
	*a = (*a)[1:]

	return next, nil
}

func TestOnboard(t *testing.T) {
	t.Run("missing fields are asked for", func(t *testing.T) {
		profile := mapProfile{}
		speaker := &recordingSpeaker{}
		asker := &answers{"Ada", "36", ""}

		require.NoError(t, Onboard(context.Background(), profile, asker, speaker))

		assert.Equal(t, "Ada", profile["name"])
		assert.Equal(t, "36", profile["age"])
		assert.NotContains(t, profile, "gender")
		require.Len(t, speaker.texts, 1)
		assert.True(t, strings.HasPrefix(speaker.texts[0], "Nice to meet you, Ada!"))
	})

	t.Run("a complete profile is welcomed back", func(t *testing.T) {
		profile := mapProfile{"name": "Ada", "age": "36", "gender": "female"}
		speaker := &recordingSpeaker{}

		require.NoError(t, Onboard(context.Background(), profile, &answers{}, speaker))

		assert.Equal(t, []string{"Welcome back, Ada!"}, speaker.texts)
	})
}
