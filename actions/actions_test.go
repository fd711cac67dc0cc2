package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-assistant/catalog"
	"voice-assistant/intent"
	"voice-assistant/memory_store"
	"voice-assistant/player"
)

type fakeLauncher struct {
	launched []string
	opened   []string
	fail     map[string]bool
}

func (f *fakeLauncher) Launch(_ context.Context, target string) error {
	f.launched = append(f.launched, target)
	if f.fail[target] {
		return errors.New("exec: not found")
	}

	return nil
}

func (f *fakeLauncher) OpenURL(_ context.Context, url string) error {
	f.opened = append(f.opened, url)
	if f.fail[url] {
		return errors.New("no handler")
	}

	return nil
}

type fakePlayer struct {
	playing string
	paused  bool
	played  []string
	err     error
}

func (f *fakePlayer) Play(_ context.Context, name, path string) error {
	if f.err != nil {
		return f.err
	}

	f.playing = name
	f.played = append(f.played, path)

	return nil
}

func (f *fakePlayer) Pause() error {
	if f.playing == "" {
		return player.ErrNotPlaying
	}

	f.paused = true

	return nil
}

func (f *fakePlayer) Resume() error {
	if f.playing == "" {
		return player.ErrNotPlaying
	}

	f.paused = false

	return nil
}

func (f *fakePlayer) Stop() error {
	if f.playing == "" {
		return player.ErrNotPlaying
	}

	f.playing = ""

	return nil
}

func (f *fakePlayer) Active() (string, bool) {
	return f.playing, f.playing != ""
}

type fakeInfo struct{}

func (fakeInfo) Time() string                   { return "03:04 PM" }
func (fakeInfo) Date() string                   { return "Monday, January 02, 2006" }
func (fakeInfo) Battery(context.Context) string { return "80% (plugged in)" }
func (fakeInfo) System(context.Context) string  { return "linux 6.1" }

type spoken struct {
	texts []string
}

func (s *spoken) Speak(text string) error {
	s.texts = append(s.texts, text)

	return nil
}

type fakeSession struct {
	stopped bool
}

func (f *fakeSession) Stop() {
	f.stopped = true
}

type fakeBot struct {
	reply  string
	err    error
	system string
	panic  bool
}

func (f *fakeBot) SendPrompt(_ context.Context, systemPrompt, prompt string) (string, error) {
	if f.panic {
		panic("tokenizer exploded")
	}

	f.system = systemPrompt

	return f.reply, f.err
}

// countingIndex builds a catalog index that records how often it was built.
func countingIndex(name string, builds *int, candidates ...catalog.Candidate) *catalog.Index {
	return catalog.NewIndex(name, func(context.Context) ([]catalog.Candidate, error) {
		*builds++

		return candidates, nil
	})
}

type fixture struct {
	dispatcher  *Dispatcher
	launcher    *fakeLauncher
	player      *fakePlayer
	speaker     *spoken
	session     *fakeSession
	bot         *fakeBot
	memory      *memory_store.Store
	mediaBuilds int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		launcher: &fakeLauncher{fail: map[string]bool{}},
		player:   &fakePlayer{},
		speaker:  &spoken{},
		session:  &fakeSession{},
		bot:      &fakeBot{reply: "Hi there!"},
	}

	memory, err := memory_store.Open(&memory_store.Config{
		FileSys: afero.NewMemMapFs(),
		Path:    "/home/me/.voice-assistant/user_memory.json",
	})
	require.NoError(t, err)
	f.memory = memory

	apps := catalog.NewStaticIndex("apps", []catalog.Candidate{
		{Name: "Files", Handle: "nautilus"},
		{Name: "Google Chrome", Handle: "/usr/bin/google-chrome-stable %U"},
		{Name: "Visual Studio Code", Handle: "/usr/share/code/code"},
	})

	media := countingIndex("media", &f.mediaBuilds,
		catalog.Candidate{Name: "Despacito", Handle: "/home/me/Music/Despacito.mp3"},
		catalog.Candidate{Name: "Bohemian Rhapsody", Handle: "/home/me/Music/Bohemian Rhapsody.flac"},
	)

	f.dispatcher, err = New(&Config{
		Resolver:   intent.NewResolver(nil),
		Apps:       apps,
		Media:      media,
		Launcher:   f.launcher,
		Player:     f.player,
		SystemInfo: fakeInfo{},
		Bot:        f.bot,
		Memory:     f.memory,
		Speaker:    f.speaker,
		Session:    f.session,
	})
	require.NoError(t, err)

	return f
}

func TestHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("open chrome launches the indexed application and speaks once", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Handle(ctx, "open chrome")

		assert.Equal(t, Result{Success: true, Message: "Opening Google Chrome"}, res)
		assert.Equal(t, []string{"/usr/bin/google-chrome-stable %U"}, f.launcher.launched)
		assert.Equal(t, []string{"Opening Google Chrome"}, f.speaker.texts)
	})

	t.Run("play on youtube opens a search without touching the media index", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Handle(ctx, "play despacito on youtube")

		assert.True(t, res.Success)
		assert.Equal(t, []string{"https://www.youtube.com/results?search_query=despacito"}, f.launcher.opened)
		assert.Zero(t, f.mediaBuilds)
		assert.Empty(t, f.player.played)
	})

	t.Run("a failed completion speaks the apology and records the turn", func(t *testing.T) {
		f := newFixture(t)
		f.bot.err = errors.New("503 service unavailable")

		res := f.dispatcher.Handle(ctx, "asdkjasd")

		assert.Equal(t, Result{Success: false, Message: Apology}, res)
		assert.Equal(t, []string{Apology}, f.speaker.texts)

		history := f.memory.History()
		require.Len(t, history, 1)
		assert.Equal(t, "asdkjasd", history[0].User)
		assert.Equal(t, Apology, history[0].Assistant)
	})

	t.Run("terminate speaks the farewell and stops the session", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Handle(ctx, "Goodbye!")

		assert.Equal(t, Result{Success: true, Message: Farewell}, res)
		assert.True(t, f.session.stopped)
		assert.Equal(t, []string{Farewell}, f.speaker.texts)
		assert.Empty(t, f.memory.History())
	})
}

func TestLaunchApp(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown names fall back to the raw name", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Dispatch(ctx, intent.LaunchApp("gimp"))

		assert.Equal(t, Result{Success: true, Message: "Opening gimp"}, res)
		assert.Equal(t, []string{"gimp"}, f.launcher.launched)
	})

	t.Run("a failed launch is reported as unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.launcher.fail["blender"] = true

		res := f.dispatcher.Dispatch(ctx, intent.LaunchApp("blender"))

		assert.Equal(t, Result{
			Success: false,
			Message: "blender is not available on this machine or could not be launched.",
		}, res)
	})

	t.Run("youtube opens the homepage", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Dispatch(ctx, intent.LaunchApp("youtube"))

		assert.Equal(t, Result{Success: true, Message: "Opening YouTube"}, res)
		assert.Equal(t, []string{"https://www.youtube.com"}, f.launcher.opened)
		assert.Empty(t, f.launcher.launched)
	})

	t.Run("exact names win over fuzzy matches", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Dispatch(ctx, intent.LaunchApp("files"))

		assert.Equal(t, "Opening Files", res.Message)
		assert.Equal(t, []string{"nautilus"}, f.launcher.launched)
	})
}

func TestPlay(t *testing.T) {
	ctx := context.Background()

	t.Run("local media is played through the player", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Dispatch(ctx, intent.PlayLocal("despacito"))

		assert.Equal(t, Result{Success: true, Message: "Playing Despacito"}, res)
		assert.Equal(t, []string{"/home/me/Music/Despacito.mp3"}, f.player.played)
		assert.Empty(t, f.launcher.opened)
	})

	t.Run("unmatched local media goes online with the default service", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Dispatch(ctx, intent.PlayLocal("never gonna give you up"))

		assert.True(t, res.Success)
		assert.Equal(t, "Playing never gonna give you up on YouTube", res.Message)
		assert.Equal(t, []string{"https://www.youtube.com/results?search_query=never+gonna+give+you+up"}, f.launcher.opened)
	})

	t.Run("player failures go online", func(t *testing.T) {
		f := newFixture(t)
		f.player.err = player.ErrNoPlayer

		res := f.dispatcher.Dispatch(ctx, intent.PlayLocal("despacito"))

		assert.True(t, res.Success)
		assert.Len(t, f.launcher.opened, 1)
	})

	t.Run("spotify tries the app uri first", func(t *testing.T) {
		f := newFixture(t)

		res := f.dispatcher.Dispatch(ctx, intent.PlayOnline("lofi beats", intent.ServiceSpotify))

		assert.Equal(t, Result{Success: true, Message: "Playing lofi beats on Spotify"}, res)
		assert.Equal(t, []string{"spotify:search:lofi beats"}, f.launcher.opened)
	})

	t.Run("spotify falls back to the web player", func(t *testing.T) {
		f := newFixture(t)
		f.launcher.fail["spotify:search:lofi beats"] = true

		res := f.dispatcher.Dispatch(ctx, intent.PlayOnline("lofi beats", intent.ServiceSpotify))

		assert.True(t, res.Success)
		assert.Equal(t, []string{
			"spotify:search:lofi beats",
			"https://open.spotify.com/search/lofi%20beats",
		}, f.launcher.opened)
	})

	t.Run("nothing opened is a failure", func(t *testing.T) {
		f := newFixture(t)
		f.launcher.fail["https://www.youtube.com/results?search_query=x"] = true

		res := f.dispatcher.Dispatch(ctx, intent.PlayOnline("x", intent.ServiceYouTube))

		assert.False(t, res.Success)
	})
}

func TestMediaControl(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.Equal(t, Result{Success: false, Message: NothingPlaying}, f.dispatcher.Dispatch(ctx, intent.MediaControl(intent.ControlPause)))

	f.dispatcher.Dispatch(ctx, intent.PlayLocal("despacito"))

	assert.Equal(t, Result{Success: true, Message: "Paused Despacito"}, f.dispatcher.Dispatch(ctx, intent.MediaControl(intent.ControlPause)))
	assert.True(t, f.player.paused)

	assert.Equal(t, Result{Success: true, Message: "Resuming Despacito"}, f.dispatcher.Dispatch(ctx, intent.MediaControl(intent.ControlResume)))
	assert.False(t, f.player.paused)

	assert.Equal(t, Result{Success: true, Message: "Stopped Despacito"}, f.dispatcher.Dispatch(ctx, intent.MediaControl(intent.ControlStop)))
	_, active := f.player.Active()
	assert.False(t, active)
}

func TestSystemQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		info intent.QueryKind
		want string
	}{
		{intent.QueryTime, "It's currently 03:04 PM"},
		{intent.QueryDate, "Today is Monday, January 02, 2006"},
		{intent.QueryBattery, "Your battery is at 80% (plugged in)"},
		{intent.QuerySystem, "You're running linux 6.1"},
	}

	for _, tt := range tests {
		t.Run(string(tt.info), func(t *testing.T) {
			assert.Equal(t, Result{Success: true, Message: tt.want}, f.dispatcher.Dispatch(ctx, intent.SystemQuery(tt.info)))
		})
	}
}

func TestConverse(t *testing.T) {
	ctx := context.Background()

	t.Run("the system prompt carries live state and memory", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.memory.UpdateProfile("name", "Ada"))

		res := f.dispatcher.Handle(ctx, "how are you")

		assert.Equal(t, Result{Success: true, Message: "Hi there!"}, res)
		assert.Contains(t, f.bot.system, "named Jarvis")
		assert.Contains(t, f.bot.system, "- Time: 03:04 PM")
		assert.Contains(t, f.bot.system, "- Battery: 80% (plugged in)")
		assert.Contains(t, f.bot.system, "- name: Ada")
	})

	t.Run("a panicking backend becomes an apology", func(t *testing.T) {
		f := newFixture(t)
		f.bot.panic = true

		res := f.dispatcher.Handle(ctx, "tell me a joke")

		assert.Equal(t, Result{Success: false, Message: Apology}, res)
		assert.Equal(t, []string{Apology}, f.speaker.texts)
	})
}
