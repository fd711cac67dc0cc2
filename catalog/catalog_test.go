package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()

	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestDesktopEntries(t *testing.T) {
	fs := afero.NewMemMapFs()

	writeFile(t, fs, "/usr/share/applications/google-chrome.desktop", `[Desktop Entry]
Version=1.0
Name=Google Chrome
Name[de]=Google Chrome Browser
Exec=/usr/bin/google-chrome-stable %U
Type=Application
Categories=Network;WebBrowser;

[Desktop Action new-window]
Name=New Window
Exec=/usr/bin/google-chrome-stable
`)
	writeFile(t, fs, "/usr/share/applications/hidden.desktop", `[Desktop Entry]
Name=Background Helper
Exec=helper
Type=Application
NoDisplay=true
`)
	writeFile(t, fs, "/usr/share/applications/link.desktop", `[Desktop Entry]
Name=Website
Type=Link
URL=https://example.com
`)
	writeFile(t, fs, "/usr/share/applications/README", "not an entry")
	writeFile(t, fs, "/home/me/.local/share/applications/calc.desktop", `[Desktop Entry]
Name=Calculator
Exec=gnome-calculator
`)

	candidates, err := DesktopEntries(fs, []string{
		"/usr/share/applications",
		"/home/me/.local/share/applications",
		"/does/not/exist",
	})(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []Candidate{
		{Name: "Google Chrome", Handle: "/usr/bin/google-chrome-stable"},
		{Name: "Calculator", Handle: "gnome-calculator"},
	}, candidates)
}

func TestAppBundles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/Applications/Safari.app/Contents", 0o755))
	require.NoError(t, fs.MkdirAll("/Applications/Utilities", 0o755))
	writeFile(t, fs, "/Applications/notes.txt", "x")

	candidates, err := AppBundles(fs, []string{"/Applications", "/missing"})(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Candidate{{Name: "Safari", Handle: "/Applications/Safari.app"}}, candidates)
}

func TestStartMenu(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/Start Menu/Programs/Notepad++.lnk", "")
	writeFile(t, fs, "/Start Menu/Programs/Tools/Uninstall Notepad++.lnk", "")
	writeFile(t, fs, "/Start Menu/Programs/Tools/Spotify.LNK", "")

	candidates, err := StartMenu(fs, []string{"/Start Menu/Programs"})(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []Candidate{
		{Name: "Notepad++", Handle: "/Start Menu/Programs/Notepad++.lnk"},
		{Name: "Spotify", Handle: "/Start Menu/Programs/Tools/Spotify.LNK"},
	}, candidates)
}

func TestMediaFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/music/Despacito.mp3", "")
	writeFile(t, fs, "/music/albums/queen/Bohemian Rhapsody.FLAC", "")
	writeFile(t, fs, "/music/cover.jpg", "")

	candidates, err := MediaFiles(fs, []string{"/music"})(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []Candidate{
		{Name: "Despacito", Handle: "/music/Despacito.mp3"},
		{Name: "Bohemian Rhapsody", Handle: "/music/albums/queen/Bohemian Rhapsody.FLAC"},
	}, candidates)
}

func TestIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("it is built lazily, sorted and without duplicate names", func(t *testing.T) {
		builds := 0
		idx := NewIndex("apps", func(context.Context) ([]Candidate, error) {
			builds++

			return []Candidate{
				{Name: "firefox", Handle: "/usr/bin/firefox"},
				{Name: "Calculator", Handle: "calc"},
				{Name: "Firefox", Handle: "/snap/bin/firefox"},
				{Name: "  ", Handle: "blank"},
			}, nil
		})

		assert.Zero(t, builds)

		candidates, err := idx.Candidates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Candidate{
			{Name: "Calculator", Handle: "calc"},
			{Name: "firefox", Handle: "/usr/bin/firefox"},
		}, candidates)

		_, err = idx.Candidates(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, builds)

		idx.MarkStale()

		_, err = idx.Candidates(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, builds)
	})

	t.Run("lookup ignores case", func(t *testing.T) {
		idx := NewStaticIndex("apps", []Candidate{{Name: "Google Chrome", Handle: "chrome"}})

		c, ok, err := idx.Lookup(ctx, "google chrome")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "chrome", c.Handle)

		_, ok, err = idx.Lookup(ctx, "chrome")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("resolve uses fuzzy scoring", func(t *testing.T) {
		idx := NewStaticIndex("apps", []Candidate{
			{Name: "Firefox", Handle: "firefox"},
			{Name: "Google Chrome", Handle: "google-chrome"},
		})

		c, score, ok, err := idx.Resolve(ctx, "chrome", 55)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Google Chrome", c.Name)
		assert.Greater(t, score, 55.0)

		_, _, ok, err = idx.Resolve(ctx, "terminal emulator", 55)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("search filters by subsequence", func(t *testing.T) {
		idx := NewStaticIndex("apps", []Candidate{
			{Name: "Firefox", Handle: "firefox"},
			{Name: "Google Chrome", Handle: "google-chrome"},
			{Name: "Chromium", Handle: "chromium"},
		})

		found, err := idx.Search(ctx, "chr")
		require.NoError(t, err)

		var names []string
		for _, c := range found {
			names = append(names, c.Name)
		}

		assert.ElementsMatch(t, []string{"Google Chrome", "Chromium"}, names)

		all, err := idx.Search(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()

	idx := NewStaticIndex("media", nil)
	_, err := idx.Candidates(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, idx, []string{dir, filepath.Join(dir, "missing")})
	}()

	attempt := 0

	require.Eventually(t, func() bool {
		attempt++

		name := filepath.Join(dir, fmt.Sprintf("new-%d.mp3", attempt))
		if err := os.WriteFile(name, nil, 0o644); err != nil {
			return false
		}

		idx.mu.RLock()
		defer idx.mu.RUnlock()

		return idx.stale
	}, 2*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
