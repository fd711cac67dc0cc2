package catalog

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

var MediaExtensions = []string{".mp3", ".wav", ".flac", ".ogg", ".m4a", ".aac", ".opus"}

// Merge concatenates the output of several builders.
func Merge(builders ...Builder) Builder {
	return func(ctx context.Context) ([]Candidate, error) {
		var all []Candidate

		for _, b := range builders {
			candidates, err := b(ctx)
			if err != nil {
				return nil, err
			}

			all = append(all, candidates...)
		}

		return all, nil
	}
}

// DesktopEntries reads freedesktop .desktop files. The handle is the Exec
// line with its field codes removed.
func DesktopEntries(fileSys afero.Fs, dirs []string) Builder {
	return func(ctx context.Context) ([]Candidate, error) {
		var candidates []Candidate

		err := eachFile(ctx, fileSys, dirs, false, func(path string) {
			if filepath.Ext(path) != ".desktop" {
				return
			}

			c, ok := parseDesktopEntry(fileSys, path)
			if ok {
				candidates = append(candidates, c)
			}
		})

		return candidates, err
	}
}

func parseDesktopEntry(fileSys afero.Fs, path string) (Candidate, bool) {
	data, err := afero.ReadFile(fileSys, path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("skipping unreadable desktop entry")

		return Candidate{}, false
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("skipping malformed desktop entry")

		return Candidate{}, false
	}

	entry := cfg.Section("Desktop Entry")

	if t := entry.Key("Type").String(); t != "" && t != "Application" {
		return Candidate{}, false
	}

	if entry.Key("NoDisplay").MustBool(false) || entry.Key("Hidden").MustBool(false) {
		return Candidate{}, false
	}

	name := entry.Key("Name").String()
	exec := stripFieldCodes(entry.Key("Exec").String())

	if name == "" || exec == "" {
		return Candidate{}, false
	}

	return Candidate{Name: name, Handle: exec}, true
}

// stripFieldCodes removes %f, %U and friends from an Exec line.
func stripFieldCodes(exec string) string {
	fields := strings.Fields(exec)
	kept := fields[:0]

	for _, f := range fields {
		if len(f) == 2 && f[0] == '%' {
			continue
		}

		kept = append(kept, f)
	}

	return strings.Join(kept, " ")
}

// AppBundles lists macOS .app bundles. The handle is the bundle path.
func AppBundles(fileSys afero.Fs, dirs []string) Builder {
	return func(ctx context.Context) ([]Candidate, error) {
		var candidates []Candidate

		for _, dir := range dirs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			entries, err := afero.ReadDir(fileSys, dir)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}

				return nil, err
			}

			for _, e := range entries {
				if !e.IsDir() || filepath.Ext(e.Name()) != ".app" {
					continue
				}

				candidates = append(candidates, Candidate{
					Name:   strings.TrimSuffix(e.Name(), ".app"),
					Handle: filepath.Join(dir, e.Name()),
				})
			}
		}

		return candidates, nil
	}
}

// StartMenu lists Windows Start Menu shortcuts. The handle is the .lnk path.
func StartMenu(fileSys afero.Fs, dirs []string) Builder {
	return func(ctx context.Context) ([]Candidate, error) {
		var candidates []Candidate

		err := eachFile(ctx, fileSys, dirs, true, func(path string) {
			if !strings.EqualFold(filepath.Ext(path), ".lnk") {
				return
			}

			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if strings.Contains(strings.ToLower(name), "uninstall") {
				return
			}

			candidates = append(candidates, Candidate{Name: name, Handle: path})
		})

		return candidates, err
	}
}

// MediaFiles lists playable audio files under dirs, named by their base name.
func MediaFiles(fileSys afero.Fs, dirs []string) Builder {
	return func(ctx context.Context) ([]Candidate, error) {
		var candidates []Candidate

		err := eachFile(ctx, fileSys, dirs, true, func(path string) {
			if !IsMedia(path) {
				return
			}

			candidates = append(candidates, Candidate{
				Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				Handle: path,
			})
		})

		return candidates, err
	}
}

func IsMedia(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))

	for _, m := range MediaExtensions {
		if ext == m {
			return true
		}
	}

	return false
}

// eachFile visits regular files in dirs. Missing directories are skipped.
func eachFile(ctx context.Context, fileSys afero.Fs, dirs []string, recursive bool, visit func(path string)) error {
	for _, dir := range dirs {
		if _, err := fileSys.Stat(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return err
		}

		err := afero.Walk(fileSys, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				// unreadable subtrees are common under system directories
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}

				return nil
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if info.IsDir() {
				if !recursive && path != dir {
					return filepath.SkipDir
				}

				return nil
			}

			visit(path)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
