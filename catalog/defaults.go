package catalog

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultAppDirs returns the platform's application directories.
func DefaultAppDirs(goos, home string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications",
			"/Applications/Utilities",
			"/System/Applications",
			"/System/Applications/Utilities",
			filepath.Join(home, "Applications"),
		}
	case "windows":
		return []string{
			filepath.Join(os.Getenv("ProgramData"), "Microsoft", "Windows", "Start Menu", "Programs"),
			filepath.Join(os.Getenv("APPDATA"), "Microsoft", "Windows", "Start Menu", "Programs"),
		}
	default:
		return []string{
			"/usr/share/applications",
			"/usr/local/share/applications",
			"/var/lib/flatpak/exports/share/applications",
			"/var/lib/snapd/desktop/applications",
			filepath.Join(home, ".local", "share", "applications"),
		}
	}
}

func DefaultMediaDirs(home string) []string {
	return []string{filepath.Join(home, "Music")}
}

// AppBuilder picks the application scanner for goos.
func AppBuilder(fileSys afero.Fs, goos string, dirs []string) Builder {
	switch goos {
	case "darwin":
		return AppBundles(fileSys, dirs)
	case "windows":
		return StartMenu(fileSys, dirs)
	default:
		return DesktopEntries(fileSys, dirs)
	}
}
