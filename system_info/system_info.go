// Package system_info answers spoken questions about the clock and the
// machine. Every answer has a fallback; nothing here fails.
package system_info

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/afero"
)

const (
	TimeLayout = "03:04 PM"
	DateLayout = "Monday, January 02, 2006"

	BatteryUnavailable = "Battery information not available"
	SystemUnavailable  = "System information not available"
)

type Battery struct {
	Percent int
	Plugged bool
}

type Reporter struct {
	now     func() time.Time
	goos    string
	fileSys afero.Fs
	// run executes a command and returns its output.
	run func(ctx context.Context, name string, args ...string) (string, error)
	// hostInfo returns a platform description such as "ubuntu 22.04".
	hostInfo func(ctx context.Context) (string, error)
}

type Config struct {
	GOOS    string
	FileSys afero.Fs
	Now     func() time.Time
}

func New(cfg *Config) (*Reporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	r := &Reporter{
		now:      cfg.Now,
		goos:     cfg.GOOS,
		fileSys:  cfg.FileSys,
		run:      runCommand,
		hostInfo: gopsutilHost,
	}

	if r.now == nil {
		r.now = time.Now
	}

	return r, nil
}

func (r *Reporter) Time() string {
	return r.now().Format(TimeLayout)
}

func (r *Reporter) Date() string {
	return r.now().Format(DateLayout)
}

// BatteryStatus reads the charge level. ok is false on machines without a
// battery or when the platform query fails.
func (r *Reporter) BatteryStatus(ctx context.Context) (Battery, bool) {
	var (
		b   Battery
		err error
	)

	switch r.goos {
	case "linux":
		b, err = r.linuxBattery()
	case "darwin":
		b, err = r.darwinBattery(ctx)
	case "windows":
		b, err = r.windowsBattery(ctx)
	default:
		return Battery{}, false
	}

	if err != nil {
		log.Debug().Err(err).Msg("battery status unavailable")

		return Battery{}, false
	}

	return b, true
}

// Battery describes the charge level for speaking.
func (r *Reporter) Battery(ctx context.Context) string {
	b, ok := r.BatteryStatus(ctx)
	if !ok {
		return BatteryUnavailable
	}

	state := "not plugged in"
	if b.Plugged {
		state = "plugged in"
	}

	return fmt.Sprintf("%d%% (%s)", b.Percent, state)
}

// System describes the operating system, e.g. "linux 6.1.0".
func (r *Reporter) System(ctx context.Context) string {
	info, err := r.hostInfo(ctx)
	if err != nil || info == "" {
		log.Debug().Err(err).Msg("host information unavailable")

		return SystemUnavailable
	}

	return info
}

func (r *Reporter) linuxBattery() (Battery, error) {
	capacities, err := afero.Glob(r.fileSys, "/sys/class/power_supply/BAT*/capacity")
	if err != nil {
		return Battery{}, err
	}

	if len(capacities) == 0 {
		return Battery{}, fmt.Errorf("no battery found")
	}

	raw, err := afero.ReadFile(r.fileSys, capacities[0])
	if err != nil {
		return Battery{}, err
	}

	percent, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return Battery{}, fmt.Errorf("parse capacity: %w", err)
	}

	b := Battery{Percent: percent}

	statusRaw, err := afero.ReadFile(r.fileSys, filepath.Join(filepath.Dir(capacities[0]), "status"))
	if err == nil {
		switch strings.TrimSpace(string(statusRaw)) {
		case "Charging", "Full", "Not charging":
			b.Plugged = true
		}
	}

	return b, nil
}

var pmsetPercent = regexp.MustCompile(`(\d+)%`)

func (r *Reporter) darwinBattery(ctx context.Context) (Battery, error) {
	out, err := r.run(ctx, "pmset", "-g", "batt")
	if err != nil {
		return Battery{}, err
	}

	return parsePmset(out)
}

// parsePmset reads `pmset -g batt` output.
func parsePmset(out string) (Battery, error) {
	m := pmsetPercent.FindStringSubmatch(out)
	if m == nil {
		return Battery{}, fmt.Errorf("no battery in pmset output")
	}

	percent, _ := strconv.Atoi(m[1])

	return Battery{
		Percent: percent,
		Plugged: strings.Contains(out, "AC Power"),
	}, nil
}

func (r *Reporter) windowsBattery(ctx context.Context) (Battery, error) {
	out, err := r.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command",
		"$b = Get-CimInstance Win32_Battery | Select-Object -First 1; if ($b) { \"$($b.EstimatedChargeRemaining) $($b.BatteryStatus)\" }")
	if err != nil {
		return Battery{}, err
	}

	return parseWin32Battery(out)
}

// parseWin32Battery reads "<percent> <BatteryStatus>". Status 2 means the
// machine is on AC power.
func parseWin32Battery(out string) (Battery, error) {
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return Battery{}, fmt.Errorf("no battery reported")
	}

	percent, err := strconv.Atoi(fields[0])
	if err != nil {
		return Battery{}, fmt.Errorf("parse charge: %w", err)
	}

	status, _ := strconv.Atoi(fields[1])

	return Battery{Percent: percent, Plugged: status == 2 || status >= 6 && status <= 9}, nil
}

func gopsutilHost(ctx context.Context) (string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", err
	}

	name := info.Platform
	if name == "" {
		name = info.OS
	}

	version := info.PlatformVersion
	if version == "" {
		version = info.KernelVersion
	}

	return strings.TrimSpace(name + " " + version), nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}

	return string(out), nil
}
