package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"voice-assistant/audio_source"
	"voice-assistant/config"
	"voice-assistant/voice_activity_detection"
)

const levelBarWidth = 50

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := audio_source.InputDevices()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range devices {
				fmt.Fprintf(out, "%3d  %-40s  %d ch  %.0f Hz\n", d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
			}

			if len(devices) == 0 {
				fmt.Fprintln(out, "no input devices found")
			}

			return nil
		},
	}
}

func newMicTestCmd(opts *options) *cobra.Command {
	var duration time.Duration

	micTestCmd := &cobra.Command{
		Use:   "mic-test",
		Short: "Print input peak levels to check the microphone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return micTest(cmd, opts.cfg.Audio, duration)
		},
	}

	micTestCmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to listen")

	return micTestCmd
}

func micTest(cmd *cobra.Command, cfg config.AudioConfig, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := newSource(cfg, afero.NewOsFs())
	if err != nil {
		return err
	}

	if err := source.Open(); err != nil {
		return fmt.Errorf("open audio source: %w", err)
	}
	defer source.Close()

	frameDur := time.Duration(source.FrameLength()) * time.Second / time.Duration(source.SampleRate())
	frames := int(duration / frameDur)
	every := max(1, int(100*time.Millisecond/frameDur))
	out := cmd.OutOrStdout()
	peak := 0

	for i := 1; i <= frames && ctx.Err() == nil; i++ {
		frame, err := source.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}

		peak = max(peak, voice_activity_detection.Peak(frame))

		if i%every == 0 {
			fmt.Fprintf(out, "%5d %s\n", peak, levelBar(peak))
			peak = 0
		}
	}

	return nil
}

func levelBar(peak int) string {
	return strings.Repeat("#", min(levelBarWidth, peak*levelBarWidth/32768))
}
