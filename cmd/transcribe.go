package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"voice-assistant/audio_source"
	"voice-assistant/config"
	"voice-assistant/speech_to_text"
)

func newTranscribeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <wav>",
		Short: "Print the transcript of a recorded WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transcribe(cmd, opts.cfg, args[0])
		},
	}
}

func transcribe(cmd *cobra.Command, cfg *config.Config, path string) error {
	samples, rate, err := audio_source.ReadWAV(afero.NewOsFs(), path)
	if err != nil {
		return err
	}

	// only the recognizer is needed, so the wake engine must not ask for its key
	local := *cfg
	local.Wake.Engine = "whisper"

	prompter := config.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err := local.ResolveCredentials(true, os.Getenv, prompter); err != nil {
		return err
	}

	stt, closeSTT, err := newTranscriber(local.STT)
	if err != nil {
		return err
	}
	defer closeSTT()

	text, err := stt.Transcribe(cmd.Context(), speech_to_text.NewBuffer(samples, rate))
	if errors.Is(err, speech_to_text.ErrNoSpeech) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "(no speech)")
		return err
	} else if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}
