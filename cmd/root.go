package cmd

import (
	"github.com/spf13/cobra"

	"voice-assistant/config"
	"voice-assistant/logging"
)

// options carries what the persistent flags resolve to into the commands.
type options struct {
	configFile string
	cfg        *config.Config
	closeLog   func() error
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	var text bool

	rootCmd := &cobra.Command{
		Use:           "voice-assistant",
		Short:         "Local voice command assistant",
		Long:          "voice-assistant waits for its wake word, transcribes the command that follows and carries it out, handing anything it does not recognize to a language model.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return opts.close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if text {
				return runText(cmd, opts.cfg)
			}

			return runVoice(cmd, opts.cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default ~/.voice-assistant/config.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Int("device", -1, "audio input device index, see the devices command")
	flags.String("wav", "", "replay a 16-bit mono WAV file instead of the microphone")

	rootCmd.Flags().BoolVar(&text, "text", false, "type commands instead of speaking them")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(opts),
		newTextCmd(opts),
		newDevicesCmd(),
		newMicTestCmd(opts),
		newTranscribeCmd(opts),
		newIndexCmd(opts),
	)

	return rootCmd
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: o.configFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}

	closeLog, err := logging.Setup(&logging.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.closeLog = closeLog

	return nil
}

func (o *options) close() error {
	if o.closeLog == nil {
		return nil
	}

	return o.closeLog()
}
