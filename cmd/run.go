package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"voice-assistant/config"
	"voice-assistant/listener"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen for the wake word and carry out spoken commands (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVoice(cmd, opts.cfg)
		},
	}
}

func newTextCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "text",
		Short: "Type commands instead of speaking them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runText(cmd, opts.cfg)
		},
	}
}

func runVoice(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompter := config.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

	a, err := wireAssistant(ctx, cfg, wireOptions{
		voice:    true,
		console:  cmd.OutOrStdout(),
		prompter: prompter,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := a.wireListener(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	a.onboard(ctx, prompter)

	log.Info().
		Str("wake_engine", cfg.Wake.Engine).
		Str("stt", cfg.STT.Provider).
		Str("llm", cfg.LLM.Provider).
		Msg("voice assistant ready")

	return l.ListenLoop(ctx)
}

func runText(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompter := config.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

	a, err := wireAssistant(ctx, cfg, wireOptions{
		console:  cmd.OutOrStdout(),
		prompter: prompter,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := listener.New(&listener.Config{
		Handler:  a.dispatcher,
		Speaker:  a.speech,
		Session:  a.session,
		Observer: a.observer,
		Console:  cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	a.onboard(ctx, prompter)

	// onboarding answers and commands share one buffered reader
	return l.RunText(ctx, prompter.Reader())
}
