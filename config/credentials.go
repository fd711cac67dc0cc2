package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrNotInteractive    = errors.New("stdin is not a terminal")
)

// Credential is a secret the selected providers need.
type Credential struct {
	Key   string
	Env   string
	Label string
	value *string
}

// Prompter asks the user for a value. Secret input is not echoed.
type Prompter interface {
	Prompt(label string, secret bool) (string, error)
}

// RequiredCredentials lists the secrets the configured providers need that
// are still empty. Wake and speech recognition secrets are only needed when
// voice is set.
func (c *Config) RequiredCredentials(voice bool) []Credential {
	var out []Credential

	add := func(key, env, label string, value *string) {
		if strings.TrimSpace(*value) == "" {
			out = append(out, Credential{Key: key, Env: env, Label: label, value: value})
		}
	}

	if voice && c.Wake.Engine == "porcupine" {
		add("wake.access_key", "PORCUPINE_ACCESS_KEY", "Picovoice access key", &c.Wake.AccessKey)
	}

	switch {
	case voice && c.STT.Provider == "groq":
		add("stt.api_key", "GROQ_API_KEY", "Groq API key", &c.STT.APIKey)
	case voice && c.STT.Provider == "openai":
		add("stt.api_key", "OPENAI_API_KEY", "OpenAI API key", &c.STT.APIKey)
	}

	if c.TTS.Provider == "openai" {
		add("tts.api_key", "OPENAI_API_KEY", "OpenAI API key", &c.TTS.APIKey)
	}

	switch c.LLM.Provider {
	case "groq":
		add("llm.api_key", "GROQ_API_KEY", "Groq API key", &c.LLM.APIKey)
	case "openai":
		add("llm.api_key", "OPENAI_API_KEY", "OpenAI API key", &c.LLM.APIKey)
	}

	return out
}

// ResolveCredentials fills empty secrets from their conventional environment
// variable, then from the prompter. A secret asked for twice under the same
// variable is only prompted once.
func (c *Config) ResolveCredentials(voice bool, getenv func(string) string, prompter Prompter) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	answered := map[string]string{}

	for _, cred := range c.RequiredCredentials(voice) {
		if v := strings.TrimSpace(getenv(cred.Env)); v != "" {
			*cred.value = v

			continue
		}

		if v, ok := answered[cred.Env]; ok {
			*cred.value = v

			continue
		}

		if prompter == nil {
			return fmt.Errorf("%w: %s (set %s)", ErrMissingCredential, cred.Key, cred.Env)
		}

		v, err := prompter.Prompt(cred.Label, true)
		if err != nil {
			return fmt.Errorf("%w: %s (set %s): %w", ErrMissingCredential, cred.Key, cred.Env, err)
		}

		v = strings.TrimSpace(v)
		if v == "" {
			return fmt.Errorf("%w: %s", ErrMissingCredential, cred.Key)
		}

		answered[cred.Env] = v
		*cred.value = v
	}

	return nil
}

// TerminalPrompter reads answers line by line from In. Secret answers
// require In to be a terminal.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{In: in, Out: out}
}

// Reader is the buffered reader behind non-secret answers. Anything else
// reading In after a prompt must read from it instead.
func (t *TerminalPrompter) Reader() *bufio.Reader {
	if t.reader == nil {
		t.reader = bufio.NewReader(t.In)
	}

	return t.reader
}

func (t *TerminalPrompter) Prompt(label string, secret bool) (string, error) {
	if secret {
		return t.promptSecret(label)
	}

	fmt.Fprintf(t.Out, "%s ", label)

	line, err := t.Reader().ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func (t *TerminalPrompter) promptSecret(label string) (string, error) {
	f, ok := t.In.(interface{ Fd() uintptr })
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", ErrNotInteractive
	}

	fmt.Fprintf(t.Out, "%s: ", label)

	raw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(t.Out)

	if err != nil {
		return "", err
	}

	return string(raw), nil
}
