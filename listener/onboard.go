package listener

import (
	"context"
	"fmt"
)

// Profile is the part of conversation memory that onboarding fills in.
type Profile interface {
	Profile() map[string]string
	IsProfileComplete() bool
	UpdateProfile(key, value string) error
}

// Asker reads an answer to a question from the user.
type Asker interface {
	Prompt(label string, secret bool) (string, error)
}

var profileQuestions = []struct {
	key      string
	question string
}{
	{"name", "What's your name?"},
	{"age", "How old are you?"},
	{"gender", "What's your gender? (male/female/other)"},
}

// Onboard asks for whatever profile fields are missing and greets the user.
// Blank answers are skipped.
func Onboard(ctx context.Context, profile Profile, asker Asker, speaker Speaker) error {
	if profile.IsProfileComplete() {
		return speaker.Speak(fmt.Sprintf("Welcome back, %s!", profile.Profile()["name"]))
	}

	known := profile.Profile()

	for _, q := range profileQuestions {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if known[q.key] != "" {
			continue
		}

		answer, err := asker.Prompt(q.question, false)
		if err != nil {
			return fmt.Errorf("profile setup: %w", err)
		}

		if answer == "" {
			continue
		}

		if err := profile.UpdateProfile(q.key, answer); err != nil {
			return err
		}
	}

	name := profile.Profile()["name"]
	if name == "" {
		name = "there"
	}

	return speaker.Speak(fmt.Sprintf("Nice to meet you, %s! I'm ready to assist you. Just say your wake word to activate me.", name))
}
