package actions

import "context"

// Result is what every handler returns. Message is spoken exactly once.
type Result struct {
	Success bool
	Message string
}

// Speaker enqueues text for the assistant's voice without waiting for it.
type Speaker interface {
	Speak(text string) error
}

type Memory interface {
	AddConversation(user, assistant string) error
	Context(turns int) string
}

type SystemInfo interface {
	Time() string
	Date() string
	Battery(ctx context.Context) string
	System(ctx context.Context) string
}

// Stopper ends the interaction session.
type Stopper interface {
	Stop()
}
