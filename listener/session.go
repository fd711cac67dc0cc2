package listener

import "sync/atomic"

// Session is the running flag shared by the loop and the terminate action.
type Session struct {
	running atomic.Bool
}

func NewSession() *Session {
	s := &Session{}
	s.running.Store(true)

	return s
}

func (s *Session) Stop() {
	s.running.Store(false)
}

func (s *Session) Running() bool {
	return s.running.Load()
}
