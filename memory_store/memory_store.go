// Package memory_store persists the user's profile and recent conversation
// as a single JSON document.
package memory_store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	DefaultMaxTurns     = 20
	DefaultContextTurns = 5
)

var profileFields = []string{"name", "age", "gender"}

type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
}

type record struct {
	UserProfile         map[string]string `json:"user_profile"`
	ConversationHistory []Turn            `json:"conversation_history"`
	Preferences         map[string]string `json:"preferences"`
	LastInteraction     *time.Time        `json:"last_interaction"`
}

// Store is safe for concurrent use. Every mutation rewrites the whole file.
type Store struct {
	mu       sync.Mutex
	fileSys  afero.Fs
	path     string
	maxTurns int
	now      func() time.Time
	data     record
}

type Config struct {
	FileSys  afero.Fs
	Path     string
	MaxTurns int
	Now      func() time.Time
}

// Open loads the store at cfg.Path. A missing file starts empty; an
// unreadable or corrupt one is an error.
func Open(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("path is empty")
	}

	s := &Store{
		fileSys:  cfg.FileSys,
		path:     cfg.Path,
		maxTurns: cfg.MaxTurns,
		now:      cfg.Now,
	}

	if s.maxTurns <= 0 {
		s.maxTurns = DefaultMaxTurns
	}

	if s.now == nil {
		s.now = time.Now
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) load() error {
	raw, err := afero.ReadFile(s.fileSys, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.data = emptyRecord()

		return nil
	} else if err != nil {
		return fmt.Errorf("read memory %s: %w", s.path, err)
	}

	data := emptyRecord()
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse memory %s: %w", s.path, err)
	}

	if data.UserProfile == nil {
		data.UserProfile = map[string]string{}
	}

	if data.Preferences == nil {
		data.Preferences = map[string]string{}
	}

	s.data = data
	s.trim()

	return nil
}

func emptyRecord() record {
	return record{
		UserProfile:         map[string]string{},
		ConversationHistory: []Turn{},
		Preferences:         map[string]string{},
	}
}

func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if err := s.fileSys.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fileSys, tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}

	return s.fileSys.Rename(tmp, s.path)
}

func (s *Store) trim() {
	if extra := len(s.data.ConversationHistory) - s.maxTurns; extra > 0 {
		s.data.ConversationHistory = append([]Turn(nil), s.data.ConversationHistory[extra:]...)
	}
}

func (s *Store) touch() {
	now := s.now()
	s.data.LastInteraction = &now
}

func (s *Store) UpdateProfile(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.UserProfile[key] = strings.TrimSpace(value)
	s.touch()

	return s.save()
}

func (s *Store) SetPreference(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Preferences[key] = value
	s.touch()

	return s.save()
}

// AddConversation appends a turn, keeping only the most recent turns.
func (s *Store) AddConversation(user, assistant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.ConversationHistory = append(s.data.ConversationHistory, Turn{
		Timestamp: s.now(),
		User:      user,
		Assistant: assistant,
	})
	s.trim()
	s.touch()

	return s.save()
}

func (s *Store) Profile() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := make(map[string]string, len(s.data.UserProfile))
	for k, v := range s.data.UserProfile {
		profile[k] = v
	}

	return profile
}

func (s *Store) Preference(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data.Preferences[key]

	return v, ok
}

// History returns the stored turns, oldest first.
func (s *Store) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Turn(nil), s.data.ConversationHistory...)
}

func (s *Store) LastInteraction() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.LastInteraction == nil {
		return time.Time{}, false
	}

	return *s.data.LastInteraction, true
}

// IsProfileComplete reports whether name, age and gender are all known.
func (s *Store) IsProfileComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range profileFields {
		if s.data.UserProfile[f] == "" {
			return false
		}
	}

	return true
}

// Context renders the profile and the last n turns for a completion prompt.
func (s *Store) Context(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		n = DefaultContextTurns
	}

	var b strings.Builder

	b.WriteString("User profile:\n")

	if !s.hasProfile() {
		b.WriteString("- unknown\n")
	}

	for _, f := range profileFields {
		if v := s.data.UserProfile[f]; v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f, v)
		}
	}

	for _, k := range s.extraProfileKeys() {
		fmt.Fprintf(&b, "- %s: %s\n", k, s.data.UserProfile[k])
	}

	history := s.data.ConversationHistory
	if len(history) > n {
		history = history[len(history)-n:]
	}

	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")

		for _, t := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.User, t.Assistant)
		}
	}

	return b.String()
}

func (s *Store) hasProfile() bool {
	for _, v := range s.data.UserProfile {
		if v != "" {
			return true
		}
	}

	return false
}

// extraProfileKeys lists filled profile keys other than the known fields,
// sorted.
func (s *Store) extraProfileKeys() []string {
	var keys []string

	for k, v := range s.data.UserProfile {
		if v != "" && !slices.Contains(profileFields, k) {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	return keys
}
