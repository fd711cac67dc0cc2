// Package catalog keeps the applications and media files that spoken names
// are resolved against.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"

	"voice-assistant/fuzzy_match"
)

// Candidate is a resolvable name and what to hand the launcher or player.
type Candidate struct {
	Name   string
	Handle string
}

// Builder enumerates candidates, typically by scanning directories.
type Builder func(ctx context.Context) ([]Candidate, error)

// Index is built on first use and rebuilt after MarkStale. Candidates are
// kept sorted by name so resolution ties break the same way every time.
type Index struct {
	name  string
	build Builder

	mu         sync.RWMutex
	candidates []Candidate
	built      bool
	stale      bool
}

func NewIndex(name string, build Builder) *Index {
	return &Index{name: name, build: build}
}

// NewStaticIndex wraps a fixed candidate list.
func NewStaticIndex(name string, candidates []Candidate) *Index {
	return NewIndex(name, func(context.Context) ([]Candidate, error) {
		return candidates, nil
	})
}

func (i *Index) Name() string {
	return i.name
}

func (i *Index) Candidates(ctx context.Context) ([]Candidate, error) {
	i.mu.RLock()
	if i.built && !i.stale {
		candidates := i.candidates
		i.mu.RUnlock()

		return candidates, nil
	}
	i.mu.RUnlock()

	if err := i.Rebuild(ctx); err != nil {
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.candidates, nil
}

func (i *Index) Rebuild(ctx context.Context) error {
	candidates, err := i.build(ctx)
	if err != nil {
		return fmt.Errorf("build %s index: %w", i.name, err)
	}

	candidates = normalizeCandidates(candidates)

	i.mu.Lock()
	i.candidates = candidates
	i.built = true
	i.stale = false
	i.mu.Unlock()

	log.Debug().Str("index", i.name).Int("candidates", len(candidates)).Msg("index built")

	return nil
}

// MarkStale schedules a rebuild on next use.
func (i *Index) MarkStale() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stale = true
}

// Lookup finds a candidate whose name equals name, ignoring case.
func (i *Index) Lookup(ctx context.Context, name string) (Candidate, bool, error) {
	candidates, err := i.Candidates(ctx)
	if err != nil {
		return Candidate{}, false, err
	}

	for _, c := range candidates {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true, nil
		}
	}

	return Candidate{}, false, nil
}

// Resolve returns the best fuzzy match for query above threshold.
func (i *Index) Resolve(ctx context.Context, query string, threshold float64) (Candidate, float64, bool, error) {
	candidates, err := i.Candidates(ctx)
	if err != nil {
		return Candidate{}, 0, false, err
	}

	names := make([]string, len(candidates))
	for n, c := range candidates {
		names[n] = c.Name
	}

	m, ok := fuzzy_match.Resolve(query, names, threshold)
	if !ok {
		return Candidate{}, 0, false, nil
	}

	return candidates[m.Index], m.Score, true, nil
}

// Search filters candidates for display. An empty pattern lists everything.
func (i *Index) Search(ctx context.Context, pattern string) ([]Candidate, error) {
	candidates, err := i.Candidates(ctx)
	if err != nil {
		return nil, err
	}

	if pattern == "" {
		return candidates, nil
	}

	names := make([]string, len(candidates))
	for n, c := range candidates {
		names[n] = c.Name
	}

	matches := fuzzy.Find(pattern, names)
	found := make([]Candidate, 0, len(matches))

	for _, m := range matches {
		found = append(found, candidates[m.Index])
	}

	return found, nil
}

// normalizeCandidates sorts by name and drops repeated names, keeping the
// first handle seen for each.
func normalizeCandidates(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}

		sorted = append(sorted, c)
	}

	sort.SliceStable(sorted, func(a, b int) bool {
		return strings.ToLower(sorted[a].Name) < strings.ToLower(sorted[b].Name)
	})

	seen := make(map[string]bool, len(sorted))
	unique := sorted[:0]

	for _, c := range sorted {
		key := strings.ToLower(c.Name)
		if seen[key] {
			continue
		}

		seen[key] = true
		unique = append(unique, c)
	}

	return unique
}
