// Package fuzzy_match scores spoken names against known candidates.
package fuzzy_match

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const DefaultThreshold = 55

type Match struct {
	Index     int
	Candidate string
	Score     float64
}

// Resolve returns the best scoring candidate when its score is strictly above
// threshold. Equal scores keep the earliest candidate.
func Resolve(query string, candidates []string, threshold float64) (Match, bool) {
	best := Match{Index: -1, Score: -1}

	for i, candidate := range candidates {
		score := Score(query, candidate)
		if score > best.Score {
			best = Match{Index: i, Candidate: candidate, Score: score}
		}
	}

	if best.Index < 0 || best.Score <= threshold {
		return Match{}, false
	}

	return best, true
}

// Score is a similarity in [0, 100]: the mean of the whole-string similarity
// and the best similarity between the query and any run of the candidate's
// words of the same length.
func Score(query, candidate string) float64 {
	q := Normalize(query)
	c := Normalize(candidate)

	if q == "" || c == "" {
		return 0
	}

	return 0.5*similarity(q, c) + 0.5*bestWindow(q, c)
}

// Normalize lowercases s, drops a file extension and turns punctuation into
// single spaces.
func Normalize(s string) string {
	if ext := filepath.Ext(s); ext != "" && len(ext) <= 5 && !strings.ContainsRune(ext, ' ') {
		s = strings.TrimSuffix(s, ext)
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}

		return ' '
	}, s)

	return strings.Join(strings.Fields(s), " ")
}

func bestWindow(q, c string) float64 {
	queryWords := len(strings.Fields(q))
	words := strings.Fields(c)

	if queryWords >= len(words) {
		return similarity(q, c)
	}

	best := 0.0

	for i := 0; i+queryWords <= len(words); i++ {
		s := similarity(q, strings.Join(words[i:i+queryWords], " "))
		if s > best {
			best = s
		}
	}

	return best
}

func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)

	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}

	if maxLen == 0 {
		return 100
	}

	return 100 * (1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen))
}
