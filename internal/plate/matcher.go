// Package plate turns sanitized recognizer text into canonical plate strings.
package plate

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidate means the text is too short to contain any plate.
	ErrNoCandidate = errors.New("no plate candidate")
	// ErrGrammarMismatch means no window of the text fits a known format.
	ErrGrammarMismatch = errors.New("no grammar matched")
)

// Result is a successful match.
type Result struct {
	// Candidate is the window of the input that matched.
	Candidate string
	// Offset is the index of Candidate in the input.
	Offset    int
	Formatted string
	Grammar   string
}

// Matcher tries an ordered grammar table against sanitized text.
// It is immutable and safe for concurrent use.
type Matcher struct {
	grammars []Grammar
}

func NewMatcher(grammars ...Grammar) *Matcher {
	gs := make([]Grammar, len(grammars))
	copy(gs, grammars)
	return &Matcher{grammars: gs}
}

var defaultMatcher = NewMatcher(DefaultGrammars...)

// Default returns the matcher for DefaultGrammars.
func Default() *Matcher {
	return defaultMatcher
}

func (m *Matcher) Grammars() []Grammar {
	out := make([]Grammar, len(m.grammars))
	copy(out, m.grammars)
	return out
}

// Match scans s left to right. At each offset the grammars are tried in
// priority order against the window of exactly their arity; the first full
// match wins. s must already be sanitized (A-Z0-9 only).
func (m *Matcher) Match(s string) (Result, error) {
	if len(s) < MinArity {
		return Result{}, fmt.Errorf("%w: %d characters", ErrNoCandidate, len(s))
	}

	for offset := 0; offset+MinArity <= len(s); offset++ {
		for _, g := range m.grammars {
			end := offset + g.Arity()
			if end > len(s) {
				continue
			}
			window := s[offset:end]
			if !g.Matches(window) {
				continue
			}
			return Result{
				Candidate: window,
				Offset:    offset,
				Formatted: g.Render(window),
				Grammar:   g.Name,
			}, nil
		}
	}

	return Result{}, fmt.Errorf("%w: %q", ErrGrammarMismatch, s)
}

// Format returns the canonical plate for s, or "" when nothing matches.
func (m *Matcher) Format(s string) string {
	res, err := m.Match(s)
	if err != nil {
		return ""
	}
	return res.Formatted
}
