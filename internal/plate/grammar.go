package plate

import (
	"fmt"
	"strings"
)

// Class is the character class required at one position of a grammar.
type Class byte

const (
	Letter Class = 'L'
	Digit  Class = 'N'
)

func (c Class) accepts(ch byte) bool {
	switch c {
	case Letter:
		return ch >= 'A' && ch <= 'Z'
	case Digit:
		return ch >= '0' && ch <= '9'
	default:
		return false
	}
}

// Grammar describes one plate format: the exact per-position character
// classes and how the matched characters are split into printed groups.
//
// Groups holds the size of each printed group; Separators holds the text
// written between consecutive groups, so len(Separators) == len(Groups)-1.
type Grammar struct {
	Name       string
	Pattern    []Class
	Groups     []int
	Separators []string
}

// MinArity and MaxArity bound the candidate window every grammar must fit in.
const (
	MinArity = 6
	MaxArity = 8
)

// DefaultGrammars is the priority-ordered format table.
var DefaultGrammars = []Grammar{
	MustParse("LLLNNNN", "LLL-NN-NN"),
	MustParse("LLLNNNL", "LLL-NNN-L"),
	MustParse("LNNLLL", "LNN-LLL"),
}

// Parse builds a grammar from a class pattern such as "LLLNNNN" and a
// rendering template such as "LLL-NN-NN". The template must use the same
// class letters in the same order; any other character is a separator.
func Parse(pattern, template string) (Grammar, error) {
	g := Grammar{Name: pattern}

	for i := 0; i < len(pattern); i++ {
		c := Class(pattern[i])
		if c != Letter && c != Digit {
			return Grammar{}, fmt.Errorf("pattern %q: unknown class %q at %d", pattern, pattern[i], i)
		}
		g.Pattern = append(g.Pattern, c)
	}
	if n := len(g.Pattern); n < MinArity || n > MaxArity {
		return Grammar{}, fmt.Errorf("pattern %q: arity %d outside %d..%d", pattern, n, MinArity, MaxArity)
	}

	var (
		classes strings.Builder
		sep     strings.Builder
		size    int
	)
	for i := 0; i < len(template); i++ {
		ch := template[i]
		if Class(ch) == Letter || Class(ch) == Digit {
			if size == 0 && len(g.Groups) > 0 {
				g.Separators = append(g.Separators, sep.String())
				sep.Reset()
			}
			classes.WriteByte(ch)
			size++
			continue
		}
		if size > 0 {
			g.Groups = append(g.Groups, size)
			size = 0
		}
		if len(g.Groups) == 0 {
			return Grammar{}, fmt.Errorf("template %q: leading separator", template)
		}
		sep.WriteByte(ch)
	}
	if size == 0 {
		return Grammar{}, fmt.Errorf("template %q: trailing separator", template)
	}
	g.Groups = append(g.Groups, size)

	if classes.String() != pattern {
		return Grammar{}, fmt.Errorf("template %q does not render pattern %q", template, pattern)
	}
	return g, nil
}

// MustParse is like Parse but panics on error. Use it for static tables.
func MustParse(pattern, template string) Grammar {
	g, err := Parse(pattern, template)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Grammar) Arity() int {
	return len(g.Pattern)
}

// Matches reports whether s has exactly the grammar's arity and every
// character fits its position's class.
func (g Grammar) Matches(s string) bool {
	if len(s) != len(g.Pattern) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !g.Pattern[i].accepts(s[i]) {
			return false
		}
	}
	return true
}

// Render writes s using the grammar's groups and separators. s must match.
func (g Grammar) Render(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(g.Separators))

	pos := 0
	for i, size := range g.Groups {
		if i > 0 {
			b.WriteString(g.Separators[i-1])
		}
		b.WriteString(s[pos : pos+size])
		pos += size
	}
	return b.String()
}
