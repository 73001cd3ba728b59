// Package lexicon finds canonical symptom and risk-factor tags in normalized
// intake text. Matching is negation-aware: a term occurrence inside a negated
// clause ("no chest pain", "denies fever") does not count, unless a contrast
// word after the cue restores it ("no fever but worsening cough").
//
// The heuristic deliberately favors false positives over false negatives: for
// safety-sensitive terms a missed true symptom is worse than a spurious tag.
package lexicon

import (
	"regexp"
	"strings"
)

// DefaultNegationWindow is the lookback distance, in bytes of normalized
// text, inspected before a term occurrence for a negation cue. The scope is
// additionally bounded by the last sentence break inside the window.
const DefaultNegationWindow = 40

// negation cues and contrast words are fixed; see Options for the window.
var (
	negationCues  = []string{"no", "denies", "deny", "without", "not"}
	contrastWords = []string{"but", "however", "except"}

	sentenceBreaks = ".;\n"
)

// Term is one canonical tag with its surface-form patterns. Patterns are
// regular expressions matched against lowercased, punctuation-normalized
// text.
type Term struct {
	Tag      string
	Patterns []string

	// RequiresTag names a second term that must independently match
	// (non-negated) before this tag fires. Used for compound red flags
	// where a single keyword over-triggers on contextual mentions.
	RequiresTag string

	// Helper terms support compound requirements but are not emitted as
	// tags themselves.
	Helper bool

	compiled []*regexp.Regexp
}

// Options tunes the matcher. The zero value is replaced with defaults.
type Options struct {
	// NegationWindow is the lookback length in bytes. <= 0 means
	// DefaultNegationWindow.
	NegationWindow int
}

// Matcher matches a fixed term set against text.
type Matcher struct {
	terms  []Term
	byTag  map[string]*Term
	window int
}

// New compiles the given terms. It panics on an invalid pattern: term tables
// are package-level literals, so a bad pattern is a programmer error.
func New(terms []Term, opts Options) *Matcher {
	window := opts.NegationWindow
	if window <= 0 {
		window = DefaultNegationWindow
	}

	m := &Matcher{
		terms:  make([]Term, len(terms)),
		byTag:  make(map[string]*Term, len(terms)),
		window: window,
	}
	copy(m.terms, terms)
	for i := range m.terms {
		t := &m.terms[i]
		t.compiled = make([]*regexp.Regexp, 0, len(t.Patterns))
		for _, p := range t.Patterns {
			t.compiled = append(t.compiled, regexp.MustCompile(p))
		}
		m.byTag[t.Tag] = t
	}
	return m
}

// Tags returns the canonical tags, in table order, that match the text in a
// non-negated context. Compound terms fire only when their required second
// term also matches.
func (m *Matcher) Tags(text string) []string {
	text = strings.ToLower(text)

	simple := make(map[string]bool, len(m.terms))
	for i := range m.terms {
		t := &m.terms[i]
		simple[t.Tag] = m.termMatches(t, text)
	}

	out := make([]string, 0, len(m.terms))
	for i := range m.terms {
		t := &m.terms[i]
		if t.Helper || !simple[t.Tag] {
			continue
		}
		if t.RequiresTag != "" && !simple[t.RequiresTag] {
			continue
		}
		out = append(out, t.Tag)
	}
	return out
}

// Matches reports whether the single tag matches the text non-negated,
// ignoring compound requirements.
func (m *Matcher) Matches(text, tag string) bool {
	t, ok := m.byTag[tag]
	if !ok {
		return false
	}
	return m.termMatches(t, strings.ToLower(text))
}

func (m *Matcher) termMatches(t *Term, text string) bool {
	for _, re := range t.compiled {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if !m.negated(text, loc[0]) {
				return true
			}
			// occurrence negated: keep scanning forward for a later,
			// non-negated occurrence of the same pattern
		}
	}
	return false
}

// negated reports whether the occurrence starting at pos sits inside a
// negated clause.
func (m *Matcher) negated(text string, pos int) bool {
	start := pos - m.window
	if start < 0 {
		start = 0
	}
	fragment := text[start:pos]

	// negation scope never crosses a full stop
	if cut := strings.LastIndexAny(fragment, sentenceBreaks); cut >= 0 {
		fragment = fragment[cut+1:]
	}

	cueEnd := lastCue(fragment)
	if cueEnd < 0 {
		return false
	}

	// a contrast word between the cue and the occurrence cancels the negation
	after := fragment[cueEnd:]
	for _, w := range contrastWords {
		if containsWord(after, w) {
			return false
		}
	}
	return true
}

// lastCue returns the end offset of the last negation cue in the fragment,
// or -1 when none is present.
func lastCue(fragment string) int {
	best := -1
	for _, cue := range negationCues {
		idx := lastWordIndex(fragment, cue)
		if idx < 0 {
			continue
		}
		if end := idx + len(cue); end > best {
			best = end
		}
	}
	return best
}

// lastWordIndex finds the last whole-word occurrence of w in s.
func lastWordIndex(s, w string) int {
	for from := len(s); from > 0; {
		idx := strings.LastIndex(s[:from], w)
		if idx < 0 {
			return -1
		}
		if isWordBoundary(s, idx, idx+len(w)) {
			return idx
		}
		from = idx
	}
	return -1
}

func containsWord(s, w string) bool {
	for from := 0; ; {
		idx := strings.Index(s[from:], w)
		if idx < 0 {
			return false
		}
		abs := from + idx
		if isWordBoundary(s, abs, abs+len(w)) {
			return true
		}
		from = abs + 1
	}
}

func isWordBoundary(s string, start, end int) bool {
	if start > 0 && isWordChar(s[start-1]) {
		return false
	}
	if end < len(s) && isWordChar(s[end]) {
		return false
	}
	return true
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
