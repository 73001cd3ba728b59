// Package privacy provides best-effort PHI detection and the guard deciding
// whether external inference backends may see an intake at all.
//
// The patterns are heuristics, not a compliance control: the goal is to keep
// obvious identifiers from leaving the process by default.
package privacy

import "regexp"

type phiPattern struct {
	name string
	re   *regexp.Regexp
}

// identifier-shaped patterns; category labels only are ever returned.
var phiPatterns = []phiPattern{
	{"email", regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)},
	{"phone", regexp.MustCompile(`(?:\+?1[\s.-]?)?(?:\(\d{3}\)|\d{3})[\s.-]\d{3}[\s.-]?\d{4}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"mrn", regexp.MustCompile(`(?i)\b(?:mrn|medical\s*record\s*(?:number|no\.?))\b\s*[:#-]?\s*\d{5,}\b`)},
	{"dob", regexp.MustCompile(`(?i)\b(?:dob|date\s*of\s*birth)\b\s*[:#-]?\s*(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)},
}

// DetectHits returns the PHI category labels found in text, deduplicated, in
// pattern-table order. It never returns the matched substrings.
func DetectHits(text string) []string {
	if text == "" {
		return nil
	}
	var hits []string
	for _, p := range phiPatterns {
		if p.re.MatchString(text) {
			hits = append(hits, p.name)
		}
	}
	return hits
}

// Guard decides whether external inference calls are permitted for an
// intake. When disabled, PHI hits are still reported but never block calls.
type Guard struct {
	Enabled bool
}

// Allow reports whether external backends may be called given the detected
// PHI categories.
func (g Guard) Allow(phiHits []string) bool {
	if len(phiHits) == 0 {
		return true
	}
	return !g.Enabled
}
