// Package textnorm canonicalizes intake free text and strips prompt-injection
// control lines before any text reaches a generation backend.
package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// punctReplacer maps typographic Unicode punctuation to ASCII so fixed-string
// and regex matching behaves the same for typed and copy-pasted input.
var punctReplacer = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
)

// injection heuristics checked per line. Deliberately a small fixed set:
// broad pattern lists create more false positives than they remove risk.
var (
	roleMarkerRe     = regexp.MustCompile(`(?i)^\s*(system|developer|assistant)\s*:`)
	overridePhraseRe = regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions|directions|prompts?|rules)`)
	promptBreakRe    = regexp.MustCompile(`(?i)(end\s+of\s+(prompt|instructions)|begin\s+new\s+instructions)`)
	jsonInjectRe     = regexp.MustCompile(`^\s*[\[{].*"(role|system|instructions?)"\s*:`)
)

// Normalize maps typographic Unicode punctuation to ASCII equivalents.
// Idempotent; never fails.
func Normalize(text string) string {
	return punctReplacer.Replace(text)
}

// Sanitize normalizes text, drops lines matching the prompt-injection
// heuristics, and truncates the result to maxChars. The returned text is the
// only representation that may be handed to a text-generation backend; raw
// text stays available to the structurer and audit consumers.
//
// Empty or whitespace-only input yields "". Sanitizing already-sanitized
// text under the same maxChars is a no-op.
func Sanitize(text string, maxChars int) string {
	normalized := Normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return ""
	}

	lines := strings.Split(normalized, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if suspiciousLine(line) {
			continue
		}
		kept = append(kept, line)
	}

	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if maxChars > 0 && len(out) > maxChars {
		cut := maxChars
		// back off to a rune boundary so truncation never yields invalid UTF-8
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = strings.TrimSpace(out[:cut])
	}
	return out
}

func suspiciousLine(line string) bool {
	return roleMarkerRe.MatchString(line) ||
		overridePhraseRe.MatchString(line) ||
		promptBreakRe.MatchString(line) ||
		jsonInjectRe.MatchString(line)
}
