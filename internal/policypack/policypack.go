// Package policypack loads and matches protocol snippet packs. A pack is a
// small JSON document of policies with trigger phrases and recommended
// actions; matching is deterministic substring scoring, not retrieval.
package policypack

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/linnemanlabs/clinicaflow/internal/textnorm"
)

//go:embed pack.json
var defaultPack []byte

// Snippet is one policy entry.
type Snippet struct {
	PolicyID           string   `json:"policy_id"`
	Title              string   `json:"title"`
	Triggers           []string `json:"triggers"`
	RecommendedActions []string `json:"recommended_actions"`
	Citation           string   `json:"citation"`
}

// Pack is a parsed policy pack plus the sha256 digest of its raw bytes,
// recorded for governance and audit logs.
type Pack struct {
	Policies []Snippet
	Digest   string
}

type packDoc struct {
	Policies []Snippet `json:"policies"`
}

// Parse decodes and validates a policy pack document.
func Parse(data []byte) (*Pack, error) {
	if errs := Validate(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid policy pack: %s", strings.Join(errs, "; "))
	}
	var doc packDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode policy pack: %w", err)
	}
	sum := sha256.Sum256(data)
	return &Pack{Policies: doc.Policies, Digest: hex.EncodeToString(sum[:])}, nil
}

// Load reads and parses a policy pack file.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy pack: %w", err)
	}
	return Parse(data)
}

// Validate checks the pack structure the pipeline depends on and returns
// human-readable problems. An empty slice means the pack is usable.
func Validate(data []byte) []string {
	var doc packDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("invalid_json: %v", err)}
	}

	var errs []string
	if len(doc.Policies) == 0 {
		return []string{"policies must not be empty"}
	}

	seen := make(map[string]bool, len(doc.Policies))
	for i, p := range doc.Policies {
		prefix := fmt.Sprintf("policies[%d]", i)
		id := strings.TrimSpace(p.PolicyID)
		switch {
		case id == "":
			errs = append(errs, prefix+".policy_id: required")
		case seen[id]:
			errs = append(errs, fmt.Sprintf("%s.policy_id: duplicate %q", prefix, id))
		default:
			seen[id] = true
		}
		if strings.TrimSpace(p.Title) == "" {
			errs = append(errs, prefix+".title: required")
		}
		if strings.TrimSpace(p.Citation) == "" {
			errs = append(errs, prefix+".citation: required")
		}
		if !allNonBlank(p.Triggers) {
			errs = append(errs, prefix+".triggers: expected non-empty array of strings")
		}
		if !allNonBlank(p.RecommendedActions) {
			errs = append(errs, prefix+".recommended_actions: expected non-empty array of strings")
		}
	}
	return errs
}

func allNonBlank(items []string) bool {
	if len(items) == 0 {
		return false
	}
	for _, s := range items {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

// Match returns the policies whose trigger phrases appear in text, ordered
// by descending trigger-hit count with policy ID as the tiebreak.
func Match(policies []Snippet, text string) []Snippet {
	textL := strings.ToLower(textnorm.Normalize(text))

	type hit struct {
		score  int
		policy Snippet
	}
	var hits []hit
	for _, p := range policies {
		score := 0
		for _, trigger := range p.Triggers {
			if strings.Contains(textL, strings.ToLower(textnorm.Normalize(trigger))) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{score, p})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].policy.PolicyID < hits[j].policy.PolicyID
	})

	out := make([]Snippet, len(hits))
	for i, h := range hits {
		out[i] = h.policy
	}
	return out
}

// Source loads a pack lazily, exactly once, from Path or (when Path is
// empty) the embedded default pack. Safe for concurrent use.
type Source struct {
	Path string

	once sync.Once
	pack *Pack
	err  error
}

// Get returns the pack, loading it on first call.
func (s *Source) Get() (*Pack, error) {
	s.once.Do(func() {
		if s.Path == "" {
			s.pack, s.err = Parse(defaultPack)
			return
		}
		s.pack, s.err = Load(s.Path)
	})
	return s.pack, s.err
}
