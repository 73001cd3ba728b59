// Package bench runs the deterministic triage benchmarks: a labeled
// clinical-vignette regression set and a seeded synthetic cohort. Both
// score the pipeline against a vitals-first keyword baseline so safety
// regressions show up as metric deltas, not anecdotes.
package bench

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

//go:embed vignettes.jsonl
var defaultVignettes []byte

// Vignette is one labeled benchmark case: an intake plus the gold triage
// labels a clinician reviewer assigned to it.
type Vignette struct {
	ID        string               `json:"id"`
	Input     triage.PatientIntake `json:"input"`
	Labels    VignetteLabels       `json:"labels"`
	Rationale string               `json:"rationale"`
}

// VignetteLabels are the gold annotations scored against.
type VignetteLabels struct {
	GoldRiskTier           string   `json:"gold_risk_tier"`
	GoldRedFlagCategories  []string `json:"gold_red_flag_categories"`
	GoldEscalationRequired bool     `json:"gold_escalation_required"`
}

var allowedTiers = map[string]bool{
	"routine":  true,
	"urgent":   true,
	"critical": true,
}

// allowedCategories is the coarse clinical grouping vocabulary used for
// red-flag recall scoring.
var allowedCategories = map[string]bool{
	"cardiopulmonary": true,
	"neurologic":      true,
	"syncope":         true,
	"gi_bleed":        true,
	"obstetric":       true,
	"hypoxemia":       true,
	"hemodynamic":     true,
	"sepsis":          true,
}

// flagLabelCategories maps each red-flag label the rule engine can emit to
// its scoring category. Data-only; extend when the flag tables grow.
var flagLabelCategories = map[string]string{
	"Potential acute coronary syndrome":            "cardiopulmonary",
	"Respiratory compromise risk":                  "cardiopulmonary",
	"Possible stroke":                              "neurologic",
	"Possible neurological or metabolic emergency": "neurologic",
	"Possible intracranial pathology":              "neurologic",
	"Possible gastrointestinal bleed":              "gi_bleed",
	"Possible upper GI bleed":                      "gi_bleed",
	"Possible obstetric emergency":                 "obstetric",
	"Syncope requiring urgent evaluation":          "syncope",
	"Low oxygen saturation (<92%)":                 "hypoxemia",
	"Hypotension (SBP < 90)":                       "hemodynamic",
	"Severe tachycardia (HR > 130)":                "hemodynamic",
	"High fever (>= 39.5C)":                        "sepsis",
}

// CategoriesFromFlags folds red-flag labels into their sorted, deduplicated
// scoring categories. Unknown labels are ignored.
func CategoriesFromFlags(flags []string) []string {
	set := make(map[string]bool, len(flags))
	for _, f := range flags {
		if c, ok := flagLabelCategories[f]; ok {
			set[c] = true
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DefaultVignettes parses the embedded regression set.
func DefaultVignettes() ([]Vignette, error) {
	return ParseVignettes(defaultVignettes)
}

// LoadVignettes reads and parses a vignette JSONL file.
func LoadVignettes(path string) ([]Vignette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vignettes: %w", err)
	}
	return ParseVignettes(data)
}

// ParseVignettes decodes and validates a vignette JSONL document.
func ParseVignettes(data []byte) ([]Vignette, error) {
	if errs := ValidateVignettes(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid vignettes: %s", strings.Join(errs, "; "))
	}

	var rows []Vignette
	for _, line := range strings.Split(string(data), "\n") {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}
		var v Vignette
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode vignette: %w", err)
		}
		rows = append(rows, v)
	}
	return rows, nil
}

// ValidateVignettes checks the JSONL structure the benchmark depends on and
// returns human-readable problems. An empty slice means the set is usable.
func ValidateVignettes(data []byte) []string {
	var errs []string
	seen := make(map[string]bool)

	for i, line := range strings.Split(string(data), "\n") {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}
		prefix := fmt.Sprintf("line %d", i+1)

		var v Vignette
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid_json: %v", prefix, err))
			continue
		}

		id := strings.TrimSpace(v.ID)
		switch {
		case id == "":
			errs = append(errs, prefix+": id: required")
		case seen[id]:
			errs = append(errs, fmt.Sprintf("%s: id: duplicate %q", prefix, id))
		default:
			seen[id] = true
		}

		if strings.TrimSpace(v.Input.ChiefComplaint) == "" {
			errs = append(errs, prefix+": input.chief_complaint: required")
		}

		tier := strings.ToLower(strings.TrimSpace(v.Labels.GoldRiskTier))
		if !allowedTiers[tier] {
			errs = append(errs, fmt.Sprintf("%s: labels.gold_risk_tier: invalid %q", prefix, v.Labels.GoldRiskTier))
		}
		for _, c := range v.Labels.GoldRedFlagCategories {
			if !allowedCategories[strings.TrimSpace(c)] {
				errs = append(errs, fmt.Sprintf("%s: labels.gold_red_flag_categories: unknown category %q", prefix, c))
			}
		}

		if strings.TrimSpace(v.Rationale) == "" {
			errs = append(errs, prefix+": rationale: required")
		}
	}
	return errs
}
