package bench

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

// VignetteSummary aggregates one vignette benchmark run. Rates are
// percentages rounded to one decimal.
type VignetteSummary struct {
	NCases                  int     `json:"n_cases"`
	NGoldUrgentCritical     int     `json:"n_gold_urgent_critical"`
	RedFlagRecallBaseline   float64 `json:"red_flag_recall_baseline"`
	RedFlagRecallPipeline   float64 `json:"red_flag_recall_clinicaflow"`
	UnderTriageRateBaseline float64 `json:"under_triage_rate_baseline"`
	UnderTriageRatePipeline float64 `json:"under_triage_rate_clinicaflow"`
	OverTriageRateBaseline  float64 `json:"over_triage_rate_baseline"`
	OverTriageRatePipeline  float64 `json:"over_triage_rate_clinicaflow"`
}

// MarkdownTable renders the summary for write-ups and PR comments.
func (s VignetteSummary) MarkdownTable() string {
	pct := func(v float64) string { return fmt.Sprintf("%.1f%%", v) }
	lines := []string{
		"| Metric | Baseline | ClinicaFlow |",
		"|---|---:|---:|",
		fmt.Sprintf("| Red-flag recall (category-level) | `%s` | `%s` |", pct(s.RedFlagRecallBaseline), pct(s.RedFlagRecallPipeline)),
		fmt.Sprintf("| Under-triage rate (gold urgent/critical -> predicted routine) | `%s` | `%s` |", pct(s.UnderTriageRateBaseline), pct(s.UnderTriageRatePipeline)),
		fmt.Sprintf("| Over-triage rate (gold routine -> predicted urgent/critical) | `%s` | `%s` |", pct(s.OverTriageRateBaseline), pct(s.OverTriageRatePipeline)),
	}
	return strings.Join(lines, "\n")
}

// CasePrediction is one predictor's output for one case.
type CasePrediction struct {
	RiskTier           string   `json:"risk_tier"`
	Categories         []string `json:"categories"`
	RedFlags           []string `json:"red_flags,omitempty"`
	EscalationRequired bool     `json:"escalation_required,omitempty"`
	Confidence         float64  `json:"confidence,omitempty"`
}

// CaseResult pairs the gold labels with both predictions for one vignette.
type CaseResult struct {
	ID       string         `json:"id"`
	Gold     VignetteLabels `json:"gold"`
	Baseline CasePrediction `json:"baseline"`
	Pipeline CasePrediction `json:"clinicaflow"`

	triggers []triage.Trigger
}

// RunVignettes scores the pipeline and the keyword baseline on a vignette
// set. The pipeline must be deterministic (no external collaborators) for
// the run to be reproducible.
func RunVignettes(ctx context.Context, p *triage.Pipeline, rows []Vignette) (VignetteSummary, []CaseResult) {
	var (
		goldUC, baseUnder, pipeUnder          int
		goldRoutine, baseOver, pipeOver       int
		goldFlagged, baseFlagHit, pipeFlagHit int
	)

	results := make([]CaseResult, 0, len(rows))
	for _, row := range rows {
		intake := row.Input
		goldTier := strings.ToLower(strings.TrimSpace(row.Labels.GoldRiskTier))
		goldCats := row.Labels.GoldRedFlagCategories

		baseTier, baseCats := baselineVignette(&intake)

		res := p.Run(ctx, &intake, "")
		pipeCats := CategoriesFromFlags(res.RedFlags)

		if len(goldCats) > 0 {
			goldFlagged++
			if intersects(baseCats, goldCats) {
				baseFlagHit++
			}
			if intersects(pipeCats, goldCats) {
				pipeFlagHit++
			}
		}
		switch goldTier {
		case "urgent", "critical":
			goldUC++
			if baseTier == "routine" {
				baseUnder++
			}
			if res.RiskTier == triage.TierRoutine {
				pipeUnder++
			}
		case "routine":
			goldRoutine++
			if baseTier != "routine" {
				baseOver++
			}
			if res.RiskTier != triage.TierRoutine {
				pipeOver++
			}
		}

		results = append(results, CaseResult{
			ID:       row.ID,
			Gold:     row.Labels,
			Baseline: CasePrediction{RiskTier: baseTier, Categories: baseCats},
			Pipeline: CasePrediction{
				RiskTier:           string(res.RiskTier),
				Categories:         pipeCats,
				RedFlags:           res.RedFlags,
				EscalationRequired: res.EscalationRequired,
				Confidence:         res.Confidence,
			},
			triggers: res.SafetyTriggers,
		})
	}

	summary := VignetteSummary{
		NCases:                  len(rows),
		NGoldUrgentCritical:     goldUC,
		RedFlagRecallBaseline:   safePct(baseFlagHit, goldFlagged),
		RedFlagRecallPipeline:   safePct(pipeFlagHit, goldFlagged),
		UnderTriageRateBaseline: safePct(baseUnder, goldUC),
		UnderTriageRatePipeline: safePct(pipeUnder, goldUC),
		OverTriageRateBaseline:  safePct(baseOver, goldRoutine),
		OverTriageRatePipeline:  safePct(pipeOver, goldRoutine),
	}
	return summary, results
}

// baselineVignette is a vitals-first keyword predictor used as the
// comparison point. Deliberately limited: no synonyms, no negation.
func baselineVignette(intake *triage.PatientIntake) (string, []string) {
	text := strings.ToLower(intake.ChiefComplaint + " " + intake.History)
	v := intake.Vitals

	set := make(map[string]bool)
	if strings.Contains(text, "chest pain") || strings.Contains(text, "shortness of breath") {
		set["cardiopulmonary"] = true
	}
	if strings.Contains(text, "slurred speech") || strings.Contains(text, "confusion") {
		set["neurologic"] = true
	}
	if strings.Contains(text, "vomiting blood") {
		set["gi_bleed"] = true
	}
	if strings.Contains(text, "fainting") {
		set["syncope"] = true
	}

	if v.SpO2 != nil && *v.SpO2 < 92 {
		set["hypoxemia"] = true
	}
	if v.SystolicBP != nil && *v.SystolicBP < 90 {
		set["hemodynamic"] = true
	}
	if v.HeartRate != nil && *v.HeartRate > 130 {
		set["hemodynamic"] = true
	}
	if v.TemperatureC != nil && *v.TemperatureC >= 39.5 {
		set["sepsis"] = true
	}

	vitalConcern := (v.HeartRate != nil && *v.HeartRate >= 110) ||
		(v.TemperatureC != nil && *v.TemperatureC >= 38.5) ||
		(v.SpO2 != nil && *v.SpO2 < 95)

	cats := make([]string, 0, len(set))
	for c := range set {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	switch {
	case set["hemodynamic"], set["hypoxemia"] && set["cardiopulmonary"], len(set) >= 2:
		return "critical", cats
	case len(set) > 0 || vitalConcern:
		return "urgent", cats
	default:
		return "routine", cats
	}
}

// Gate is the governance go/no-go decision over a vignette summary: the
// pipeline must never under-triage and must clear the recall floor.
type Gate struct {
	OK               bool    `json:"ok"`
	UnderTriageRate  float64 `json:"under_triage_rate"`
	OverTriageRate   float64 `json:"over_triage_rate"`
	RedFlagRecall    float64 `json:"red_flag_recall"`
	MinRedFlagRecall float64 `json:"min_red_flag_recall"`
}

// ComputeGate evaluates the governance gate against a summary.
func ComputeGate(s VignetteSummary, minRedFlagRecall float64) Gate {
	return Gate{
		OK:               s.UnderTriageRatePipeline == 0 && s.RedFlagRecallPipeline >= minRedFlagRecall,
		UnderTriageRate:  s.UnderTriageRatePipeline,
		OverTriageRate:   s.OverTriageRatePipeline,
		RedFlagRecall:    s.RedFlagRecallPipeline,
		MinRedFlagRecall: minRedFlagRecall,
	}
}

// TriggerCoverage counts how often one safety trigger fired across a run,
// with sample case IDs for reviewers.
type TriggerCoverage struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Severity    triage.Severity `json:"severity"`
	NCases      int             `json:"n_cases"`
	SampleCases []string        `json:"sample_cases"`
}

const maxTriggerSamples = 5

// ComputeTriggerCoverage aggregates safety-trigger firings over per-case
// results, most frequent first.
func ComputeTriggerCoverage(results []CaseResult) []TriggerCoverage {
	byID := make(map[string]*TriggerCoverage)
	for _, r := range results {
		seen := make(map[string]bool, len(r.triggers))
		for _, tr := range r.triggers {
			if seen[tr.ID] {
				continue
			}
			seen[tr.ID] = true
			cov, ok := byID[tr.ID]
			if !ok {
				cov = &TriggerCoverage{ID: tr.ID, Label: tr.Label, Severity: tr.Severity}
				byID[tr.ID] = cov
			}
			cov.NCases++
			if len(cov.SampleCases) < maxTriggerSamples {
				cov.SampleCases = append(cov.SampleCases, r.ID)
			}
		}
	}

	out := make([]TriggerCoverage, 0, len(byID))
	for _, cov := range byID {
		out = append(out, *cov)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NCases != out[j].NCases {
			return out[i].NCases > out[j].NCases
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GovernanceReport is the full benchmark artifact consumed by release
// reviews: the gate decision plus the evidence behind it.
type GovernanceReport struct {
	GeneratedAt     time.Time         `json:"generated_at"`
	PipelineVersion string            `json:"pipeline_version"`
	RulesVersion    string            `json:"rules_version"`
	Gate            Gate              `json:"gate"`
	Summary         VignetteSummary   `json:"summary"`
	TriggerCoverage []TriggerCoverage `json:"trigger_coverage"`
}

// BuildGovernanceReport assembles the report for one vignette run.
func BuildGovernanceReport(summary VignetteSummary, results []CaseResult, minRedFlagRecall float64) GovernanceReport {
	return GovernanceReport{
		GeneratedAt:     time.Now().UTC().Truncate(time.Second),
		PipelineVersion: triage.PipelineVersion,
		RulesVersion:    triage.RulesVersion,
		Gate:            ComputeGate(summary, minRedFlagRecall),
		Summary:         summary,
		TriggerCoverage: ComputeTriggerCoverage(results),
	}
}

func safePct(n, d int) float64 {
	if d < 1 {
		d = 1
	}
	return round1(100 * float64(n) / float64(d))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[strings.TrimSpace(x)] = true
	}
	for _, y := range b {
		if set[strings.TrimSpace(y)] {
			return true
		}
	}
	return false
}
