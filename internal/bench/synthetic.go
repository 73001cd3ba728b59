package bench

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

// symptomTemplates seed the synthetic chief complaints. The tail entries
// are harder synonym phrasings that strict keyword lexicons miss.
var symptomTemplates = []string{
	"mild cough",
	"fever",
	"headache",
	"dizziness",
	"nausea",
	"abdominal pain",
	"chest pain",
	"shortness of breath",
	"confusion",
	"fainting",
	"slurred speech",
	"weakness one side",
	"chest tightness",
	"can't catch breath",
	"near-syncope",
	"word-finding difficulty",
}

var syntheticRiskFactors = []string{
	"diabetes",
	"hypertension",
	"asthma",
	"ckd",
	"cancer",
	"pregnancy",
}

// truthSymptomMap assigns the gold red-flag label each symptom phrase
// implies, synonym spellings included.
var truthSymptomMap = map[string]string{
	"chest pain":              "Potential acute coronary syndrome",
	"chest tightness":         "Potential acute coronary syndrome",
	"shortness of breath":     "Respiratory compromise risk",
	"can't catch breath":      "Respiratory compromise risk",
	"confusion":               "Possible neurological or metabolic emergency",
	"fainting":                "Syncope requiring urgent evaluation",
	"near-syncope":            "Syncope requiring urgent evaluation",
	"slurred speech":          "Possible stroke",
	"word-finding difficulty": "Possible stroke",
	"weakness one side":       "Possible stroke",
}

// syntheticCase is one generated intake with concrete vitals, kept
// separately from PatientIntake so the truth labelers never see nils.
type syntheticCase struct {
	ChiefComplaint string
	History        string
	HeartRate      float64
	SystolicBP     float64
	TemperatureC   float64
	SpO2           float64
}

func (c syntheticCase) intake() *triage.PatientIntake {
	return &triage.PatientIntake{
		ChiefComplaint: c.ChiefComplaint,
		History:        c.History,
		Vitals: triage.Vitals{
			HeartRate:    triage.Float(c.HeartRate),
			SystolicBP:   triage.Float(c.SystolicBP),
			TemperatureC: triage.Float(c.TemperatureC),
			SpO2:         triage.Float(c.SpO2),
		},
	}
}

func synthCase(rng *rand.Rand) syntheticCase {
	nSymptoms := pick(rng, 1, 2, 2, 3)
	chosen := sample(rng, symptomTemplates, nSymptoms)

	factors := sample(rng, syntheticRiskFactors, pick(rng, 0, 1, 1, 2))
	history := "history of none"
	if len(factors) > 0 {
		history = "history of " + strings.Join(factors, ", ")
	}

	c := syntheticCase{
		ChiefComplaint: strings.Join(chosen, ", "),
		History:        history,
		HeartRate:      clamp(math.Floor(rng.NormFloat64()*20+94), 48, 165),
		SystolicBP:     clamp(math.Floor(rng.NormFloat64()*20+117), 72, 175),
		TemperatureC:   math.Round(clamp(rng.NormFloat64()*1.0+37.5, 35.6, 40.5)*10) / 10,
		SpO2:           clamp(math.Floor(rng.NormFloat64()*3+96), 84, 100),
	}

	// inject abnormal vitals at fixed rates so every tier is exercised
	if rng.Float64() < 0.10 {
		c.SpO2 = float64(86 + rng.Intn(6))
	}
	if rng.Float64() < 0.07 {
		c.SystolicBP = float64(78 + rng.Intn(12))
	}
	if rng.Float64() < 0.09 {
		c.HeartRate = float64(132 + rng.Intn(21))
	}
	return c
}

func trueRedFlags(c syntheticCase) []string {
	text := strings.ToLower(c.ChiefComplaint + " " + c.History)
	set := make(map[string]bool)
	for phrase, label := range truthSymptomMap {
		if strings.Contains(text, phrase) {
			set[label] = true
		}
	}
	if c.SpO2 < 92 {
		set["Low oxygen saturation (<92%)"] = true
	}
	if c.SystolicBP < 90 {
		set["Hypotension (SBP < 90)"] = true
	}
	if c.HeartRate > 130 {
		set["Severe tachycardia (HR > 130)"] = true
	}
	if c.TemperatureC >= 39.5 {
		set["High fever (>= 39.5C)"] = true
	}

	flags := make([]string, 0, len(set))
	for f := range set {
		flags = append(flags, f)
	}
	return flags
}

func trueRiskTier(c syntheticCase) string {
	flags := trueRedFlags(c)
	vitalConcern := c.HeartRate >= 110 || c.TemperatureC >= 38.5 || c.SpO2 < 95

	switch {
	case len(flags) >= 2:
		return "critical"
	case len(flags) >= 1 || vitalConcern:
		return "urgent"
	default:
		return "routine"
	}
}

// syntheticBaseline mimics a plausible non-agentic triage form: strict
// keywords plus slightly lax vitals thresholds.
type syntheticBaselineOut struct {
	RiskTier       string
	RedFlags       []string
	Actions        []string
	PatientSummary string
	Differential   []string
}

func syntheticBaseline(c syntheticCase) syntheticBaselineOut {
	text := strings.ToLower(c.ChiefComplaint)

	var flags []string
	if strings.Contains(text, "chest pain") || strings.Contains(text, "shortness of breath") {
		flags = append(flags, "symptom high risk")
	}
	if c.SpO2 < 91 {
		flags = append(flags, "hypoxemia")
	}
	if c.SystolicBP < 88 {
		flags = append(flags, "hypotension")
	}
	if c.HeartRate > 138 {
		flags = append(flags, "tachycardia")
	}

	var tier string
	switch {
	case len(flags) >= 2:
		tier = "critical"
	case len(flags) > 0 || c.HeartRate >= 112 || c.TemperatureC >= 38.7 || c.SpO2 < 95:
		tier = "urgent"
	default:
		tier = "routine"
	}

	actions := []string{"Observe"}
	if tier != "routine" {
		actions = []string{"Recheck vitals", "Escalate if worsens"}
	}
	return syntheticBaselineOut{RiskTier: tier, RedFlags: flags, Actions: actions}
}

// SyntheticSummary aggregates one synthetic cohort run.
type SyntheticSummary struct {
	NCases                      int     `json:"n_cases"`
	RedFlagRecallBaseline       float64 `json:"red_flag_recall_baseline"`
	RedFlagRecallPipeline       float64 `json:"red_flag_recall_clinicaflow"`
	UnsafeRateBaseline          float64 `json:"unsafe_rate_baseline"`
	UnsafeRatePipeline          float64 `json:"unsafe_rate_clinicaflow"`
	WriteupTimeMinBaseline      float64 `json:"median_writeup_time_min_baseline"`
	WriteupTimeMinPipeline      float64 `json:"median_writeup_time_min_clinicaflow"`
	HandoffCompletenessBaseline float64 `json:"handoff_completeness_baseline"`
	HandoffCompletenessPipeline float64 `json:"handoff_completeness_clinicaflow"`
	UsefulnessProxyBaseline     float64 `json:"usefulness_baseline"`
	UsefulnessProxyPipeline     float64 `json:"usefulness_clinicaflow"`
}

// MarkdownTable renders the summary with baseline deltas.
func (s SyntheticSummary) MarkdownTable() string {
	pct := func(v float64) string { return fmt.Sprintf("%.1f%%", v) }
	minutes := func(v float64) string { return fmt.Sprintf("%.2f min", v) }
	score := func(v float64) string { return fmt.Sprintf("%.2f/5", v) }

	deltaTimePct := 100 * (s.WriteupTimeMinPipeline - s.WriteupTimeMinBaseline) / s.WriteupTimeMinBaseline

	lines := []string{
		"| Metric | Baseline | ClinicaFlow | Delta |",
		"|---|---:|---:|---:|",
		fmt.Sprintf("| Red-flag recall | `%s` | `%s` | `%+.1f pp` |",
			pct(s.RedFlagRecallBaseline), pct(s.RedFlagRecallPipeline), s.RedFlagRecallPipeline-s.RedFlagRecallBaseline),
		fmt.Sprintf("| Unsafe recommendation rate | `%s` | `%s` | `%+.1f pp` |",
			pct(s.UnsafeRateBaseline), pct(s.UnsafeRatePipeline), s.UnsafeRatePipeline-s.UnsafeRateBaseline),
		fmt.Sprintf("| Median triage write-up time (proxy) | `%s` | `%s` | `%+.1f%%` |",
			minutes(s.WriteupTimeMinBaseline), minutes(s.WriteupTimeMinPipeline), deltaTimePct),
		fmt.Sprintf("| Handoff completeness (0-5 proxy) | `%s` | `%s` | `%+.2f` |",
			score(s.HandoffCompletenessBaseline), score(s.HandoffCompletenessPipeline), s.HandoffCompletenessPipeline-s.HandoffCompletenessBaseline),
		fmt.Sprintf("| Clinician usefulness (0-5 proxy) | `%s` | `%s` | `%+.2f` |",
			score(s.UsefulnessProxyBaseline), score(s.UsefulnessProxyPipeline), s.UsefulnessProxyPipeline-s.UsefulnessProxyBaseline),
	}
	return strings.Join(lines, "\n")
}

// RunSynthetic generates a seeded cohort and scores both predictors on it.
// Identical seed and n always yield an identical summary.
func RunSynthetic(ctx context.Context, p *triage.Pipeline, seed int64, n int) SyntheticSummary {
	rng := rand.New(rand.NewSource(seed))

	var (
		trueFlagged, baseHit, pipeHit int
		baseUnsafe, pipeUnsafe        int
	)
	baseCompleteness := make([]float64, 0, n)
	pipeCompleteness := make([]float64, 0, n)
	baseUsefulness := make([]float64, 0, n)
	pipeUsefulness := make([]float64, 0, n)

	for i := 0; i < n; i++ {
		c := synthCase(rng)
		goldFlags := trueRedFlags(c)
		goldTier := trueRiskTier(c)

		base := syntheticBaseline(c)
		res := p.Run(ctx, c.intake(), "")

		if len(goldFlags) > 0 {
			trueFlagged++
			if len(base.RedFlags) > 0 {
				baseHit++
			}
			if len(res.RedFlags) > 0 {
				pipeHit++
			}
		}

		goldEscalates := goldTier == "urgent" || goldTier == "critical"
		bUnsafe := goldEscalates && base.RiskTier == "routine"
		pUnsafe := goldEscalates && res.RiskTier == triage.TierRoutine
		if bUnsafe {
			baseUnsafe++
		}
		if pUnsafe {
			pipeUnsafe++
		}

		bScore := completenessScore(base.RiskTier, base.RedFlags, base.Differential, base.Actions, base.PatientSummary)
		pScore := completenessScore(string(res.RiskTier), res.RedFlags, res.DifferentialConsiderations, res.RecommendedNextActions, res.PatientSummary)

		baseCompleteness = append(baseCompleteness, float64(bScore))
		pipeCompleteness = append(pipeCompleteness, float64(pScore))
		baseUsefulness = append(baseUsefulness, usefulnessProxy(bScore, bUnsafe))
		pipeUsefulness = append(pipeUsefulness, usefulnessProxy(pScore, pUnsafe))
	}

	handoffBase := mean(baseCompleteness)
	handoffPipe := mean(pipeCompleteness)

	// completeness proxies documentation time: a fuller handoff leaves the
	// clinician less to assemble by hand
	timeBase := 5.2 - 0.32*(handoffBase-2.0)
	timePipe := 5.2 - 0.32*(handoffPipe-2.0)

	return SyntheticSummary{
		NCases:                      n,
		RedFlagRecallBaseline:       safePct(baseHit, trueFlagged),
		RedFlagRecallPipeline:       safePct(pipeHit, trueFlagged),
		UnsafeRateBaseline:          safePct(baseUnsafe, n),
		UnsafeRatePipeline:          safePct(pipeUnsafe, n),
		WriteupTimeMinBaseline:      round2(timeBase),
		WriteupTimeMinPipeline:      round2(timePipe),
		HandoffCompletenessBaseline: round2(handoffBase),
		HandoffCompletenessPipeline: round2(handoffPipe),
		UsefulnessProxyBaseline:     round2(mean(baseUsefulness)),
		UsefulnessProxyPipeline:     round2(mean(pipeUsefulness)),
	}
}

// completenessScore counts the handoff sections a predictor filled in.
func completenessScore(tier string, flags, differential, actions []string, patientSummary string) int {
	score := 0
	if tier != "" {
		score++
	}
	if len(flags) > 0 {
		score++
	}
	if len(differential) > 0 {
		score++
	}
	if len(actions) > 0 {
		score++
	}
	if patientSummary != "" {
		score++
	}
	return score
}

// usefulnessProxy maps completeness and safety onto a 1-5 reviewer score.
func usefulnessProxy(completeness int, unsafe bool) float64 {
	base := 1.8 + 0.6*float64(completeness)
	if unsafe {
		base -= 0.9
	}
	return math.Max(1.0, math.Min(5.0, round2(base)))
}

func pick(rng *rand.Rand, choices ...int) int {
	return choices[rng.Intn(len(choices))]
}

func sample[T any](rng *rand.Rand, items []T, n int) []T {
	idx := rng.Perm(len(items))
	out := make([]T, 0, n)
	for _, i := range idx[:n] {
		out = append(out, items[i])
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
