package triage

import (
	"math"
	"strings"
)

// RulesVersion identifies the safety rule tables below. Bump whenever any
// table or threshold changes so exports and audit manifests can pin the
// exact rule set a decision came from.
const RulesVersion = "2026-06-02.v3"

// flagCategory groups red flags for the tier rules (hypoxemia co-occurring
// with a cardiopulmonary flag escalates to critical).
type flagCategory string

const (
	catCardiac     flagCategory = "cardiac"
	catRespiratory flagCategory = "respiratory"
	catNeuro       flagCategory = "neuro"
	catGI          flagCategory = "gi"
	catObstetric   flagCategory = "obstetric"
	catHemodynamic flagCategory = "hemodynamic"
	catInfection   flagCategory = "infection"
)

// symptomFlags maps each canonical symptom tag 1:1 to a clinical concern
// label. Data-only; keep auditable.
var symptomFlags = []struct {
	Tag      string
	Label    string
	Category flagCategory
}{
	{"chest pain", "Potential acute coronary syndrome", catCardiac},
	{"chest tightness", "Potential acute coronary syndrome", catCardiac},
	{"shortness of breath", "Respiratory compromise risk", catRespiratory},
	{"confusion", "Possible neurological or metabolic emergency", catNeuro},
	{"fainting", "Syncope requiring urgent evaluation", catCardiac},
	{"near-syncope", "Syncope requiring urgent evaluation", catCardiac},
	{"severe headache", "Possible intracranial pathology", catNeuro},
	{"weakness one side", "Possible stroke", catNeuro},
	{"slurred speech", "Possible stroke", catNeuro},
	{"word-finding difficulty", "Possible stroke", catNeuro},
	{"bloody stool", "Possible gastrointestinal bleed", catGI},
	{"vomiting blood", "Possible upper GI bleed", catGI},
	{"pregnancy bleeding", "Possible obstetric emergency", catObstetric},
}

// vital red-flag labels; thresholds live in vitalFlags below.
const (
	flagHypoxemia   = "Low oxygen saturation (<92%)"
	flagHypotension = "Hypotension (SBP < 90)"
	flagTachycardia = "Severe tachycardia (HR > 130)"
	flagHighFever   = "High fever (>= 39.5C)"
)

var vitalFlags = []struct {
	Label    string
	Category flagCategory
	Fires    func(v Vitals) bool
}{
	{flagHypoxemia, catRespiratory, func(v Vitals) bool { return v.SpO2 != nil && *v.SpO2 < 92 }},
	{flagHypotension, catHemodynamic, func(v Vitals) bool { return v.SystolicBP != nil && *v.SystolicBP < 90 }},
	{flagTachycardia, catHemodynamic, func(v Vitals) bool { return v.HeartRate != nil && *v.HeartRate > 130 }},
	{flagHighFever, catInfection, func(v Vitals) bool { return v.TemperatureC != nil && *v.TemperatureC >= 39.5 }},
}

var flagCategories = buildFlagCategories()

func buildFlagCategories() map[string]flagCategory {
	m := make(map[string]flagCategory, len(symptomFlags)+len(vitalFlags))
	for _, sf := range symptomFlags {
		m[sf.Label] = sf.Category
	}
	for _, vf := range vitalFlags {
		m[vf.Label] = vf.Category
	}
	return m
}

// RedFlags derives the deduplicated red-flag labels from the structured
// intake and vitals. Pure and reproducible: same inputs, same flags.
func RedFlags(structured *StructuredIntake, vitals Vitals) []string {
	tags := make(map[string]bool, len(structured.Symptoms))
	for _, s := range structured.Symptoms {
		tags[s] = true
	}

	var flags []string
	for _, sf := range symptomFlags {
		if tags[sf.Tag] {
			flags = append(flags, sf.Label)
		}
	}
	for _, vf := range vitalFlags {
		if vf.Fires(vitals) {
			flags = append(flags, vf.Label)
		}
	}
	return dedupe(flags)
}

// tierConditions are the precomputed boolean inputs to the tier rule table.
type tierConditions struct {
	hemodynamicInstability bool
	hypoxemiaCardioPulm    bool
	multipleFlags          bool
	anyFlag                bool
	vitalConcern           bool
	manyMissing            bool
}

// tierRule is one row of the precedence table. First matching rule wins and
// ties always resolve to the more severe tier; the ordering is the core
// safety contract and must not be reordered.
type tierRule struct {
	ID        string
	Cond      string
	Tier      Tier
	Severity  Severity
	Label     string
	Rationale string
}

var tierRules = []tierRule{
	{
		ID: "hemodynamic_instability", Cond: "hemodynamic_instability",
		Tier: TierCritical, Severity: SeverityCritical,
		Label:     "Hemodynamic instability",
		Rationale: "Hypotension or severe tachycardia indicates hemodynamic instability.",
	},
	{
		ID: "hypoxemia_cardiopulmonary", Cond: "hypoxemia_cardiopulmonary",
		Tier: TierCritical, Severity: SeverityCritical,
		Label:     "Hypoxemia with cardiopulmonary red flag",
		Rationale: "Low oxygen saturation together with a cardiopulmonary concern.",
	},
	{
		ID: "multiple_red_flags", Cond: "multiple_red_flags",
		Tier: TierCritical, Severity: SeverityCritical,
		Label:     "Multiple red flags",
		Rationale: "Two or more red flags present.",
	},
	{
		ID: "red_flag_present", Cond: "red_flag_present",
		Tier: TierUrgent, Severity: SeverityUrgent,
		Label:     "Red flag present",
		Rationale: "At least one red flag present.",
	},
	{
		ID: "vital_sign_concern", Cond: "vital_sign_concern",
		Tier: TierUrgent, Severity: SeverityUrgent,
		Label:     "Vital sign concern",
		Rationale: "Heart rate >= 110, temperature >= 38.5C, or SpO2 < 95 without an explicit red flag.",
	},
	{
		ID: "insufficient_intake_data", Cond: "insufficient_intake_data",
		Tier: TierUrgent, Severity: SeverityUrgent,
		Label:     "Insufficient intake data",
		Rationale: "Three or more critical intake fields are missing; triaging conservatively.",
	},
}

const routineRationale = "No red flags, vital-sign concerns, or major data gaps detected."

func evalConditions(redFlags, missingFields []string, vitals Vitals) tierConditions {
	var c tierConditions

	flagSet := make(map[string]bool, len(redFlags))
	for _, f := range redFlags {
		flagSet[f] = true
	}

	c.hemodynamicInstability = flagSet[flagHypotension] || flagSet[flagTachycardia]

	if flagSet[flagHypoxemia] {
		for _, f := range redFlags {
			switch flagCategories[f] {
			case catCardiac, catRespiratory:
				if f != flagHypoxemia {
					c.hypoxemiaCardioPulm = true
				}
			}
		}
	}

	c.multipleFlags = len(redFlags) >= 2
	c.anyFlag = len(redFlags) >= 1

	c.vitalConcern = (vitals.HeartRate != nil && *vitals.HeartRate >= 110) ||
		(vitals.TemperatureC != nil && *vitals.TemperatureC >= 38.5) ||
		(vitals.SpO2 != nil && *vitals.SpO2 < 95)

	c.manyMissing = len(missingFields) >= 3
	return c
}

func (c tierConditions) holds(cond string) bool {
	switch cond {
	case "hemodynamic_instability":
		return c.hemodynamicInstability
	case "hypoxemia_cardiopulmonary":
		return c.hypoxemiaCardioPulm
	case "multiple_red_flags":
		return c.multipleFlags
	case "red_flag_present":
		return c.anyFlag
	case "vital_sign_concern":
		return c.vitalConcern
	case "insufficient_intake_data":
		return c.manyMissing
	}
	return false
}

// RiskTier evaluates the precedence table and returns the tier with the
// matching rule's rationale.
func RiskTier(redFlags, missingFields []string, vitals Vitals) (Tier, string) {
	c := evalConditions(redFlags, missingFields, vitals)
	for _, r := range tierRules {
		if c.holds(r.Cond) {
			return r.Tier, r.Rationale
		}
	}
	return TierRoutine, routineRationale
}

// SafetyTriggers renders the same precedence table as structured triggers
// for UI and report explainability. Every rule whose condition holds is
// emitted (deduplicated by id, critical before urgent), so the trigger list
// and the tier decision always agree: the first trigger's tier is the tier.
func SafetyTriggers(redFlags, missingFields []string, vitals Vitals) []Trigger {
	c := evalConditions(redFlags, missingFields, vitals)

	var out []Trigger
	seen := make(map[string]bool, len(tierRules))
	for _, r := range tierRules {
		if !c.holds(r.Cond) || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, Trigger{
			ID:       r.ID,
			Severity: r.Severity,
			Label:    r.Label,
			Detail:   r.Rationale,
		})
	}
	return out
}

// Auxiliary score thresholds. Advisory annotations only; they never alter
// the tier decision.
const (
	shockIndexHighAt  = 0.9
	ewsRespRateHighAt = 22
	ewsSystolicLowAt  = 100
	ewsHighRiskAt     = 2
)

// RiskScores computes the advisory interpretable scores: a shock-index-like
// ratio (HR / SBP) and a small early-warning composite with its component
// booleans.
func RiskScores(structured *StructuredIntake, vitals Vitals) map[string]any {
	scores := make(map[string]any, 8)

	if vitals.HeartRate != nil && vitals.SystolicBP != nil && *vitals.SystolicBP > 0 {
		si := *vitals.HeartRate / *vitals.SystolicBP
		scores["shock_index"] = math.Round(si*100) / 100
		scores["shock_index_high"] = si >= shockIndexHighAt
	}

	respHigh := vitals.RespiratoryRate != nil && *vitals.RespiratoryRate >= ewsRespRateHighAt
	sbpLow := vitals.SystolicBP != nil && *vitals.SystolicBP <= ewsSystolicLowAt
	altered := false
	for _, s := range structured.Symptoms {
		if s == "confusion" {
			altered = true
			break
		}
	}

	ews := 0
	for _, b := range []bool{respHigh, sbpLow, altered} {
		if b {
			ews++
		}
	}
	scores["early_warning_score"] = ews
	scores["ews_resp_rate_high"] = respHigh
	scores["ews_systolic_low"] = sbpLow
	scores["ews_altered_mentation"] = altered
	scores["ews_high_risk"] = ews >= ewsHighRiskAt

	return scores
}

// Confidence constants. The estimate starts at the base and is only ever
// reduced; it is clamped to [floor, ceiling] and rounded to two decimals.
const (
	confidenceBase        = 0.86
	confidenceFloor       = 0.45
	confidenceCeiling     = 0.98
	criticalPenalty       = 0.08
	multiFlagPenalty      = 0.04
	missingFieldPenalty   = 0.05
	missingPenaltyCeiling = 0.18

	criticalReason      = "High-acuity case requires clinician confirmation"
	multiFlagReason     = "Multiple red flags increase complexity"
	missingReasonPrefix = "Missing intake fields: "
)

// Confidence estimates how much to trust the tier decision. Identical
// inputs always produce the identical value and reason ordering.
func Confidence(tier Tier, redFlags, missingFields []string) (float64, []string) {
	base := confidenceBase
	var reasons []string

	if tier == TierCritical {
		base -= criticalPenalty
		reasons = append(reasons, criticalReason)
	}
	if len(redFlags) >= 2 {
		base -= multiFlagPenalty
		reasons = append(reasons, multiFlagReason)
	}
	if len(missingFields) > 0 {
		base -= math.Min(missingPenaltyCeiling, missingFieldPenalty*float64(len(missingFields)))
		reasons = append(reasons, missingReasonPrefix+strings.Join(missingFields, ", "))
	}

	conf := math.Max(confidenceFloor, math.Min(base, confidenceCeiling))
	return math.Round(conf*100) / 100, reasons
}

// FlagCategory exposes the category of a red-flag label; unknown labels
// return the empty category.
func FlagCategory(label string) string {
	return string(flagCategories[label])
}
