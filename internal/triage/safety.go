package triage

import "strings"

// MaxRecommendedActions caps the merged action list.
const MaxRecommendedActions = 8

// Escalation and disposition actions come first for any escalating tier.
var tierActions = map[Tier][]string{
	TierCritical: {
		"Escalate immediately to emergency physician",
		"Initiate continuous cardiac and SpO2 monitoring",
	},
	TierUrgent: {
		"Urgent clinician review",
	},
}

// flagActions keys deterministic nudges off substrings of red-flag labels
// so a new flag wording in a matching family still gets its action.
var flagActions = []struct {
	LabelContains string
	Action        string
}{
	{"coronary", "Obtain 12-lead ECG within 10 minutes"},
	{"Respiratory compromise", "Apply supplemental oxygen per protocol and reassess SpO2"},
	{"stroke", "Perform rapid stroke screen and record last-known-well time"},
	{"intracranial", "Arrange urgent head imaging per neuro protocol"},
	{"GI bleed", "Establish IV access and send CBC with type and screen"},
	{"gastrointestinal bleed", "Establish IV access and send CBC with type and screen"},
	{"obstetric", "Arrange urgent obstetric evaluation"},
	{"Hypotension", "Establish large-bore IV access and prepare fluid resuscitation"},
	{"High fever", "Begin sepsis screen and obtain blood cultures per protocol"},
}

// vitalActions fire off raw vitals even when symptom parsing missed the
// corresponding flag; the thresholds match the red-flag thresholds.
var vitalActions = []struct {
	Fires  func(v Vitals) bool
	Action string
}{
	{func(v Vitals) bool { return v.SpO2 != nil && *v.SpO2 < 92 }, "Apply supplemental oxygen per protocol and reassess SpO2"},
	{func(v Vitals) bool { return v.SystolicBP != nil && *v.SystolicBP < 90 }, "Establish large-bore IV access and prepare fluid resuscitation"},
	{func(v Vitals) bool { return v.HeartRate != nil && *v.HeartRate > 130 }, "Obtain 12-lead ECG within 10 minutes"},
	{func(v Vitals) bool { return v.TemperatureC != nil && *v.TemperatureC >= 39.5 }, "Begin sepsis screen and obtain blood cultures per protocol"},
}

// SynthesizeActions derives the deterministic safety actions for a tier,
// red-flag set, and vitals, in precedence order: disposition first, then
// flag-specific nudges, then vitals-only prompts. No duplicates.
func SynthesizeActions(tier Tier, redFlags []string, vitals Vitals) []string {
	actions := make([]string, 0, 8)
	actions = append(actions, tierActions[tier]...)

	for _, fa := range flagActions {
		for _, flag := range redFlags {
			if strings.Contains(flag, fa.LabelContains) {
				actions = append(actions, fa.Action)
				break
			}
		}
	}

	for _, va := range vitalActions {
		if va.Fires(vitals) {
			actions = append(actions, va.Action)
		}
	}

	return dedupe(actions)
}

// MergeActions places safety-synthesized actions before the caller-supplied
// list, deduplicates by exact string preserving first-seen order, and
// truncates to MaxRecommendedActions. Safety actions always survive the cap.
func MergeActions(safetyActions, callerActions []string) []string {
	merged := dedupe(append(append([]string{}, safetyActions...), callerActions...))
	if len(merged) > MaxRecommendedActions {
		merged = merged[:MaxRecommendedActions]
	}
	return merged
}
