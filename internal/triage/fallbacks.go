package triage

import (
	"fmt"
	"strings"
)

// BackendDeterministic marks stage output produced without an external
// collaborator.
const BackendDeterministic = "deterministic"

// fallbackStructured is the structuring stage's fail-safe output: nothing
// extracted, everything flagged missing, and an explicit warning so the
// degraded extraction is visible downstream.
func fallbackStructured(intake *PatientIntake) *StructuredIntake {
	return &StructuredIntake{
		Symptoms:            []string{UnspecifiedSymptoms},
		RiskFactors:         []string{},
		MissingFields:       missingFields(intake),
		NormalizedSummary:   "",
		DataQualityWarnings: []string{"Intake structuring failed; extraction degraded"},
	}
}

// differentialRules is the deterministic symptom-co-occurrence table used
// when no reasoning backend is available. Data-only.
var differentialRules = []struct {
	Needs []string
	Adds  []string
}{
	{[]string{"chest pain"}, []string{"Acute coronary syndrome", "Pulmonary embolism", "GERD"}},
	{[]string{"shortness of breath"}, []string{"Pneumonia", "Asthma/COPD exacerbation", "Heart failure"}},
	{[]string{"fever", "cough"}, []string{"Community-acquired pneumonia", "Viral respiratory infection"}},
	{[]string{"severe headache"}, []string{"Migraine", "Subarachnoid hemorrhage (rule out)"}},
	{[]string{"slurred speech"}, []string{"Transient ischemic attack", "Stroke (rule out)"}},
}

var baselineDifferential = []string{"Viral syndrome", "Medication side effect", "Dehydration"}

const deterministicRationale = "Differentials are prioritized using symptom pattern plus available vitals. " +
	"Final diagnosis is not made by this system; clinician validation is required."

// deterministicReasoning derives a differential from symptom co-occurrence.
// Also the reasoning stage's fail-safe.
func deterministicReasoning(structured *StructuredIntake) *ReasoningOutput {
	tags := make(map[string]bool, len(structured.Symptoms))
	for _, s := range structured.Symptoms {
		tags[s] = true
	}

	var differential []string
	for _, rule := range differentialRules {
		all := true
		for _, need := range rule.Needs {
			if !tags[need] {
				all = false
				break
			}
		}
		if all {
			differential = append(differential, rule.Adds...)
		}
	}
	if len(differential) == 0 {
		differential = append(differential, baselineDifferential...)
	}

	return &ReasoningOutput{
		DifferentialConsiderations: capList(dedupe(differential), 5),
		ReasoningRationale:         deterministicRationale,
		UsesMultimodalContext:      structured.NormalizedSummary != "",
		Backend:                    BackendDeterministic,
	}
}

// basePolicyActions is the minimal action list substituted when the
// evidence/policy collaborator is unavailable or fails.
var basePolicyActions = []string{
	"Repeat full set of vitals within 15 minutes",
	"Obtain focused history for symptom onset, severity, and progression",
	"Document explicit red-flag checks in triage note",
}

func fallbackPolicy() *PolicyOutput {
	return &PolicyOutput{
		RecommendedNextActions: append([]string{}, basePolicyActions...),
		ProtocolCitations:      []PolicyCitation{},
	}
}

// fallbackSafety is the most conservative possible safety output: the
// safety stage is the last line of defense, so its own failure must never
// silently downgrade risk.
func fallbackSafety() *SafetyOutput {
	return &SafetyOutput{
		RiskTier:           TierUrgent,
		EscalationRequired: true,
		RedFlags:           []string{"System error during safety evaluation"},
		SafetyTriggers: []Trigger{{
			ID:       "system_error",
			Severity: SeverityCritical,
			Label:    "Safety evaluation failure",
			Detail:   "Safety stage failed; conservative defaults applied.",
		}},
		Confidence:         confidenceFloor,
		UncertaintyReasons: []string{"Safety stage failure; conservative defaults applied"},
		RecommendedNextActions: []string{
			"Urgent clinician review",
			"Repeat full set of vitals within 15 minutes",
			"Manual triage assessment required",
		},
	}
}

// communicationDrafts builds the deterministic SBAR-style clinician handoff
// and the patient instructions. The drafts are also what an external
// communication backend is allowed to rewrite.
func communicationDrafts(safety *SafetyOutput, reasoning *ReasoningOutput) (clinician, patient string) {
	concerns := "No explicit red flags detected"
	if len(safety.RedFlags) > 0 {
		concerns = strings.Join(safety.RedFlags, ", ")
	}

	clinician = fmt.Sprintf(
		"Situation: triage risk tier %s (escalation required: %t).\n"+
			"Background: key concerns: %s.\n"+
			"Assessment: top differential considerations: %s. Confidence %.2f.\n"+
			"Recommendation: %s.",
		safety.RiskTier,
		safety.EscalationRequired,
		concerns,
		strings.Join(reasoning.DifferentialConsiderations, ", "),
		safety.Confidence,
		strings.Join(safety.RecommendedNextActions, "; "),
	)

	patient = "You were evaluated with an AI-assisted triage tool. " +
		"This output supports your care team and is not a final diagnosis. " +
		"If symptoms worsen, seek urgent medical care immediately."
	if safety.EscalationRequired {
		patient = "Your assessment was flagged for prompt clinician review. " + patient
	}
	return clinician, patient
}

// deterministicCommunication renders the drafts as the final communication
// output. Also the communication stage's fail-safe.
func deterministicCommunication(safety *SafetyOutput, reasoning *ReasoningOutput) *CommunicationOutput {
	clinician, patient := communicationDrafts(safety, reasoning)
	return &CommunicationOutput{
		ClinicianHandoff: clinician,
		PatientSummary:   patient,
		Backend:          BackendDeterministic,
	}
}
