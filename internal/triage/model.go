package triage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier is the pipeline's primary output: the triage risk tier.
type Tier string

const (
	TierRoutine  Tier = "routine"
	TierUrgent   Tier = "urgent"
	TierCritical Tier = "critical"
)

// Escalates reports whether the tier requires escalation.
func (t Tier) Escalates() bool {
	return t == TierUrgent || t == TierCritical
}

// Severity tags a safety trigger.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityUrgent   Severity = "urgent"
	SeverityInfo     Severity = "info"
)

// Vitals holds the six optional intake vital signs. Absent fields stay nil;
// they are never defaulted to a clinically meaningful number.
type Vitals struct {
	HeartRate       *float64 `json:"heart_rate,omitempty"`
	SystolicBP      *float64 `json:"systolic_bp,omitempty"`
	DiastolicBP     *float64 `json:"diastolic_bp,omitempty"`
	TemperatureC    *float64 `json:"temperature_c,omitempty"`
	SpO2            *float64 `json:"spo2,omitempty"`
	RespiratoryRate *float64 `json:"respiratory_rate,omitempty"`
}

// PatientIntake is the raw triage request. Constructed once per request and
// never mutated afterwards.
type PatientIntake struct {
	ChiefComplaint    string            `json:"chief_complaint"`
	History           string            `json:"history,omitempty"`
	Demographics      map[string]string `json:"demographics,omitempty"`
	Vitals            Vitals            `json:"vitals"`
	ImageDescriptions []string          `json:"image_descriptions,omitempty"`
	PriorNotes        []string          `json:"prior_notes,omitempty"`
}

// CombinedText joins chief complaint, history, prior notes, and image
// descriptions, dropping blank entries. Every text-based stage works on this
// single view.
func (p *PatientIntake) CombinedText() string {
	sections := make([]string, 0, 2+len(p.PriorNotes)+len(p.ImageDescriptions))
	add := func(parts ...string) {
		for _, s := range parts {
			if t := strings.TrimSpace(s); t != "" {
				sections = append(sections, t)
			}
		}
	}
	add(p.ChiefComplaint, p.History)
	add(p.PriorNotes...)
	add(p.ImageDescriptions...)
	return strings.Join(sections, "\n")
}

// StructuredIntake is the structuring stage's output. Symptoms is never
// empty: when nothing matches it holds the single sentinel
// "unspecified symptoms" so downstream stages never special-case an empty
// list.
type StructuredIntake struct {
	Symptoms            []string `json:"symptoms"`
	RiskFactors         []string `json:"risk_factors"`
	MissingFields       []string `json:"missing_fields"`
	NormalizedSummary   string   `json:"normalized_summary"`
	PHIHits             []string `json:"phi_hits,omitempty"`
	DataQualityWarnings []string `json:"data_quality_warnings,omitempty"`
}

// Trigger is a structured, severity-tagged explanation of why a tier or
// escalation decision fired. Deduplicated by ID; ordering reflects severity
// precedence.
type Trigger struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Label    string   `json:"label"`
	Detail   string   `json:"detail,omitempty"`
}

// TraceStep records one pipeline stage: its typed output, wall-clock
// latency, and the stage error message when the primary logic failed and a
// fallback output was substituted.
type TraceStep struct {
	Agent     string  `json:"agent"`
	Output    any     `json:"output"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// ReasoningOutput is the reasoning stage's output. Backend metadata records
// what the stage actually did: "deterministic" with an optional skip reason
// or backend error when an external backend was configured but not used.
type ReasoningOutput struct {
	DifferentialConsiderations []string `json:"differential_considerations"`
	ReasoningRationale         string   `json:"reasoning_rationale"`
	UsesMultimodalContext      bool     `json:"uses_multimodal_context"`
	Backend                    string   `json:"reasoning_backend"`
	BackendModel               string   `json:"reasoning_backend_model,omitempty"`
	PromptVersion              string   `json:"reasoning_prompt_version,omitempty"`
	SkippedReason              string   `json:"reasoning_backend_skipped_reason,omitempty"`
	BackendError               string   `json:"reasoning_backend_error,omitempty"`
}

// PolicyOutput is the evidence/policy stage's output.
type PolicyOutput struct {
	RecommendedNextActions []string         `json:"recommended_next_actions"`
	ProtocolCitations      []PolicyCitation `json:"protocol_citations"`
	EvidenceNote           string           `json:"evidence_note,omitempty"`
}

// PolicyCitation is one matched protocol snippet reference.
type PolicyCitation struct {
	PolicyID string `json:"policy_id"`
	Title    string `json:"title"`
	Citation string `json:"citation,omitempty"`
}

// SafetyOutput is the safety stage's output: the tier decision and
// everything that explains it.
type SafetyOutput struct {
	RiskTier               Tier           `json:"risk_tier"`
	EscalationRequired     bool           `json:"escalation_required"`
	RedFlags               []string       `json:"red_flags"`
	SafetyTriggers         []Trigger      `json:"safety_triggers"`
	RiskScores             map[string]any `json:"risk_scores,omitempty"`
	Confidence             float64        `json:"confidence"`
	UncertaintyReasons     []string       `json:"uncertainty_reasons"`
	RecommendedNextActions []string       `json:"recommended_next_actions"`
}

// CommunicationOutput is the communication stage's output.
type CommunicationOutput struct {
	ClinicianHandoff string `json:"clinician_handoff"`
	PatientSummary   string `json:"patient_summary"`
	Backend          string `json:"communication_backend"`
	BackendModel     string `json:"communication_backend_model,omitempty"`
	PromptVersion    string `json:"communication_prompt_version,omitempty"`
	SkippedReason    string `json:"communication_backend_skipped_reason,omitempty"`
	BackendError     string `json:"communication_backend_error,omitempty"`
}

// Result is the terminal artifact of one pipeline run. Constructed once at
// the end of the run and never mutated afterwards.
type Result struct {
	RunID                      string         `json:"run_id"`
	RequestID                  string         `json:"request_id"`
	CreatedAt                  time.Time      `json:"created_at"`
	PipelineVersion            string         `json:"pipeline_version"`
	TotalLatencyMS             float64        `json:"total_latency_ms"`
	RiskTier                   Tier           `json:"risk_tier"`
	EscalationRequired         bool           `json:"escalation_required"`
	DifferentialConsiderations []string       `json:"differential_considerations"`
	RedFlags                   []string       `json:"red_flags"`
	RecommendedNextActions     []string       `json:"recommended_next_actions"`
	SafetyTriggers             []Trigger      `json:"safety_triggers"`
	RiskScores                 map[string]any `json:"risk_scores,omitempty"`
	ClinicianHandoff           string         `json:"clinician_handoff"`
	PatientSummary             string         `json:"patient_summary"`
	Confidence                 float64        `json:"confidence"`
	UncertaintyReasons         []string       `json:"uncertainty_reasons"`
	Trace                      []TraceStep    `json:"trace"`
}

// Record is the audit-store row for one triage run: the intake exactly as
// received next to the result it produced.
type Record struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id"`
	CreatedAt time.Time      `json:"created_at"`
	Intake    *PatientIntake `json:"intake"`
	Result    *Result        `json:"result"`
}

// NewRunID returns a globally unique run identifier.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Float returns a pointer to v; intake construction helper.
func Float(v float64) *float64 { return &v }

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
