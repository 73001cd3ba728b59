package triage

import (
	"strings"

	"github.com/linnemanlabs/clinicaflow/internal/lexicon"
	"github.com/linnemanlabs/clinicaflow/internal/privacy"
	"github.com/linnemanlabs/clinicaflow/internal/textnorm"
)

// UnspecifiedSymptoms is the sentinel tag substituted when no symptom
// matches, so downstream stages never see an empty symptom list.
const UnspecifiedSymptoms = "unspecified symptoms"

// DefaultMaxSummaryChars caps the sanitized summary passed to downstream
// prompting and matching.
const DefaultMaxSummaryChars = 1200

// Structurer turns a raw intake into a StructuredIntake. It is pure: no
// I/O, no collaborator calls, no shared mutable state.
type Structurer struct {
	matcher         *lexicon.Matcher
	maxSummaryChars int
}

// StructurerOptions tunes the structurer; zero values take defaults.
type StructurerOptions struct {
	NegationWindow  int
	MaxSummaryChars int
}

// NewStructurer builds a structurer over the canonical symptom table.
func NewStructurer(opts StructurerOptions) *Structurer {
	maxChars := opts.MaxSummaryChars
	if maxChars <= 0 {
		maxChars = DefaultMaxSummaryChars
	}
	return &Structurer{
		matcher: lexicon.New(lexicon.SymptomTerms, lexicon.Options{
			NegationWindow: opts.NegationWindow,
		}),
		maxSummaryChars: maxChars,
	}
}

// Structure extracts symptoms, risk factors, missingness, PHI categories,
// and data-quality warnings from the intake.
func (s *Structurer) Structure(intake *PatientIntake) (*StructuredIntake, error) {
	combined := intake.CombinedText()
	normalized := strings.ToLower(textnorm.Normalize(combined))

	symptoms := s.matcher.Tags(normalized)
	if len(symptoms) == 0 {
		symptoms = []string{UnspecifiedSymptoms}
	}

	out := &StructuredIntake{
		Symptoms:      symptoms,
		RiskFactors:   lexicon.RiskFactors(normalized),
		MissingFields: missingFields(intake),
		// the sanitized summary is the only representation external
		// backends may see; PHI detection runs on the raw text
		NormalizedSummary:   textnorm.Sanitize(combined, s.maxSummaryChars),
		PHIHits:             privacy.DetectHits(combined),
		DataQualityWarnings: qualityWarnings(intake),
	}
	return out, nil
}

// missingFields presence-tests exactly the four fields the tier rules care
// about.
func missingFields(intake *PatientIntake) []string {
	var missing []string
	if strings.TrimSpace(intake.ChiefComplaint) == "" {
		missing = append(missing, "chief_complaint")
	}
	if intake.Vitals.HeartRate == nil {
		missing = append(missing, "heart_rate")
	}
	if intake.Vitals.SpO2 == nil {
		missing = append(missing, "spo2")
	}
	if intake.Vitals.TemperatureC == nil {
		missing = append(missing, "temperature_c")
	}
	return missing
}
