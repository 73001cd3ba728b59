// Package fhirexport renders triage results as a minimal FHIR R4 Bundle
// for demo interoperability. The export is deliberately conservative: it
// asserts no diagnoses, uses deterministic in-bundle IDs, and can redact
// demographics and free text entirely.
package fhirexport

import (
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

// RequestIDSystem is the identifier system stamped on every resource.
const RequestIDSystem = "urn:clinicaflow:request_id"

// ChecklistItem is one recommended action with completion state, as
// tracked by a reviewing clinician.
type ChecklistItem struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// Options controls bundle construction.
type Options struct {
	// Redact omits demographics, gender, and narrative age from the
	// bundle.
	Redact bool
	// Checklist replaces the result's recommended actions as the task
	// list. Nil falls back to the result's actions, all unchecked.
	Checklist []ChecklistItem
}

// Resource is a loosely-typed FHIR resource; the export builds JSON
// documents, not a typed FHIR model.
type Resource = map[string]any

// Build assembles the bundle: Patient, one Observation per present vital,
// ClinicalImpression, patient Communication, and one Task per action.
func Build(intake *triage.PatientIntake, result *triage.Result, opts Options) Resource {
	patientRef := "Patient/patient"
	actions := normalizeChecklist(opts.Checklist, result.RecommendedNextActions)

	entries := []Resource{
		{"resource": patientResource(intake.Demographics, result.RequestID, opts.Redact)},
	}
	for _, o := range vitalsObservations(intake.Vitals, patientRef, result.RequestID) {
		entries = append(entries, Resource{"resource": o})
	}
	entries = append(entries,
		Resource{"resource": clinicalImpression(result, patientRef, actions)},
		Resource{"resource": patientCommunication(result, patientRef)},
	)
	for _, t := range actionTasks(actions, patientRef, result.RequestID) {
		entries = append(entries, Resource{"resource": t})
	}

	return Resource{
		"resourceType": "Bundle",
		"type":         "collection",
		"timestamp":    time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		"identifier":   identifier(result.RequestID),
		"entry":        entries,
	}
}

func identifier(requestID string) Resource {
	return Resource{"system": RequestIDSystem, "value": requestID}
}

func patientResource(demographics map[string]string, requestID string, redact bool) Resource {
	gender := strings.ToLower(strings.TrimSpace(demographics["sex"]))
	switch gender {
	case "male", "female", "other", "unknown":
	default:
		gender = ""
	}

	// Age maps unsafely to birthDate, so it stays in the narrative only.
	age := strings.TrimSpace(demographics["age"])

	var bits []string
	if age != "" && !redact {
		bits = append(bits, "Age "+age)
	}
	if gender != "" && !redact {
		bits = append(bits, "Sex "+gender)
	}
	narrative := "Synthetic/demo patient"
	if len(bits) > 0 {
		narrative = strings.Join(bits, ", ")
	}

	resource := Resource{
		"resourceType": "Patient",
		"id":           "patient",
		"text": Resource{
			"status": "generated",
			"div":    fmt.Sprintf(`<div xmlns="http://www.w3.org/1999/xhtml">%s</div>`, narrative),
		},
		"identifier": []Resource{identifier(requestID)},
	}
	if gender != "" && !redact {
		resource["gender"] = gender
	}
	return resource
}

func vitalsObservations(vitals triage.Vitals, patientRef, requestID string) []Resource {
	var out []Resource
	obs := func(code, display string, value *float64, unit, id string) {
		if value == nil {
			return
		}
		out = append(out, Resource{
			"resourceType": "Observation",
			"id":           id,
			"status":       "final",
			"code": Resource{
				"coding": []Resource{{
					"system":  "http://loinc.org",
					"code":    code,
					"display": display,
				}},
			},
			"subject":       Resource{"reference": patientRef},
			"valueQuantity": Resource{"value": *value, "unit": unit},
			"identifier":    []Resource{identifier(requestID)},
		})
	}

	obs("8867-4", "Heart rate", vitals.HeartRate, "/min", "obs-hr")
	obs("8480-6", "Systolic blood pressure", vitals.SystolicBP, "mmHg", "obs-sbp")
	obs("8462-4", "Diastolic blood pressure", vitals.DiastolicBP, "mmHg", "obs-dbp")
	obs("8310-5", "Body temperature", vitals.TemperatureC, "°C", "obs-temp")
	obs("59408-5", "Oxygen saturation in Arterial blood by Pulse oximetry", vitals.SpO2, "%", "obs-spo2")
	obs("9279-1", "Respiratory rate", vitals.RespiratoryRate, "/min", "obs-rr")
	return out
}

func clinicalImpression(result *triage.Result, patientRef string, actions []ChecklistItem) Resource {
	done := 0
	for _, a := range actions {
		if a.Checked {
			done++
		}
	}

	var actionLines []Resource
	if len(actions) > 0 {
		actionLines = append(actionLines, Resource{
			"text": fmt.Sprintf("Recommended next actions (checklist progress: %d/%d):", done, len(actions)),
		})
		for _, item := range actions {
			mark := " "
			if item.Checked {
				mark = "x"
			}
			actionLines = append(actionLines, Resource{"text": fmt.Sprintf("- [%s] %s", mark, item.Text)})
		}
	} else {
		actionLines = append(actionLines, Resource{"text": "Recommended next actions: (none)"})
	}

	redFlags := "(none detected)"
	if len(result.RedFlags) > 0 {
		redFlags = strings.Join(result.RedFlags, ", ")
	}

	notes := []Resource{
		{"text": "ClinicaFlow is decision support only; not a diagnosis."},
		{"text": "Red flags: " + redFlags},
		{"text": "Top differentials: " + strings.Join(result.DifferentialConsiderations, ", ")},
	}
	notes = append(notes, actionLines...)

	return Resource{
		"resourceType": "ClinicalImpression",
		"id":           "triage",
		"status":       "completed",
		"subject":      Resource{"reference": patientRef},
		"summary": fmt.Sprintf("Triage risk tier: %s. Escalation required: %t.",
			result.RiskTier, result.EscalationRequired),
		"note": notes,
	}
}

func patientCommunication(result *triage.Result, patientRef string) Resource {
	return Resource{
		"resourceType": "Communication",
		"id":           "patient-precautions",
		"status":       "completed",
		"subject":      Resource{"reference": patientRef},
		"payload":      []Resource{{"contentString": result.PatientSummary}},
	}
}

func normalizeChecklist(checklist []ChecklistItem, fallback []string) []ChecklistItem {
	var items []ChecklistItem
	for _, item := range checklist {
		if t := strings.TrimSpace(item.Text); t != "" {
			items = append(items, ChecklistItem{Text: t, Checked: item.Checked})
		}
	}
	if len(items) > 0 {
		return items
	}
	for _, a := range fallback {
		if t := strings.TrimSpace(a); t != "" {
			items = append(items, ChecklistItem{Text: t})
		}
	}
	return items
}

func actionTasks(actions []ChecklistItem, patientRef, requestID string) []Resource {
	var out []Resource
	for i, item := range actions {
		status := "requested"
		if item.Checked {
			status = "completed"
		}
		out = append(out, Resource{
			"resourceType": "Task",
			"id":           fmt.Sprintf("task-%d", i+1),
			"status":       status,
			"intent":       "proposal",
			"description":  item.Text,
			"for":          Resource{"reference": patientRef},
			"identifier":   []Resource{identifier(requestID)},
		})
	}
	return out
}
