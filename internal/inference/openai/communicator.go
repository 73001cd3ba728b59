package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

// CommunicationPromptVersion tags communication output for audit.
const CommunicationPromptVersion = "2026-02-19.v1"

const communicationSystem = "You are a clinical documentation and patient-instructions assistant. " +
	"You MUST NOT add new clinical facts, vitals, meds, diagnoses, or red flags. " +
	"You may only rewrite the provided drafts for clarity and conciseness. " +
	"Keep a conservative safety posture and preserve the disclaimer language. " +
	"Return ONLY valid JSON matching the requested schema."

// Communicator rewrites the deterministic drafts via an OpenAI-compatible
// model. It implements triage.Communicator.
type Communicator struct {
	client *Client
}

// NewCommunicator wraps a client as a communication collaborator.
func NewCommunicator(client *Client) *Communicator {
	return &Communicator{client: client}
}

// Compose asks the model to rewrite the drafts and validates the returned
// JSON. The model only ever sees the drafts, never the raw intake.
func (c *Communicator) Compose(ctx context.Context, _ *triage.SafetyOutput, _ *triage.ReasoningOutput, draftClinician, draftPatient string) (*triage.CommunicationOutput, error) {
	user := buildCommunicationPrompt(draftClinician, draftPatient)

	text, err := c.client.chat(ctx, communicationSystem, user)
	if err != nil {
		return nil, err
	}

	raw, err := extractFirstJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("model did not return valid JSON: %w", err)
	}

	var payload struct {
		ClinicianHandoff string `json:"clinician_handoff"`
		PatientSummary   string `json:"patient_summary"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON schema: %w", err)
	}

	clinician := strings.TrimSpace(payload.ClinicianHandoff)
	patient := strings.TrimSpace(payload.PatientSummary)
	if clinician == "" {
		return nil, fmt.Errorf("invalid JSON: clinician_handoff must be a non-empty string")
	}
	if patient == "" {
		return nil, fmt.Errorf("invalid JSON: patient_summary must be a non-empty string")
	}

	return &triage.CommunicationOutput{
		ClinicianHandoff: clinician,
		PatientSummary:   patient,
		Backend:          BackendName,
		BackendModel:     c.client.Model(),
		PromptVersion:    CommunicationPromptVersion,
	}, nil
}

func buildCommunicationPrompt(draftClinician, draftPatient string) string {
	var b strings.Builder
	b.WriteString("Rewrite the following two drafts.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Do NOT introduce any new medical facts.\n")
	b.WriteString("- Do NOT introduce any definitive diagnosis.\n")
	b.WriteString("- You may reformat bulleting and wording for clarity.\n")
	b.WriteString("- Keep the meaning and safety constraints the same.\n\n")
	b.WriteString("Schema (JSON object):\n")
	b.WriteString("- clinician_handoff: string (may include bullets)\n")
	b.WriteString("- patient_summary: string (plain language; includes return precautions)\n\n")
	fmt.Fprintf(&b, "Draft clinician_handoff:\n%s\n\n", strings.TrimSpace(draftClinician))
	fmt.Fprintf(&b, "Draft patient_summary:\n%s\n\n", strings.TrimSpace(draftPatient))
	b.WriteString("Return ONLY JSON.\n")
	return b.String()
}
