package policypack

import (
	"context"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

// EvidenceNote accompanies every policy recommendation set.
const EvidenceNote = "Recommendations are grounded in a demo policy pack; " +
	"replace with site protocol IDs and citations."

// Advisor matches structured intakes against a policy pack and produces
// recommended actions with citations. It implements triage.PolicyAdvisor.
type Advisor struct {
	Source *Source
	TopK   int // matched policies to cite; 0 means 2
}

var baseActions = []string{
	"Repeat full set of vitals within 15 minutes",
	"Obtain focused history for symptom onset, severity, and progression",
	"Document explicit red-flag checks in triage note",
}

// Advise matches the normalized summary against the pack and returns the
// base action set extended with the top matched policies' actions.
func (a *Advisor) Advise(_ context.Context, structured *triage.StructuredIntake) (*triage.PolicyOutput, error) {
	pack, err := a.Source.Get()
	if err != nil {
		return nil, err
	}

	topK := a.TopK
	if topK <= 0 {
		topK = 2
	}

	matched := Match(pack.Policies, structured.NormalizedSummary)
	if len(matched) > topK {
		matched = matched[:topK]
	}

	actions := append([]string{}, baseActions...)
	citations := make([]triage.PolicyCitation, 0, len(matched))
	for _, p := range matched {
		actions = append(actions, p.RecommendedActions...)
		citations = append(citations, triage.PolicyCitation{
			PolicyID: p.PolicyID,
			Title:    p.Title,
			Citation: p.Citation,
		})
	}

	return &triage.PolicyOutput{
		RecommendedNextActions: actions,
		ProtocolCitations:      citations,
		EvidenceNote:           EvidenceNote,
	}, nil
}
