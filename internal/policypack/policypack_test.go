package policypack

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

const validPack = `{
  "policies": [
    {
      "policy_id": "T-001",
      "title": "Test pathway",
      "triggers": ["chest pain"],
      "recommended_actions": ["Obtain ECG"],
      "citation": "Test Protocol T-001"
    }
  ]
}`

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	pack, err := Parse([]byte(validPack))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pack.Policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(pack.Policies))
	}
	if pack.Policies[0].PolicyID != "T-001" {
		t.Errorf("policy_id = %q, want %q", pack.Policies[0].PolicyID, "T-001")
	}
	if len(pack.Digest) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(pack.Digest))
	}
}

func TestParse_DigestStable(t *testing.T) {
	t.Parallel()

	a, err := Parse([]byte(validPack))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := Parse([]byte(validPack))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Digest != b.Digest {
		t.Errorf("digest differs across parses: %q vs %q", a.Digest, b.Digest)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"not json", `{`, "invalid_json"},
		{"empty policies", `{"policies": []}`, "policies must not be empty"},
		{
			"missing policy id",
			`{"policies": [{"title": "t", "triggers": ["x"], "recommended_actions": ["y"], "citation": "c"}]}`,
			"policies[0].policy_id: required",
		},
		{
			"duplicate policy id",
			`{"policies": [
				{"policy_id": "A", "title": "t", "triggers": ["x"], "recommended_actions": ["y"], "citation": "c"},
				{"policy_id": "A", "title": "t", "triggers": ["x"], "recommended_actions": ["y"], "citation": "c"}
			]}`,
			`policies[1].policy_id: duplicate "A"`,
		},
		{
			"empty triggers",
			`{"policies": [{"policy_id": "A", "title": "t", "triggers": [], "recommended_actions": ["y"], "citation": "c"}]}`,
			"policies[0].triggers: expected non-empty array of strings",
		},
		{
			"blank action",
			`{"policies": [{"policy_id": "A", "title": "t", "triggers": ["x"], "recommended_actions": ["  "], "citation": "c"}]}`,
			"policies[0].recommended_actions: expected non-empty array of strings",
		},
		{
			"missing citation",
			`{"policies": [{"policy_id": "A", "title": "t", "triggers": ["x"], "recommended_actions": ["y"]}]}`,
			"policies[0].citation: required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			errs := Validate([]byte(tc.doc))
			found := false
			for _, e := range errs {
				if strings.Contains(e, tc.want) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Validate errors = %v, want one containing %q", errs, tc.want)
			}
		})
	}
}

func TestParse_InvalidRejected(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte(`{"policies": []}`)); err == nil {
		t.Error("Parse accepted an empty pack")
	}
}

func TestMatch_ScoreOrdering(t *testing.T) {
	t.Parallel()

	pack, err := Parse(defaultPack)
	if err != nil {
		t.Fatalf("Parse default pack: %v", err)
	}

	// two dyspnea triggers vs one chest pain trigger
	got := Match(pack.Policies, "chest pain with shortness of breath and difficulty breathing")
	if len(got) < 2 {
		t.Fatalf("matched %d policies, want >= 2", len(got))
	}
	if got[0].PolicyID != "RESP-002" {
		t.Errorf("top match = %q, want RESP-002 (higher trigger count)", got[0].PolicyID)
	}
	if got[1].PolicyID != "CP-001" {
		t.Errorf("second match = %q, want CP-001", got[1].PolicyID)
	}
}

func TestMatch_PolicyIDTiebreak(t *testing.T) {
	t.Parallel()

	policies := []Snippet{
		{PolicyID: "B-002", Triggers: []string{"fever"}},
		{PolicyID: "A-001", Triggers: []string{"fever"}},
	}
	got := Match(policies, "fever for two days")
	if len(got) != 2 || got[0].PolicyID != "A-001" {
		t.Errorf("matches = %v, want A-001 first on equal score", got)
	}
}

func TestMatch_NoHits(t *testing.T) {
	t.Parallel()

	pack, err := Parse(defaultPack)
	if err != nil {
		t.Fatalf("Parse default pack: %v", err)
	}
	if got := Match(pack.Policies, "routine medication refill"); len(got) != 0 {
		t.Errorf("matches = %v, want none", got)
	}
}

func TestMatch_NormalizesCaseAndPunctuation(t *testing.T) {
	t.Parallel()

	policies := []Snippet{{PolicyID: "X", Triggers: []string{"chest pain"}}}
	if got := Match(policies, "Sudden CHEST PAIN tonight"); len(got) != 1 {
		t.Errorf("matches = %v, want 1 case-insensitive match", got)
	}
}

func TestSource_EmbeddedDefault(t *testing.T) {
	t.Parallel()

	src := &Source{}
	pack, err := src.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(pack.Policies) == 0 {
		t.Fatal("embedded pack has no policies")
	}

	again, err := src.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again != pack {
		t.Error("Get did not return the cached pack")
	}
}

func TestSource_MissingFile(t *testing.T) {
	t.Parallel()

	src := &Source{Path: "/nonexistent/pack.json"}
	if _, err := src.Get(); err == nil {
		t.Error("Get succeeded for a missing file")
	}
}

func TestAdvise_BaseActionsFirstThenTopK(t *testing.T) {
	t.Parallel()

	adv := &Advisor{Source: &Source{}}
	structured := &triage.StructuredIntake{
		NormalizedSummary: "crushing chest pain and shortness of breath",
	}

	out, err := adv.Advise(context.Background(), structured)
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if !slices.Equal(out.RecommendedNextActions[:3], baseActions) {
		t.Errorf("actions = %v, want base actions first", out.RecommendedNextActions)
	}
	if len(out.ProtocolCitations) != 2 {
		t.Fatalf("citations = %v, want 2 (default TopK)", out.ProtocolCitations)
	}
	ids := []string{out.ProtocolCitations[0].PolicyID, out.ProtocolCitations[1].PolicyID}
	if !slices.Contains(ids, "CP-001") || !slices.Contains(ids, "RESP-002") {
		t.Errorf("cited policies = %v, want CP-001 and RESP-002", ids)
	}
	if out.EvidenceNote != EvidenceNote {
		t.Errorf("evidence note = %q, want %q", out.EvidenceNote, EvidenceNote)
	}
}

func TestAdvise_TopKLimitsCitations(t *testing.T) {
	t.Parallel()

	adv := &Advisor{Source: &Source{}, TopK: 1}
	structured := &triage.StructuredIntake{
		NormalizedSummary: "chest pain, shortness of breath, fever and chills",
	}

	out, err := adv.Advise(context.Background(), structured)
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if len(out.ProtocolCitations) != 1 {
		t.Errorf("citations = %v, want 1", out.ProtocolCitations)
	}
}

func TestAdvise_NoMatchesStillReturnsBaseActions(t *testing.T) {
	t.Parallel()

	adv := &Advisor{Source: &Source{}}
	out, err := adv.Advise(context.Background(), &triage.StructuredIntake{
		NormalizedSummary: "routine follow-up visit",
	})
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if !slices.Equal(out.RecommendedNextActions, baseActions) {
		t.Errorf("actions = %v, want exactly the base actions", out.RecommendedNextActions)
	}
	if len(out.ProtocolCitations) != 0 {
		t.Errorf("citations = %v, want none", out.ProtocolCitations)
	}
}
