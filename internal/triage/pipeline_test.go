package triage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/linnemanlabs/clinicaflow/internal/privacy"
)

type mockReasoner struct {
	out   *ReasoningOutput
	err   error
	calls int
}

func (m *mockReasoner) Reason(_ context.Context, _ *StructuredIntake, _ Vitals, _ []string) (*ReasoningOutput, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.out, nil
}

type mockAdvisor struct {
	out *PolicyOutput
	err error
}

func (m *mockAdvisor) Advise(_ context.Context, _ *StructuredIntake) (*PolicyOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.out, nil
}

type mockCommunicator struct {
	out   *CommunicationOutput
	err   error
	calls int
}

func (m *mockCommunicator) Compose(_ context.Context, _ *SafetyOutput, _ *ReasoningOutput, _, _ string) (*CommunicationOutput, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.out, nil
}

func criticalIntake() *PatientIntake {
	return &PatientIntake{
		ChiefComplaint: "Crushing chest pain for 30 minutes",
		Vitals:         Vitals{HeartRate: Float(96), SpO2: Float(88), TemperatureC: Float(37.0)},
	}
}

func TestRun_DeterministicEndToEnd(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineOptions{})
	res := p.Run(context.Background(), criticalIntake(), "req-1")

	if res.RiskTier != TierCritical {
		t.Errorf("risk tier = %q, want %q", res.RiskTier, TierCritical)
	}
	if !res.EscalationRequired {
		t.Error("escalation_required = false, want true")
	}
	if res.RequestID != "req-1" {
		t.Errorf("request_id = %q, want %q", res.RequestID, "req-1")
	}
	if res.RunID == "" {
		t.Error("run_id is empty")
	}
	if res.PipelineVersion != PipelineVersion {
		t.Errorf("pipeline_version = %q, want %q", res.PipelineVersion, PipelineVersion)
	}
	if res.Confidence <= 0 {
		t.Errorf("confidence = %v, want > 0", res.Confidence)
	}
	if len(res.RecommendedNextActions) == 0 || res.RecommendedNextActions[0] != "Escalate immediately to emergency physician" {
		t.Errorf("actions = %v, want escalation disposition first", res.RecommendedNextActions)
	}
	if res.ClinicianHandoff == "" || !strings.HasPrefix(res.ClinicianHandoff, "Situation:") {
		t.Errorf("clinician handoff = %q, want SBAR format", res.ClinicianHandoff)
	}
	if !strings.HasPrefix(res.PatientSummary, "Your assessment was flagged for prompt clinician review.") {
		t.Errorf("patient summary = %q, want escalation prefix", res.PatientSummary)
	}
}

func TestRun_TraceHasAllStagesInOrder(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineOptions{})
	res := p.Run(context.Background(), criticalIntake(), "")

	want := []string{StageStructuring, StageReasoning, StageEvidence, StageSafety, StageCommunication}
	if len(res.Trace) != len(want) {
		t.Fatalf("trace has %d steps, want %d", len(res.Trace), len(want))
	}
	for i, step := range res.Trace {
		if step.Agent != want[i] {
			t.Errorf("trace[%d].Agent = %q, want %q", i, step.Agent, want[i])
		}
		if step.Error != "" {
			t.Errorf("trace[%d].Error = %q, want none", i, step.Error)
		}
		if step.Output == nil {
			t.Errorf("trace[%d].Output is nil", i)
		}
	}
}

func TestRun_DeterministicRepeatability(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineOptions{})
	a := p.Run(context.Background(), criticalIntake(), "req-1")
	b := p.Run(context.Background(), criticalIntake(), "req-1")

	if a.RiskTier != b.RiskTier {
		t.Errorf("tiers differ: %q vs %q", a.RiskTier, b.RiskTier)
	}
	if !slices.Equal(a.RedFlags, b.RedFlags) {
		t.Errorf("red flags differ: %v vs %v", a.RedFlags, b.RedFlags)
	}
	if !slices.Equal(a.RecommendedNextActions, b.RecommendedNextActions) {
		t.Errorf("actions differ: %v vs %v", a.RecommendedNextActions, b.RecommendedNextActions)
	}
	if a.Confidence != b.Confidence {
		t.Errorf("confidence differs: %v vs %v", a.Confidence, b.Confidence)
	}
	if !slices.Equal(a.DifferentialConsiderations, b.DifferentialConsiderations) {
		t.Errorf("differentials differ: %v vs %v", a.DifferentialConsiderations, b.DifferentialConsiderations)
	}
}

func TestRun_EmptyRequestIDDefaultsToRunID(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineOptions{})
	res := p.Run(context.Background(), criticalIntake(), "  ")
	if res.RequestID != res.RunID {
		t.Errorf("request_id = %q, want run_id %q", res.RequestID, res.RunID)
	}
}

func TestRun_NilCollaboratorsUseDeterministicBackend(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineOptions{})
	res := p.Run(context.Background(), criticalIntake(), "")

	reasoning, ok := res.Trace[1].Output.(*ReasoningOutput)
	if !ok {
		t.Fatalf("trace[1].Output is %T, want *ReasoningOutput", res.Trace[1].Output)
	}
	if reasoning.Backend != BackendDeterministic {
		t.Errorf("reasoning backend = %q, want %q", reasoning.Backend, BackendDeterministic)
	}
	if !slices.Contains(reasoning.DifferentialConsiderations, "Acute coronary syndrome") {
		t.Errorf("differential = %v, want coronary syndrome for chest pain", reasoning.DifferentialConsiderations)
	}

	comms, ok := res.Trace[4].Output.(*CommunicationOutput)
	if !ok {
		t.Fatalf("trace[4].Output is %T, want *CommunicationOutput", res.Trace[4].Output)
	}
	if comms.Backend != BackendDeterministic {
		t.Errorf("communication backend = %q, want %q", comms.Backend, BackendDeterministic)
	}
}

func TestRun_ReasonerErrorFallsBackWithoutStageFault(t *testing.T) {
	t.Parallel()

	r := &mockReasoner{err: errors.New("backend unavailable")}
	p := NewPipeline(PipelineOptions{Reasoner: r})
	res := p.Run(context.Background(), criticalIntake(), "")

	if res.Trace[1].Error != "" {
		t.Errorf("trace error = %q, collaborator failure must not be a stage fault", res.Trace[1].Error)
	}
	reasoning := res.Trace[1].Output.(*ReasoningOutput)
	if reasoning.Backend != BackendDeterministic {
		t.Errorf("backend = %q, want %q", reasoning.Backend, BackendDeterministic)
	}
	if reasoning.BackendError != "backend unavailable" {
		t.Errorf("backend error = %q, want %q", reasoning.BackendError, "backend unavailable")
	}
	if res.RiskTier != TierCritical {
		t.Errorf("risk tier = %q, want %q despite reasoner failure", res.RiskTier, TierCritical)
	}
}

func TestRun_ReasonerOutputCappedAndDeduped(t *testing.T) {
	t.Parallel()

	r := &mockReasoner{out: &ReasoningOutput{
		DifferentialConsiderations: []string{"A", "A", "B", "C", "D", "E", "F"},
		ReasoningRationale:         "model rationale",
		Backend:                    "openai_compatible",
	}}
	p := NewPipeline(PipelineOptions{Reasoner: r})
	res := p.Run(context.Background(), criticalIntake(), "")

	want := []string{"A", "B", "C", "D", "E"}
	if !slices.Equal(res.DifferentialConsiderations, want) {
		t.Errorf("differential = %v, want %v", res.DifferentialConsiderations, want)
	}
}

func TestRun_PHIGuardSkipsExternalBackends(t *testing.T) {
	t.Parallel()

	r := &mockReasoner{out: &ReasoningOutput{Backend: "openai_compatible"}}
	c := &mockCommunicator{out: &CommunicationOutput{Backend: "openai_compatible"}}
	p := NewPipeline(PipelineOptions{
		Reasoner:     r,
		Communicator: c,
		Guard:        privacy.Guard{Enabled: true},
	})

	intake := criticalIntake()
	intake.History = "call me at 555-867-5309 if anything changes"
	res := p.Run(context.Background(), intake, "")

	if r.calls != 0 {
		t.Errorf("reasoner called %d times, want 0 with PHI present", r.calls)
	}
	if c.calls != 0 {
		t.Errorf("communicator called %d times, want 0 with PHI present", c.calls)
	}

	reasoning := res.Trace[1].Output.(*ReasoningOutput)
	if reasoning.SkippedReason == "" || !strings.Contains(reasoning.SkippedReason, "phone") {
		t.Errorf("skipped reason = %q, want phone category named", reasoning.SkippedReason)
	}
	if strings.Contains(reasoning.SkippedReason, "555") {
		t.Errorf("skipped reason = %q leaks the matched value", reasoning.SkippedReason)
	}
	if reasoning.Backend != BackendDeterministic {
		t.Errorf("backend = %q, want %q", reasoning.Backend, BackendDeterministic)
	}
}

func TestRun_PHIGuardDisabledAllowsBackends(t *testing.T) {
	t.Parallel()

	r := &mockReasoner{out: &ReasoningOutput{
		DifferentialConsiderations: []string{"Model differential"},
		Backend:                    "openai_compatible",
	}}
	p := NewPipeline(PipelineOptions{Reasoner: r})

	intake := criticalIntake()
	intake.History = "call me at 555-867-5309"
	p.Run(context.Background(), intake, "")

	if r.calls != 1 {
		t.Errorf("reasoner called %d times, want 1 with guard disabled", r.calls)
	}
}

func TestRun_AdvisorActionsMergedAfterSafety(t *testing.T) {
	t.Parallel()

	a := &mockAdvisor{out: &PolicyOutput{
		RecommendedNextActions: []string{"Repeat full set of vitals within 15 minutes"},
		ProtocolCitations:      []PolicyCitation{{PolicyID: "CP-001", Title: "Chest pain pathway"}},
	}}
	p := NewPipeline(PipelineOptions{PolicyAdvisor: a})
	res := p.Run(context.Background(), criticalIntake(), "")

	if res.RecommendedNextActions[0] != "Escalate immediately to emergency physician" {
		t.Errorf("actions = %v, want safety disposition first", res.RecommendedNextActions)
	}
	if !slices.Contains(res.RecommendedNextActions, "Repeat full set of vitals within 15 minutes") {
		t.Errorf("actions = %v, want advisor action included", res.RecommendedNextActions)
	}

	policy := res.Trace[2].Output.(*PolicyOutput)
	if len(policy.ProtocolCitations) != 1 || policy.ProtocolCitations[0].PolicyID != "CP-001" {
		t.Errorf("citations = %v, want CP-001", policy.ProtocolCitations)
	}
}

func TestRun_AdvisorErrorUsesBaseActions(t *testing.T) {
	t.Parallel()

	a := &mockAdvisor{err: errors.New("pack unavailable")}
	p := NewPipeline(PipelineOptions{PolicyAdvisor: a})
	res := p.Run(context.Background(), criticalIntake(), "")

	if res.Trace[2].Error != "" {
		t.Errorf("trace error = %q, advisor failure must not be a stage fault", res.Trace[2].Error)
	}
	policy := res.Trace[2].Output.(*PolicyOutput)
	if !slices.Equal(policy.RecommendedNextActions, basePolicyActions) {
		t.Errorf("actions = %v, want base fallback actions", policy.RecommendedNextActions)
	}
}

func TestRun_CommunicatorErrorRecordsBackendError(t *testing.T) {
	t.Parallel()

	c := &mockCommunicator{err: errors.New("timeout")}
	p := NewPipeline(PipelineOptions{Communicator: c})
	res := p.Run(context.Background(), criticalIntake(), "")

	comms := res.Trace[4].Output.(*CommunicationOutput)
	if comms.Backend != BackendDeterministic {
		t.Errorf("backend = %q, want %q", comms.Backend, BackendDeterministic)
	}
	if comms.BackendError != "timeout" {
		t.Errorf("backend error = %q, want %q", comms.BackendError, "timeout")
	}
	if res.ClinicianHandoff == "" {
		t.Error("clinician handoff empty despite deterministic fallback")
	}
}

func TestRun_HooksObserveStagesAndCompletion(t *testing.T) {
	t.Parallel()

	var stages []string
	var completed *Result
	hooks := PipelineHooks{
		OnStage:    func(stage string, _ float64, _ bool) { stages = append(stages, stage) },
		OnComplete: func(res *Result) { completed = res },
	}
	p := NewPipeline(PipelineOptions{Hooks: hooks})
	res := p.Run(context.Background(), criticalIntake(), "")

	want := []string{StageStructuring, StageReasoning, StageEvidence, StageSafety, StageCommunication}
	if !slices.Equal(stages, want) {
		t.Errorf("observed stages = %v, want %v", stages, want)
	}
	if completed != res {
		t.Error("OnComplete did not receive the run result")
	}
}

func TestRun_CombinedInstabilityIsCritical(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineOptions{})
	intake := &PatientIntake{
		ChiefComplaint: "Chest pain and shortness of breath for 30 minutes",
		Vitals: Vitals{
			HeartRate:    Float(132),
			SystolicBP:   Float(88),
			TemperatureC: Float(38.7),
			SpO2:         Float(90),
		},
	}
	res := p.Run(context.Background(), intake, "")

	if res.RiskTier != TierCritical {
		t.Errorf("risk tier = %q, want %q", res.RiskTier, TierCritical)
	}
	if !res.EscalationRequired {
		t.Error("escalation_required = false, want true")
	}
	if len(res.RedFlags) < 2 {
		t.Errorf("red flags = %v, want at least 2", res.RedFlags)
	}
	if len(res.SafetyTriggers) == 0 || res.SafetyTriggers[0].ID != "hemodynamic_instability" {
		t.Errorf("triggers = %v, want hemodynamic_instability first", res.SafetyTriggers)
	}
}

func TestRun_EmptyIntakeStaysConservative(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineOptions{})
	res := p.Run(context.Background(), &PatientIntake{}, "")

	if res.RiskTier != TierUrgent {
		t.Errorf("risk tier = %q, want %q", res.RiskTier, TierUrgent)
	}
	if res.Confidence > 0.68 {
		t.Errorf("confidence = %v, want <= 0.68", res.Confidence)
	}
	wantReason := "Missing intake fields: chief_complaint, heart_rate, spo2, temperature_c"
	if !slices.Contains(res.UncertaintyReasons, wantReason) {
		t.Errorf("uncertainty reasons = %v, want %q", res.UncertaintyReasons, wantReason)
	}
}

func TestRun_RoutineIntakeDoesNotEscalate(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineOptions{})
	intake := &PatientIntake{
		ChiefComplaint: "Mild runny nose for a day",
		Vitals:         Vitals{HeartRate: Float(74), SpO2: Float(99), TemperatureC: Float(36.8)},
	}
	res := p.Run(context.Background(), intake, "")

	if res.RiskTier != TierRoutine {
		t.Errorf("risk tier = %q, want %q", res.RiskTier, TierRoutine)
	}
	if res.EscalationRequired {
		t.Error("escalation_required = true, want false")
	}
	if len(res.SafetyTriggers) != 0 {
		t.Errorf("triggers = %v, want none", res.SafetyTriggers)
	}
}
