package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/clinicaflow/internal/privacy"
)

// PipelineVersion tags every Result; bump on behavioral pipeline changes.
const PipelineVersion = "0.3.1+rules." + RulesVersion

// Stage names, in fixed execution order.
const (
	StageStructuring   = "intake_structuring"
	StageReasoning     = "multimodal_reasoning"
	StageEvidence      = "evidence_policy"
	StageSafety        = "safety_escalation"
	StageCommunication = "communication"
)

// Reasoner is the external clinical-reasoning collaborator. A nil Reasoner
// or a returned error selects the deterministic differential.
type Reasoner interface {
	Reason(ctx context.Context, structured *StructuredIntake, vitals Vitals, imageRefs []string) (*ReasoningOutput, error)
}

// PolicyAdvisor is the evidence/policy collaborator supplying recommended
// actions and protocol citations for a structured intake.
type PolicyAdvisor interface {
	Advise(ctx context.Context, structured *StructuredIntake) (*PolicyOutput, error)
}

// Communicator is the external write-up collaborator. It may only rewrite
// the deterministic drafts, never add clinical facts.
type Communicator interface {
	Compose(ctx context.Context, safety *SafetyOutput, reasoning *ReasoningOutput, draftClinician, draftPatient string) (*CommunicationOutput, error)
}

// PipelineOptions configures collaborators and guardrails. All fields are
// optional; the zero value yields a fully deterministic pipeline.
type PipelineOptions struct {
	Reasoner      Reasoner
	PolicyAdvisor PolicyAdvisor
	Communicator  Communicator
	Guard         privacy.Guard
	Structurer    *Structurer
	Logger        log.Logger
	Hooks         PipelineHooks
}

// Pipeline runs the fixed five-stage triage workflow. Safe for concurrent
// use: every Run constructs fresh per-request state.
type Pipeline struct {
	structurer *Structurer
	reasoner   Reasoner
	advisor    PolicyAdvisor
	comms      Communicator
	guard      privacy.Guard
	logger     log.Logger
	hooks      PipelineHooks
}

// NewPipeline builds a pipeline. Nil collaborators select the deterministic
// fallbacks for their stages.
func NewPipeline(opts PipelineOptions) *Pipeline {
	st := opts.Structurer
	if st == nil {
		st = NewStructurer(StructurerOptions{})
	}
	lg := opts.Logger
	if lg == nil {
		lg = log.Nop()
	}
	return &Pipeline{
		structurer: st,
		reasoner:   opts.Reasoner,
		advisor:    opts.PolicyAdvisor,
		comms:      opts.Communicator,
		guard:      opts.Guard,
		logger:     lg,
		hooks:      opts.Hooks,
	}
}

// Run executes the pipeline for one intake. It never returns an error: any
// stage fault is absorbed by that stage's fallback and recorded on the
// trace, and the caller always receives a complete Result.
func (p *Pipeline) Run(ctx context.Context, intake *PatientIntake, requestID string) *Result {
	start := time.Now()
	runID := NewRunID()
	if strings.TrimSpace(requestID) == "" {
		requestID = runID
	}

	L := p.logger.With("run_id", runID, "request_id", requestID)

	trace := make([]TraceStep, 0, 5)

	// stage 1: structuring
	structured, step := runStage(StageStructuring, func() (*StructuredIntake, error) {
		return p.structurer.Structure(intake)
	}, func() *StructuredIntake {
		return fallbackStructured(intake)
	})
	trace = append(trace, step)
	p.observeStage(ctx, L, step)

	// stage 2: reasoning collaborator
	reasoning, step := runStage(StageReasoning, func() (*ReasoningOutput, error) {
		return p.runReasoning(ctx, structured, intake)
	}, func() *ReasoningOutput {
		return deterministicReasoning(structured)
	})
	trace = append(trace, step)
	p.observeStage(ctx, L, step)

	// stage 3: evidence/policy collaborator
	policy, step := runStage(StageEvidence, func() (*PolicyOutput, error) {
		return p.runEvidence(ctx, structured)
	}, fallbackPolicy)
	trace = append(trace, step)
	p.observeStage(ctx, L, step)

	// stage 4: safety synthesis (last line of defense: its fallback never
	// downgrades risk)
	safety, step := runStage(StageSafety, func() (*SafetyOutput, error) {
		return p.runSafety(structured, intake.Vitals, policy.RecommendedNextActions)
	}, fallbackSafety)
	trace = append(trace, step)
	p.observeStage(ctx, L, step)

	// stage 5: communication collaborator
	comms, step := runStage(StageCommunication, func() (*CommunicationOutput, error) {
		return p.runCommunication(ctx, structured, safety, reasoning)
	}, func() *CommunicationOutput {
		return deterministicCommunication(safety, reasoning)
	})
	trace = append(trace, step)
	p.observeStage(ctx, L, step)

	result := &Result{
		RunID:                      runID,
		RequestID:                  requestID,
		CreatedAt:                  time.Now().UTC().Truncate(time.Second),
		PipelineVersion:            PipelineVersion,
		TotalLatencyMS:             float64(time.Since(start).Microseconds()) / 1000.0,
		RiskTier:                   safety.RiskTier,
		EscalationRequired:         safety.EscalationRequired,
		DifferentialConsiderations: reasoning.DifferentialConsiderations,
		RedFlags:                   safety.RedFlags,
		RecommendedNextActions:     safety.RecommendedNextActions,
		SafetyTriggers:             safety.SafetyTriggers,
		RiskScores:                 safety.RiskScores,
		ClinicianHandoff:           comms.ClinicianHandoff,
		PatientSummary:             comms.PatientSummary,
		Confidence:                 safety.Confidence,
		UncertaintyReasons:         safety.UncertaintyReasons,
		Trace:                      trace,
	}

	p.hooks.complete(result)

	L.Info(ctx, "triage pipeline complete",
		"risk_tier", string(result.RiskTier),
		"escalation_required", result.EscalationRequired,
		"red_flags", len(result.RedFlags),
		"confidence", result.Confidence,
		"latency_ms", result.TotalLatencyMS,
	)
	return result
}

// runStage executes a stage's primary logic, substituting the stage
// fallback and recording the error message on failure. Latency is recorded
// regardless of outcome.
func runStage[T any](name string, primary func() (T, error), fallback func() T) (T, TraceStep) {
	start := time.Now()
	out, err := primary()
	step := TraceStep{Agent: name}
	if err != nil {
		out = fallback()
		step.Error = err.Error()
	}
	step.Output = out
	step.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
	return out, step
}

func (p *Pipeline) observeStage(ctx context.Context, L log.Logger, step TraceStep) {
	p.hooks.stage(step.Agent, step.LatencyMS/1000.0, step.Error != "")
	if step.Error != "" {
		L.Warn(ctx, "stage failed, fallback substituted", "stage", step.Agent, "error", step.Error)
	}
}

// ---------------------------------------------------------------------------
// stage bodies
// ---------------------------------------------------------------------------

func (p *Pipeline) runReasoning(ctx context.Context, structured *StructuredIntake, intake *PatientIntake) (*ReasoningOutput, error) {
	if p.reasoner == nil {
		return deterministicReasoning(structured), nil
	}
	if !p.guard.Allow(structured.PHIHits) {
		out := deterministicReasoning(structured)
		out.SkippedReason = phiSkipReason(structured.PHIHits)
		return out, nil
	}

	out, err := p.reasoner.Reason(ctx, structured, intake.Vitals, intake.ImageDescriptions)
	if err != nil {
		// collaborator unavailability is expected, not a stage fault
		fb := deterministicReasoning(structured)
		fb.BackendError = err.Error()
		return fb, nil
	}
	out.DifferentialConsiderations = capList(dedupe(out.DifferentialConsiderations), 5)
	return out, nil
}

func (p *Pipeline) runEvidence(ctx context.Context, structured *StructuredIntake) (*PolicyOutput, error) {
	if p.advisor == nil {
		return fallbackPolicy(), nil
	}
	out, err := p.advisor.Advise(ctx, structured)
	if err != nil {
		return fallbackPolicy(), nil //nolint:nilerr // unavailability is an expected, non-fault outcome
	}
	out.RecommendedNextActions = capList(dedupe(out.RecommendedNextActions), 6)
	return out, nil
}

func (p *Pipeline) runSafety(structured *StructuredIntake, vitals Vitals, callerActions []string) (*SafetyOutput, error) {
	redFlags := RedFlags(structured, vitals)
	tier, _ := RiskTier(redFlags, structured.MissingFields, vitals)
	triggers := SafetyTriggers(redFlags, structured.MissingFields, vitals)
	confidence, reasons := Confidence(tier, redFlags, structured.MissingFields)

	return &SafetyOutput{
		RiskTier:               tier,
		EscalationRequired:     tier.Escalates(),
		RedFlags:               redFlags,
		SafetyTriggers:         triggers,
		RiskScores:             RiskScores(structured, vitals),
		Confidence:             confidence,
		UncertaintyReasons:     reasons,
		RecommendedNextActions: MergeActions(SynthesizeActions(tier, redFlags, vitals), callerActions),
	}, nil
}

func (p *Pipeline) runCommunication(ctx context.Context, structured *StructuredIntake, safety *SafetyOutput, reasoning *ReasoningOutput) (*CommunicationOutput, error) {
	draftClinician, draftPatient := communicationDrafts(safety, reasoning)

	if p.comms == nil {
		return deterministicCommunication(safety, reasoning), nil
	}
	if !p.guard.Allow(structured.PHIHits) {
		out := deterministicCommunication(safety, reasoning)
		out.SkippedReason = phiSkipReason(structured.PHIHits)
		return out, nil
	}

	out, err := p.comms.Compose(ctx, safety, reasoning, draftClinician, draftPatient)
	if err != nil {
		fb := deterministicCommunication(safety, reasoning)
		fb.BackendError = err.Error()
		return fb, nil
	}
	return out, nil
}

func phiSkipReason(hits []string) string {
	return fmt.Sprintf("phi guard: detected %s; external call blocked", strings.Join(hits, ", "))
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
