package triage

import (
	"context"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Notifier delivers escalation notices. Implementations must be safe for
// concurrent use.
type Notifier interface {
	NotifyEscalation(ctx context.Context, rec *Record) error
}

// Service is the business boundary for triage operations: it runs the
// pipeline, persists the audit record, and fans out escalation notices.
type Service struct {
	store    Store
	pipeline *Pipeline
	notifier Notifier
	logger   log.Logger
}

// NewService creates a new triage service. notifier may be nil.
func NewService(store Store, pipeline *Pipeline, notifier Notifier, logger log.Logger) *Service {
	return &Service{
		store:    store,
		pipeline: pipeline,
		notifier: notifier,
		logger:   logger,
	}
}

// Submit runs the pipeline on an intake and persists the record.
//
// Submissions carrying a request ID are idempotent: a repeat of an already
// processed request returns the stored record without re-running the
// pipeline.
func (s *Service) Submit(ctx context.Context, intake *PatientIntake, requestID string) (*Record, bool, error) {
	if requestID != "" {
		if existing, ok, err := s.store.GetByRequestID(ctx, requestID); err != nil {
			return nil, false, err
		} else if ok {
			return existing, true, nil
		}
	}

	result := s.pipeline.Run(ctx, intake, requestID)

	rec := &Record{
		ID:        ulid.Make().String(),
		RequestID: result.RequestID,
		CreatedAt: result.CreatedAt,
		Intake:    intake,
		Result:    result,
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return nil, false, err
	}

	if result.EscalationRequired && s.notifier != nil {
		// notify off the request path - pass only the ID so the goroutine
		// rereads the persisted record.
		go s.notifyEscalation(context.WithoutCancel(ctx), rec.ID)
	}

	return rec, false, nil
}

// Get retrieves a triage record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns the most recent triage records, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*Record, error) {
	return s.store.List(ctx, limit)
}

func (s *Service) notifyEscalation(ctx context.Context, id string) {
	L := s.logger.With("record_id", id)

	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		L.Error(ctx, err, "failed to fetch record for escalation notice")
		return
	}
	if !ok {
		L.Warn(ctx, "record missing for escalation notice")
		return
	}

	if err := s.notifier.NotifyEscalation(ctx, rec); err != nil {
		L.Error(ctx, err, "failed to deliver escalation notice")
		return
	}

	L.Info(ctx, "escalation notice delivered", "risk_tier", rec.Result.RiskTier)
}
