package triage

import "context"

// Store is the persistence interface for triage audit records.
type Store interface {
	Get(ctx context.Context, id string) (*Record, bool, error)
	GetByRequestID(ctx context.Context, requestID string) (*Record, bool, error)
	Put(ctx context.Context, rec *Record) error
	List(ctx context.Context, limit int) ([]*Record, error)
}
