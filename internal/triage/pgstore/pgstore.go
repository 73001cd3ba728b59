// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/clinicaflow/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage audit records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const recordColumns = `id, request_id, created_at, intake, result`

// Get retrieves a triage record by ID.
//
//nolint:dupl // similar structure to GetByRequestID is intentional
func (s *Store) Get(ctx context.Context, id string) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE id = $1`
	r, err := scanRecordRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// GetByRequestID retrieves the most recent triage record for a request ID.
//
//nolint:dupl // similar structure to Get is intentional
func (s *Store) GetByRequestID(ctx context.Context, requestID string) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByRequestID", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE request_id = $1 ORDER BY created_at DESC LIMIT 1`
	r, err := scanRecordRow(s.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// Put inserts or updates a triage record (upsert on id).
func (s *Store) Put(ctx context.Context, r *triage.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	intakeJSON, err := json.Marshal(r.Intake)
	if err != nil {
		return fmt.Errorf("marshal intake: %w", err)
	}
	resultJSON, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `INSERT INTO triage_records (
		id, request_id, created_at, risk_tier, escalation_required, confidence,
		pipeline_version, intake, result
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (id) DO UPDATE SET
		request_id          = EXCLUDED.request_id,
		risk_tier           = EXCLUDED.risk_tier,
		escalation_required = EXCLUDED.escalation_required,
		confidence          = EXCLUDED.confidence,
		pipeline_version    = EXCLUDED.pipeline_version,
		intake              = EXCLUDED.intake,
		result              = EXCLUDED.result`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.RequestID, r.CreatedAt, string(r.Result.RiskTier), r.Result.EscalationRequired,
		r.Result.Confidence, r.Result.PipelineVersion, intakeJSON, resultJSON,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*triage.Record, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + recordColumns + ` FROM triage_records ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*triage.Record
	for rows.Next() {
		r, err := scanRecordRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// scanRecordRow scans a single row into a triage.Record. Returns (nil, nil)
// when no row is found.
func scanRecordRow(row pgx.Row) (*triage.Record, error) {
	var (
		r          triage.Record
		intakeJSON []byte
		resultJSON []byte
	)

	err := row.Scan(&r.ID, &r.RequestID, &r.CreatedAt, &intakeJSON, &resultJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	if err := json.Unmarshal(intakeJSON, &r.Intake); err != nil {
		return nil, fmt.Errorf("unmarshal intake: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &r.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}

	return &r, nil
}
