// Package triageapi exposes the triage pipeline over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/clinicaflow/internal/triage"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// maxRequestBytes bounds intake payloads.
const maxRequestBytes = 1 << 20

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Submit(ctx context.Context, intake *triage.PatientIntake, requestID string) (*triage.Record, bool, error)
	Get(ctx context.Context, id string) (*triage.Record, bool, error)
	List(ctx context.Context, limit int) ([]*triage.Record, error)
}

// Diagnostics supplies the safe runtime diagnostics payload (no secrets).
type Diagnostics func(ctx context.Context) map[string]any

// API holds dependencies for HTTP handlers.
type API struct {
	logger      log.Logger
	svc         TriageService
	diagnostics Diagnostics
}

// New creates a new API handler. diagnostics may be nil.
func New(logger log.Logger, svc TriageService, diagnostics Diagnostics) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger:      logger,
		svc:         svc,
		diagnostics: diagnostics,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", a.handleSubmit)
		r.Get("/triage", a.handleList)
		r.Get("/triage/{id}", a.handleGet)
		r.Get("/triage/{id}/fhir", a.handleGetFHIR)
		r.Get("/diagnostics", a.handleDiagnostics)
	})
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req struct {
		triage.PatientIntake
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	rec, replayed, err := a.svc.Submit(r.Context(), &req.PatientIntake, req.RequestID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to submit intake", "request_id", req.RequestID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("clinicaflow.triage.id", rec.ID),
		attribute.String("clinicaflow.triage.risk_tier", string(rec.Result.RiskTier)),
		attribute.Bool("clinicaflow.triage.replayed", replayed),
	)

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, rec)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("clinicaflow.triage.id", id))

	rec, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get triage record", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("clinicaflow.triage.risk_tier", string(rec.Result.RiskTier)))

	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := a.svc.List(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list triage records")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*triage.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (a *API) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{}
	if a.diagnostics != nil {
		payload = a.diagnostics(r.Context())
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
