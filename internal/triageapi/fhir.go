package triageapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/clinicaflow/internal/fhirexport"
)

func (a *API) handleGetFHIR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	redact := false
	if raw := r.URL.Query().Get("redact"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, `{"error":"invalid redact"}`, http.StatusBadRequest)
			return
		}
		redact = v
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("clinicaflow.triage.id", id),
		attribute.Bool("clinicaflow.fhir.redact", redact),
	)

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

	bundle := fhirexport.Build(rec.Intake, rec.Result, fhirexport.Options{Redact: redact})

	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(bundle)
}
