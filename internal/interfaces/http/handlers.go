package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/7789996399/Meerkat-API/internal/domain"
	"github.com/7789996399/Meerkat-API/internal/governance"
	appmetrics "github.com/7789996399/Meerkat-API/internal/metrics"
	"github.com/7789996399/Meerkat-API/internal/shield"
	"github.com/7789996399/Meerkat-API/internal/store"
)

// ErrorResponse is the standard error body for all endpoints.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Handlers manages all HTTP endpoint handlers.
type Handlers struct {
	orchestrator *governance.Orchestrator
	aggregator   *appmetrics.Aggregator
	shieldLog    *appmetrics.ShieldLog
	metrics      *MetricsRegistry
	stream       *StreamHub
	started      time.Time
}

// NewHandlers wires the endpoint handlers to the verification pipeline.
// The stream hub is subscribed to verdicts so connected dashboards see
// every verification live.
func NewHandlers(orch *governance.Orchestrator, agg *appmetrics.Aggregator, shieldLog *appmetrics.ShieldLog, metrics *MetricsRegistry) *Handlers {
	if metrics == nil {
		metrics = NewMetricsRegistry()
	}
	h := &Handlers{
		orchestrator: orch,
		aggregator:   agg,
		shieldLog:    shieldLog,
		metrics:      metrics,
		started:      time.Now(),
	}
	h.stream = NewStreamHub(func(n int) {
		if metrics != nil {
			metrics.StreamClients.Set(float64(n))
		}
	})
	orch.OnVerdict(func(v domain.TrustVerdict) {
		h.stream.Broadcast(v)
	})
	orch.OnCheck(func(name domain.Check, elapsed time.Duration, timedOut bool) {
		if metrics == nil {
			return
		}
		result := "ok"
		if timedOut {
			result = "timeout"
		}
		metrics.CheckDuration.WithLabelValues(string(name), result).Observe(elapsed.Seconds())
	})
	return h
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, ok := r.Context().Value(requestIDKey).(string)
	if !ok {
		requestID = "unknown"
	}

	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// NotFound handles 404 responses.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

// Verify handles POST /v1/verify: run the configured checks against one
// AI output and return the fused trust verdict.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	verdict, err := h.orchestrator.Verify(r.Context(), req)
	if err != nil {
		if errors.Is(err, governance.ErrUnknownConfig) {
			h.writeError(w, r, http.StatusBadRequest, "unknown_config", err.Error())
			return
		}
		if errors.Is(err, governance.ErrAuditWrite) {
			log.Error().Err(err).Msg("Audit trail unavailable")
			h.writeError(w, r, http.StatusServiceUnavailable, "audit_write_failed",
				"Verification ran but could not be recorded in the audit trail")
			return
		}
		log.Error().Err(err).Msg("Verification failed")
		h.writeError(w, r, http.StatusInternalServerError, "verification_failed", "Verification could not be completed")
		return
	}

	if h.metrics != nil {
		h.metrics.Verifications.WithLabelValues(string(verdict.Status)).Inc()
		h.metrics.TrustScores.Observe(float64(verdict.TrustScore))
		for name, res := range verdict.Checks {
			if strings.Contains(res.Detail, "(heuristic --") {
				h.metrics.Fallbacks.WithLabelValues(string(name)).Inc()
			}
		}
	}
	h.writeJSON(w, http.StatusOK, verdict)
}

// Shield handles POST /v1/shield: pre-flight scan of a user prompt for
// injection and exfiltration attempts before it reaches a model.
func (h *Handlers) Shield(w http.ResponseWriter, r *http.Request) {
	var req domain.ShieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}
	if req.Input == "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "input is required")
		return
	}

	resp := shield.Scan(req.Input, req.Sensitivity)
	if resp.Action == shield.ActionBlock {
		h.shieldLog.RecordBlock(time.Now().UTC())
	}
	if h.metrics != nil {
		h.metrics.ShieldScans.WithLabelValues(resp.Action).Inc()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Audit handles GET /v1/audit/{id}.
func (h *Handlers) Audit(w http.ResponseWriter, r *http.Request) {
	auditID := mux.Vars(r)["id"]

	record, err := h.orchestrator.Audit(r.Context(), auditID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "audit_not_found", "No audit record with that id")
			return
		}
		log.Error().Err(err).Str("audit_id", auditID).Msg("Audit lookup failed")
		h.writeError(w, r, http.StatusInternalServerError, "audit_lookup_failed", "Audit record could not be read")
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// Configure handles POST /v1/configure: register an organization's
// governance policy and return its assigned config id.
func (h *Handlers) Configure(w http.ResponseWriter, r *http.Request) {
	var cfg domain.GovernanceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}

	stored, err := h.orchestrator.Configure(r.Context(), cfg)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"config_id": stored.ConfigID,
		"domain":    stored.Domain,
		"status":    "active",
		"created":   stored.Created,
	})
}

// Dashboard handles GET /v1/dashboard?period=7d|30d|90d.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "7d"
	}

	metrics, err := h.aggregator.Dashboard(r.Context(), period)
	if err != nil {
		var badPeriod appmetrics.ErrBadPeriod
		if errors.As(err, &badPeriod) {
			h.writeError(w, r, http.StatusBadRequest, "invalid_period", err.Error())
			return
		}
		log.Error().Err(err).Msg("Dashboard aggregation failed")
		h.writeError(w, r, http.StatusInternalServerError, "dashboard_failed", "Dashboard could not be computed")
		return
	}
	h.writeJSON(w, http.StatusOK, metrics)
}

// Health handles GET /v1/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"stream_clients": h.stream.ClientCount(),
		"timestamp":      time.Now().UTC(),
	})
}

// Stream handles GET /v1/stream websocket upgrades.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	h.stream.Handle(w, r)
}
