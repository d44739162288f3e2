package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vigil-sys/vigil/internal/config"
	"github.com/vigil-sys/vigil/internal/engine"
	"github.com/vigil-sys/vigil/internal/models"
)

// Handler serves assessment reads. All responses are JSON.
type Handler struct {
	publisher *engine.Publisher
	display   config.DisplayConfig
	logger    *slog.Logger
}

// NewHandler constructs the read-side handler over the publisher.
func NewHandler(publisher *engine.Publisher, display config.DisplayConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{publisher: publisher, display: display, logger: logger}
}

// Routes builds the HTTP mux for the API surface.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /v1/assessment", h.handleAssessment)
	mux.HandleFunc("GET /v1/issues", h.handleIssues)
	return mux
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAssessment returns the latest assessment, capped to the configured
// display limits. 404 until the first cycle completes.
func (h *Handler) handleAssessment(w http.ResponseWriter, r *http.Request) {
	assessment, ok := h.publisher.Latest()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no assessment available yet")
		return
	}
	assessment.CorrelatedIssues = capIssues(assessment.CorrelatedIssues, h.display.MaxIssues)
	if h.display.MaxTrends > 0 && len(assessment.Trends) > h.display.MaxTrends {
		assessment.Trends = assessment.Trends[:h.display.MaxTrends]
	}
	if h.display.MaxRecoveries > 0 && len(assessment.Recoveries) > h.display.MaxRecoveries {
		assessment.Recoveries = assessment.Recoveries[:h.display.MaxRecoveries]
	}
	h.writeJSON(w, http.StatusOK, assessment)
}

// handleIssues returns the top-N issues of the latest assessment. The list
// is already sorted worst-first by the correlation engine.
func (h *Handler) handleIssues(w http.ResponseWriter, r *http.Request) {
	assessment, ok := h.publisher.Latest()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no assessment available yet")
		return
	}

	top := h.display.MaxIssues
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		top = n
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"assessment_id": assessment.AssessmentID,
		"timestamp":     assessment.Timestamp,
		"health_score":  assessment.HealthScore,
		"issues":        capIssues(assessment.CorrelatedIssues, top),
	})
}

func capIssues(issues []models.CorrelatedIssue, limit int) []models.CorrelatedIssue {
	if limit > 0 && len(issues) > limit {
		return issues[:limit]
	}
	return issues
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
