package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/V4T54L/baitwatch/internal/domain"
	"github.com/V4T54L/baitwatch/internal/usecase"
)

// IngestStatus exposes the live state of the ingestion worker.
type IngestStatus interface {
	State() usecase.IngestState
	Stats() usecase.IngestStats
}

// SignatureSource is the loaded rule set plus where it came from.
type SignatureSource interface {
	domain.RuleSet
	Version() int
	Source() string
}

// AdminHandler serves read-only introspection endpoints.
type AdminHandler struct {
	status     IngestStatus
	signatures SignatureSource
	classifier usecase.Classifier
	logger     *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. status may be nil when no
// ingestor runs in this process.
func NewAdminHandler(status IngestStatus, signatures SignatureSource, classifier usecase.Classifier, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		status:     status,
		signatures: signatures,
		classifier: classifier,
		logger:     logger,
	}
}

type healthResponse struct {
	Status      string               `json:"status"`
	IngestState string               `json:"ingest_state,omitempty"`
	Stats       *usecase.IngestStats `json:"stats,omitempty"`
}

// HealthCheck reports liveness and, when available, the ingestor state.
// GET /health
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.status != nil {
		stats := h.status.Stats()
		resp.IngestState = h.status.State().String()
		resp.Stats = &stats
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

type signatureView struct {
	ID         string             `json:"id"`
	Target     domain.TargetField `json:"target"`
	Pattern    string             `json:"pattern"`
	Category   string             `json:"category"`
	ScoreDelta int                `json:"score_delta"`
	Order      int                `json:"order"`
}

type signaturesResponse struct {
	Version int             `json:"version"`
	Source  string          `json:"source"`
	Rules   []signatureView `json:"rules"`
}

// ListSignatures returns the loaded rules in insertion order.
// GET /signatures
func (h *AdminHandler) ListSignatures(w http.ResponseWriter, r *http.Request) {
	rules := h.signatures.Rules()
	resp := signaturesResponse{
		Version: h.signatures.Version(),
		Source:  h.signatures.Source(),
		Rules:   make([]signatureView, 0, len(rules)),
	}

	target := r.URL.Query().Get("target")
	if target != "" {
		if !domain.TargetField(target).Valid() {
			http.Error(w, "unknown target", http.StatusBadRequest)
			return
		}
		rules = h.signatures.RulesFor(domain.TargetField(target))
	}

	for _, rule := range rules {
		resp.Rules = append(resp.Rules, signatureView{
			ID:         rule.ID,
			Target:     rule.Target,
			Pattern:    rule.Pattern,
			Category:   rule.Category,
			ScoreDelta: rule.ScoreDelta,
			Order:      rule.Order,
		})
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// Classify runs the classifier on the given pair.
// GET /classify?ua={userAgent}&path={path}
func (h *AdminHandler) Classify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("ua") && !q.Has("path") {
		http.Error(w, "ua or path query parameter is required", http.StatusBadRequest)
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.classifier.Classify(q.Get("ua"), q.Get("path")))
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
