package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/internal/pipeline"
	"github.com/halallens/screener/pkg/logger"
)

// PipelineHandler triggers pipeline runs over the API
type PipelineHandler struct {
	orchestrator *pipeline.Orchestrator
	logger       *logger.Logger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(orch *pipeline.Orchestrator, log *logger.Logger) *PipelineHandler {
	return &PipelineHandler{
		orchestrator: orch,
		logger:       log,
	}
}

// RunRequest bounds a manual pipeline run
type RunRequest struct {
	Limit int `json:"limit"`
}

// Run processes pending filings and returns the batch report
// POST /api/pipeline/run
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.Body != nil {
		// an empty body means "run everything pending"
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	report, err := h.orchestrator.RunPending(r.Context(), req.Limit)
	if err != nil {
		h.logger.WithError(err).Error("Pipeline run failed")
		respondError(w, http.StatusInternalServerError, "Pipeline run failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// BackfillRequest names the filing to force into the ledger
type BackfillRequest struct {
	FilingID string `json:"filing_id"`
}

// Backfill forces one out-of-order filing through the pipeline
// POST /api/pipeline/backfill
func (h *PipelineHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FilingID == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body, filing_id required")
		return
	}

	transitions, err := h.orchestrator.Backfill(r.Context(), req.FilingID)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Unknown filing")
			return
		}
		h.logger.WithError(err).Error("Backfill failed")
		respondError(w, http.StatusInternalServerError, "Backfill failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"filing_id":   req.FilingID,
		"transitions": transitions,
		"count":       len(transitions),
	})
}
