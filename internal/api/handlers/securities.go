package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/internal/ledger"
	"github.com/halallens/screener/pkg/logger"
	"github.com/halallens/screener/pkg/redis"
)

// SecurityHandler serves screening state for securities: effective
// status, ledger history and transition sequences. InsufficientData
// and NonCompliant are always distinct statuses in responses.
type SecurityHandler struct {
	securities contracts.SecurityRepository
	ledger     *ledger.Ledger
	cache      *redis.Cache
	logger     *logger.Logger
}

// NewSecurityHandler creates a new security handler
func NewSecurityHandler(securities contracts.SecurityRepository, ldg *ledger.Ledger, cache *redis.Cache, log *logger.Logger) *SecurityHandler {
	return &SecurityHandler{
		securities: securities,
		ledger:     ldg,
		cache:      cache,
		logger:     log,
	}
}

// StatusResponse is the effective compliance state for one security
type StatusResponse struct {
	SecurityID string             `json:"security_id"`
	AsOf       string             `json:"as_of"`
	Status     contracts.Status   `json:"status"`
	Verdict    *contracts.Verdict `json:"verdict,omitempty"`
}

// List returns the security master
// GET /api/securities
func (h *SecurityHandler) List(w http.ResponseWriter, r *http.Request) {
	securities, err := h.securities.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list securities")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve securities")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"securities": securities,
		"count":      len(securities),
	})
}

// GetStatus returns the effective status as of a date (default: today)
// GET /api/securities/{id}/status?date=2025-06-30
func (h *SecurityHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	if _, err := h.securities.GetByID(ctx, id); err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Unknown security")
			return
		}
		h.logger.WithError(err).Error("Failed to load security")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve security")
		return
	}

	cacheKey := fmt.Sprintf("status:%s:%s", id, date.Format("2006-01-02"))
	if h.cache != nil {
		var cached StatusResponse
		if hit, err := h.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	verdict, err := h.ledger.VerdictAsOf(ctx, id, date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to derive status")
		respondError(w, http.StatusInternalServerError, "Failed to derive status")
		return
	}

	resp := StatusResponse{
		SecurityID: id,
		AsOf:       date.Format("2006-01-02"),
		Status:     contracts.StatusInsufficientData,
	}
	if verdict != nil {
		resp.Status = verdict.Status
		resp.Verdict = verdict
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cacheKey, resp, 5*time.Minute); err != nil {
			h.logger.WithError(err).Debug("Failed to cache status")
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetHistory returns the verdict history within a date range
// GET /api/securities/{id}/history?from=2024-01-01&to=2025-12-31
func (h *SecurityHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	from := time.Time{}
	to := time.Now().UTC()
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD")
			return
		}
		to = parsed
	}

	history, err := h.ledger.History(ctx, id, from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"security_id": id,
		"verdicts":    history,
		"count":       len(history),
	})
}

// GetTransitions returns status transitions since a timestamp
// GET /api/securities/{id}/transitions?since=2025-01-01
func (h *SecurityHandler) GetTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid since date, expected YYYY-MM-DD")
			return
		}
		since = parsed
	}

	transitions, err := h.ledger.TransitionsSince(ctx, id, since)
	if err != nil {
		h.logger.WithError(err).Error("Failed to derive transitions")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve transitions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"security_id": id,
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// UpdateSectorRequest is the administrative sector correction payload
type UpdateSectorRequest struct {
	Sector string `json:"sector"`
}

// UpdateSector corrects the sector code for a security
// PUT /api/securities/{id}/sector
func (h *SecurityHandler) UpdateSector(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	var req UpdateSectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Sector == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.securities.UpdateSector(ctx, id, req.Sector); err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Unknown security")
			return
		}
		h.logger.WithError(err).Error("Failed to update sector")
		respondError(w, http.StatusInternalServerError, "Failed to update sector")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"security_id": id,
		"sector":      req.Sector,
	})
}
