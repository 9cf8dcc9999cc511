// Package api serves the operational HTTP surface: health, positions,
// scans and opportunity status updates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/trogers1052/earnings-opportunity-service/internal/database"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
	"github.com/trogers1052/earnings-opportunity-service/internal/opportunity"
)

// PositionService values holders' positions
type PositionService interface {
	AggregatePositions(ctx context.Context, holderID string) (*models.PortfolioSummary, error)
	RealizedLots(ctx context.Context, holderID string, filter models.TransactionFilter) ([]models.RealizedLot, error)
}

// ScanService runs scans and moves opportunities through their lifecycle
type ScanService interface {
	Scan(ctx context.Context, req opportunity.ScanRequest) (*opportunity.ScanResult, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*models.Opportunity, error)
}

// OpportunityLister reads stored opportunities
type OpportunityLister interface {
	ListOpportunities(ctx context.Context, filter database.OpportunityFilter) ([]*models.Opportunity, error)
}

// Pinger reports whether the database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	positions     PositionService
	scanner       ScanService
	opportunities OpportunityLister
	db            Pinger
	log           zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(positions PositionService, scanner ScanService, opportunities OpportunityLister, db Pinger, log zerolog.Logger) *Handler {
	return &Handler{
		positions:     positions,
		scanner:       scanner,
		opportunities: opportunities,
		db:            db,
		log:           log.With().Str("component", "api").Logger(),
	}
}

// GetPositions handles GET /holders/{holder}/positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	holderID := mux.Vars(r)["holder"]

	summary, err := h.positions.AggregatePositions(r.Context(), holderID)
	if err != nil {
		h.log.Error().Err(err).Str("holder_id", holderID).Msg("Failed to aggregate positions")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetRealizedLots handles GET /holders/{holder}/realized
func (h *Handler) GetRealizedLots(w http.ResponseWriter, r *http.Request) {
	holderID := mux.Vars(r)["holder"]
	query := r.URL.Query()
	filter := models.TransactionFilter{
		InstrumentID: query.Get("instrument"),
		AccountClass: query.Get("account"),
	}
	if filter.AccountClass != "" && !models.ValidAccountClass(filter.AccountClass) {
		http.Error(w, "invalid account class", http.StatusBadRequest)
		return
	}

	lots, err := h.positions.RealizedLots(r.Context(), holderID, filter)
	if err != nil {
		h.log.Error().Err(err).Str("holder_id", holderID).Msg("Failed to load realized lots")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, lots)
}

// RunScan handles POST /scans
func (h *Handler) RunScan(w http.ResponseWriter, r *http.Request) {
	// An empty body, chunked or not, runs a scan with the defaults
	var req opportunity.ScanRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.scanner.Scan(r.Context(), req)
	if errors.Is(err, opportunity.ErrInvalidMode) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("mode", req.Mode).Msg("Scan failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ListOpportunities handles GET /opportunities
func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := database.OpportunityFilter{
		HolderID: query.Get("holder"),
		Status:   query.Get("status"),
	}
	if filter.Status != "" && !models.ValidOpportunityStatus(filter.Status) {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	opps, err := h.opportunities.ListOpportunities(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list opportunities")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, opps)
}

// UpdateOpportunityStatus handles PATCH /opportunities/{id}
func (h *Handler) UpdateOpportunityStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid opportunity id", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	opp, err := h.scanner.UpdateStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, opportunity.ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to update opportunity status")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, opp)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
