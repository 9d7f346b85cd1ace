package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"strategy-pipeline-go/internal/models"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db}
}

// CandidatesHandler returns every lifecycle record, newest first.
func (h *APIHandler) CandidatesHandler(w http.ResponseWriter, r *http.Request) {
	var records []models.PromotionRecord
	if err := h.db.Order("created_at desc").Find(&records).Error; err != nil {
		h.log.Error("Failed to get records from database", zap.Error(err))
		http.Error(w, "Failed to get records", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// PromotedHandler returns the records currently in the promoted state.
func (h *APIHandler) PromotedHandler(w http.ResponseWriter, r *http.Request) {
	var records []models.PromotionRecord
	if err := h.db.
		Where("status = ?", models.StatusPromoted).
		Order("composite_score desc").
		Find(&records).Error; err != nil {
		h.log.Error("Failed to get promoted records", zap.Error(err))
		http.Error(w, "Failed to get promoted records", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	TotalRecords int64   `json:"total_records"`
	Candidates   int64   `json:"candidates"`
	PaperTesting int64   `json:"paper_testing"`
	Promoted     int64   `json:"promoted"`
	Retired      int64   `json:"retired"`
	BestScore    float64 `json:"best_score"`
}

// StatisticsHandler summarizes the lifecycle ledger by state.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	var records []models.PromotionRecord
	if err := h.db.Find(&records).Error; err != nil {
		h.log.Error("Failed to get records for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	response := StatisticsResponse{}
	for _, rec := range records {
		response.TotalRecords++
		switch rec.Status {
		case models.StatusCandidate:
			response.Candidates++
		case models.StatusPaperTesting:
			response.PaperTesting++
		case models.StatusPromoted:
			response.Promoted++
		case models.StatusRetired:
			response.Retired++
		}
		if rec.Status != models.StatusRetired && rec.CompositeScore > response.BestScore {
			response.BestScore = rec.CompositeScore
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
