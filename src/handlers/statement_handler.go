package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/finloader/backend/src/config"
	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/services"
	"github.com/username/finloader/backend/src/utils"
)

// StatementHandler covers classification, direct derivation, and snapshot
// reads.
type StatementHandler struct {
	classification services.ClassificationService
}

func NewStatementHandler(classification services.ClassificationService) *StatementHandler {
	return &StatementHandler{classification: classification}
}

type classifyRequest struct {
	CompanyID     int64                `json:"companyId"`
	StatementType models.StatementType `json:"statementType"`
	Period        string               `json:"period"`
	LineItems     map[string]*float64  `json:"lineItems"`
}

func (h *StatementHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxRequestBytes)

	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.LineItems) == 0 {
		utils.SendJSONError(w, "lineItems must not be empty", http.StatusBadRequest)
		return
	}
	period, err := utils.NormalizePeriod(req.Period)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid period: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.classification.ClassifyStatement(r.Context(), req.CompanyID, req.StatementType, period, req.LineItems)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	logger.L.Info("Classification request completed",
		"companyId", req.CompanyID, "statement", req.StatementType, "period", period,
		"snapshotId", result.Snapshot.ID)
	utils.SendJSON(w, result, http.StatusCreated)
}

type deriveRequest struct {
	CompanyID     int64                 `json:"companyId"`
	StatementType models.StatementType  `json:"statementType"`
	Period        string                `json:"period"`
	Assignment    models.LeafAssignment `json:"assignment"`
}

func (h *StatementHandler) HandleDerive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxRequestBytes)

	var req deriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Assignment.Values) == 0 {
		utils.SendJSONError(w, "assignment.values must not be empty", http.StatusBadRequest)
		return
	}
	period, err := utils.NormalizePeriod(req.Period)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid period: %v", err), http.StatusBadRequest)
		return
	}

	snap, err := h.classification.DeriveStatement(req.CompanyID, req.StatementType, period, req.Assignment)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, snap, http.StatusCreated)
}

func (h *StatementHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.SendJSONError(w, "snapshot id required", http.StatusBadRequest)
		return
	}
	snap, err := h.classification.GetSnapshot(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, snap, http.StatusOK)
}
