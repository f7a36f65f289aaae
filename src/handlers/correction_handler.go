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

type CorrectionHandler struct {
	corrections services.CorrectionService
}

func NewCorrectionHandler(corrections services.CorrectionService) *CorrectionHandler {
	return &CorrectionHandler{corrections: corrections}
}

type correctionRequest struct {
	SnapshotID string            `json:"snapshotId"`
	Version    int               `json:"version"`
	Correction models.Correction `json:"correction"`
}

func (h *CorrectionHandler) HandleSubmitCorrection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxRequestBytes)

	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.SnapshotID == "" || req.Correction.FieldID == "" {
		utils.SendJSONError(w, "snapshotId and correction.fieldId are required", http.StatusBadRequest)
		return
	}

	snap, err := h.corrections.SubmitCorrection(r.Context(), req.SnapshotID, req.Correction, req.Version)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	logger.L.Info("Correction applied",
		"snapshotId", snap.ID, "field", req.Correction.FieldID,
		"tag", req.Correction.Tag, "version", snap.Version)
	utils.SendJSON(w, snap, http.StatusOK)
}

type revertRequest struct {
	SnapshotID string `json:"snapshotId"`
	FieldID    string `json:"fieldId"`
	Version    int    `json:"version"`
}

func (h *CorrectionHandler) HandleRevertCorrection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxRequestBytes)

	var req revertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.SnapshotID == "" || req.FieldID == "" {
		utils.SendJSONError(w, "snapshotId and fieldId are required", http.StatusBadRequest)
		return
	}

	snap, err := h.corrections.RevertCorrection(req.SnapshotID, req.FieldID, req.Version)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, snap, http.StatusOK)
}
