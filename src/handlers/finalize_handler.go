package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/username/finloader/backend/src/config"
	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/services"
	"github.com/username/finloader/backend/src/utils"
)

type FinalizeHandler struct {
	finalize services.FinalizeService
}

func NewFinalizeHandler(finalize services.FinalizeService) *FinalizeHandler {
	return &FinalizeHandler{finalize: finalize}
}

type finalizeRequest struct {
	CompanyID int64  `json:"companyId"`
	Period    string `json:"period"`
}

func (h *FinalizeHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxRequestBytes)

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	period, err := utils.NormalizePeriod(req.Period)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid period: %v", err), http.StatusBadRequest)
		return
	}

	final, err := h.finalize.Finalize(req.CompanyID, period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	logger.L.Info("Finalize request completed", "companyId", req.CompanyID, "period", period)
	utils.SendJSON(w, final, http.StatusOK)
}

func (h *FinalizeHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyIDFromQuery(w, r)
	if !ok {
		return
	}
	period, err := utils.NormalizePeriod(r.URL.Query().Get("period"))
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid period: %v", err), http.StatusBadRequest)
		return
	}

	data, err := h.finalize.ExportCSV(companyID, period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("statement_%d_%s.csv", companyID, period)))
	if _, err := w.Write(data); err != nil {
		logger.L.Error("Failed to write CSV export", "error", err)
	}
}

func companyIDFromQuery(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("companyId"), 10, 64)
	if err != nil || id <= 0 {
		utils.SendJSONError(w, "companyId query parameter required", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
