package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/username/finloader/backend/src/config"
	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/services"
	"github.com/username/finloader/backend/src/snapshots"
	"github.com/username/finloader/backend/src/utils"
)

type CompanyHandler struct {
	companies *services.CompanyStore
	context   services.ContextService
	manager   *snapshots.Manager
}

func NewCompanyHandler(companies *services.CompanyStore, contextService services.ContextService, manager *snapshots.Manager) *CompanyHandler {
	return &CompanyHandler{
		companies: companies,
		context:   contextService,
		manager:   manager,
	}
}

func (h *CompanyHandler) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.companies.List()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, companies, http.StatusOK)
}

func (h *CompanyHandler) HandleCreateCompany(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxRequestBytes)

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	company, err := h.companies.Create(req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	logger.L.Info("Company created", "companyId", company.ID, "name", company.Name)
	utils.SendJSON(w, company, http.StatusCreated)
}

func (h *CompanyHandler) HandleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := companyIDFromPath(w, r)
	if !ok {
		return
	}
	company, err := h.companies.Get(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, company, http.StatusOK)
}

// HandleGetCompanyRules returns the company's classification context document
// as markdown.
func (h *CompanyHandler) HandleGetCompanyRules(w http.ResponseWriter, r *http.Request) {
	id, ok := companyIDFromPath(w, r)
	if !ok {
		return
	}
	doc, err := h.context.CompanyRules(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if _, err := w.Write([]byte(doc)); err != nil {
		logger.L.Error("Failed to write company rules response", "error", err)
	}
}

// HandleReprocessCompany drains the company's correction queue into its
// context document, then re-derives every snapshot against the result.
func (h *CompanyHandler) HandleReprocessCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := companyIDFromPath(w, r)
	if !ok {
		return
	}
	if _, err := h.companies.Get(id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	merged, err := h.context.ProcessCompany(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	rederived, err := h.manager.RederiveCompany(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	logger.L.Info("Company reprocessed", "companyId", id, "mergedCorrections", merged, "rederivedSnapshots", rederived)
	utils.SendJSON(w, map[string]int{
		"mergedCorrections":  merged,
		"rederivedSnapshots": rederived,
	}, http.StatusOK)
}

func companyIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid company id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
