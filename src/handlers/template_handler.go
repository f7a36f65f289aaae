package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/template"
	"github.com/username/finloader/backend/src/utils"
)

// TemplateHandler serves the statement template: sections, fields, and the
// validation checks. The template is immutable for the life of the process,
// so responses carry an ETag and honor If-None-Match.
type TemplateHandler struct {
	graph *template.Graph
}

func NewTemplateHandler(graph *template.Graph) *TemplateHandler {
	return &TemplateHandler{graph: graph}
}

type templateResponse struct {
	Statements map[models.StatementType]statementTemplate `json:"statements"`
}

type statementTemplate struct {
	Sections []template.SectionGroup `json:"sections"`
	Checks   []template.Check        `json:"checks"`
}

func (h *TemplateHandler) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	response := templateResponse{
		Statements: map[models.StatementType]statementTemplate{
			models.IncomeStatement: {
				Sections: h.graph.Sections(models.IncomeStatement),
				Checks:   h.graph.Checks(models.IncomeStatement),
			},
			models.BalanceSheet: {
				Sections: h.graph.Sections(models.BalanceSheet),
				Checks:   h.graph.Checks(models.BalanceSheet),
			},
		},
	}

	etag, err := utils.GenerateETag(response)
	if err == nil {
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.L.Error("Failed to encode template response", "error", err)
	}
}
