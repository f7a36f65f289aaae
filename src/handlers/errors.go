package handlers

import (
	"errors"
	"net/http"

	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/oracle"
	"github.com/username/finloader/backend/src/rules"
	"github.com/username/finloader/backend/src/services"
	"github.com/username/finloader/backend/src/snapshots"
	"github.com/username/finloader/backend/src/template"
	"github.com/username/finloader/backend/src/utils"
)

// writeServiceError maps service sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body; the detail goes to the log, not
// the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, snapshots.ErrSnapshotNotFound),
		errors.Is(err, snapshots.ErrCorrectionNotFound),
		errors.Is(err, services.ErrCompanyNotFound),
		errors.Is(err, services.ErrNothingToFinalize):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)

	case errors.Is(err, snapshots.ErrStaleVersion),
		errors.Is(err, services.ErrCompanyExists),
		errors.Is(err, services.ErrUnresolvedFlags):
		utils.SendJSONError(w, err.Error(), http.StatusConflict)

	case errors.Is(err, snapshots.ErrUnknownField),
		errors.Is(err, snapshots.ErrMissingReasoning),
		errors.Is(err, services.ErrInvalidCompany),
		errors.Is(err, services.ErrUnknownStatementType),
		errors.Is(err, template.ErrUnknownField):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, oracle.ErrOracleUnavailable):
		utils.SendJSONError(w, "classification oracle unavailable, try again later", http.StatusServiceUnavailable)

	case errors.Is(err, rules.ErrMergeAmbiguous):
		utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)

	default:
		logger.L.Error("Unhandled service error", "error", err, "method", r.Method, "path", r.URL.Path)
		utils.SendJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
