package services

import (
	"context"

	"github.com/username/finloader/backend/src/models"
)

// ClassificationResult pairs the created snapshot with the raw components of
// the oracle response for debugging endpoints.
type ClassificationResult struct {
	Snapshot      *models.Snapshot    `json:"snapshot"`
	FlaggedFields []string            `json:"flaggedFields"`
	Validations   map[string][]string `json:"fieldValidations,omitempty"`
}

// ClassificationService drives the oracle over raw line items and turns the
// response into a derived, verified snapshot.
type ClassificationService interface {
	ClassifyStatement(ctx context.Context, companyID int64, stmt models.StatementType, period string, lineItems map[string]*float64) (*ClassificationResult, error)
	DeriveStatement(companyID int64, stmt models.StatementType, period string, assignment models.LeafAssignment) (*models.Snapshot, error)
	GetSnapshot(id string) (*models.Snapshot, error)
}

// CorrectionService applies analyst overrides and routes accepted corrections
// into the knowledge pipeline by tag.
type CorrectionService interface {
	SubmitCorrection(ctx context.Context, snapshotID string, correction models.Correction, expectedVersion int) (*models.Snapshot, error)
	RevertCorrection(snapshotID, fieldID string, expectedVersion int) (*models.Snapshot, error)
}

// ContextService evolves per-company classification context documents from
// queued corrections.
type ContextService interface {
	ProcessPending(ctx context.Context) (int, error)
	ProcessCompany(ctx context.Context, companyID int64) (int, error)
	CompanyRules(companyID int64) (string, error)
}

// FinalizeService merges a period's statements into the reviewed output and
// renders exports.
type FinalizeService interface {
	Finalize(companyID int64, period string) (*models.FinalizedStatement, error)
	ExportCSV(companyID int64, period string) ([]byte, error)
}
