// backend/src/services/correction_service.go
package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/security/validation"
	"github.com/username/finloader/backend/src/snapshots"
	"github.com/username/finloader/backend/src/utils"
)

// contextPipeline is the slice of ContextService the correction flow needs.
// Kept narrow so the two services stay independently constructible.
type contextPipeline interface {
	ProcessCompany(ctx context.Context, companyID int64) (int, error)
}

type correctionServiceImpl struct {
	manager       *snapshots.Manager
	queue         *QueueStore
	pipeline      contextPipeline
	dataDir       string
	snapshotCache *gocache.Cache

	generalMu sync.Mutex
}

func NewCorrectionService(manager *snapshots.Manager, queue *QueueStore, pipeline contextPipeline, dataDir string, snapshotCache *gocache.Cache) CorrectionService {
	return &correctionServiceImpl{
		manager:       manager,
		queue:         queue,
		pipeline:      pipeline,
		dataDir:       dataDir,
		snapshotCache: snapshotCache,
	}
}

// SubmitCorrection applies the override to the snapshot, then routes the
// accepted correction by tag: one_off stops there, general_fix lands in the
// shared fixes log, company_specific enters the instruction queue and kicks
// the pipeline. Routing failures are logged but never undo the applied
// correction.
func (s *correctionServiceImpl) SubmitCorrection(ctx context.Context, snapshotID string, correction models.Correction, expectedVersion int) (*models.Snapshot, error) {
	correction.Reasoning = validation.SanitizeFreeText(correction.Reasoning)

	snap, err := s.manager.ApplyCorrection(snapshotID, correction, expectedVersion)
	if err != nil {
		return nil, err
	}
	s.snapshotCache.Set(snap.ID, snap, gocache.DefaultExpiration)

	applied, _ := snap.ActiveCorrection(correction.FieldID)
	switch applied.Tag {
	case models.TagOneOff, "":
		// Statement-local mistake, nothing to learn.

	case models.TagGeneralFix:
		if err := s.appendGeneralFix(snap, applied); err != nil {
			logger.L.Error("Failed to record general fix", "error", err,
				"snapshotId", snap.ID, "field", applied.FieldID)
		}

	case models.TagCompanySpecific:
		queued := &models.QueuedCorrection{
			CompanyID:           snap.CompanyID,
			CompanyName:         snap.CompanyName,
			Period:              snap.Period,
			StatementType:       snap.StatementType,
			FieldID:             applied.FieldID,
			ClassifiedValue:     applied.OriginalValue,
			ClassifierReasoning: snap.Reasoning[applied.FieldID],
			CorrectedValue:      applied.CorrectedValue,
			AnalystReasoning:    applied.Reasoning,
			CreatedAt:           utils.TimestampNow(),
		}
		if err := s.queue.Enqueue(queued); err != nil {
			logger.L.Error("Failed to enqueue company-specific correction", "error", err,
				"snapshotId", snap.ID, "field", applied.FieldID)
			break
		}
		logger.L.Info("Company-specific correction queued",
			"company", snap.CompanyName, "field", applied.FieldID, "queueId", queued.ID)
		if s.pipeline != nil {
			if _, err := s.pipeline.ProcessCompany(ctx, snap.CompanyID); err != nil {
				logger.L.Warn("Inline context processing failed, correction stays queued",
					"error", err, "company", snap.CompanyName)
			}
		}

	default:
		logger.L.Warn("Correction carries unknown tag, treated as one_off",
			"tag", applied.Tag, "field", applied.FieldID)
	}

	return snap, nil
}

func (s *correctionServiceImpl) RevertCorrection(snapshotID, fieldID string, expectedVersion int) (*models.Snapshot, error) {
	snap, err := s.manager.RemoveCorrection(snapshotID, fieldID, expectedVersion)
	if err != nil {
		return nil, err
	}
	s.snapshotCache.Set(snap.ID, snap, gocache.DefaultExpiration)
	return snap, nil
}

// appendGeneralFix records a template-wide mistake in the shared CSV so the
// base prompts can be improved in bulk.
func (s *correctionServiceImpl) appendGeneralFix(snap *models.Snapshot, c models.Correction) error {
	s.generalMu.Lock()
	defer s.generalMu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(s.dataDir, "general_fixes.csv")

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open general fixes log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write([]string{"timestamp", "company", "period", "statement", "field", "original_value", "corrected_value", "reasoning"}); err != nil {
			return fmt.Errorf("failed to write general fixes header: %w", err)
		}
	}

	original := ""
	if c.OriginalValue != nil {
		original = strconv.FormatFloat(*c.OriginalValue, 'f', -1, 64)
	}
	record := []string{
		c.Timestamp,
		validation.SanitizeForFormulaInjection(snap.CompanyName),
		snap.Period,
		string(snap.StatementType),
		validation.SanitizeForFormulaInjection(c.FieldID),
		original,
		strconv.FormatFloat(c.CorrectedValue, 'f', -1, 64),
		validation.SanitizeForFormulaInjection(c.Reasoning),
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("failed to write general fix record: %w", err)
	}
	w.Flush()
	return w.Error()
}
