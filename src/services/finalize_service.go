// backend/src/services/finalize_service.go
package services

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/username/finloader/backend/src/database"
	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/security/validation"
	"github.com/username/finloader/backend/src/snapshots"
	"github.com/username/finloader/backend/src/template"
)

var (
	ErrNothingToFinalize = errors.New("no snapshots exist for this period")
	ErrUnresolvedFlags   = errors.New("snapshot still has flagged fields")
)

type finalizeServiceImpl struct {
	db        *sql.DB
	graph     *template.Graph
	store     *snapshots.Store
	companies *CompanyStore
}

func NewFinalizeService(graph *template.Graph, store *snapshots.Store, companies *CompanyStore) FinalizeService {
	return &finalizeServiceImpl{
		db:        database.DB,
		graph:     graph,
		store:     store,
		companies: companies,
	}
}

// Finalize merges the period's statements into one reviewed output in
// template order and persists it. Every flag must be resolved first; an
// unresolved flag means the numbers were never signed off.
func (s *finalizeServiceImpl) Finalize(companyID int64, period string) (*models.FinalizedStatement, error) {
	company, err := s.companies.Get(companyID)
	if err != nil {
		return nil, err
	}

	var snaps []*models.Snapshot
	for _, stmt := range []models.StatementType{models.IncomeStatement, models.BalanceSheet} {
		snap, err := s.store.GetByPeriod(companyID, stmt, period)
		if err != nil {
			if errors.Is(err, snapshots.ErrSnapshotNotFound) {
				continue
			}
			return nil, err
		}
		if flagged := snap.FlaggedFields(); len(flagged) > 0 {
			sort.Strings(flagged)
			return nil, fmt.Errorf("%w: %s %v", ErrUnresolvedFlags, stmt, flagged)
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return nil, ErrNothingToFinalize
	}

	final := &models.FinalizedStatement{
		CompanyID:   company.ID,
		CompanyName: company.Name,
		Period:      period,
		CreatedAt:   snaps[0].UpdatedAt,
	}
	for _, snap := range snaps {
		for _, id := range s.graph.FieldOrder(snap.StatementType) {
			section, _ := s.graph.SectionOf(id)
			final.Fields = append(final.Fields, models.FinalizedField{
				FieldID:   id,
				Statement: snap.StatementType,
				Section:   string(section),
				Value:     snap.Values[id],
				State:     snap.States[id],
			})
		}
		if snap.UpdatedAt > final.CreatedAt {
			final.CreatedAt = snap.UpdatedAt
		}
	}

	doc, err := json.Marshal(final)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal finalized statement: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO reviews (company_id, period, document, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(company_id, period) DO UPDATE SET
			document = excluded.document,
			created_at = excluded.created_at`,
		company.ID, period, string(doc), final.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to persist review: %w", err)
	}

	logger.L.Info("Period finalized",
		"company", company.Name, "period", period, "statements", len(snaps), "fields", len(final.Fields))
	return final, nil
}

// ExportCSV renders the finalized period as CSV. Text cells are sanitized
// against spreadsheet formula injection.
func (s *finalizeServiceImpl) ExportCSV(companyID int64, period string) ([]byte, error) {
	company, err := s.companies.Get(companyID)
	if err != nil {
		return nil, err
	}

	var doc string
	err = s.db.QueryRow(
		"SELECT document FROM reviews WHERE company_id = ? AND period = ?",
		companyID, period).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNothingToFinalize
		}
		return nil, fmt.Errorf("failed to query review: %w", err)
	}

	var final models.FinalizedStatement
	if err := json.Unmarshal([]byte(doc), &final); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"company", "period", "statement", "section", "field", "value", "state"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, f := range final.Fields {
		value := ""
		if f.Value != nil {
			value = strconv.FormatFloat(*f.Value, 'f', 2, 64)
		}
		record := []string{
			validation.SanitizeForFormulaInjection(company.Name),
			validation.SanitizeForFormulaInjection(final.Period),
			string(f.Statement),
			validation.SanitizeForFormulaInjection(f.Section),
			validation.SanitizeForFormulaInjection(f.FieldID),
			value,
			string(f.State),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
