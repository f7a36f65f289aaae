package snapshots

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/username/finloader/backend/src/database"
	"github.com/username/finloader/backend/src/models"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrStaleVersion means the caller corrected an outdated copy of the
	// snapshot. The client must refetch and resubmit.
	ErrStaleVersion = errors.New("snapshot version is stale")
)

// Store persists snapshots as JSON documents with a version column for
// optimistic concurrency.
type Store struct {
	db *sql.DB
}

func NewStore() *Store {
	return &Store{db: database.DB}
}

func (s *Store) Insert(snap *models.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO snapshots (id, company_id, statement_type, period, version, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, statement_type, period) DO UPDATE SET
			id = excluded.id,
			version = excluded.version,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		snap.ID, snap.CompanyID, string(snap.StatementType), snap.Period,
		snap.Version, string(doc), snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (s *Store) Get(id string) (*models.Snapshot, error) {
	var doc string
	err := s.db.QueryRow("SELECT document FROM snapshots WHERE id = ?", id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to query snapshot %s: %w", id, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// Update writes the snapshot only if the stored version still matches
// fromVersion. A missed write means a concurrent correction won.
func (s *Store) Update(snap *models.Snapshot, fromVersion int) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	result, err := s.db.Exec(
		"UPDATE snapshots SET version = ?, document = ?, updated_at = ? WHERE id = ? AND version = ?",
		snap.Version, string(doc), snap.UpdatedAt, snap.ID, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update snapshot %s: %w", snap.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check snapshot update for %s: %w", snap.ID, err)
	}
	if affected == 0 {
		// Either the row vanished or someone bumped the version under us.
		if _, getErr := s.Get(snap.ID); getErr != nil {
			return getErr
		}
		return ErrStaleVersion
	}
	return nil
}

// ListByCompany returns every snapshot for a company, oldest first.
func (s *Store) ListByCompany(companyID int64) ([]*models.Snapshot, error) {
	rows, err := s.db.Query(
		"SELECT document FROM snapshots WHERE company_id = ? ORDER BY created_at ASC", companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for company %d: %w", companyID, err)
	}
	defer rows.Close()

	var out []*models.Snapshot
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		var snap models.Snapshot
		if err := json.Unmarshal([]byte(doc), &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot row: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// GetByPeriod fetches the snapshot for one (company, statement, period) cell.
func (s *Store) GetByPeriod(companyID int64, stmt models.StatementType, period string) (*models.Snapshot, error) {
	var doc string
	err := s.db.QueryRow(
		"SELECT document FROM snapshots WHERE company_id = ? AND statement_type = ? AND period = ?",
		companyID, string(stmt), period).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
