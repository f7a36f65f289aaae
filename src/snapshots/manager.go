// Package snapshots owns the lifecycle of review snapshots: creation from an
// oracle assignment, analyst corrections with optimistic concurrency, and the
// full re-derivation that follows every change.
package snapshots

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/username/finloader/backend/src/engine"
	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/utils"
)

var (
	ErrUnknownField       = errors.New("field is not part of the template")
	ErrCorrectionNotFound = errors.New("no active correction for field")
	ErrMissingReasoning   = errors.New("correction reasoning is required")
)

// Manager coordinates snapshot mutations. A per-snapshot mutex serializes
// corrections so the read-modify-write cycle cannot interleave in-process;
// the version column catches writers on other processes.
type Manager struct {
	engine *engine.Engine
	store  *Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(eng *engine.Engine, store *Store) *Manager {
	return &Manager{
		engine: eng,
		store:  store,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (m *Manager) Store() *Store { return m.store }

func (m *Manager) lockFor(snapshotID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[snapshotID] == nil {
		m.locks[snapshotID] = &sync.Mutex{}
	}
	return m.locks[snapshotID]
}

// CreateFromAssignment derives a fresh snapshot from a classified assignment
// and persists it. An existing snapshot for the same (company, statement,
// period) is replaced: reclassification starts the review over.
func (m *Manager) CreateFromAssignment(company models.Company, stmt models.StatementType, period string, assignment models.LeafAssignment) (*models.Snapshot, error) {
	res := m.engine.Derive(stmt, assignment.Values, assignment.Annotations, nil)

	now := utils.TimestampNow()
	snap := &models.Snapshot{
		ID:            uuid.NewString(),
		CompanyID:     company.ID,
		CompanyName:   company.Name,
		StatementType: stmt,
		Period:        period,
		Version:       1,
		Supplied:      cloneValues(assignment.Values),
		BaseSupplied:  cloneValues(assignment.Values),
		Annotations:   assignment.Annotations,
		Values:        res.Values,
		States:        res.States,
		Flags:         res.Flags,
		Reasoning:     assignment.Reasoning,
		Report:        res.Report,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.store.Insert(snap); err != nil {
		return nil, err
	}
	logger.L.Info("Snapshot created",
		"snapshotId", snap.ID, "company", company.Name, "statement", stmt,
		"period", period, "flagged", len(snap.FlaggedFields()))
	return snap, nil
}

// ApplyCorrection overrides one field value on the snapshot and re-derives
// everything downstream.
//
// Resubmitting the identical correction is a no-op that succeeds regardless
// of the expected version, so a retried request never fails spuriously.
// Otherwise expectedVersion must match the stored version or the caller gets
// ErrStaleVersion.
func (m *Manager) ApplyCorrection(snapshotID string, correction models.Correction, expectedVersion int) (*models.Snapshot, error) {
	if correction.Reasoning == "" {
		return nil, ErrMissingReasoning
	}

	lock := m.lockFor(snapshotID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := m.store.Get(snapshotID)
	if err != nil {
		return nil, err
	}
	if _, ok := m.engine.Graph().Field(correction.FieldID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, correction.FieldID)
	}

	if active, ok := snap.ActiveCorrection(correction.FieldID); ok && active.Equal(correction) {
		return snap, nil
	}
	if snap.Version != expectedVersion {
		return nil, ErrStaleVersion
	}

	if correction.OriginalValue == nil {
		correction.OriginalValue = snap.Values[correction.FieldID]
	}
	if correction.Timestamp == "" {
		correction.Timestamp = utils.TimestampNow()
	}

	// One active correction per field: a newer one supersedes, it does not
	// stack.
	replaced := false
	for i, c := range snap.Corrections {
		if c.FieldID == correction.FieldID {
			snap.Corrections[i] = correction
			replaced = true
			break
		}
	}
	if !replaced {
		snap.Corrections = append(snap.Corrections, correction)
	}

	value := correction.CorrectedValue
	snap.Supplied[correction.FieldID] = &value

	m.rederive(snap)
	return m.persistBump(snap, expectedVersion)
}

// RemoveCorrection reverts a field to its originally classified value and
// re-derives.
func (m *Manager) RemoveCorrection(snapshotID, fieldID string, expectedVersion int) (*models.Snapshot, error) {
	lock := m.lockFor(snapshotID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := m.store.Get(snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.Version != expectedVersion {
		return nil, ErrStaleVersion
	}

	found := false
	kept := snap.Corrections[:0]
	for _, c := range snap.Corrections {
		if c.FieldID == fieldID {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrCorrectionNotFound, fieldID)
	}
	snap.Corrections = kept
	snap.Supplied[fieldID] = clonePtr(snap.BaseSupplied[fieldID])

	m.rederive(snap)
	return m.persistBump(snap, expectedVersion)
}

// Rederive recomputes a snapshot in place without changing its corrections.
// Used when the company's classification context changes. The version only
// moves when the derived document actually changed: corrections own the
// version counter, and an analyst mid-review must not get ErrStaleVersion
// because a reprocess recomputed the same numbers.
func (m *Manager) Rederive(snapshotID string) (*models.Snapshot, error) {
	lock := m.lockFor(snapshotID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := m.store.Get(snapshotID)
	if err != nil {
		return nil, err
	}
	from := snap.Version
	prevValues, prevStates := snap.Values, snap.States
	prevFlags, prevReport := snap.Flags, snap.Report
	m.rederive(snap)
	if reflect.DeepEqual(prevValues, snap.Values) &&
		reflect.DeepEqual(prevStates, snap.States) &&
		reflect.DeepEqual(prevFlags, snap.Flags) &&
		reflect.DeepEqual(prevReport, snap.Report) {
		return snap, nil
	}
	return m.persistBump(snap, from)
}

// RederiveCompany re-derives every snapshot of a company concurrently.
func (m *Manager) RederiveCompany(ctx context.Context, companyID int64) (int, error) {
	snaps, err := m.store.ListByCompany(companyID)
	if err != nil {
		return 0, err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, snap := range snaps {
		id := snap.ID
		g.Go(func() error {
			if _, err := m.Rederive(id); err != nil {
				return fmt.Errorf("rederive %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(snaps), nil
}

// rederive runs the full derivation again from the current supplied values.
// Re-derivation is total rather than incremental: correctness of every
// downstream aggregate, margin, and check beats saving a few microseconds.
func (m *Manager) rederive(snap *models.Snapshot) {
	corrected := make(map[string]bool, len(snap.Corrections))
	for _, c := range snap.Corrections {
		corrected[c.FieldID] = true
	}

	res := m.engine.Derive(snap.StatementType, snap.Supplied, snap.Annotations, corrected)
	snap.Values = res.Values
	snap.States = res.States
	snap.Flags = res.Flags
	snap.Report = res.Report

	for id := range corrected {
		if _, ok := snap.States[id]; ok {
			snap.States[id] = models.StateCorrected
			delete(snap.Flags, id)
		}
	}
}

func (m *Manager) persistBump(snap *models.Snapshot, fromVersion int) (*models.Snapshot, error) {
	snap.Version = fromVersion + 1
	snap.UpdatedAt = utils.TimestampNow()
	if err := m.store.Update(snap, fromVersion); err != nil {
		return nil, err
	}
	return snap, nil
}

func cloneValues(values map[string]*float64) map[string]*float64 {
	out := make(map[string]*float64, len(values))
	for k, v := range values {
		out[k] = clonePtr(v)
	}
	return out
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	val := *v
	return &val
}
