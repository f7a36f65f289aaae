// backend/src/services/queue_store.go
package services

import (
	"database/sql"
	"fmt"

	"github.com/username/finloader/backend/src/database"
	"github.com/username/finloader/backend/src/models"
)

// QueueStore holds company_specific corrections until the instruction
// pipeline has folded them into the company's classification context.
type QueueStore struct {
	db *sql.DB
}

func NewQueueStore() *QueueStore {
	return &QueueStore{db: database.DB}
}

func (s *QueueStore) Enqueue(q *models.QueuedCorrection) error {
	result, err := s.db.Exec(`
		INSERT INTO correction_queue
			(company_id, period, statement_type, field, classified_value, classifier_reasoning, corrected_value, analyst_reasoning, tag, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)`,
		q.CompanyID, q.Period, string(q.StatementType), q.FieldID,
		floatOrNull(q.ClassifiedValue), q.ClassifierReasoning,
		q.CorrectedValue, q.AnalystReasoning, string(models.TagCompanySpecific), q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue correction: %w", err)
	}
	q.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read queued correction id: %w", err)
	}
	return nil
}

// Pending returns unprocessed corrections oldest first, optionally filtered
// to one company (companyID 0 means all).
func (s *QueueStore) Pending(companyID int64) ([]models.QueuedCorrection, error) {
	query := `
		SELECT q.id, q.company_id, c.name, q.period, q.statement_type, q.field,
		       q.classified_value, q.classifier_reasoning, q.corrected_value,
		       q.analyst_reasoning, q.processed, q.created_at
		FROM correction_queue q
		JOIN companies c ON c.id = q.company_id
		WHERE q.processed = FALSE`
	args := []interface{}{}
	if companyID != 0 {
		query += " AND q.company_id = ?"
		args = append(args, companyID)
	}
	query += " ORDER BY q.created_at ASC, q.id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending corrections: %w", err)
	}
	defer rows.Close()

	var out []models.QueuedCorrection
	for rows.Next() {
		var q models.QueuedCorrection
		var classified sql.NullFloat64
		if err := rows.Scan(&q.ID, &q.CompanyID, &q.CompanyName, &q.Period, &q.StatementType,
			&q.FieldID, &classified, &q.ClassifierReasoning, &q.CorrectedValue,
			&q.AnalystReasoning, &q.Processed, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queued correction: %w", err)
		}
		if classified.Valid {
			v := classified.Float64
			q.ClassifiedValue = &v
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *QueueStore) MarkProcessed(id int64) error {
	_, err := s.db.Exec("UPDATE correction_queue SET processed = TRUE WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark correction %d processed: %w", id, err)
	}
	return nil
}

func floatOrNull(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
