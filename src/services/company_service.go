// backend/src/services/company_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/username/finloader/backend/src/database"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/rules"
	"github.com/username/finloader/backend/src/security/validation"
	"github.com/username/finloader/backend/src/utils"
)

var (
	ErrCompanyNotFound = errors.New("company not found")
	ErrCompanyExists   = errors.New("company already exists")
	ErrInvalidCompany  = errors.New("invalid company name")
)

// CompanyStore is the registry of companies under review.
type CompanyStore struct {
	db *sql.DB
}

func NewCompanyStore() *CompanyStore {
	return &CompanyStore{db: database.DB}
}

func (s *CompanyStore) Create(name string) (*models.Company, error) {
	name = strings.TrimSpace(validation.SanitizeFreeText(name))
	if name == "" {
		return nil, ErrInvalidCompany
	}

	company := &models.Company{
		Name:             name,
		MarkdownFilename: rules.DocumentFilename(name),
		CreatedAt:        utils.TimestampNow(),
	}
	result, err := s.db.Exec(
		"INSERT INTO companies (name, markdown_filename, created_at) VALUES (?, ?, ?)",
		company.Name, company.MarkdownFilename, company.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrCompanyExists
		}
		return nil, fmt.Errorf("failed to insert company: %w", err)
	}
	company.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read company id: %w", err)
	}
	return company, nil
}

func (s *CompanyStore) Get(id int64) (*models.Company, error) {
	var c models.Company
	err := s.db.QueryRow(
		"SELECT id, name, markdown_filename, created_at FROM companies WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.MarkdownFilename, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to query company %d: %w", id, err)
	}
	return &c, nil
}

func (s *CompanyStore) GetByName(name string) (*models.Company, error) {
	var c models.Company
	err := s.db.QueryRow(
		"SELECT id, name, markdown_filename, created_at FROM companies WHERE name = ?", name).
		Scan(&c.ID, &c.Name, &c.MarkdownFilename, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to query company %q: %w", name, err)
	}
	return &c, nil
}

func (s *CompanyStore) List() ([]models.Company, error) {
	rows, err := s.db.Query("SELECT id, name, markdown_filename, created_at FROM companies ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var out []models.Company
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.MarkdownFilename, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
