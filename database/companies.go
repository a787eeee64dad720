package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
	loadSql "github.com/lumenvc/dossier/sql"
)

// CompaniesDBHandlerFunctions defines the interface for Companies database operations.
type CompaniesDBHandlerFunctions interface {
	InsertCompany(company *model.Company) error
	SelectCompany(id uuid.UUID) (*model.Company, error)
	SelectCompanyByURL(url string) (*model.Company, error)
	SelectCompanyByLinkedIn(linkedinURL string) (*model.Company, error)
	SearchCompaniesByName(name string, limit int) ([]*model.Company, error)
	FillCompany(company *model.Company) error
	SelectCompanies(limit int) ([]*model.Company, error)
}

// CompaniesDBHandler handles company-related database operations
type CompaniesDBHandler struct {
	db *helper.Database
}

// NewCompaniesDBHandler creates a new companies database handler.
// It loads entity-related SQL functions and ensures the tables exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewCompaniesDBHandler(db *helper.Database, force bool) (*CompaniesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	companiesDbHandler := &CompaniesDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(companiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = companiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized CompaniesDBHandler")

	return companiesDbHandler, nil
}

// CreateTable creates the 'companies' and 'people' tables in the database.
// If the tables already exist, it does not create them again.
func (h *CompaniesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created table companies")

	return nil
}

// InsertCompany inserts a new company. A unique violation on url or
// linkedin_url surfaces as helper.ErrConflict.
func (h *CompaniesDBHandler) InsertCompany(company *model.Company) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_company($1, $2, $3, $4)`,
		company.Name,
		company.URL,
		company.LinkedInURL,
		company.Description,
	)

	err := scanCompany(row, company)
	if err != nil {
		return helper.ClassifyPQ("insert company", err)
	}

	return nil
}

// SelectCompany retrieves a company by ID
func (h *CompaniesDBHandler) SelectCompany(id uuid.UUID) (*model.Company, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_company($1)`,
		id,
	)
	return oneCompany(row, "select company")
}

// SelectCompanyByURL retrieves a company by its canonical URL
func (h *CompaniesDBHandler) SelectCompanyByURL(url string) (*model.Company, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_company_by_url($1)`,
		url,
	)
	return oneCompany(row, "select company by url")
}

// SelectCompanyByLinkedIn retrieves a company by its LinkedIn URL
func (h *CompaniesDBHandler) SelectCompanyByLinkedIn(linkedinURL string) (*model.Company, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_company_by_linkedin($1)`,
		linkedinURL,
	)
	return oneCompany(row, "select company by linkedin")
}

// SearchCompaniesByName searches companies by case-insensitive substring
// containment in either direction, ordered by creation time then id
func (h *CompaniesDBHandler) SearchCompaniesByName(name string, limit int) ([]*model.Company, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_companies_by_name($1, $2)`,
		name,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var companies []*model.Company
	for rows.Next() {
		company := &model.Company{}
		err := scanCompany(rows, company)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		companies = append(companies, company)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return companies, nil
}

// FillCompany fills unset fields of an existing company from the given record.
// Populated fields in the database are never overwritten.
func (h *CompaniesDBHandler) FillCompany(company *model.Company) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM fill_company($1, $2, $3, $4)`,
		company.ID,
		company.URL,
		company.LinkedInURL,
		company.Description,
	)

	err := scanCompany(row, company)
	if err != nil {
		return helper.ClassifyPQ("fill company", err)
	}

	return nil
}

// SelectCompanies lists companies, newest first
func (h *CompaniesDBHandler) SelectCompanies(limit int) ([]*model.Company, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_companies($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var companies []*model.Company
	for rows.Next() {
		company := &model.Company{}
		err := scanCompany(rows, company)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		companies = append(companies, company)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return companies, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompany(row rowScanner, company *model.Company) error {
	return row.Scan(
		&company.ID,
		&company.Name,
		&company.URL,
		&company.LinkedInURL,
		&company.Description,
		&company.CreatedAt,
	)
}

func oneCompany(row *sql.Row, operation string) (*model.Company, error) {
	company := &model.Company{}
	err := scanCompany(row, company)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", operation, helper.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError(operation, err)
	}
	return company, nil
}
