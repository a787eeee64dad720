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

// PeopleDBHandlerFunctions defines the interface for People database operations.
type PeopleDBHandlerFunctions interface {
	InsertPerson(person *model.Person) error
	SelectPerson(id uuid.UUID) (*model.Person, error)
	SelectPersonByEmail(email string) (*model.Person, error)
	SelectPersonByLinkedIn(linkedinURL string) (*model.Person, error)
	SearchPeopleByName(name string, limit int) ([]*model.Person, error)
	FillPerson(person *model.Person) error
	SelectPeople(limit int) ([]*model.Person, error)
}

// PeopleDBHandler handles person-related database operations
type PeopleDBHandler struct {
	db *helper.Database
}

// NewPeopleDBHandler creates a new people database handler.
// The entities SQL functions cover both companies and people, so this handler
// only verifies that they are loaded and that the tables exist.
func NewPeopleDBHandler(db *helper.Database, force bool) (*PeopleDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	peopleDbHandler := &PeopleDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(peopleDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = peopleDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized PeopleDBHandler")

	return peopleDbHandler, nil
}

// CreateTable ensures the entities tables exist
func (h *PeopleDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created table people")

	return nil
}

// InsertPerson inserts a new person. A unique violation on email or
// linkedin_url surfaces as helper.ErrConflict.
func (h *PeopleDBHandler) InsertPerson(person *model.Person) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_person($1, $2, $3, $4)`,
		person.Name,
		person.Email,
		person.LinkedInURL,
		person.CompanyID,
	)

	err := scanPerson(row, person)
	if err != nil {
		return helper.ClassifyPQ("insert person", err)
	}

	return nil
}

// SelectPerson retrieves a person by ID
func (h *PeopleDBHandler) SelectPerson(id uuid.UUID) (*model.Person, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_person($1)`,
		id,
	)
	return onePerson(row, "select person")
}

// SelectPersonByEmail retrieves a person by email
func (h *PeopleDBHandler) SelectPersonByEmail(email string) (*model.Person, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_person_by_email($1)`,
		email,
	)
	return onePerson(row, "select person by email")
}

// SelectPersonByLinkedIn retrieves a person by LinkedIn URL
func (h *PeopleDBHandler) SelectPersonByLinkedIn(linkedinURL string) (*model.Person, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_person_by_linkedin($1)`,
		linkedinURL,
	)
	return onePerson(row, "select person by linkedin")
}

// SearchPeopleByName searches people by case-insensitive substring containment
// in either direction, ordered by creation time then id
func (h *PeopleDBHandler) SearchPeopleByName(name string, limit int) ([]*model.Person, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_people_by_name($1, $2)`,
		name,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var people []*model.Person
	for rows.Next() {
		person := &model.Person{}
		err := scanPerson(rows, person)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		people = append(people, person)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return people, nil
}

// FillPerson fills unset fields of an existing person from the given record.
// Populated fields in the database are never overwritten.
func (h *PeopleDBHandler) FillPerson(person *model.Person) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM fill_person($1, $2, $3, $4)`,
		person.ID,
		person.Email,
		person.LinkedInURL,
		person.CompanyID,
	)

	err := scanPerson(row, person)
	if err != nil {
		return helper.ClassifyPQ("fill person", err)
	}

	return nil
}

// SelectPeople lists people, newest first
func (h *PeopleDBHandler) SelectPeople(limit int) ([]*model.Person, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_people($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var people []*model.Person
	for rows.Next() {
		person := &model.Person{}
		err := scanPerson(rows, person)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		people = append(people, person)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return people, nil
}

func scanPerson(row rowScanner, person *model.Person) error {
	return row.Scan(
		&person.ID,
		&person.Name,
		&person.Email,
		&person.LinkedInURL,
		&person.CompanyID,
		&person.CreatedAt,
	)
}

func onePerson(row *sql.Row, operation string) (*model.Person, error) {
	person := &model.Person{}
	err := scanPerson(row, person)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", operation, helper.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError(operation, err)
	}
	return person, nil
}
