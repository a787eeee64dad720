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

// SourcesDBHandlerFunctions defines the interface for Sources database operations.
// Insert operations run inside a caller-supplied transaction so a source, its
// chunks and its associations commit as one relational unit.
type SourcesDBHandlerFunctions interface {
	InsertInteractionTx(tx *sql.Tx, interaction *model.Interaction) error
	InsertArtifactTx(tx *sql.Tx, artifact *model.Artifact) error
	SelectInteraction(id uuid.UUID) (*model.Interaction, error)
	SelectArtifact(id uuid.UUID) (*model.Artifact, error)
	SelectSourceDisplay(sourceID uuid.UUID, sourceKind model.SourceKind) (*model.SourceDisplay, error)
}

// SourcesDBHandler handles interaction- and artifact-related database operations
type SourcesDBHandler struct {
	db *helper.Database
}

// NewSourcesDBHandler creates a new sources database handler.
// It loads source-related SQL functions and ensures the tables exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSourcesDBHandler(db *helper.Database, force bool) (*SourcesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	sourcesDbHandler := &SourcesDBHandler{
		db: db,
	}

	err := loadSql.LoadSourcesSql(sourcesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load sources sql", err)
	}

	err = sourcesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SourcesDBHandler")

	return sourcesDbHandler, nil
}

// CreateTable creates the source tables in the database.
// If the tables already exist, it does not create them again.
func (h *SourcesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_sources();`)
	if err != nil {
		log.Panicf("error initializing sources tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created tables interactions, artifacts")

	return nil
}

// InsertInteractionTx inserts an interaction and its participant links within
// the given transaction
func (h *SourcesDBHandler) InsertInteractionTx(tx *sql.Tx, interaction *model.Interaction) error {
	row := tx.QueryRow(
		`SELECT * FROM insert_interaction($1, $2, $3, $4)`,
		interaction.SourceType,
		interaction.RawText,
		interaction.Timestamp,
		interaction.Metadata,
	)

	err := row.Scan(
		&interaction.ID,
		&interaction.SourceType,
		&interaction.RawText,
		&interaction.Timestamp,
		&interaction.Metadata,
		&interaction.CreatedAt,
	)
	if err != nil {
		return helper.ClassifyPQ("insert interaction", err)
	}

	for _, personID := range interaction.Participants {
		_, err := tx.Exec(
			`SELECT add_interaction_participant($1, $2)`,
			interaction.ID,
			personID,
		)
		if err != nil {
			return helper.ClassifyPQ("add interaction participant", err)
		}
	}

	return nil
}

// InsertArtifactTx inserts an artifact and its related-company links within
// the given transaction
func (h *SourcesDBHandler) InsertArtifactTx(tx *sql.Tx, artifact *model.Artifact) error {
	row := tx.QueryRow(
		`SELECT * FROM insert_artifact($1, $2, $3, $4, $5)`,
		artifact.SourceType,
		artifact.RawText,
		artifact.Title,
		artifact.Timestamp,
		artifact.Metadata,
	)

	err := row.Scan(
		&artifact.ID,
		&artifact.SourceType,
		&artifact.RawText,
		&artifact.Title,
		&artifact.Timestamp,
		&artifact.Metadata,
		&artifact.CreatedAt,
	)
	if err != nil {
		return helper.ClassifyPQ("insert artifact", err)
	}

	for _, companyID := range artifact.RelatedCompanies {
		_, err := tx.Exec(
			`SELECT add_artifact_company($1, $2)`,
			artifact.ID,
			companyID,
		)
		if err != nil {
			return helper.ClassifyPQ("add artifact company", err)
		}
	}

	return nil
}

// SelectInteraction retrieves an interaction by ID, including participants
func (h *SourcesDBHandler) SelectInteraction(id uuid.UUID) (*model.Interaction, error) {
	interaction := &model.Interaction{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_interaction($1)`,
		id,
	)

	err := row.Scan(
		&interaction.ID,
		&interaction.SourceType,
		&interaction.RawText,
		&interaction.Timestamp,
		&interaction.Metadata,
		&interaction.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select interaction: %w", helper.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_interaction_participants($1)`,
		id,
	)
	if err != nil {
		return nil, helper.NewError("query participants", err)
	}
	defer rows.Close()

	for rows.Next() {
		var personID uuid.UUID
		if err := rows.Scan(&personID); err != nil {
			return nil, helper.NewError("scan participant", err)
		}
		interaction.Participants = append(interaction.Participants, personID)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return interaction, nil
}

// SelectArtifact retrieves an artifact by ID, including related companies
func (h *SourcesDBHandler) SelectArtifact(id uuid.UUID) (*model.Artifact, error) {
	artifact := &model.Artifact{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_artifact($1)`,
		id,
	)

	err := row.Scan(
		&artifact.ID,
		&artifact.SourceType,
		&artifact.RawText,
		&artifact.Title,
		&artifact.Timestamp,
		&artifact.Metadata,
		&artifact.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select artifact: %w", helper.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_artifact_companies($1)`,
		id,
	)
	if err != nil {
		return nil, helper.NewError("query related companies", err)
	}
	defer rows.Close()

	for rows.Next() {
		var companyID uuid.UUID
		if err := rows.Scan(&companyID); err != nil {
			return nil, helper.NewError("scan related company", err)
		}
		artifact.RelatedCompanies = append(artifact.RelatedCompanies, companyID)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return artifact, nil
}

// SelectSourceDisplay retrieves display metadata for a chunk's owning source
func (h *SourcesDBHandler) SelectSourceDisplay(sourceID uuid.UUID, sourceKind model.SourceKind) (*model.SourceDisplay, error) {
	display := &model.SourceDisplay{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_source_display($1, $2)`,
		sourceID,
		sourceKind,
	)

	err := row.Scan(
		&display.SourceID,
		&display.SourceKind,
		&display.SourceType,
		&display.Timestamp,
		&display.Title,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select source display: %w", helper.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return display, nil
}
