package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
	loadSql "github.com/lumenvc/dossier/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunkTx(tx *sql.Tx, chunk *model.Chunk) error
	SelectChunk(id uuid.UUID) (*model.Chunk, error)
	SelectChunksByEntity(entityID uuid.UUID, limit int) ([]*model.Chunk, error)
	SelectChunksByIDs(ids []uuid.UUID) ([]*model.Chunk, error)
	DeleteChunk(id uuid.UUID) error
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads chunk-related SQL functions and ensures the tables exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' and 'chunk_entities' tables in the database.
// If the tables already exist, it does not create them again.
func (h *ChunksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks();`)
	if err != nil {
		log.Panicf("error initializing chunks tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// InsertChunkTx inserts a chunk row and its entity associations within the
// given transaction. The chunk's embedding is not stored relationally; it
// travels to the vector index after commit.
func (h *ChunksDBHandler) InsertChunkTx(tx *sql.Tx, chunk *model.Chunk) error {
	row := tx.QueryRow(
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5)`,
		chunk.SourceID,
		chunk.SourceKind,
		chunk.ChunkIndex,
		chunk.Content,
		chunk.Metadata,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.SourceID,
		&chunk.SourceKind,
		&chunk.ChunkIndex,
		&chunk.Content,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return helper.ClassifyPQ("insert chunk", err)
	}

	kinds := make(map[uuid.UUID]model.EntityKind, len(chunk.Entities))
	for _, ref := range chunk.Entities {
		kinds[ref.ID] = ref.Kind
	}

	for _, entityID := range chunk.EntityIDs {
		kind, ok := kinds[entityID]
		if !ok {
			kind = model.EntityKindCompany
		}
		_, err := tx.Exec(
			`SELECT add_chunk_entity($1, $2, $3)`,
			chunk.ID,
			entityID,
			kind,
		)
		if err != nil {
			return helper.ClassifyPQ("add chunk entity", err)
		}
	}

	return nil
}

// SelectChunk retrieves a chunk by ID with its entity list
func (h *ChunksDBHandler) SelectChunk(id uuid.UUID) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		id,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.SourceID,
		&chunk.SourceKind,
		&chunk.ChunkIndex,
		&chunk.Content,
		&chunk.Metadata,
		&chunk.CreatedAt,
		pq.Array(&chunk.EntityIDs),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select chunk: %w", helper.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectChunksByEntity returns every chunk whose entity list contains the
// given entity, newest source first, annotated with source display metadata
func (h *ChunksDBHandler) SelectChunksByEntity(entityID uuid.UUID, limit int) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_entity($1, $2)`,
		entityID,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanAnnotatedChunks(rows)
}

// SelectChunksByIDs hydrates chunks for a set of IDs. IDs missing from the
// relational store are absent from the result, not an error.
func (h *ChunksDBHandler) SelectChunksByIDs(ids []uuid.UUID) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_ids($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanAnnotatedChunks(rows)
}

// DeleteChunk deletes a chunk and its entity associations
func (h *ChunksDBHandler) DeleteChunk(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_chunk($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanAnnotatedChunks(rows *sql.Rows) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{Source: &model.SourceDisplay{}}
		err := rows.Scan(
			&chunk.ID,
			&chunk.SourceID,
			&chunk.SourceKind,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.Metadata,
			&chunk.CreatedAt,
			pq.Array(&chunk.EntityIDs),
			&chunk.Source.SourceType,
			&chunk.Source.Timestamp,
			&chunk.Source.Title,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunk.Source.SourceID = chunk.SourceID
		chunk.Source.SourceKind = chunk.SourceKind
		chunks = append(chunks, chunk)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}
