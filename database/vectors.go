package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
	loadSql "github.com/lumenvc/dossier/sql"
)

// VectorHit is a raw nearest-neighbor result from the vector index,
// before relational hydration
type VectorHit struct {
	ChunkID    uuid.UUID
	Similarity float64
	EntityIDs  []uuid.UUID
}

// VectorsDBHandlerFunctions defines the interface for the vector index.
// The index stores (chunk_id, vector, metadata) triples and supports
// k-nearest-neighbor search with an optional entity intersection filter.
type VectorsDBHandlerFunctions interface {
	UpsertChunkVector(chunk *model.Chunk, ts time.Time) error
	SearchBySimilarity(embedding []float32, limit int, threshold float64, entityFilter []uuid.UUID) ([]VectorHit, error)
	DeleteChunkVector(chunkID uuid.UUID) error
	Dim() int
}

// VectorsDBHandler handles the pgvector-backed approximate index
type VectorsDBHandler struct {
	db  *helper.Database
	dim int
}

// NewVectorsDBHandler creates a new vector index handler with the given
// embedding dimension. If the chunk_vectors table already exists with a
// different dimension, this is a configuration error and initialization fails.
func NewVectorsDBHandler(db *helper.Database, embeddingDim int, force bool) (*VectorsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewValidationError("vector index configuration", "embedding dimension must be positive")
	}

	vectorsDbHandler := &VectorsDBHandler{
		db:  db,
		dim: embeddingDim,
	}

	err := loadSql.LoadVectorsSql(vectorsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load vectors sql", err)
	}

	err = vectorsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	err = vectorsDbHandler.checkDimension(embeddingDim)
	if err != nil {
		return nil, err
	}

	db.Logger.Info("Initialized VectorsDBHandler")

	return vectorsDbHandler, nil
}

// CreateTable creates the 'chunk_vectors' table in the database.
// If the table already exists, it does not create it again.
func (h *VectorsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_vectors($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunk_vectors table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunk_vectors")

	return nil
}

// checkDimension verifies the configured embedder dimension against the
// existing table. A mismatch is detected here, at startup, not at query time.
func (h *VectorsDBHandler) checkDimension(embeddingDim int) error {
	var dim int
	err := h.db.Instance.QueryRow(`SELECT select_vector_dim()`).Scan(&dim)
	if err != nil {
		return helper.NewError("read vector dimension", err)
	}
	if dim != embeddingDim {
		return helper.NewValidationError(
			"vector index configuration",
			fmt.Sprintf("embedder dimension %d does not match index dimension %d", embeddingDim, dim),
		)
	}
	return nil
}

// Dim returns the configured embedding dimension
func (h *VectorsDBHandler) Dim() int {
	return h.dim
}

// UpsertChunkVector inserts or replaces a chunk's vector and filterable
// metadata. Called only after the relational transaction has committed.
func (h *VectorsDBHandler) UpsertChunkVector(chunk *model.Chunk, ts time.Time) error {
	if len(chunk.Embedding) != h.dim {
		return helper.NewValidationError(
			"upsert chunk vector",
			fmt.Sprintf("embedding has dimension %d, index expects %d", len(chunk.Embedding), h.dim),
		)
	}

	entityIDs := chunk.EntityIDs
	if entityIDs == nil {
		entityIDs = []uuid.UUID{}
	}

	_, err := h.db.Instance.Exec(
		`SELECT upsert_chunk_vector($1, $2, $3, $4, $5, $6)`,
		chunk.ID,
		pgvector.NewVector(chunk.Embedding),
		chunk.SourceID,
		chunk.SourceKind,
		pq.Array(entityIDs),
		ts,
	)
	if err != nil {
		return helper.ClassifyPQ("upsert chunk vector", err)
	}

	return nil
}

// SearchBySimilarity performs cosine k-nearest-neighbor search. If
// entityFilter is non-empty, only chunks whose entity list intersects the
// filter are returned. Similarity is in [0, 1] with higher = more similar.
func (h *VectorsDBHandler) SearchBySimilarity(embedding []float32, limit int, threshold float64, entityFilter []uuid.UUID) ([]VectorHit, error) {
	if len(embedding) != h.dim {
		return nil, helper.NewValidationError(
			"vector search",
			fmt.Sprintf("query embedding has dimension %d, index expects %d", len(embedding), h.dim),
		)
	}

	var filterParam interface{}
	if len(entityFilter) > 0 {
		filterParam = pq.Array(entityFilter)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_vectors_by_similarity($1, $2, $3, $4)`,
		pgvector.NewVector(embedding),
		limit,
		threshold,
		filterParam,
	)
	if err != nil {
		return nil, helper.ClassifyPQ("vector search", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var hit VectorHit
		err := rows.Scan(
			&hit.ChunkID,
			&hit.Similarity,
			pq.Array(&hit.EntityIDs),
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		hits = append(hits, hit)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return hits, nil
}

// DeleteChunkVector removes a chunk from the vector index
func (h *VectorsDBHandler) DeleteChunkVector(chunkID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_chunk_vector($1)`,
		chunkID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
