package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lumenvc/dossier/database"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
)

// Writer persists one source document and its chunks across both stores.
// The relational write is the durability boundary: source row, chunk rows and
// entity associations commit as one transaction, and a failure there aborts
// the whole document. Vector upserts happen only after commit and are
// best-effort with bounded backoff; exhaustion degrades to a warning, leaving
// the document relationally findable but temporarily absent from semantic
// search. There is no cross-store transaction.
type Writer struct {
	db      *sql.DB
	sources database.SourcesDBHandlerFunctions
	chunks  database.ChunksDBHandlerFunctions
	vectors database.VectorsDBHandlerFunctions
	retry   model.RetryConfig
	logger  *slog.Logger
}

// WriterFunctions defines the interface for dual-store persistence.
type WriterFunctions interface {
	WriteInteraction(ctx context.Context, interaction *model.Interaction, chunks []*model.Chunk) (*model.IngestResult, error)
	WriteArtifact(ctx context.Context, artifact *model.Artifact, chunks []*model.Chunk) (*model.IngestResult, error)
}

// NewWriter creates a dual-store writer with the default retry policy
func NewWriter(db *sql.DB, sources database.SourcesDBHandlerFunctions, chunks database.ChunksDBHandlerFunctions, vectors database.VectorsDBHandlerFunctions, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		db:      db,
		sources: sources,
		chunks:  chunks,
		vectors: vectors,
		retry:   model.DefaultRetryConfig(),
		logger:  logger,
	}
}

// SetRetryConfig overrides the vector upsert retry policy
func (w *Writer) SetRetryConfig(config model.RetryConfig) {
	w.retry = config
}

// WriteInteraction persists an interaction and its chunks
func (w *Writer) WriteInteraction(ctx context.Context, interaction *model.Interaction, chunks []*model.Chunk) (*model.IngestResult, error) {
	if err := validateChunks(chunks); err != nil {
		return nil, err
	}

	err := w.inTx(ctx, func(tx *sql.Tx) error {
		if err := w.sources.InsertInteractionTx(tx, interaction); err != nil {
			return err
		}
		return w.insertChunksTx(tx, interaction.ID, model.SourceKindInteraction, chunks)
	})
	if err != nil {
		return nil, err
	}

	w.upsertVectors(ctx, chunks, interaction.Timestamp)

	return ingestResult(interaction.ID, model.SourceKindInteraction, chunks), nil
}

// WriteArtifact persists an artifact and its chunks
func (w *Writer) WriteArtifact(ctx context.Context, artifact *model.Artifact, chunks []*model.Chunk) (*model.IngestResult, error) {
	if err := validateChunks(chunks); err != nil {
		return nil, err
	}

	err := w.inTx(ctx, func(tx *sql.Tx) error {
		if err := w.sources.InsertArtifactTx(tx, artifact); err != nil {
			return err
		}
		return w.insertChunksTx(tx, artifact.ID, model.SourceKindArtifact, chunks)
	})
	if err != nil {
		return nil, err
	}

	w.upsertVectors(ctx, chunks, artifact.Timestamp)

	return ingestResult(artifact.ID, model.SourceKindArtifact, chunks), nil
}

// inTx runs fn inside one transaction; any error rolls the whole unit back
func (w *Writer) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return helper.ClassifyPQ("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			w.logger.Error("rollback failed", "error", rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return helper.ClassifyPQ("commit transaction", err)
	}
	return nil
}

func (w *Writer) insertChunksTx(tx *sql.Tx, sourceID uuid.UUID, sourceKind model.SourceKind, chunks []*model.Chunk) error {
	for _, chunk := range chunks {
		chunk.SourceID = sourceID
		chunk.SourceKind = sourceKind
		if err := w.chunks.InsertChunkTx(tx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// upsertVectors pushes every chunk's vector to the index with bounded
// backoff. Exhausted retries are logged, never re-raised; the relational
// record stays authoritative and the index catches up on a later upsert.
func (w *Writer) upsertVectors(ctx context.Context, chunks []*model.Chunk, ts time.Time) {
	for _, chunk := range chunks {
		chunk := chunk
		err := helper.Retry(ctx, w.retry, "upsert chunk vector", func() error {
			return w.vectors.UpsertChunkVector(chunk, ts)
		})
		if err != nil {
			w.logger.Warn("vector upsert exhausted, chunk absent from semantic search until re-indexed",
				"chunk_id", chunk.ID, "error", err)
		}
	}
}

func validateChunks(chunks []*model.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return helper.NewValidationError("write document", "chunk without embedding")
		}
	}
	return nil
}

func ingestResult(sourceID uuid.UUID, sourceKind model.SourceKind, chunks []*model.Chunk) *model.IngestResult {
	result := &model.IngestResult{
		SourceID:   sourceID,
		SourceKind: sourceKind,
	}
	for _, chunk := range chunks {
		result.ChunkIDs = append(result.ChunkIDs, chunk.ID)
	}
	return result
}
