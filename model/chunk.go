package model

import (
	"time"

	"github.com/google/uuid"
)

// Chunk represents a bounded text segment derived from exactly one source.
// The EntityIDs list is the join key between the relational store and the
// vector index; the vector index stores the same list as filterable metadata.
type Chunk struct {
	ID         uuid.UUID   `json:"id"`
	SourceID   uuid.UUID   `json:"source_id"`
	SourceKind SourceKind  `json:"source_kind"`
	ChunkIndex int         `json:"chunk_index"`
	Content    string      `json:"content"`
	EntityIDs  []uuid.UUID `json:"entity_ids,omitempty"`
	// Entities carries the resolved refs behind EntityIDs when known
	// (set during ingestion and by retrieval enrichment)
	Entities  []EntityRef `json:"entities,omitempty"`
	Embedding []float32   `json:"embedding,omitempty"`
	Metadata  Metadata    `json:"metadata,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	// Result fields, only set on retrieval
	Similarity *float64       `json:"similarity,omitempty"`
	Source     *SourceDisplay `json:"source,omitempty"`
}
