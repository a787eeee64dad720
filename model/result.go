package model

import "github.com/google/uuid"

// RetrievalMethod records how a result was found
type RetrievalMethod string

const (
	RetrievalMethodEntity RetrievalMethod = "entity"
	RetrievalMethodVector RetrievalMethod = "vector"
)

// SearchResult represents a chunk retrieved by a query, annotated with the
// display names of the entities it mentions
type SearchResult struct {
	Chunk           *Chunk          `json:"chunk"`
	Score           float64         `json:"score"`
	RetrievalMethod RetrievalMethod `json:"retrieval_method"`
	Company         *Company        `json:"company,omitempty"`
	People          []*Person       `json:"people,omitempty"`
}

// Analysis is the result of analyzing text without persisting it:
// the entities resolved from the text plus all related content
type Analysis struct {
	Entities []EntityRef     `json:"entities"`
	Related  []*SearchResult `json:"related_content"`
}

// IngestResult reports what an ingestion pass persisted
type IngestResult struct {
	SourceID   uuid.UUID   `json:"source_id"`
	SourceKind SourceKind  `json:"source_kind"`
	ChunkIDs   []uuid.UUID `json:"chunk_ids"`
}
