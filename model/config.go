package model

import (
	"time"

	"github.com/google/uuid"
)

// ChunkConfig configures how raw text is split into overlapping segments.
// All sizes are token-equivalents; one token is approximated as four characters.
type ChunkConfig struct {
	TargetSize int `json:"target_size"`
	Overlap    int `json:"overlap"`
	MinSize    int `json:"min_size"`
}

// DefaultChunkConfig returns the standard chunking configuration
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		TargetSize: 512,
		Overlap:    50,
		MinSize:    100,
	}
}

// QueryConfig represents configuration for a retrieval query
type QueryConfig struct {
	// Vector search parameters
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// Entity filtering: only return chunks whose entity list intersects
	EntityFilter []uuid.UUID `json:"entity_filter,omitempty"`

	// Boundary call parameters
	BoundaryTimeout time.Duration `json:"boundary_timeout,omitempty"`
}

// DefaultQueryConfig returns a sensible default configuration
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:                10,
		SimilarityThreshold: 0.0,
		BoundaryTimeout:     30 * time.Second,
	}
}

// RetryConfig bounds the retry loops around vector upserts and boundary calls
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
}

// DefaultRetryConfig returns the standard retry policy: three attempts with
// exponential backoff starting at 250ms
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
	}
}
