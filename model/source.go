package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind distinguishes the two persisted source tables
type SourceKind string

const (
	SourceKindInteraction SourceKind = "interaction"
	SourceKindArtifact    SourceKind = "artifact"
)

// SourceType classifies what kind of communication or document a source is
type SourceType string

const (
	SourceTypeEmail        SourceType = "email"
	SourceTypeMeetingNotes SourceType = "meeting_notes"
	SourceTypeDocument     SourceType = "document"
	SourceTypeNewsletter   SourceType = "newsletter"
	SourceTypeSocialPost   SourceType = "social_post"
	SourceTypeMemo         SourceType = "memo"
	SourceTypeDeck         SourceType = "deck"
)

// Interaction is a timestamped communication event (email, meeting, newsletter,
// social post). Immutable after creation except for metadata enrichment.
type Interaction struct {
	ID           uuid.UUID   `json:"id"`
	SourceType   SourceType  `json:"source_type"`
	RawText      string      `json:"raw_text"`
	Timestamp    time.Time   `json:"timestamp"`
	Participants []uuid.UUID `json:"participants,omitempty"`
	Metadata     Metadata    `json:"metadata,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Artifact is a timestamped document (memo, deck) with optional title and
// related-company references.
type Artifact struct {
	ID               uuid.UUID   `json:"id"`
	SourceType       SourceType  `json:"source_type"`
	RawText          string      `json:"raw_text"`
	Title            *string     `json:"title,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
	RelatedCompanies []uuid.UUID `json:"related_companies,omitempty"`
	Metadata         Metadata    `json:"metadata,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// SourceDisplay is the display metadata of a chunk's owning source,
// attached to retrieval results
type SourceDisplay struct {
	SourceID   uuid.UUID  `json:"source_id"`
	SourceKind SourceKind `json:"source_kind"`
	SourceType SourceType `json:"source_type"`
	Timestamp  time.Time  `json:"timestamp"`
	Title      *string    `json:"title,omitempty"`
}
