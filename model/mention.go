package model

// Span marks where a mention appears in the source text
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Mention is a raw, unresolved reference to an entity found in text.
// It carries whatever identifying signals the extractor could recover;
// all fields except Kind and Name are optional.
type Mention struct {
	Kind        EntityKind `json:"kind"`
	Name        string     `json:"name"`
	URL         *string    `json:"url,omitempty"`
	LinkedInURL *string    `json:"linkedin_url,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Span        Span       `json:"span"`
}
