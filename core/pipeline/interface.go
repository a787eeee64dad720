package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
)

// ExtractFunc is a mention extraction boundary. It returns raw, unresolved
// entity mentions found in text. Must be deterministic for identical input;
// may return zero mentions.
type ExtractFunc func(ctx context.Context, text string) ([]model.Mention, error)

// EmbedFunc is an embedding boundary. It maps text to a fixed-dimension
// vector; the dimension must match the vector index configuration.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Pipeline combines chunking with the extraction and embedding boundaries.
// Boundary calls run under a timeout and are retried with bounded backoff;
// an exhausted boundary call fails the whole document.
type Pipeline struct {
	Chunk     model.ChunkConfig
	Extractor ExtractFunc
	Embedder  EmbedFunc
	Timeout   time.Duration
	Retry     model.RetryConfig
}

// ProcessingResult contains the chunks of one document, each with its
// embedding attached, plus the raw mentions found in the document text.
type ProcessingResult struct {
	Chunks   []*model.Chunk
	Mentions []model.Mention
}

// NewPipeline creates a processing pipeline with default chunking, timeout
// and retry settings.
func NewPipeline(extractor ExtractFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunk:     model.DefaultChunkConfig(),
		Extractor: extractor,
		Embedder:  embedder,
		Timeout:   30 * time.Second,
		Retry:     model.DefaultRetryConfig(),
	}
}

// Process splits text into chunks, extracts mentions from the full document
// text, and attaches an embedding to every chunk. A chunk is never returned
// without an embedding.
func (p *Pipeline) Process(ctx context.Context, text string) (*ProcessingResult, error) {
	segments := SplitText(text, p.Chunk)

	mentions, err := p.ExtractMentions(ctx, text)
	if err != nil {
		return nil, err
	}

	chunks := make([]*model.Chunk, 0, len(segments))
	for i, segment := range segments {
		embedding, err := p.Embed(ctx, segment)
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, &model.Chunk{
			ChunkIndex: i,
			Content:    segment,
			Embedding:  embedding,
		})
	}

	return &ProcessingResult{
		Chunks:   chunks,
		Mentions: mentions,
	}, nil
}

// ExtractMentions calls the extraction boundary with timeout and retry
func (p *Pipeline) ExtractMentions(ctx context.Context, text string) ([]model.Mention, error) {
	if p.Extractor == nil {
		return nil, nil
	}

	var mentions []model.Mention
	err := helper.Retry(ctx, p.Retry, "extract mentions", func() error {
		boundaryCtx, cancel := p.boundaryContext(ctx)
		defer cancel()

		var err error
		mentions, err = p.Extractor(boundaryCtx, text)
		if err != nil {
			return fmt.Errorf("mention extraction boundary: %w: %v", helper.ErrBoundary, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mentions, nil
}

// Embed calls the embedding boundary with timeout and retry
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.Embedder == nil {
		return nil, helper.NewValidationError("embed", "no embedder configured")
	}

	var embedding []float32
	err := helper.Retry(ctx, p.Retry, "embed", func() error {
		boundaryCtx, cancel := p.boundaryContext(ctx)
		defer cancel()

		var err error
		embedding, err = p.Embedder(boundaryCtx, text)
		if err != nil {
			return fmt.Errorf("embedding boundary: %w: %v", helper.ErrBoundary, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embedding, nil
}

func (p *Pipeline) boundaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}
