package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/lumenvc/dossier/core/pipeline"
	"github.com/lumenvc/dossier/core/resolve"
	"github.com/lumenvc/dossier/database"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
)

// Engine answers entity-scoped and similarity-scoped queries and fuses both
// into a single related-content answer. Entity evidence outranks vector
// similarity: a chunk found through an entity association always ranks above
// a purely semantic match, whatever its raw score.
type Engine struct {
	chunks    database.ChunksDBHandlerFunctions
	companies database.CompaniesDBHandlerFunctions
	people    database.PeopleDBHandlerFunctions
	vectors   database.VectorsDBHandlerFunctions
	resolver  resolve.ResolverFunctions
	pipeline  *pipeline.Pipeline
	logger    *slog.Logger
}

// EngineFunctions defines the interface for retrieval operations.
type EngineFunctions interface {
	ByEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]*model.SearchResult, error)
	Semantic(ctx context.Context, query string, config model.QueryConfig) ([]*model.SearchResult, error)
	FindRelated(ctx context.Context, text string, config model.QueryConfig) (*model.Analysis, error)
}

// NewEngine creates a retrieval engine over both stores
func NewEngine(
	chunks database.ChunksDBHandlerFunctions,
	companies database.CompaniesDBHandlerFunctions,
	people database.PeopleDBHandlerFunctions,
	vectors database.VectorsDBHandlerFunctions,
	resolver resolve.ResolverFunctions,
	p *pipeline.Pipeline,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		chunks:    chunks,
		companies: companies,
		people:    people,
		vectors:   vectors,
		resolver:  resolver,
		pipeline:  p,
		logger:    logger,
	}
}

// ByEntity returns every chunk associated with the entity, newest source
// first, annotated with source display metadata and entity names. Pure
// relational read; results carry no ranking score.
func (e *Engine) ByEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]*model.SearchResult, error) {
	if limit <= 0 {
		limit = model.DefaultQueryConfig().TopK
	}

	chunks, err := e.chunks.SelectChunksByEntity(entityID, limit)
	if err != nil {
		return nil, err
	}

	results := make([]*model.SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		result := &model.SearchResult{
			Chunk:           chunk,
			RetrievalMethod: model.RetrievalMethodEntity,
		}
		e.annotate(result)
		results = append(results, result)
	}

	return results, nil
}

// Semantic embeds the query and returns the nearest chunks from the vector
// index, hydrated from the relational store. A vector hit with no relational
// row is silently dropped; the index may lag behind deletes and failed
// writes, and orphaned hits are not the caller's problem.
func (e *Engine) Semantic(ctx context.Context, query string, config model.QueryConfig) ([]*model.SearchResult, error) {
	if config.TopK <= 0 {
		config.TopK = model.DefaultQueryConfig().TopK
	}

	embedding, err := e.pipeline.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.vectors.SearchBySimilarity(embedding, config.TopK, config.SimilarityThreshold, config.EntityFilter)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.ChunkID)
	}
	chunks, err := e.chunks.SelectChunksByIDs(ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*model.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	var results []*model.SearchResult
	for _, hit := range hits {
		chunk, ok := byID[hit.ChunkID]
		if !ok {
			e.logger.Debug("dropping orphaned vector hit", "chunk_id", hit.ChunkID)
			continue
		}
		similarity := hit.Similarity
		chunk.Similarity = &similarity
		result := &model.SearchResult{
			Chunk:           chunk,
			Score:           hit.Similarity,
			RetrievalMethod: model.RetrievalMethodVector,
		}
		e.annotate(result)
		results = append(results, result)
	}

	return results, nil
}

// FindRelated is the composite what-do-we-know-about-X entry point. It
// extracts and looks up entities from the text without persisting anything,
// unions their ByEntity chunks with a Semantic search for the text, and
// fuses both: entity-matched chunks first (newest source first), then
// semantic-only matches (best score first), de-duplicated by chunk ID.
func (e *Engine) FindRelated(ctx context.Context, text string, config model.QueryConfig) (*model.Analysis, error) {
	if config.TopK <= 0 {
		config.TopK = model.DefaultQueryConfig().TopK
	}

	mentions, err := e.pipeline.ExtractMentions(ctx, text)
	if err != nil {
		return nil, err
	}
	refs, err := e.resolver.LookupAll(mentions)
	if err != nil {
		return nil, err
	}

	semantic, err := e.Semantic(ctx, text, config)
	if err != nil {
		return nil, err
	}

	if len(refs) == 0 {
		return &model.Analysis{Related: semantic}, nil
	}

	var entityResults []*model.SearchResult
	seen := map[uuid.UUID]bool{}
	for _, ref := range refs {
		results, err := e.ByEntity(ctx, ref.ID, config.TopK)
		if err != nil {
			return nil, err
		}
		for _, result := range results {
			if seen[result.Chunk.ID] {
				continue
			}
			seen[result.Chunk.ID] = true
			entityResults = append(entityResults, result)
		}
	}

	// Newest source first across the union of all matched entities.
	sort.SliceStable(entityResults, func(i, j int) bool {
		ti := entityResults[i].Chunk.Source
		tj := entityResults[j].Chunk.Source
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.Timestamp.After(tj.Timestamp)
	})

	fused := entityResults
	for _, result := range semantic {
		if seen[result.Chunk.ID] {
			continue
		}
		seen[result.Chunk.ID] = true
		fused = append(fused, result)
	}

	return &model.Analysis{
		Entities: refs,
		Related:  fused,
	}, nil
}

// annotate attaches entity display names to a result: the first company
// found on the chunk and every person. Entities missing relationally are
// skipped without failing the result.
func (e *Engine) annotate(result *model.SearchResult) {
	chunk := result.Chunk
	chunk.Entities = chunk.Entities[:0]

	for _, entityID := range chunk.EntityIDs {
		company, err := e.companies.SelectCompany(entityID)
		if err == nil {
			if result.Company == nil {
				result.Company = company
			}
			chunk.Entities = append(chunk.Entities, model.EntityRef{
				ID: company.ID, Kind: model.EntityKindCompany, Name: company.Name,
			})
			continue
		}
		if !errors.Is(err, helper.ErrNotFound) {
			e.logger.Warn("company annotation failed", "entity_id", entityID, "error", err)
		}

		// Any company miss falls through to the people handler; the ID may
		// still resolve as a person.
		person, err := e.people.SelectPerson(entityID)
		if err != nil {
			if !errors.Is(err, helper.ErrNotFound) {
				e.logger.Warn("person annotation failed", "entity_id", entityID, "error", err)
			}
			continue
		}
		result.People = append(result.People, person)
		chunk.Entities = append(chunk.Entities, model.EntityRef{
			ID: person.ID, Kind: model.EntityKindPerson, Name: person.Name,
		})
	}
}
