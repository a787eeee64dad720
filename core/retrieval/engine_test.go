package retrieval

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lumenvc/dossier/core/pipeline"
	"github.com/lumenvc/dossier/core/resolve"
	"github.com/lumenvc/dossier/database"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for both stores: relational chunks,
// companies, people, and the vector index. Vector state is tracked
// separately from relational state so tests can open a consistency gap
// between the two.
type fakeStore struct {
	chunks    map[uuid.UUID]*model.Chunk
	companies map[uuid.UUID]*model.Company
	people    map[uuid.UUID]*model.Person
	vectors   map[uuid.UUID]vectorEntry
	// companyErr, when set, fails every SelectCompany call
	companyErr error
}

type vectorEntry struct {
	embedding []float32
	entityIDs []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chunks:    map[uuid.UUID]*model.Chunk{},
		companies: map[uuid.UUID]*model.Company{},
		people:    map[uuid.UUID]*model.Person{},
		vectors:   map[uuid.UUID]vectorEntry{},
	}
}

// addChunk stores a chunk relationally; indexed controls whether its vector
// also lands in the index.
func (f *fakeStore) addChunk(content string, ts time.Time, embedding []float32, indexed bool, entityIDs ...uuid.UUID) *model.Chunk {
	chunk := &model.Chunk{
		ID:         uuid.New(),
		SourceID:   uuid.New(),
		SourceKind: model.SourceKindInteraction,
		Content:    content,
		EntityIDs:  entityIDs,
		Source: &model.SourceDisplay{
			SourceKind: model.SourceKindInteraction,
			SourceType: model.SourceTypeEmail,
			Timestamp:  ts,
		},
	}
	chunk.Source.SourceID = chunk.SourceID
	f.chunks[chunk.ID] = chunk
	if indexed {
		f.vectors[chunk.ID] = vectorEntry{embedding: embedding, entityIDs: entityIDs}
	}
	return chunk
}

func (f *fakeStore) addCompany(name string) *model.Company {
	company := &model.Company{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	f.companies[company.ID] = company
	return company
}

func (f *fakeStore) addPerson(name string) *model.Person {
	person := &model.Person{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	f.people[person.ID] = person
	return person
}

// ChunksDBHandlerFunctions

func (f *fakeStore) InsertChunkTx(tx *sql.Tx, chunk *model.Chunk) error {
	f.chunks[chunk.ID] = chunk
	return nil
}

func (f *fakeStore) SelectChunk(id uuid.UUID) (*model.Chunk, error) {
	if chunk, ok := f.chunks[id]; ok {
		return chunk, nil
	}
	return nil, helper.NewError("select chunk", helper.ErrNotFound)
}

func (f *fakeStore) SelectChunksByEntity(entityID uuid.UUID, limit int) ([]*model.Chunk, error) {
	var matches []*model.Chunk
	for _, chunk := range f.chunks {
		for _, id := range chunk.EntityIDs {
			if id == entityID {
				copied := *chunk
				matches = append(matches, &copied)
				break
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Source.Timestamp.After(matches[j].Source.Timestamp)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (f *fakeStore) SelectChunksByIDs(ids []uuid.UUID) ([]*model.Chunk, error) {
	var found []*model.Chunk
	for _, id := range ids {
		if chunk, ok := f.chunks[id]; ok {
			copied := *chunk
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (f *fakeStore) DeleteChunk(id uuid.UUID) error {
	delete(f.chunks, id)
	return nil
}

// VectorsDBHandlerFunctions

func (f *fakeStore) UpsertChunkVector(chunk *model.Chunk, ts time.Time) error {
	f.vectors[chunk.ID] = vectorEntry{embedding: chunk.Embedding, entityIDs: chunk.EntityIDs}
	return nil
}

func (f *fakeStore) SearchBySimilarity(embedding []float32, limit int, threshold float64, entityFilter []uuid.UUID) ([]database.VectorHit, error) {
	var hits []database.VectorHit
	for id, entry := range f.vectors {
		if len(entityFilter) > 0 && !intersects(entry.entityIDs, entityFilter) {
			continue
		}
		similarity := cosine(embedding, entry.embedding)
		if similarity < threshold {
			continue
		}
		hits = append(hits, database.VectorHit{ChunkID: id, Similarity: similarity, EntityIDs: entry.entityIDs})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeStore) DeleteChunkVector(chunkID uuid.UUID) error {
	delete(f.vectors, chunkID)
	return nil
}

func (f *fakeStore) Dim() int { return 3 }

// CompaniesDBHandlerFunctions

func (f *fakeStore) InsertCompany(company *model.Company) error {
	company.ID = uuid.New()
	f.companies[company.ID] = company
	return nil
}

func (f *fakeStore) SelectCompany(id uuid.UUID) (*model.Company, error) {
	if f.companyErr != nil {
		return nil, f.companyErr
	}
	if company, ok := f.companies[id]; ok {
		return company, nil
	}
	return nil, helper.NewError("select company", helper.ErrNotFound)
}

func (f *fakeStore) SelectCompanyByURL(url string) (*model.Company, error) {
	for _, company := range f.companies {
		if company.URL != nil && *company.URL == url {
			return company, nil
		}
	}
	return nil, helper.NewError("select company by url", helper.ErrNotFound)
}

func (f *fakeStore) SelectCompanyByLinkedIn(linkedinURL string) (*model.Company, error) {
	for _, company := range f.companies {
		if company.LinkedInURL != nil && *company.LinkedInURL == linkedinURL {
			return company, nil
		}
	}
	return nil, helper.NewError("select company by linkedin", helper.ErrNotFound)
}

func (f *fakeStore) SearchCompaniesByName(name string, limit int) ([]*model.Company, error) {
	var matches []*model.Company
	lower := strings.ToLower(name)
	for _, company := range f.companies {
		canonical := strings.ToLower(company.Name)
		if strings.Contains(canonical, lower) || strings.Contains(lower, canonical) {
			matches = append(matches, company)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (f *fakeStore) FillCompany(company *model.Company) error { return nil }

func (f *fakeStore) SelectCompanies(limit int) ([]*model.Company, error) { return nil, nil }

// PeopleDBHandlerFunctions

func (f *fakeStore) InsertPerson(person *model.Person) error {
	person.ID = uuid.New()
	f.people[person.ID] = person
	return nil
}

func (f *fakeStore) SelectPerson(id uuid.UUID) (*model.Person, error) {
	if person, ok := f.people[id]; ok {
		return person, nil
	}
	return nil, helper.NewError("select person", helper.ErrNotFound)
}

func (f *fakeStore) SelectPersonByEmail(email string) (*model.Person, error) {
	for _, person := range f.people {
		if person.Email != nil && *person.Email == email {
			return person, nil
		}
	}
	return nil, helper.NewError("select person by email", helper.ErrNotFound)
}

func (f *fakeStore) SelectPersonByLinkedIn(linkedinURL string) (*model.Person, error) {
	for _, person := range f.people {
		if person.LinkedInURL != nil && *person.LinkedInURL == linkedinURL {
			return person, nil
		}
	}
	return nil, helper.NewError("select person by linkedin", helper.ErrNotFound)
}

func (f *fakeStore) SearchPeopleByName(name string, limit int) ([]*model.Person, error) {
	var matches []*model.Person
	lower := strings.ToLower(name)
	for _, person := range f.people {
		canonical := strings.ToLower(person.Name)
		if strings.Contains(canonical, lower) || strings.Contains(lower, canonical) {
			matches = append(matches, person)
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (f *fakeStore) FillPerson(person *model.Person) error { return nil }

func (f *fakeStore) SelectPeople(limit int) ([]*model.Person, error) { return nil, nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func intersects(a, b []uuid.UUID) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// mapEmbedder returns canned embeddings per exact text, defaulting to a
// fixed vector for anything unlisted
func mapEmbedder(known map[string][]float32) pipeline.EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if embedding, ok := known[text]; ok {
			return embedding, nil
		}
		return []float32{0, 0, 1}, nil
	}
}

func newTestEngine(store *fakeStore, embeddings map[string][]float32) *Engine {
	p := pipeline.NewPipeline(pipeline.RegexExtractor(), mapEmbedder(embeddings))
	p.Retry = model.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}
	resolver := resolve.NewResolver(store, store, nil)
	return NewEngine(store, store, store, store, resolver, p, nil)
}

func TestEngineByEntity(t *testing.T) {
	store := newFakeStore()
	company := store.addCompany("NovaBuild")
	person := store.addPerson("Sarah Chen")

	older := store.addChunk("NovaBuild update from January.",
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), []float32{1, 0, 0}, true, company.ID)
	newer := store.addChunk("NovaBuild and Sarah Chen in June.",
		time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), []float32{1, 0, 0}, true, company.ID, person.ID)
	store.addChunk("Unrelated note.", time.Now(), []float32{0, 1, 0}, true)

	engine := newTestEngine(store, nil)
	ctx := context.Background()

	t.Run("Chunks ordered newest source first", func(t *testing.T) {
		results, err := engine.ByEntity(ctx, company.ID, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, newer.ID, results[0].Chunk.ID)
		assert.Equal(t, older.ID, results[1].Chunk.ID)
		assert.Equal(t, model.RetrievalMethodEntity, results[0].RetrievalMethod)
		assert.Zero(t, results[0].Score, "Expected entity reads to carry no ranking score")
	})

	t.Run("Results annotated with entity display names", func(t *testing.T) {
		results, err := engine.ByEntity(ctx, company.ID, 10)
		require.NoError(t, err)

		first := results[0]
		require.NotNil(t, first.Company)
		assert.Equal(t, "NovaBuild", first.Company.Name)
		require.Len(t, first.People, 1)
		assert.Equal(t, "Sarah Chen", first.People[0].Name)
	})

	t.Run("Unknown entity yields no results", func(t *testing.T) {
		results, err := engine.ByEntity(ctx, uuid.New(), 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Person annotation survives a failing company lookup", func(t *testing.T) {
		store.companyErr = helper.NewError("select company", helper.ErrTransient)
		defer func() { store.companyErr = nil }()

		results, err := engine.ByEntity(ctx, person.ID, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Len(t, results[0].People, 1, "Expected person lookup despite the company store failing")
		assert.Equal(t, "Sarah Chen", results[0].People[0].Name)
	})
}

func TestEngineSemantic(t *testing.T) {
	store := newFakeStore()
	company := store.addCompany("NovaBuild")

	near := store.addChunk("Construction tech roundup.",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), []float32{1, 0, 0}, true, company.ID)
	store.addChunk("Gardening newsletter.",
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), []float32{0, 1, 0}, true)

	embeddings := map[string][]float32{"construction tech": {1, 0, 0}}
	engine := newTestEngine(store, embeddings)
	ctx := context.Background()

	t.Run("Results ordered by similarity with scores attached", func(t *testing.T) {
		results, err := engine.Semantic(ctx, "construction tech", model.QueryConfig{TopK: 10})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, near.ID, results[0].Chunk.ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Greater(t, results[0].Score, results[1].Score)
		assert.Equal(t, model.RetrievalMethodVector, results[0].RetrievalMethod)
		require.NotNil(t, results[0].Chunk.Similarity)
	})

	t.Run("Entity filter restricts results", func(t *testing.T) {
		results, err := engine.Semantic(ctx, "construction tech", model.QueryConfig{
			TopK:         10,
			EntityFilter: []uuid.UUID{company.ID},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, near.ID, results[0].Chunk.ID, "Expected only the entity-tagged chunk")
	})

	t.Run("Orphaned vector hits are silently dropped", func(t *testing.T) {
		// Vector row exists, relational row does not.
		orphanID := uuid.New()
		store.vectors[orphanID] = vectorEntry{embedding: []float32{1, 0, 0}}

		results, err := engine.Semantic(ctx, "construction tech", model.QueryConfig{TopK: 10})
		require.NoError(t, err)
		for _, result := range results {
			assert.NotEqual(t, orphanID, result.Chunk.ID, "Expected the orphaned hit to be dropped")
		}
		delete(store.vectors, orphanID)
	})
}

func TestEngineFusion(t *testing.T) {
	store := newFakeStore()
	company := store.addCompany("NovaBuild")

	// The entity-matched chunk is deliberately a poor semantic match, the
	// semantic chunk a perfect one.
	entityChunk := store.addChunk("NovaBuild quarterly admin note.",
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), []float32{0, 1, 0}, true, company.ID)
	semanticChunk := store.addChunk("Construction robotics deep dive.",
		time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), []float32{1, 0, 0}, true)

	query := "What do we know about novabuild.com and construction?"
	embeddings := map[string][]float32{query: {1, 0, 0}}
	engine := newTestEngine(store, embeddings)
	ctx := context.Background()

	t.Run("Entity evidence outranks vector similarity", func(t *testing.T) {
		analysis, err := engine.FindRelated(ctx, query, model.QueryConfig{TopK: 10})
		require.NoError(t, err)

		require.Len(t, analysis.Entities, 1)
		assert.Equal(t, company.ID, analysis.Entities[0].ID)

		require.Len(t, analysis.Related, 2)
		assert.Equal(t, entityChunk.ID, analysis.Related[0].Chunk.ID,
			"Expected the entity-matched chunk first despite its lower raw similarity")
		assert.Equal(t, semanticChunk.ID, analysis.Related[1].Chunk.ID)
	})

	t.Run("Chunks in both groups are de-duplicated", func(t *testing.T) {
		// Make the entity chunk also a strong semantic match.
		store.vectors[entityChunk.ID] = vectorEntry{embedding: []float32{1, 0, 0}, entityIDs: entityChunk.EntityIDs}

		analysis, err := engine.FindRelated(ctx, query, model.QueryConfig{TopK: 10})
		require.NoError(t, err)

		seen := map[uuid.UUID]int{}
		for _, result := range analysis.Related {
			seen[result.Chunk.ID]++
		}
		assert.Equal(t, 1, seen[entityChunk.ID], "Expected chunk found through both paths exactly once")
		assert.Equal(t, model.RetrievalMethodEntity, analysis.Related[0].RetrievalMethod)
	})

	t.Run("No resolved entities falls back to semantic alone", func(t *testing.T) {
		noEntityQuery := "purely conceptual query"
		analysis, err := engine.FindRelated(ctx, noEntityQuery, model.QueryConfig{TopK: 10})
		require.NoError(t, err)
		assert.Empty(t, analysis.Entities)
		for _, result := range analysis.Related {
			assert.Equal(t, model.RetrievalMethodVector, result.RetrievalMethod)
		}
	})

	t.Run("Lookup never creates entities", func(t *testing.T) {
		before := len(store.companies) + len(store.people)
		_, err := engine.FindRelated(ctx, "Brand New Ventures at https://brandnew.example.com", model.QueryConfig{TopK: 5})
		require.NoError(t, err)
		assert.Equal(t, before, len(store.companies)+len(store.people),
			"Expected analysis to leave the entity tables untouched")
	})
}

func TestEngineEventualConsistency(t *testing.T) {
	store := newFakeStore()
	company := store.addCompany("NovaBuild")

	// Relationally present, vector upsert not yet succeeded.
	lagging := store.addChunk("NovaBuild announcement.",
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), []float32{1, 0, 0}, false, company.ID)

	query := "novabuild announcement"
	embeddings := map[string][]float32{query: {1, 0, 0}}
	engine := newTestEngine(store, embeddings)
	ctx := context.Background()

	t.Run("Lagging chunk visible relationally, absent semantically", func(t *testing.T) {
		byEntity, err := engine.ByEntity(ctx, company.ID, 10)
		require.NoError(t, err)
		require.Len(t, byEntity, 1)
		assert.Equal(t, lagging.ID, byEntity[0].Chunk.ID)

		semantic, err := engine.Semantic(ctx, query, model.QueryConfig{TopK: 10})
		require.NoError(t, err)
		assert.Empty(t, semantic, "Expected the un-indexed chunk to be invisible to semantic search")
	})

	t.Run("Successful upsert closes the gap", func(t *testing.T) {
		lagging.Embedding = []float32{1, 0, 0}
		require.NoError(t, store.UpsertChunkVector(lagging, time.Now()))

		semantic, err := engine.Semantic(ctx, query, model.QueryConfig{TopK: 10})
		require.NoError(t, err)
		require.Len(t, semantic, 1)
		assert.Equal(t, lagging.ID, semantic[0].Chunk.ID)
	})
}
