package dossier

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumenvc/dossier/core/ingest"
	"github.com/lumenvc/dossier/core/pipeline"
	"github.com/lumenvc/dossier/core/resolve"
	"github.com/lumenvc/dossier/core/retrieval"
	"github.com/lumenvc/dossier/database"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
	loadSql "github.com/lumenvc/dossier/sql"
)

// Dossier provides a unified interface to the ingestion and retrieval
// pipeline: chunking, entity resolution, dual-store persistence and fused
// retrieval over the relational store and the vector index.
type Dossier struct {
	DB        *helper.Database
	Companies *database.CompaniesDBHandler
	People    *database.PeopleDBHandler
	Sources   *database.SourcesDBHandler
	Chunks    *database.ChunksDBHandler
	Vectors   *database.VectorsDBHandler
	Pipeline  *pipeline.Pipeline // Optional processing pipeline
	Resolver  *resolve.Resolver
	Writer    *ingest.Writer
	Engine    *retrieval.Engine
	// Logging
	log *slog.Logger
}

// NewDossier creates a new Dossier instance with all handlers initialized.
// embeddingDim must match the embedder used by the pipeline; a mismatch with
// an existing vector index fails here, at startup.
func NewDossier(config *helper.DatabaseConfiguration, embeddingDim int) (*Dossier, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("dossier", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers; force=false to not reload functions that exist
	companies, err := database.NewCompaniesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create companies handler", err)
	}

	people, err := database.NewPeopleDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create people handler", err)
	}

	sources, err := database.NewSourcesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create sources handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	vectors, err := database.NewVectorsDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create vectors handler", err)
	}

	resolver := resolve.NewResolver(companies, people, logger)
	writer := ingest.NewWriter(db.Instance, sources, chunks, vectors, logger)

	return &Dossier{
		DB:        db,
		Companies: companies,
		People:    people,
		Sources:   sources,
		Chunks:    chunks,
		Vectors:   vectors,
		Resolver:  resolver,
		Writer:    writer,
		log:       logger,
	}, nil
}

// Close closes the database connection
func (d *Dossier) Close() error {
	if d.DB != nil && d.DB.Instance != nil {
		return d.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the processing pipeline and rebuilds the retrieval engine
// on top of it
func (d *Dossier) SetPipeline(p *pipeline.Pipeline) {
	d.Pipeline = p
	d.Engine = retrieval.NewEngine(d.Chunks, d.Companies, d.People, d.Vectors, d.Resolver, p, d.log)
}

// UseDefaultPipeline sets up the default pipeline: regex mention extraction
// and the local all-MiniLM-L6-v2 embedder (384 dimensions)
func (d *Dossier) UseDefaultPipeline() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	d.SetPipeline(pipeline.NewPipeline(pipeline.RegexExtractor(), embedder))
	return nil
}

// UseNERPipeline sets up a pipeline that combines regex extraction with a
// NER model for name-only mentions, plus the local embedder
func (d *Dossier) UseNERPipeline() error {
	ner, err := pipeline.NERExtractor()
	if err != nil {
		return helper.NewError("create ner extractor", err)
	}
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	d.SetPipeline(pipeline.NewPipeline(pipeline.CombinedExtractor(pipeline.RegexExtractor(), ner), embedder))
	return nil
}

// IngestInteraction processes and persists one interaction: chunking,
// mention resolution, one relational transaction for the source, chunks and
// entity associations, then best-effort vector upserts. Resolved people are
// linked as participants.
func (d *Dossier) IngestInteraction(ctx context.Context, interaction *model.Interaction) (*model.IngestResult, error) {
	refs, chunks, err := d.process(ctx, interaction.RawText)
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		if ref.Kind == model.EntityKindPerson {
			interaction.Participants = append(interaction.Participants, ref.ID)
		}
	}
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = time.Now().UTC()
	}

	result, err := d.Writer.WriteInteraction(ctx, interaction, chunks)
	if err != nil {
		return nil, err
	}

	d.log.Info("Ingested interaction",
		slog.String("interaction_id", interaction.ID.String()),
		slog.Int("num_chunks", len(chunks)),
		slog.Int("num_entities", len(refs)))

	return result, nil
}

// IngestArtifact processes and persists one artifact. Resolved companies are
// linked as related companies.
func (d *Dossier) IngestArtifact(ctx context.Context, artifact *model.Artifact) (*model.IngestResult, error) {
	refs, chunks, err := d.process(ctx, artifact.RawText)
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		if ref.Kind == model.EntityKindCompany {
			artifact.RelatedCompanies = append(artifact.RelatedCompanies, ref.ID)
		}
	}
	if artifact.Timestamp.IsZero() {
		artifact.Timestamp = time.Now().UTC()
	}

	result, err := d.Writer.WriteArtifact(ctx, artifact, chunks)
	if err != nil {
		return nil, err
	}

	d.log.Info("Ingested artifact",
		slog.String("artifact_id", artifact.ID.String()),
		slog.Int("num_chunks", len(chunks)),
		slog.Int("num_entities", len(refs)))

	return result, nil
}

// IngestEmail ingests raw email text as an interaction
func (d *Dossier) IngestEmail(ctx context.Context, rawText string, ts time.Time, metadata model.Metadata) (*model.IngestResult, error) {
	return d.IngestInteraction(ctx, &model.Interaction{
		SourceType: model.SourceTypeEmail,
		RawText:    rawText,
		Timestamp:  ts,
		Metadata:   metadata,
	})
}

// IngestMeetingNotes ingests raw meeting notes as an interaction
func (d *Dossier) IngestMeetingNotes(ctx context.Context, rawText string, ts time.Time, metadata model.Metadata) (*model.IngestResult, error) {
	return d.IngestInteraction(ctx, &model.Interaction{
		SourceType: model.SourceTypeMeetingNotes,
		RawText:    rawText,
		Timestamp:  ts,
		Metadata:   metadata,
	})
}

// Analyze resolves the entities mentioned in text and returns all related
// content, without persisting anything
func (d *Dossier) Analyze(ctx context.Context, text string, config *model.QueryConfig) (*model.Analysis, error) {
	if d.Engine == nil {
		return nil, helper.NewValidationError("analyze", "pipeline not set, use SetPipeline() first")
	}
	return d.Engine.FindRelated(ctx, text, queryConfig(config))
}

// Search performs semantic similarity search over all chunks
func (d *Dossier) Search(ctx context.Context, query string, config *model.QueryConfig) ([]*model.SearchResult, error) {
	if d.Engine == nil {
		return nil, helper.NewValidationError("search", "pipeline not set, use SetPipeline() first")
	}
	return d.Engine.Semantic(ctx, query, queryConfig(config))
}

// EntityContext returns every chunk associated with an entity, newest first
func (d *Dossier) EntityContext(ctx context.Context, entityID uuid.UUID, limit int) ([]*model.SearchResult, error) {
	if d.Engine == nil {
		return nil, helper.NewValidationError("entity context", "pipeline not set, use SetPipeline() first")
	}
	return d.Engine.ByEntity(ctx, entityID, limit)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (d *Dossier) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return d.Vectors.ChangeIndexType(ctx, indexType, params)
}

// process runs the pipeline over raw text, resolves all mentions and tags
// each chunk with the entities whose mention name appears in it
func (d *Dossier) process(ctx context.Context, rawText string) ([]model.EntityRef, []*model.Chunk, error) {
	if d.Pipeline == nil {
		return nil, nil, helper.NewValidationError("ingest", "pipeline not set, use SetPipeline() first")
	}
	if strings.TrimSpace(rawText) == "" {
		return nil, nil, helper.NewValidationError("ingest", "raw text is empty")
	}

	processed, err := d.Pipeline.Process(ctx, rawText)
	if err != nil {
		return nil, nil, err
	}

	type resolved struct {
		mention model.Mention
		ref     model.EntityRef
	}
	var pairs []resolved
	var refs []model.EntityRef
	seen := map[uuid.UUID]bool{}
	for _, mention := range processed.Mentions {
		ref, err := d.Resolver.Resolve(mention)
		if err != nil {
			return nil, nil, err
		}
		pairs = append(pairs, resolved{mention: mention, ref: *ref})
		if !seen[ref.ID] {
			seen[ref.ID] = true
			refs = append(refs, *ref)
		}
	}

	for _, chunk := range processed.Chunks {
		tagged := map[uuid.UUID]bool{}
		content := strings.ToLower(chunk.Content)
		for _, pair := range pairs {
			if tagged[pair.ref.ID] {
				continue
			}
			if !strings.Contains(content, strings.ToLower(pair.mention.Name)) {
				continue
			}
			tagged[pair.ref.ID] = true
			chunk.EntityIDs = append(chunk.EntityIDs, pair.ref.ID)
			chunk.Entities = append(chunk.Entities, pair.ref)
		}
	}

	return refs, processed.Chunks, nil
}

func queryConfig(config *model.QueryConfig) model.QueryConfig {
	if config == nil {
		return model.DefaultQueryConfig()
	}
	return *config
}
