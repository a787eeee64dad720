package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lumenvc/dossier"
	"github.com/lumenvc/dossier/helper"
	"github.com/lumenvc/dossier/model"
)

const introEmail = `Hi team,

Intro call with Sarah Chen (sarah@novabuild.com) from NovaBuild. They build
modular construction tech for mid-size general contractors and just closed
two paid pilots. Raising a seed next quarter.

Alex`

const followUpNotes = `Follow-up meeting with the novabuild.com team.

Walked through pilot metrics: 30% faster framing, 12% material savings.
Sarah Chen wants a term sheet conversation in April. Marcus Webb
(https://linkedin.com/in/marcus-webb) joined as their new CFO.`

const marketMemo = `Construction tech market memo.

The modular construction market is growing 6% annually, driven by labor
shortages and material costs. Prefab and on-site automation are the two
dominant approaches. Most funded startups target commercial builds.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "dossier_test",
		Username: "dossier",
		Password: "dossier",
		Schema:   "public",
		SSLMode:  "disable",
	}

	d, err := dossier.NewDossier(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create dossier: %v", err)
	}
	defer d.Close()

	// The NER pipeline also extracts name-only mentions like "NovaBuild"
	if err := d.UseNERPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()

	// 1. Ingest a stream of sources
	fmt.Println("=== 1. Ingesting Sources ===")
	r1, err := d.IngestEmail(ctx, introEmail,
		time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
		model.Metadata{"subject": "NovaBuild intro"})
	if err != nil {
		log.Fatalf("Failed to ingest email: %v", err)
	}
	fmt.Printf("Email %s: %d chunks\n", r1.SourceID, len(r1.ChunkIDs))

	r2, err := d.IngestMeetingNotes(ctx, followUpNotes,
		time.Date(2025, 3, 24, 10, 0, 0, 0, time.UTC),
		model.Metadata{"location": "office"})
	if err != nil {
		log.Fatalf("Failed to ingest meeting notes: %v", err)
	}
	fmt.Printf("Meeting notes %s: %d chunks\n", r2.SourceID, len(r2.ChunkIDs))

	title := "Construction tech market memo"
	r3, err := d.IngestArtifact(ctx, &model.Artifact{
		SourceType: model.SourceTypeMemo,
		Title:      &title,
		RawText:    marketMemo,
		Timestamp:  time.Date(2025, 3, 28, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		log.Fatalf("Failed to ingest memo: %v", err)
	}
	fmt.Printf("Memo %s: %d chunks\n", r3.SourceID, len(r3.ChunkIDs))

	// 2. Entity resolution across sources
	fmt.Println("\n=== 2. Resolved Entities ===")
	companies, err := d.Companies.SelectCompanies(10)
	if err != nil {
		log.Fatalf("Failed to list companies: %v", err)
	}
	for _, company := range companies {
		url := "-"
		if company.URL != nil {
			url = *company.URL
		}
		fmt.Printf("Company: %s (url: %s)\n", company.Name, url)
	}
	people, err := d.People.SelectPeople(10)
	if err != nil {
		log.Fatalf("Failed to list people: %v", err)
	}
	for _, person := range people {
		email := "-"
		if person.Email != nil {
			email = *person.Email
		}
		fmt.Printf("Person: %s (email: %s)\n", person.Name, email)
	}

	// 3. Entity context: everything known about one company, newest first
	fmt.Println("\n=== 3. Entity Context ===")
	if len(companies) > 0 {
		results, err := d.EntityContext(ctx, companies[0].ID, 5)
		if err != nil {
			log.Fatalf("Failed to get entity context: %v", err)
		}
		printResults(fmt.Sprintf("Context for %s", companies[0].Name), results)
	}

	// 4. Semantic search across all sources
	fmt.Println("\n=== 4. Semantic Search ===")
	config := model.DefaultQueryConfig()
	config.TopK = 3
	searchResults, err := d.Search(ctx, "How is the modular construction market developing?", &config)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	printResults("Semantic Search", searchResults)

	// 5. Fused analysis: entity-linked content first, semantic fill after
	fmt.Println("\n=== 5. Analyze ===")
	analysis, err := d.Analyze(ctx, "Preparing for the term sheet call with novabuild.com", &config)
	if err != nil {
		log.Fatalf("Analyze failed: %v", err)
	}
	fmt.Printf("Resolved %d entities from the question:\n", len(analysis.Entities))
	for _, entity := range analysis.Entities {
		fmt.Printf("  - %s (%s)\n", entity.Name, entity.Kind)
	}
	printResults("Related Content", analysis.Related)

	// 6. Index type switching
	fmt.Println("\n=== 6. Changing Index Type ===")
	err = d.ChangeIndexType(ctx, "ivfflat", map[string]interface{}{
		"lists": 100,
	})
	if err != nil {
		log.Printf("Warning: Index change failed (this is okay for small datasets): %v", err)
	} else {
		fmt.Println("Successfully switched to IVFFlat index")
	}

	err = d.ChangeIndexType(ctx, "hnsw", map[string]interface{}{
		"m":               16,
		"ef_construction": 64,
	})
	if err != nil {
		log.Printf("Warning: Index change failed: %v", err)
	} else {
		fmt.Println("Successfully switched back to HNSW index")
	}

	fmt.Println("\n=== Advanced Example Completed Successfully! ===")
}

func printResults(title string, results []*model.SearchResult) {
	fmt.Printf("\n%s - Found %d results:\n", title, len(results))
	for i, result := range results {
		if i >= 3 {
			break // Show only first 3
		}
		fmt.Printf("\n  Result %d:\n", i+1)
		fmt.Printf("    Score: %.4f\n", result.Score)
		fmt.Printf("    Method: %s\n", result.RetrievalMethod)
		if result.Chunk.Source != nil {
			fmt.Printf("    Source: %s from %s\n",
				result.Chunk.Source.SourceType, result.Chunk.Source.Timestamp.Format("2006-01-02"))
		}
		content := result.Chunk.Content
		if len(content) > 80 {
			content = content[:80] + "..."
		}
		fmt.Printf("    Content: %s\n", content)
	}
}
