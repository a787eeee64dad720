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

const sampleEmail = `Hi team,

Great call with Sarah Chen (sarah@novabuild.com) today. NovaBuild is building
modular construction tech and just closed a pilot with two general contractors.

They are raising a seed round next quarter. Sarah will send over the deck
and their pilot metrics by Friday.

More at https://novabuild.com.

Best,
Alex`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
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

	// Set up the default pipeline (regex mention extraction + local embeddings)
	if err := d.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	// Ingest an email: chunking, entity resolution and dual-store persistence
	fmt.Println("Ingesting email...")
	result, err := d.IngestEmail(context.Background(), sampleEmail,
		time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
		model.Metadata{
			"subject": "NovaBuild intro call",
			"from":    "alex@lumenvc.com",
		})
	if err != nil {
		log.Fatalf("Failed to ingest email: %v", err)
	}
	fmt.Printf("Ingested interaction %s with %d chunks\n", result.SourceID, len(result.ChunkIDs))

	// The entities were resolved during ingestion
	companies, err := d.Companies.SelectCompanies(10)
	if err != nil {
		log.Fatalf("Failed to list companies: %v", err)
	}
	for _, company := range companies {
		url := "-"
		if company.URL != nil {
			url = *company.URL
		}
		fmt.Printf("Resolved company: %s (%s)\n", company.Name, url)
	}

	// Semantic search over the ingested chunks
	queryText := "Who is raising a seed round?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	config := model.DefaultQueryConfig()
	config.TopK = 5

	results, err := d.Search(context.Background(), queryText, &config)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", len(results))
	for i, result := range results {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Score: %.4f\n", result.Score)
		fmt.Printf("Method: %s\n", result.RetrievalMethod)
		fmt.Printf("Content: %s\n", result.Chunk.Content)
	}

	fmt.Println("\nBasic example completed successfully!")
}
