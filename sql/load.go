package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed init.sql
var initSQL string

//go:embed entities.sql
var entitiesSQL string

//go:embed sources.sql
var sourcesSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed vectors.sql
var vectorsSQL string

// Function lists for verification
var EntitiesFunctions = []string{
	"init_entities",
	"insert_company",
	"select_company",
	"select_company_by_url",
	"select_company_by_linkedin",
	"search_companies_by_name",
	"fill_company",
	"select_companies",
	"insert_person",
	"select_person",
	"select_person_by_email",
	"select_person_by_linkedin",
	"search_people_by_name",
	"fill_person",
	"select_people",
}

var SourcesFunctions = []string{
	"init_sources",
	"insert_interaction",
	"add_interaction_participant",
	"select_interaction",
	"select_interaction_participants",
	"insert_artifact",
	"add_artifact_company",
	"select_artifact",
	"select_artifact_companies",
	"select_source_display",
}

var ChunksFunctions = []string{
	"init_chunks",
	"insert_chunk",
	"add_chunk_entity",
	"select_chunk",
	"select_chunks_by_entity",
	"select_chunks_by_ids",
	"delete_chunk",
}

var VectorsFunctions = []string{
	"init_vectors",
	"select_vector_dim",
	"upsert_chunk_vector",
	"select_vectors_by_similarity",
	"delete_chunk_vector",
}

// Init initializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}
	return nil
}

// LoadEntitiesSql loads company- and person-related SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	return loadFunctions(db, entitiesSQL, EntitiesFunctions, force)
}

// LoadSourcesSql loads interaction- and artifact-related SQL functions
func LoadSourcesSql(db *sql.DB, force bool) error {
	return loadFunctions(db, sourcesSQL, SourcesFunctions, force)
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	return loadFunctions(db, chunksSQL, ChunksFunctions, force)
}

// LoadVectorsSql loads vector-index SQL functions
func LoadVectorsSql(db *sql.DB, force bool) error {
	return loadFunctions(db, vectorsSQL, VectorsFunctions, force)
}

// loadFunctions executes a SQL function file unless all of its functions
// already exist (or force is set), then verifies the result.
func loadFunctions(db *sql.DB, functionsSQL string, functionNames []string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functionNames)
		if err != nil {
			return fmt.Errorf("error checking existing functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(functionsSQL)
	if err != nil {
		return fmt.Errorf("error executing functions SQL: %w", err)
	}

	exist, err := checkFunctions(db, functionNames)
	if err != nil {
		return fmt.Errorf("error checking created functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	return nil
}

// checkFunctions reports whether every named function exists in the database
func checkFunctions(db *sql.DB, functionNames []string) (bool, error) {
	for _, name := range functionNames {
		var exists bool
		err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = $1)`,
			name,
		).Scan(&exists)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}
