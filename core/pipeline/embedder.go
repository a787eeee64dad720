package pipeline

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/lumenvc/dossier/helper"
	openai "github.com/sashabaranov/go-openai"
)

// Embedding dimensions of the supported embedders. The vector index is
// created with the embedder's dimension and verifies it at startup.
const (
	DefaultEmbeddingDim = 384
	OpenAIEmbeddingDim  = 1536
)

// DefaultEmbedder creates a local embedder using a sentence transformer
// model. Uses all-MiniLM-L6-v2, which produces 384-dimensional embeddings.
func DefaultEmbedder() (EmbedFunc, error) {
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(ctx context.Context, text string) ([]float32, error) {
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}
		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}
		return result.Embeddings[0], nil
	}, nil
}

// OpenAIEmbedder creates a remote embedder backed by the OpenAI embeddings
// API. Uses text-embedding-ada-002, which produces 1536-dimensional
// embeddings.
func OpenAIEmbedder(apiKey string) (EmbedFunc, error) {
	if apiKey == "" {
		return nil, helper.NewValidationError("openai embedder", "api key is empty")
	}

	client := openai.NewClient(apiKey)

	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.AdaEmbeddingV2,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}
		return resp.Data[0].Embedding, nil
	}, nil
}
