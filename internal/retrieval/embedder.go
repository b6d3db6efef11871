package retrieval

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedder turns free text into a vector in the same space as the index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenAIEmbedder embeds queries with the Gemini embedding API, sharing the
// genai client used by the chat models.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

func NewGenAIEmbedder(client *genai.Client, model string) *GenAIEmbedder {
	return &GenAIEmbedder{client: client, model: model}
}

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("embed query: empty response")
	}
	return resp.Embeddings[0].Values, nil
}
