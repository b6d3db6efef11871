package retrieval

import (
	"context"
	"fmt"
	"time"

	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

// Retriever is the Knowledge Retriever: embed the query, then brute-force
// search the in-memory index.
type Retriever struct {
	embedder Embedder
	index    *Index
	cfg      Config
}

func NewRetriever(embedder Embedder, index *Index, cfg Config) *Retriever {
	return &Retriever{embedder: embedder, index: index, cfg: cfg}
}

// Search returns at most topK snippets ordered by descending similarity.
// An empty index or no snippet above the similarity floor yields an empty
// result, not an error. Embedding failures are reported as ErrUnavailable.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Snippet, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if r.index.Len() == 0 {
		return nil, nil
	}

	timeout := time.Duration(r.cfg.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logx.Error().Err(err).Msg("query embedding failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hits := r.index.Search(vec, topK, r.cfg.MinScore)
	logx.Debug().Int("hits", len(hits)).Int("top_k", topK).Msg("knowledge search completed")
	return hits, nil
}
