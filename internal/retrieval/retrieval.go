// Package retrieval answers free-text queries against a precomputed embedding
// index of curated Tokyo travel knowledge. The index snapshot is produced by
// an offline ingest job; this package only loads and searches it.
package retrieval

import "errors"

// ErrUnavailable indicates the retrieval backend (embedding provider) could
// not be reached. Callers treat it as "no snippets", never as a fatal error
// for the turn.
var ErrUnavailable = errors.New("retrieval unavailable")

// Category tags carried by every indexed document.
const (
	CategoryTemple       = "temple"
	CategoryView         = "view"
	CategoryNeighborhood = "neighborhood"
	CategoryTip          = "tip"
)

// Snippet is a retrieved passage with its similarity score in [0, 1].
type Snippet struct {
	Source   string  `json:"source"`
	Title    string  `json:"title"`
	Text     string  `json:"text"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Config holds retrieval settings, sourced from environment variables.
type Config struct {
	IndexPath      string  `envconfig:"RETRIEVAL_INDEX_PATH" default:"data/tokyo_guide_index.json"`
	TopK           int     `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	MinScore       float64 `envconfig:"RETRIEVAL_MIN_SCORE" default:"0.25"`
	EmbeddingModel string  `envconfig:"RETRIEVAL_EMBEDDING_MODEL" default:"text-embedding-004"`
	TimeoutSeconds int     `envconfig:"RETRIEVAL_TIMEOUT_SECONDS" default:"10"`
}
