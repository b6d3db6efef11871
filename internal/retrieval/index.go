package retrieval

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

// Document is one entry of the precomputed index snapshot.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Area      string    `json:"area"`
	Embedding []float32 `json:"embedding"`
}

// Index is an in-memory brute-force cosine index. Documents keep their
// insertion order, which is also the tie-break order for equal scores.
type Index struct {
	mu   sync.RWMutex
	docs []Document
}

func NewIndex(docs []Document) *Index {
	return &Index{docs: docs}
}

// LoadIndex reads an index snapshot from disk. A missing file yields an empty
// index rather than an error: the retriever then returns no snippets, which
// the pipeline already handles.
func LoadIndex(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logx.Warn().Str("path", path).Msg("knowledge index snapshot not found, starting with empty index")
			return NewIndex(nil), nil
		}
		return nil, fmt.Errorf("read index snapshot: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode index snapshot: %w", err)
	}

	kept := docs[:0]
	for _, d := range docs {
		if len(d.Embedding) == 0 || d.Content == "" {
			logx.Warn().Str("id", d.ID).Msg("skipping index entry without embedding or content")
			continue
		}
		kept = append(kept, d)
	}

	logx.Info().Int("documents", len(kept)).Str("path", path).Msg("knowledge index loaded")
	return NewIndex(kept), nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search scores every document against the query vector and returns at most
// topK snippets with score >= minScore, ordered by descending score. Equal
// scores keep index insertion order.
func (ix *Index) Search(query []float32, topK int, minScore float64) []Snippet {
	if topK <= 0 || len(query) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var hits []Snippet
	for _, d := range ix.docs {
		score := cosineSimilarity(query, d.Embedding)
		if score < minScore {
			continue
		}
		hits = append(hits, Snippet{
			Source:   d.ID,
			Title:    d.Title,
			Text:     d.Content,
			Category: d.Category,
			Score:    score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// cosineSimilarity maps the cosine of the two vectors into [0, 1]; mismatched
// or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
