package retrieval

import (
	"context"
	"fmt"
	"math"

	"github.com/clauselens/clauselens/internal/core"
)

// DefaultTopK is used when the caller does not ask for a specific k.
const DefaultTopK = 5

// Result is one retrieved chunk with its similarity to the question, rounded
// to 4 decimal digits.
type Result struct {
	Text       string         `json:"text_chunk"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

// Engine answers a natural-language question with the most relevant chunks
// owned by the asking user.
type Engine struct {
	store    core.Store
	embedder core.EmbeddingProvider
}

func NewEngine(store core.Store, embedder core.EmbeddingProvider) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Retrieve embeds the question and runs a tenant-scoped top-k similarity
// search. A user with zero chunks gets an empty result, not an error.
func (e *Engine) Retrieve(ctx context.Context, userID, question string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", core.ErrValidation, k)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", core.ErrValidation)
	}

	vecs, err := e.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %v", core.ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one question", core.ErrEmbedding, len(vecs))
	}

	hits, err := e.store.SearchChunks(ctx, userID, vecs[0], k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Text:       h.Chunk.Text,
			Metadata:   h.Chunk.Metadata,
			Similarity: round4(h.Similarity),
		})
	}
	return results, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
