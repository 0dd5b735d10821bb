package llm

import (
	"context"
	"fmt"

	"github.com/clauselens/clauselens/internal/core"
)

// DisabledEmbedder is the provider used when no embedding backend is
// configured. The process still starts (useful for auth- or listing-only
// runs against the in-memory store); any ingestion or retrieval that needs
// a vector fails with the embedding error.
type DisabledEmbedder struct{}

func NewDisabledEmbedder() *DisabledEmbedder { return &DisabledEmbedder{} }

func (*DisabledEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: no embedding provider configured", core.ErrEmbedding)
}

var _ core.EmbeddingProvider = (*DisabledEmbedder)(nil)
