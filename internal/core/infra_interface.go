package core

import (
	"context"
	"io"

	"github.com/clauselens/clauselens/internal/models"
)

// Store defines all persistence operations the services need. It abstracts
// Postgres/pgvector so higher layers never depend on a specific DB, and lets
// tests run against an in-memory implementation.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	// AppendChunks inserts all chunks atomically. Every chunk must carry the
	// owning document ID and the owner's user ID, and every embedding must
	// match the store's fixed dimension (ErrValidation otherwise).
	AppendChunks(ctx context.Context, chunks []models.DocumentChunk) error

	// SearchChunks returns at most k chunks owned by userID, ordered by
	// descending cosine similarity to the query vector, ties broken by
	// insertion order.
	SearchChunks(ctx context.Context, userID string, query []float32, k int) ([]models.SearchResult, error)

	// WithTx runs fn against a Store bound to a single transaction. fn
	// returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Close() error
}

// EmbeddingProvider turns texts into fixed-dimension vectors. One output
// vector per input text, in the same order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates an answer from a prompt pair.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
}
