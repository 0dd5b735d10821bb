package models

import (
	"time"
)

// Document lifecycle states. Processing is the only non-terminal state: every
// ingestion ends in Ready or Failed.
const (
	StatusProcessing = "Processing"
	StatusReady      = "Ready"
	StatusFailed     = "Failed"
)

// User represents an authenticated user of the system. The username doubles as
// the display name and is unique across all users.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Document represents one uploaded contract. RiskScore, Parties and ExpiryDate
// are derived metadata produced outside this system and stored opaquely.
type Document struct {
	ID         string    `db:"id" json:"doc_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Filename   string    `db:"filename" json:"filename"`
	Status     string    `db:"status" json:"status"`
	RiskScore  string    `db:"risk_score" json:"risk_score"`
	Parties    string    `db:"parties" json:"parties"`
	ExpiryDate string    `db:"expiry_date" json:"expiry_date"`
	StorageURL string    `db:"storage_url" json:"storage_url,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"uploaded_on"`
}

// DocumentChunk is one text span of a document plus its embedding. UserID is
// denormalized from the parent document so tenant filtering never needs a join;
// writers must keep it equal to the document's owner.
type DocumentChunk struct {
	ID         string         `db:"id" json:"id"`
	DocumentID string         `db:"document_id" json:"document_id"`
	UserID     string         `db:"user_id" json:"user_id"`
	Text       string         `db:"text_chunk" json:"text_chunk"`
	Embedding  []float32      `db:"embedding" json:"-"`
	Metadata   map[string]any `db:"metadata" json:"metadata"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// SearchResult pairs a chunk with its cosine similarity to a query vector.
type SearchResult struct {
	Chunk      DocumentChunk
	Similarity float64
}
