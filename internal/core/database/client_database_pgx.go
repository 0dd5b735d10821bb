package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/clauselens/clauselens/internal/config"
	"github.com/clauselens/clauselens/internal/core"
	"github.com/clauselens/clauselens/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the same client code
// serves plain calls and calls bound to a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// DatabaseClient implements core.Store on Postgres with the pgvector extension.
type DatabaseClient struct {
	db  *sql.DB
	q   querier
	dim int
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	if cfg.EmbedDim <= 0 {
		return nil, fmt.Errorf("EMBED_DIM must be positive, got %d", cfg.EmbedDim)
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, sqlDB, cfg.EmbedDim); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: sqlDB, q: sqlDB, dim: cfg.EmbedDim}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// WithTx runs fn against a shadow client bound to one transaction.
func (c *DatabaseClient) WithTx(ctx context.Context, fn func(tx core.Store) error) error {
	sqlTx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", core.ErrStorage, err)
	}
	bound := &DatabaseClient{db: c.db, q: sqlTx, dim: c.dim}
	if err := fn(bound); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx: %v", core.ErrStorage, err)
	}
	return nil
}

func (c *DatabaseClient) inTx() bool {
	_, ok := c.q.(*sql.Tx)
	return ok
}

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("%w: nil user", core.ErrValidation)
	}
	const q = `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`
	var created any
	if !user.CreatedAt.IsZero() {
		created = user.CreatedAt
	}
	if _, err := c.q.ExecContext(ctx, q, user.ID, user.Username, user.PasswordHash, created); err != nil {
		return fmt.Errorf("%w: create user: %v", core.ErrStorage, err)
	}
	return nil
}

func (c *DatabaseClient) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const q = `
		SELECT id, username, password_hash, created_at
		FROM users WHERE username = $1
	`
	var u models.User
	err := c.q.QueryRowContext(ctx, q, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %v", core.ErrStorage, err)
	}
	return &u, nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", core.ErrValidation)
	}
	if doc.UserID == "" {
		return fmt.Errorf("%w: document has no owner", core.ErrValidation)
	}
	const q = `
		INSERT INTO documents
			(id, user_id, filename, status, risk_score, parties, expiry_date, storage_url, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
	`
	var created any
	if !doc.CreatedAt.IsZero() {
		created = doc.CreatedAt
	}
	_, err := c.q.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.Filename, doc.Status, doc.RiskScore, doc.Parties, doc.ExpiryDate, doc.StorageURL, created)
	if err != nil {
		return fmt.Errorf("%w: create document: %v", core.ErrStorage, err)
	}
	return nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, user_id, filename, status, risk_score, parties, expiry_date, storage_url, created_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.q.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.UserID, &d.Filename, &d.Status, &d.RiskScore, &d.Parties, &d.ExpiryDate, &d.StorageURL, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get document: %v", core.ErrStorage, err)
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	const q = `
		SELECT id, user_id, filename, status, risk_score, parties, expiry_date, storage_url, created_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := c.q.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", core.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Filename, &d.Status, &d.RiskScore, &d.Parties, &d.ExpiryDate, &d.StorageURL, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", core.ErrStorage, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", core.ErrStorage, err)
	}
	return out, nil
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2
		WHERE id = $1
	`
	res, err := c.q.ExecContext(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("%w: update status: %v", core.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: document not found: %s", core.ErrStorage, id)
	}
	return nil
}

// AppendChunks inserts all chunks in a single transaction. Dimension mismatches
// are rejected up front so no partial batch is ever committed.
func (c *DatabaseClient) AppendChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if len(chunks[i].Embedding) != c.dim {
			return fmt.Errorf("%w: chunk %d embedding has dimension %d, store expects %d",
				core.ErrValidation, i, len(chunks[i].Embedding), c.dim)
		}
		if chunks[i].DocumentID == "" || chunks[i].UserID == "" {
			return fmt.Errorf("%w: chunk %d missing document or user ID", core.ErrValidation, i)
		}
	}

	run := c.q
	var tx *sql.Tx
	if !c.inTx() {
		var err error
		tx, err = c.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return fmt.Errorf("%w: begin tx: %v", core.ErrStorage, err)
		}
		run = tx
	}

	const q = `
		INSERT INTO chunks
			(id, document_id, user_id, text_chunk, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`
	stmt, err := run.PrepareContext(ctx, q)
	if err != nil {
		if tx != nil {
			_ = tx.Rollback()
		}
		return fmt.Errorf("%w: prepare insert: %v", core.ErrStorage, err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			if tx != nil {
				_ = tx.Rollback()
			}
			return fmt.Errorf("%w: encode metadata: %v", core.ErrValidation, err)
		}
		var created any
		if !ch.CreatedAt.IsZero() {
			created = ch.CreatedAt
		}
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.UserID, ch.Text, vec, meta, created,
		); err != nil {
			if tx != nil {
				_ = tx.Rollback()
			}
			return fmt.Errorf("%w: insert chunk: %v", core.ErrStorage, err)
		}
	}
	if tx != nil {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit chunks: %v", core.ErrStorage, err)
		}
	}
	return nil
}

// SearchChunks finds the top-k most similar chunks owned by userID. The <=>
// operator is pgvector cosine distance; similarity is 1 - distance. Ties order
// by the insert-time seq so results stay deterministic.
func (c *DatabaseClient) SearchChunks(ctx context.Context, userID string, query []float32, k int) ([]models.SearchResult, error) {
	if len(query) != c.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			core.ErrValidation, len(query), c.dim)
	}
	const q = `
		SELECT id, document_id, user_id, text_chunk, metadata,
		       1 - (embedding <=> $2) AS similarity
		FROM chunks
		WHERE user_id = $1
		ORDER BY embedding <=> $2 ASC, seq ASC
		LIMIT $3
	`
	vec := pgvector.NewVector(query)
	rows, err := c.q.QueryContext(ctx, q, userID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", core.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var (
			res  models.SearchResult
			meta []byte
		)
		if err := rows.Scan(
			&res.Chunk.ID, &res.Chunk.DocumentID, &res.Chunk.UserID, &res.Chunk.Text, &meta, &res.Similarity,
		); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", core.ErrStorage, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &res.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("%w: decode metadata: %v", core.ErrStorage, err)
			}
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", core.ErrStorage, err)
	}
	return out, nil
}

var _ core.Store = (*DatabaseClient)(nil)
