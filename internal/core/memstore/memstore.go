// Package memstore provides an in-memory core.Store used by tests and by
// local runs without a DATABASE_URL. Brute-force cosine over all chunks, so
// only suitable for small corpora.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/clauselens/clauselens/internal/core"
	"github.com/clauselens/clauselens/internal/models"
)

type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	dim  int

	users     map[string]*models.User
	usernames map[string]string
	docs      map[string]models.Document
	chunks    []models.DocumentChunk
}

func New(dim int) *Store {
	return &Store{
		dim:       dim,
		users:     make(map[string]*models.User),
		usernames: make(map[string]string),
		docs:      make(map[string]models.Document),
	}
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("%w: nil user", core.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.usernames[user.Username]; taken {
		return fmt.Errorf("%w: username %q already registered", core.ErrStorage, user.Username)
	}
	if _, taken := s.users[user.ID]; taken {
		return fmt.Errorf("%w: duplicate user id %s", core.ErrStorage, user.ID)
	}
	u := *user
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = &u
	s.usernames[u.Username] = u.ID
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[username]
	if !ok {
		return nil, nil
	}
	u := *s.users[id]
	return &u, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", core.ErrValidation)
	}
	if doc.UserID == "" {
		return fmt.Errorf("%w: document has no owner", core.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.docs[doc.ID]; taken {
		return fmt.Errorf("%w: duplicate document id %s", core.ErrStorage, doc.ID)
	}
	d := *doc
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	s.docs[d.ID] = d
	return nil
}

func (s *Store) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	// Newest first, id as a stable tie-break, matching the SQL store.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: document not found: %s", core.ErrStorage, id)
	}
	d.Status = status
	s.docs[id] = d
	return nil
}

// AppendChunks validates the whole batch before touching state, so a failure
// never leaves partial chunks behind.
func (s *Store) AppendChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		ch := &chunks[i]
		if len(ch.Embedding) != s.dim {
			return fmt.Errorf("%w: chunk %d embedding has dimension %d, store expects %d",
				core.ErrValidation, i, len(ch.Embedding), s.dim)
		}
		doc, ok := s.docs[ch.DocumentID]
		if !ok {
			return fmt.Errorf("%w: chunk %d references missing document %s", core.ErrStorage, i, ch.DocumentID)
		}
		if ch.UserID != doc.UserID {
			return fmt.Errorf("%w: chunk %d owner %s does not match document owner %s",
				core.ErrValidation, i, ch.UserID, doc.UserID)
		}
	}
	batch := make([]models.DocumentChunk, len(chunks))
	copy(batch, chunks)
	now := time.Now()
	for i := range batch {
		if batch[i].CreatedAt.IsZero() {
			batch[i].CreatedAt = now
		}
	}
	s.chunks = append(s.chunks, batch...)
	return nil
}

func (s *Store) SearchChunks(ctx context.Context, userID string, query []float32, k int) ([]models.SearchResult, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			core.ErrValidation, len(query), s.dim)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.SearchResult
	for _, ch := range s.chunks {
		if ch.UserID != userID {
			continue
		}
		out = append(out, models.SearchResult{
			Chunk:      ch,
			Similarity: cosineSimilarity(ch.Embedding, query),
		})
	}
	// Stable sort keeps insertion order for equal similarities.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// WithTx serializes transactions and rolls state back on error by restoring a
// snapshot. Coarse, but exact for the scale this store is meant for. The
// snapshot does not hold mu for the duration of fn, so a non-transactional
// write racing a rollback is erased with it, and readers can see uncommitted
// state mid-transaction. Callers needing real isolation under concurrent
// writers should use the Postgres store.
func (s *Store) WithTx(ctx context.Context, fn func(tx core.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

// DeleteDocument removes a document and cascades to its chunks.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: document not found: %s", core.ErrStorage, id)
	}
	delete(s.docs, id)
	kept := s.chunks[:0]
	for _, ch := range s.chunks {
		if ch.DocumentID != id {
			kept = append(kept, ch)
		}
	}
	s.chunks = kept
	return nil
}

// ChunkCount reports how many chunks a document currently owns.
func (s *Store) ChunkCount(documentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ch := range s.chunks {
		if ch.DocumentID == documentID {
			n++
		}
	}
	return n
}

type snapshot struct {
	users     map[string]*models.User
	usernames map[string]string
	docs      map[string]models.Document
	chunks    []models.DocumentChunk
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		users:     make(map[string]*models.User, len(s.users)),
		usernames: make(map[string]string, len(s.usernames)),
		docs:      make(map[string]models.Document, len(s.docs)),
		chunks:    make([]models.DocumentChunk, len(s.chunks)),
	}
	for k, v := range s.users {
		u := *v
		snap.users[k] = &u
	}
	for k, v := range s.usernames {
		snap.usernames[k] = v
	}
	for k, v := range s.docs {
		snap.docs[k] = v
	}
	copy(snap.chunks, s.chunks)
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.usernames = snap.usernames
	s.docs = snap.docs
	s.chunks = snap.chunks
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ core.Store = (*Store)(nil)
