package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauselens/clauselens/internal/core"
	"github.com/clauselens/clauselens/internal/core/memstore"
	"github.com/clauselens/clauselens/internal/models"
)

const dim = 3

func vec(vals ...float32) []float32 {
	v := make([]float32, dim)
	copy(v, vals)
	return v
}

func doc(id, userID string, created time.Time) *models.Document {
	return &models.Document{
		ID:        id,
		UserID:    userID,
		Filename:  id + ".txt",
		Status:    models.StatusProcessing,
		CreatedAt: created,
	}
}

func chunk(id, docID, userID, text string, embedding []float32) models.DocumentChunk {
	return models.DocumentChunk{
		ID:         id,
		DocumentID: docID,
		UserID:     userID,
		Text:       text,
		Embedding:  embedding,
	}
}

func TestCreateUser_RejectsDuplicateUsername(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Username: "alice"}))
	err := s.CreateUser(ctx, &models.User{ID: "u2", Username: "alice"})
	assert.ErrorIs(t, err, core.ErrStorage)

	u, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
}

func TestListDocumentsByUser_NewestFirstAndIdempotent(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.CreateDocument(ctx, doc("d1", "user-a", base.Add(-2*time.Hour))))
	require.NoError(t, s.CreateDocument(ctx, doc("d2", "user-a", base)))
	require.NoError(t, s.CreateDocument(ctx, doc("d3", "user-a", base.Add(-time.Hour))))
	require.NoError(t, s.CreateDocument(ctx, doc("other", "user-b", base)))

	first, err := s.ListDocumentsByUser(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, []string{"d2", "d3", "d1"}, []string{first[0].ID, first[1].ID, first[2].ID})

	second, err := s.ListDocumentsByUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListDocumentsByUser_EmptyForUnknownUser(t *testing.T) {
	s := memstore.New(dim)

	out, err := s.ListDocumentsByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAppendChunks_DimensionMismatchLeavesNothingBehind(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, doc("d1", "user-a", time.Now())))

	err := s.AppendChunks(ctx, []models.DocumentChunk{
		chunk("c1", "d1", "user-a", "ok", vec(1, 0, 0)),
		chunk("c2", "d1", "user-a", "bad", []float32{1, 0}),
	})
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Zero(t, s.ChunkCount("d1"))
}

func TestAppendChunks_RejectsOwnerMismatch(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, doc("d1", "user-a", time.Now())))

	err := s.AppendChunks(ctx, []models.DocumentChunk{
		chunk("c1", "d1", "user-b", "stolen", vec(1, 0, 0)),
	})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Zero(t, s.ChunkCount("d1"))
}

func TestAppendChunks_RejectsMissingDocument(t *testing.T) {
	s := memstore.New(dim)

	err := s.AppendChunks(context.Background(), []models.DocumentChunk{
		chunk("c1", "ghost", "user-a", "orphan", vec(1, 0, 0)),
	})
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestSearchChunks_OrderingAndBounds(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, doc("d1", "user-a", time.Now())))

	require.NoError(t, s.AppendChunks(ctx, []models.DocumentChunk{
		chunk("c1", "d1", "user-a", "opposite", vec(-1, 0, 0)),
		chunk("c2", "d1", "user-a", "exact", vec(1, 0, 0)),
		chunk("c3", "d1", "user-a", "orthogonal", vec(0, 1, 0)),
	}))

	hits, err := s.SearchChunks(ctx, "user-a", vec(1, 0, 0), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "exact", hits[0].Chunk.Text)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	for i, h := range hits {
		assert.GreaterOrEqual(t, h.Similarity, -1.0)
		assert.LessOrEqual(t, h.Similarity, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, hits[i-1].Similarity, h.Similarity)
		}
	}
}

func TestSearchChunks_TieBreaksByInsertionOrder(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, doc("d1", "user-a", time.Now())))

	same := vec(0.5, 0.5, 0)
	require.NoError(t, s.AppendChunks(ctx, []models.DocumentChunk{
		chunk("c1", "d1", "user-a", "first", same),
		chunk("c2", "d1", "user-a", "second", same),
	}))

	hits, err := s.SearchChunks(ctx, "user-a", same, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "first", hits[0].Chunk.Text)
	assert.Equal(t, "second", hits[1].Chunk.Text)
}

func TestSearchChunks_QueryDimensionMismatch(t *testing.T) {
	s := memstore.New(dim)

	_, err := s.SearchChunks(context.Background(), "user-a", []float32{1}, 5)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx core.Store) error {
		if err := tx.CreateDocument(ctx, doc("d1", "user-a", time.Now())); err != nil {
			return err
		}
		if err := tx.AppendChunks(ctx, []models.DocumentChunk{
			chunk("c1", "d1", "user-a", "text", vec(1, 0, 0)),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	d, getErr := s.GetDocumentByID(ctx, "d1")
	require.NoError(t, getErr)
	assert.Nil(t, d)
	assert.Zero(t, s.ChunkCount("d1"))
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx core.Store) error {
		return tx.CreateDocument(ctx, doc("d1", "user-a", time.Now()))
	})
	require.NoError(t, err)

	d, err := s.GetDocumentByID(ctx, "d1")
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestDeleteDocument_CascadesToChunks(t *testing.T) {
	s := memstore.New(dim)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, doc("d1", "user-a", time.Now())))
	require.NoError(t, s.AppendChunks(ctx, []models.DocumentChunk{
		chunk("c1", "d1", "user-a", "text", vec(1, 0, 0)),
	}))

	require.NoError(t, s.DeleteDocument(ctx, "d1"))

	assert.Zero(t, s.ChunkCount("d1"))
	d, err := s.GetDocumentByID(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestUpdateDocumentStatus_UnknownDocument(t *testing.T) {
	s := memstore.New(dim)

	err := s.UpdateDocumentStatus(context.Background(), "ghost", models.StatusReady)
	assert.ErrorIs(t, err, core.ErrStorage)
}
