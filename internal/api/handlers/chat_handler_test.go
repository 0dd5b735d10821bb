package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauselens/clauselens/internal/api/handlers"
	middleware "github.com/clauselens/clauselens/internal/api/middlewares"
	"github.com/clauselens/clauselens/internal/core/memstore"
	"github.com/clauselens/clauselens/internal/core/retrieval"
	"github.com/clauselens/clauselens/internal/models"
)

const dim = 4

// fixedEmbedder returns one preset vector for every input text.
type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func seedChunk(t *testing.T, store *memstore.Store, userID, text string, embedding []float32) {
	t.Helper()
	ctx := context.Background()
	docID := userID + "-doc"
	if d, _ := store.GetDocumentByID(ctx, docID); d == nil {
		require.NoError(t, store.CreateDocument(ctx, &models.Document{
			ID:       docID,
			UserID:   userID,
			Filename: "contract.txt",
			Status:   models.StatusReady,
		}))
	}
	require.NoError(t, store.AppendChunks(ctx, []models.DocumentChunk{{
		ID:         text,
		DocumentID: docID,
		UserID:     userID,
		Text:       text,
		Embedding:  embedding,
		Metadata:   map[string]any{"page": 1},
	}}))
}

func askAs(t *testing.T, h *handlers.ChatHandler, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.AskQuestion(rec, req)
	return rec
}

func TestAskQuestion_ReturnsRankedChunks(t *testing.T) {
	store := memstore.New(dim)
	query := []float32{1, 0, 0, 0}
	seedChunk(t, store, "user-a", "termination chunk", []float32{1, 0, 0, 0})
	seedChunk(t, store, "user-a", "liability chunk", []float32{0, 1, 0, 0})

	engine := retrieval.NewEngine(store, &fixedEmbedder{vector: query})
	h := handlers.NewChatHandler(engine, nil)

	rec := askAs(t, h, "user-a", `{"question":"termination clause"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AIAnswer string `json:"ai_answer"`
		Results  []struct {
			Text       string  `json:"text_chunk"`
			Similarity float64 `json:"similarity"`
		} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.NotEmpty(t, resp.AIAnswer)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "termination chunk", resp.Results[0].Text)
	assert.InDelta(t, 1.0, resp.Results[0].Similarity, 1e-4)
}

func TestAskQuestion_TenantIsolation(t *testing.T) {
	store := memstore.New(dim)
	shared := []float32{1, 0, 0, 0}
	seedChunk(t, store, "user-a", "a's chunk", shared)
	seedChunk(t, store, "user-b", "b's chunk", shared)

	engine := retrieval.NewEngine(store, &fixedEmbedder{vector: shared})
	h := handlers.NewChatHandler(engine, nil)

	rec := askAs(t, h, "user-a", `{"question":"anything"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "a's chunk")
	assert.NotContains(t, body, "b's chunk")
}

func TestAskQuestion_EmptyCorpusIsEmptyResult(t *testing.T) {
	engine := retrieval.NewEngine(memstore.New(dim), &fixedEmbedder{vector: []float32{1, 0, 0, 0}})
	h := handlers.NewChatHandler(engine, nil)

	rec := askAs(t, h, "user-empty", `{"question":"anything"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
}

func TestAskQuestion_NegativeTopKIsBadRequest(t *testing.T) {
	engine := retrieval.NewEngine(memstore.New(dim), &fixedEmbedder{vector: []float32{1, 0, 0, 0}})
	h := handlers.NewChatHandler(engine, nil)

	rec := askAs(t, h, "user-a", `{"question":"anything","top_k":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskQuestion_RequiresIdentityAndQuestion(t *testing.T) {
	engine := retrieval.NewEngine(memstore.New(dim), &fixedEmbedder{vector: []float32{1, 0, 0, 0}})
	h := handlers.NewChatHandler(engine, nil)

	assert.Equal(t, http.StatusUnauthorized, askAs(t, h, "", `{"question":"q"}`).Code)
	assert.Equal(t, http.StatusBadRequest, askAs(t, h, "user-a", `{"question":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, askAs(t, h, "user-a", `not json`).Code)
}
