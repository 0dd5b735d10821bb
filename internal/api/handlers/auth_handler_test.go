package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauselens/clauselens/internal/api/handlers"
	"github.com/clauselens/clauselens/internal/core"
	"github.com/clauselens/clauselens/internal/core/memstore"
	"github.com/clauselens/clauselens/internal/models"
)

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func tokenFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp["token"]
}

func TestSignup_CreatesUserAndIssuesToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := handlers.NewAuthHandler(memstore.New(4))

	rec := postJSON(t, h.Signup, `{"username":"alice","password":"s3cret"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, tokenFrom(t, rec))
}

func TestSignup_RejectsDuplicateUsername(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := handlers.NewAuthHandler(memstore.New(4))

	require.Equal(t, http.StatusCreated, postJSON(t, h.Signup, `{"username":"alice","password":"s3cret"}`).Code)
	rec := postJSON(t, h.Signup, `{"username":"alice","password":"other"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// brokenStore simulates a store whose writes fail after the username
// pre-check passed.
type brokenStore struct {
	*memstore.Store
}

func (s *brokenStore) CreateUser(ctx context.Context, u *models.User) error {
	return fmt.Errorf("%w: insert user: connection refused", core.ErrStorage)
}

func TestSignup_StoreFailureIsNotAConflict(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := handlers.NewAuthHandler(&brokenStore{Store: memstore.New(4)})

	rec := postJSON(t, h.Signup, `{"username":"alice","password":"s3cret"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSignup_RequiresCredentials(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := handlers.NewAuthHandler(memstore.New(4))

	assert.Equal(t, http.StatusBadRequest, postJSON(t, h.Signup, `{"username":"","password":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(t, h.Signup, `not json`).Code)
}

func TestLogin_ValidCredentials(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := handlers.NewAuthHandler(memstore.New(4))
	require.Equal(t, http.StatusCreated, postJSON(t, h.Signup, `{"username":"alice","password":"s3cret"}`).Code)

	rec := postJSON(t, h.Login, `{"username":"alice","password":"s3cret"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, tokenFrom(t, rec))
}

func TestLogin_WrongPasswordOrUnknownUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	h := handlers.NewAuthHandler(memstore.New(4))
	require.Equal(t, http.StatusCreated, postJSON(t, h.Signup, `{"username":"alice","password":"s3cret"}`).Code)

	assert.Equal(t, http.StatusUnauthorized, postJSON(t, h.Login, `{"username":"alice","password":"wrong"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, postJSON(t, h.Login, `{"username":"ghost","password":"s3cret"}`).Code)
}
