package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	middleware "github.com/clauselens/clauselens/internal/api/middlewares"
	"github.com/clauselens/clauselens/internal/core"
	"github.com/clauselens/clauselens/internal/core/ingest"
	"github.com/clauselens/clauselens/internal/models"
)

const maxUploadBytes = 32 << 20 // 32 MB

type DocumentHandler struct {
	store    core.Store
	objects  core.ObjectClient // optional; nil disables archival
	pipeline *ingest.Pipeline
}

func NewDocumentHandler(store core.Store, objects core.ObjectClient, pipeline *ingest.Pipeline) *DocumentHandler {
	return &DocumentHandler{store: store, objects: objects, pipeline: pipeline}
}

// UploadDocument handles file upload, archival and synchronous ingestion. The
// response carries the finished document; on ingestion failure the document is
// still recorded in its terminal Failed state.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}

	// Sanitize the filename to strip any path components.
	cleanFilename := filepath.Base(header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	meta := ingest.DocumentMeta{
		RiskScore:  r.FormValue("risk_score"),
		Parties:    r.FormValue("parties"),
		ExpiryDate: r.FormValue("expiry_date"),
	}
	if h.objects != nil {
		key := fmt.Sprintf("%s/%s/%s", userID, uuid.NewString(), cleanFilename)
		uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		url, err := h.objects.UploadFile(uploadCtx, key, bytes.NewReader(content), contentType)
		cancel()
		if err != nil {
			log.Printf("upload: archive failed for %s: %v", cleanFilename, err)
			http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
			return
		}
		meta.StorageURL = url
	}

	docID, err := h.pipeline.Ingest(r.Context(), userID, cleanFilename, string(content), meta)
	if err != nil {
		log.Printf("upload: ingestion failed for document %s: %v", docID, err)
		writeCoreError(w, err)
		return
	}

	doc, err := h.store.GetDocumentByID(r.Context(), docID)
	if err != nil || doc == nil {
		http.Error(w, "document not found after ingestion", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	documents, err := h.store.ListDocumentsByUser(r.Context(), userID)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	if documents == nil {
		documents = []models.Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// writeCoreError maps the failure taxonomy onto HTTP statuses.
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, core.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrEmbedding):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
