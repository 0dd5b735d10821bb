package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clauselens/clauselens/internal/core"
	"github.com/clauselens/clauselens/internal/models"
)

// DocumentMeta carries the derived metadata recorded on the document at
// ingestion time. The producer of these values is outside this system; they
// are stored opaquely.
type DocumentMeta struct {
	RiskScore  string
	Parties    string
	ExpiryDate string
	StorageURL string
}

// Stock values recorded when the metadata producer supplies nothing.
const (
	DefaultRiskScore  = "Medium"
	DefaultParties    = "Party A, Party B"
	DefaultExpiryDate = "2026-12-31"
)

func (m DocumentMeta) withDefaults() DocumentMeta {
	if m.RiskScore == "" {
		m.RiskScore = DefaultRiskScore
	}
	if m.Parties == "" {
		m.Parties = DefaultParties
	}
	if m.ExpiryDate == "" {
		m.ExpiryDate = DefaultExpiryDate
	}
	return m
}

// Pipeline turns raw document text into a document record plus embedded
// chunks. One Ingest call is one store transaction: a crash mid-ingestion
// never leaves a Processing document pretending to be complete.
type Pipeline struct {
	store     core.Store
	embedder  core.EmbeddingProvider
	splitter  Splitter
	batchSize int
}

func NewPipeline(store core.Store, embedder core.EmbeddingProvider, splitter Splitter, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Pipeline{store: store, embedder: embedder, splitter: splitter, batchSize: batchSize}
}

// Ingest creates the document, splits the content, embeds every span once (no
// internal retries) and appends all chunks atomically, then flips the document
// to Ready. Any failure rolls the transaction back and records the same
// document ID in the terminal Failed state, so callers polling the returned ID
// always reach Ready or Failed, never a dangling Processing.
func (p *Pipeline) Ingest(ctx context.Context, userID, filename, rawContent string, meta DocumentMeta) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: missing user id", core.ErrValidation)
	}
	if filename == "" {
		return "", fmt.Errorf("%w: missing filename", core.ErrValidation)
	}
	meta = meta.withDefaults()

	doc := &models.Document{
		ID:         uuid.NewString(),
		UserID:     userID,
		Filename:   filename,
		Status:     models.StatusProcessing,
		RiskScore:  meta.RiskScore,
		Parties:    meta.Parties,
		ExpiryDate: meta.ExpiryDate,
		StorageURL: meta.StorageURL,
	}

	spans := p.splitter.Split(rawContent)

	err := p.store.WithTx(ctx, func(tx core.Store) error {
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		if len(spans) > 0 {
			vecs, err := p.embedSpans(ctx, spans)
			if err != nil {
				return fmt.Errorf("%w: %v", core.ErrEmbedding, err)
			}
			chunks := make([]models.DocumentChunk, len(spans))
			for i := range spans {
				chunks[i] = models.DocumentChunk{
					ID:         uuid.NewString(),
					DocumentID: doc.ID,
					UserID:     userID,
					Text:       spans[i].Text,
					Embedding:  vecs[i],
					Metadata: map[string]any{
						"position":    spans[i].Pos,
						"token_count": spans[i].TokenCnt,
					},
				}
			}
			if err := tx.AppendChunks(ctx, chunks); err != nil {
				return err
			}
		}
		return tx.UpdateDocumentStatus(ctx, doc.ID, models.StatusReady)
	})
	if err != nil {
		p.markFailed(doc)
		return doc.ID, err
	}
	return doc.ID, nil
}

// markFailed records the terminal Failed state after the ingest transaction
// rolled back, reusing the same document ID so status pollers observe Failed
// rather than a missing row. Best effort: if the store is down too, the
// rollback already removed every trace of the ingestion.
func (p *Pipeline) markFailed(doc *models.Document) {
	failed := *doc
	failed.Status = models.StatusFailed

	ctx := context.Background()
	if err := p.store.CreateDocument(ctx, &failed); err != nil {
		log.Printf("ingest: could not record failed state for document %s: %v", doc.ID, err)
	}
}

// embedSpans embeds spans in batches, parallel across batches, and returns
// vectors in span order. Each span is embedded exactly once.
func (p *Pipeline) embedSpans(ctx context.Context, spans []Span) ([][]float32, error) {
	vecs := make([][]float32, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(spans); start += p.batchSize {
		end := start + p.batchSize
		if end > len(spans) {
			end = len(spans)
		}
		start, end := start, end
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = spans[i].Text
			}
			out, err := p.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return err
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(out), len(texts))
			}
			copy(vecs[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}
