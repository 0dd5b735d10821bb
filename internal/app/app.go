package app

import (
	"context"
	"fmt"
	"log"

	"github.com/clauselens/clauselens/internal/config"
	"github.com/clauselens/clauselens/internal/core"
	db "github.com/clauselens/clauselens/internal/core/database"
	"github.com/clauselens/clauselens/internal/core/ingest"
	"github.com/clauselens/clauselens/internal/core/llm"
	"github.com/clauselens/clauselens/internal/core/memstore"
	objectclient "github.com/clauselens/clauselens/internal/core/object-client"
	"github.com/clauselens/clauselens/internal/core/retrieval"
)

type App struct {
	Store    core.Store
	Embedder core.EmbeddingProvider
	Pipeline *ingest.Pipeline
	Engine   *retrieval.Engine
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Store initialized and ready.")

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	var objects core.ObjectClient
	if cfg.BucketName != "" {
		objects, err = objectclient.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize object storage: %w", err)
		}
	}

	var llmProvider core.LLMProvider
	if cfg.GenModel != "" {
		llmProvider, err = llm.NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the generative model: %w", err)
		}
	}

	chunker := ingest.NewTokenChunker(cfg.TargetTokens, cfg.OverlapTokens)
	pipeline := ingest.NewPipeline(store, embedder, chunker, cfg.EmbedBatch)
	engine := retrieval.NewEngine(store, embedder)

	server := NewServer(cfg, store, objects, pipeline, engine, llmProvider)

	return &App{
		Store:    store,
		Embedder: embedder,
		Pipeline: pipeline,
		Engine:   engine,
		Server:   server,
	}, nil
}

func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

func newStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Println("WARN: DATABASE_URL not set, using the in-memory store; data will not survive a restart")
		return memstore.New(cfg.EmbedDim), nil
	}
	return db.NewDatabaseClient(ctx, cfg)
}

func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		return llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	case "openai":
		return llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedDim), nil
	case "none":
		return llm.NewDisabledEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}
}
