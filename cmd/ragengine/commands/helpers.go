package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/docuchat/ragengine/internal/corpus"
	"github.com/docuchat/ragengine/internal/embedder"
	"github.com/docuchat/ragengine/internal/engine"
	"github.com/docuchat/ragengine/internal/expander"
	"github.com/docuchat/ragengine/internal/provider"
	"github.com/docuchat/ragengine/internal/rag"
)

// buildEngine assembles the retrieval engine from environment configuration:
// a cache-wrapped embedder, an optional LLM-backed query expander, and an
// optional Qdrant search index mirror. The returned index is nil when no
// Qdrant mirror is configured. The cleanup function closes everything the
// engine owns.
func buildEngine(ctx context.Context, log *slog.Logger) (*engine.Engine, *corpus.QdrantIndex, func(), error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, nil, fmt.Errorf("embedder configuration: %w", err)
	}

	raw, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	emb := embedder.NewCache(raw, getEnvInt("RAGENGINE_EMBED_CACHE", 0))

	store := corpus.NewStore()

	// Optional Qdrant mirror — brute-force in-memory search remains the
	// default when QDRANT_HOST is unset.
	var index *corpus.QdrantIndex
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
		idx, idxErr := corpus.NewQdrantIndex(ctx, &corpus.QdrantConfig{
			Host:       host,
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "ragengine-fragments"),
			VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if idxErr != nil {
			log.Warn("qdrant index unavailable, using in-memory search only", slog.Any("error", idxErr))
		} else {
			store.UseIndex(idx)
			index = idx
			log.Info("qdrant index attached", slog.String("host", host))
		}
	}

	exp := buildExpander(ctx, log)

	eng, err := engine.New(store, emb, exp, &engine.Options{
		ChunkSize: getEnvInt("RAGENGINE_CHUNK_SIZE", 0),
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}

	cleanup := func() { _ = store.Close() }
	return eng, index, cleanup, nil
}

// buildExpander wires the LLM completion provider into a query expander.
// Failure to initialise the provider is not fatal — queries then run with
// heuristic variants only.
func buildExpander(ctx context.Context, log *slog.Logger) *expander.Expander {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		log.Warn("completion provider unavailable, query expansion will use heuristics",
			slog.Any("error", err),
		)
		return expander.New(nil, 0)
	}
	log.Info("completion provider initialised",
		slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")),
	)
	return expander.New(provider.NewCompleter(chatModel), 0)
}

// buildEmbedderForPing returns the raw (uncached) embedder for readiness
// probes, or nil when configuration is incomplete.
func buildEmbedderForPing() rag.Embedder {
	raw, err := embedder.NewFromEnv()
	if err != nil {
		return nil
	}
	return raw
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
