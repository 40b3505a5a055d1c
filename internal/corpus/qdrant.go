package corpus

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/docuchat/ragengine/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant-backed SearchIndex.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements SearchIndex backed by a Qdrant instance. Fragments
// from every corpus share one collection, partitioned by a corpus_id payload
// field so searches stay isolated per corpus.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection exists
// (creating it if necessary), and returns a ready-to-use SearchIndex.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

// Client exposes the underlying gRPC client for health probing.
func (q *QdrantIndex) Client() *qdrant.Client {
	return q.client
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}

	return nil
}

// Upsert mirrors a batch of fragments with their embeddings into the index.
func (q *QdrantIndex) Upsert(ctx context.Context, fragments []rag.Fragment) error {
	points := make([]*qdrant.PointStruct, 0, len(fragments))
	for i := range fragments {
		f := &fragments[i]
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(f.ID),
			Vectors: qdrant.NewVectors(f.Embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"corpus_id":   f.CorpusID,
				"document_id": f.DocumentID,
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search returns fragment ids and cosine similarities for the corpus,
// filtered server-side to similarity >= threshold, best-first.
func (q *QdrantIndex) Search(ctx context.Context, corpusID string, queryEmbedding []float32, threshold float64, maxResults int) ([]string, []float64, error) {
	limit := uint64(maxResults)
	scoreThreshold := float32(threshold)

	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		ScoreThreshold: &scoreThreshold,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("corpus_id", corpusID),
			},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	ids := make([]string, 0, len(hits))
	scores := make([]float64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Id.GetUuid())
		scores = append(scores, float64(h.Score))
	}
	return ids, scores, nil
}

// Remove deletes all of a corpus's vectors from the index.
func (q *QdrantIndex) Remove(ctx context.Context, corpusID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("corpus_id", corpusID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete corpus %q: %w", corpusID, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("qdrant: close: %w", err)
	}
	return nil
}
