// Package engine implements the retrieval engine that ties the chunker,
// embedding cache, corpus store, and query expander together: document
// ingestion, multi-threshold quality-filtered retrieval, confidence scoring,
// and context assembly. The engine is a library — its boundary is the
// in-process API consumed by the HTTP layer and the CLI.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/docuchat/ragengine/internal/chunker"
	"github.com/docuchat/ragengine/internal/corpus"
	"github.com/docuchat/ragengine/internal/expander"
	"github.com/docuchat/ragengine/internal/logging"
	"github.com/docuchat/ragengine/internal/rag"
)

// Options holds the tunable parameters of the engine. All similarity
// constants are empirically chosen defaults, not fixed law — they were tuned
// against one embedding model's scale and may need adjustment for another.
type Options struct {
	// ChunkSize is the maximum fragment size in characters.
	// Defaults to chunker.DefaultMaxChunkSize.
	ChunkSize int

	// OverlapHint controls the soft overlap between adjacent fragments
	// (overlapHint/10 trailing words). Defaults to chunker.DefaultOverlapHint.
	OverlapHint int

	// Thresholds is the descending similarity ladder tried per query variant.
	// Defaults to 0.5, 0.4, 0.3, 0.25. A single fixed threshold is either
	// too strict for sparse corpora or too loose for dense ones; trying
	// progressively looser thresholds approximates an adaptive recall target.
	Thresholds []float64

	// QualityGapFloor and QualityGapWidth shape the post-retrieval filter:
	// fragments below max(QualityGapFloor, top−QualityGapWidth) are dropped.
	// Defaults: 0.25 and 0.15.
	QualityGapFloor float64
	QualityGapWidth float64

	// MaxContextChars bounds the assembled context string. Default: 2000.
	MaxContextChars int

	// MinPartialChars is the smallest remaining budget worth filling with a
	// truncated fragment. Default: 100.
	MinPartialChars int

	// DefaultMaxResults is used when Query is called with maxResults <= 0.
	// Default: 5.
	DefaultMaxResults int

	// EmbedBatchSize is the number of fragments embedded per provider call
	// during ingestion. Default: 5.
	EmbedBatchSize int

	// EmbedBatchInterval is the pause enforced between embedding batches, a
	// cooperative backpressure mechanism for external rate limits.
	// Default: 200ms.
	EmbedBatchInterval time.Duration

	// Registry receives the engine's Prometheus metrics. When nil a private
	// registry is used, which keeps tests hermetic.
	Registry prometheus.Registerer
}

// withDefaults returns a copy of o with zero values replaced by defaults.
func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultMaxChunkSize
	}
	if opts.OverlapHint <= 0 {
		opts.OverlapHint = chunker.DefaultOverlapHint
	}
	if len(opts.Thresholds) == 0 {
		opts.Thresholds = []float64{0.5, 0.4, 0.3, 0.25}
	}
	if opts.QualityGapFloor == 0 {
		opts.QualityGapFloor = 0.25
	}
	if opts.QualityGapWidth == 0 {
		opts.QualityGapWidth = 0.15
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = 2000
	}
	if opts.MinPartialChars <= 0 {
		opts.MinPartialChars = 100
	}
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = 5
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 5
	}
	if opts.EmbedBatchInterval <= 0 {
		opts.EmbedBatchInterval = 200 * time.Millisecond
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	return opts
}

// IngestFile is one uploaded file: a name and its already-extracted raw text.
// Extraction from binary formats (PDF, DOCX) happens upstream.
type IngestFile struct {
	// Filename is the original upload filename.
	Filename string

	// Text is the file's raw text content.
	Text string
}

// IngestResult summarizes one ingestion batch. Failures are per-file: a
// failed file never blocks the others and never partially commits.
type IngestResult struct {
	// CorpusID is the target corpus, newly created when the caller passed "".
	CorpusID string

	// DocumentsProcessed counts files that were fully ingested.
	DocumentsProcessed int

	// TotalFragments counts fragments stored by this batch.
	TotalFragments int

	// TotalWords counts words across this batch's stored fragments.
	TotalWords int

	// Failures lists the files that could not be ingested.
	Failures []rag.IngestionError
}

// QueryResult is the engine's answer material for one query.
type QueryResult struct {
	// Context is the assembled, length-bounded prompt context.
	Context string

	// Sources lists the distinct filenames of the fragments actually
	// included in Context.
	Sources []string

	// Fragments is the winning variant's filtered, ranked result set.
	Fragments []rag.ScoredFragment

	// Confidence is the calibrated 0–100 confidence score.
	Confidence int

	// Variant is the query phrasing that produced the winning result set.
	Variant string
}

// Engine orchestrates ingestion and retrieval over a corpus store.
// Safe for concurrent use.
type Engine struct {
	// store holds corpora, documents, and fragments.
	store *corpus.Store

	// embedder converts text to vectors; typically an embedder.Cache.
	embedder rag.Embedder

	// expander produces query paraphrases for recall.
	expander *expander.Expander

	// opts holds the resolved engine parameters.
	opts Options

	// limiter paces embedding batches during ingestion.
	limiter *rate.Limiter

	// metrics holds the engine's Prometheus instruments.
	metrics *engineMetrics
}

// New constructs an Engine from its dependencies. expander may be nil, in
// which case queries run with the original phrasing only.
func New(store *corpus.Store, emb rag.Embedder, exp *expander.Expander, opts *Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store must not be nil")
	}
	if emb == nil {
		return nil, fmt.Errorf("engine: embedder must not be nil")
	}
	resolved := opts.withDefaults()

	return &Engine{
		store:    store,
		embedder: emb,
		expander: exp,
		opts:     resolved,
		limiter:  rate.NewLimiter(rate.Every(resolved.EmbedBatchInterval), 1),
		metrics:  newEngineMetrics(resolved.Registry),
	}, nil
}

// Ingest chunks, embeds, and stores the given files into the corpus,
// creating a new corpus when corpusID is "". Files are processed with one
// concurrent task each; a failure in one file is recorded in the result and
// never corrupts another file's fragments.
func (e *Engine) Ingest(ctx context.Context, corpusID string, files []IngestFile) (*IngestResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("engine: no files to ingest")
	}
	if corpusID == "" {
		corpusID = uuid.NewString()
	}
	e.store.Ensure(corpusID)

	result := &IngestResult{CorpusID: corpusID}
	var mu sync.Mutex

	var g errgroup.Group
	for _, f := range files {
		g.Go(func() error {
			fragments, words, err := e.ingestFile(ctx, corpusID, f)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.metrics.ingestDocuments.WithLabelValues(outcomeError).Inc()
				result.Failures = append(result.Failures, rag.IngestionError{Filename: f.Filename, Err: err})
				logging.FromContext(ctx).Warn("engine: file ingestion failed",
					slog.String("corpus_id", corpusID),
					slog.String("filename", f.Filename),
					slog.Any("error", err),
				)
				return nil
			}
			e.metrics.ingestDocuments.WithLabelValues(outcomeOK).Inc()
			e.metrics.ingestFragments.Add(float64(fragments))
			result.DocumentsProcessed++
			result.TotalFragments += fragments
			result.TotalWords += words
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// ingestFile chunks and embeds a single file and commits its document and
// fragments in one store write. Embedding runs in bounded batches paced by
// the shared limiter. On any error nothing is committed.
func (e *Engine) ingestFile(ctx context.Context, corpusID string, f IngestFile) (fragments, words int, err error) {
	chunks := chunker.Split(f.Text, e.opts.ChunkSize, e.opts.OverlapHint)
	if len(chunks) == 0 {
		return 0, 0, fmt.Errorf("file is empty")
	}

	embeddings := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += e.opts.EmbedBatchSize {
		end := min(start+e.opts.EmbedBatchSize, len(chunks))

		if err := e.limiter.Wait(ctx); err != nil {
			return 0, 0, fmt.Errorf("embedding batch cancelled: %w", err)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vectors, err := e.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, 0, err
		}
		embeddings = append(embeddings, vectors...)
	}

	now := time.Now()
	doc := rag.Document{
		ID:        uuid.NewString(),
		CorpusID:  corpusID,
		Filename:  f.Filename,
		Preview:   preview(f.Text, 200),
		CreatedAt: now,
	}
	frags := make([]rag.Fragment, len(chunks))
	for i, c := range chunks {
		frags[i] = rag.Fragment{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			CorpusID:   corpusID,
			Content:    c.Text,
			Embedding:  embeddings[i],
			Index:      c.Index,
			WordCount:  c.WordCount,
			CreatedAt:  now,
		}
		words += c.WordCount
	}

	if err := e.store.AddDocument(ctx, doc, frags); err != nil {
		return 0, 0, err
	}
	return len(frags), words, nil
}

// Query answers a natural-language query against the corpus: expand the
// query into variants, retrieve each variant's best fragments over the
// threshold ladder, pick the strongest variant, and package the context,
// sources, and confidence. A corpus with zero fragments returns an empty
// result (the "no evidence" baseline), not an error.
func (e *Engine) Query(ctx context.Context, corpusID, text string, maxResults int) (*QueryResult, error) {
	start := time.Now()
	if maxResults <= 0 {
		maxResults = e.opts.DefaultMaxResults
	}

	if err := e.store.Touch(corpusID); err != nil {
		e.metrics.queries.WithLabelValues(outcomeNotFound).Inc()
		return nil, err
	}

	if !e.store.HasContent(corpusID) {
		e.metrics.queries.WithLabelValues(outcomeEmpty).Inc()
		return &QueryResult{
			Confidence: ScoreConfidence(nil),
			Sources:    []string{},
			Variant:    strings.TrimSpace(text),
		}, nil
	}

	variants := e.expandQuery(ctx, text)
	best, err := e.retrieve(ctx, corpusID, variants, maxResults)
	if err != nil {
		e.metrics.queries.WithLabelValues(outcomeError).Inc()
		return nil, err
	}

	contextStr, sources := AssembleContext(best.results, e.opts.MaxContextChars, e.opts.MinPartialChars)
	confidence := ScoreConfidence(best.results)

	e.metrics.queries.WithLabelValues(outcomeOK).Inc()
	e.metrics.queryDuration.Observe(time.Since(start).Seconds())
	e.metrics.queryConfidence.Observe(float64(confidence))

	return &QueryResult{
		Context:    contextStr,
		Sources:    sources,
		Fragments:  best.results,
		Confidence: confidence,
		Variant:    best.variant,
	}, nil
}

// expandQuery returns the query variants to evaluate, falling back to the
// original alone when no expander is configured.
func (e *Engine) expandQuery(ctx context.Context, text string) []string {
	if e.expander == nil {
		return []string{strings.TrimSpace(text)}
	}
	return e.expander.Expand(ctx, text)
}

// HasContent reports whether the corpus exists and holds at least one
// fragment.
func (e *Engine) HasContent(corpusID string) bool {
	return e.store.HasContent(corpusID)
}

// Corpus returns the corpus metadata snapshot, if the corpus exists.
func (e *Engine) Corpus(corpusID string) (rag.Corpus, bool) {
	return e.store.Get(corpusID)
}

// Documents lists the corpus's documents in insertion order.
func (e *Engine) Documents(corpusID string) []rag.Document {
	return e.store.Documents(corpusID)
}

// EvictExpired removes corpora idle for longer than maxIdle and returns the
// number removed.
func (e *Engine) EvictExpired(ctx context.Context, maxIdle time.Duration) int {
	n := e.store.EvictExpired(ctx, maxIdle)
	if n > 0 {
		e.metrics.corporaReaped.Add(float64(n))
	}
	return n
}

// StartReaper launches the background TTL reaper on a fixed interval,
// independent of query and ingestion traffic. It stops when ctx is done.
// Running concurrently with in-flight queries is safe: a query racing the
// reap of its corpus surfaces ErrCorpusNotFound cleanly.
func (e *Engine) StartReaper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := e.EvictExpired(ctx, maxIdle); n > 0 {
					logging.FromContext(ctx).Info("engine: reaped idle corpora",
						slog.Int("count", n),
						slog.Duration("max_idle", maxIdle),
					)
				}
			}
		}
	}()
}

// preview returns the first n characters of text, normalized to single-line.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > n {
		text = text[:n]
	}
	return text
}
