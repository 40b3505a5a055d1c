package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docuchat/ragengine/internal/engine"
	"github.com/docuchat/ragengine/internal/rag"
	"github.com/docuchat/ragengine/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil a private registry is created.
	Registry *prometheus.Registry
	// History receives a record of every answered query. Optional; a nil
	// history disables persistence.
	History store.HistoryStore
	// MaxBodyBytes caps the size of request bodies on ingestion.
	// Defaults to 16 MiB if zero.
	MaxBodyBytes int64
}

// retriever is the interface the handlers call. *engine.Engine satisfies it;
// tests inject a fake.
type retriever interface {
	// Ingest chunks, embeds, and stores the given files into the corpus.
	Ingest(ctx context.Context, corpusID string, files []engine.IngestFile) (*engine.IngestResult, error)
	// Query answers a natural-language query against the corpus.
	Query(ctx context.Context, corpusID, text string, maxResults int) (*engine.QueryResult, error)
	// Corpus returns the corpus metadata snapshot, if the corpus exists.
	Corpus(corpusID string) (rag.Corpus, bool)
	// Documents lists the corpus's documents in insertion order.
	Documents(corpusID string) []rag.Document
}

// Server is the HTTP server that wraps the retrieval engine.
type Server struct {
	// engine handles ingestion and query requests.
	engine retriever
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// history receives answered-query records; may be nil.
	history store.HistoryStore
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// ingestRequest is the JSON body for POST /api/corpora/{id}/documents.
type ingestRequest struct {
	// Files is the list of files to ingest.
	Files []ingestFile `json:"files"`
}

// ingestFile is one file in an ingestion request.
type ingestFile struct {
	// Filename is the original upload filename.
	Filename string `json:"filename"`
	// Text is the file's extracted text content.
	Text string `json:"text"`
}

// ingestFailure reports one file that could not be ingested.
type ingestFailure struct {
	// Filename is the file that failed.
	Filename string `json:"filename"`
	// Error is the failure reason.
	Error string `json:"error"`
}

// ingestResponse is the JSON response for POST /api/corpora/{id}/documents.
type ingestResponse struct {
	// CorpusID is the target corpus, newly created when the caller passed "new".
	CorpusID string `json:"corpusId"`
	// DocumentsProcessed counts files that were fully ingested.
	DocumentsProcessed int `json:"documentsProcessed"`
	// TotalFragments counts fragments stored by this request.
	TotalFragments int `json:"totalFragments"`
	// TotalWords counts words across this request's stored fragments.
	TotalWords int `json:"totalWords"`
	// Failures lists the files that could not be ingested.
	Failures []ingestFailure `json:"failures,omitempty"`
}

// queryRequest is the JSON body for POST /api/corpora/{id}/query.
type queryRequest struct {
	// Query is the natural-language question.
	Query string `json:"query"`
	// MaxResults caps the number of fragments considered. Optional.
	MaxResults int `json:"maxResults,omitempty"`
}

// queryResponse is the JSON response for POST /api/corpora/{id}/query.
type queryResponse struct {
	// Context is the assembled, length-bounded answer context.
	Context string `json:"context"`
	// Sources lists the distinct filenames cited in Context.
	Sources []string `json:"sources"`
	// Confidence is the 0–100 confidence score.
	Confidence int `json:"confidence"`
	// Variant is the query phrasing that produced the winning result set.
	Variant string `json:"variant"`
	// FragmentCount is the number of fragments in the winning result set.
	FragmentCount int `json:"fragmentCount"`
}

// documentInfo is one document in a corpus info response.
type documentInfo struct {
	// ID is the document identifier.
	ID string `json:"id"`
	// Filename is the original upload filename.
	Filename string `json:"filename"`
	// Preview is the first part of the document's text.
	Preview string `json:"preview"`
	// FragmentCount is the number of fragments the document produced.
	FragmentCount int `json:"fragmentCount"`
	// CreatedAt is when the document was ingested.
	CreatedAt time.Time `json:"createdAt"`
}

// corpusResponse is the JSON response for GET /api/corpora/{id}.
type corpusResponse struct {
	// ID is the corpus identifier.
	ID string `json:"id"`
	// FragmentCount is the total number of fragments in the corpus.
	FragmentCount int `json:"fragmentCount"`
	// HasContent is true when the corpus holds at least one fragment.
	HasContent bool `json:"hasContent"`
	// CreatedAt is when the corpus was created.
	CreatedAt time.Time `json:"createdAt"`
	// LastAccess is when the corpus was last ingested into or queried.
	LastAccess time.Time `json:"lastAccess"`
	// Documents lists the corpus's documents.
	Documents []documentInfo `json:"documents"`
}
