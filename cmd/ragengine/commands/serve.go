package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/docuchat/ragengine/internal/logging"
	"github.com/docuchat/ragengine/internal/server"
	"github.com/docuchat/ragengine/internal/store"
	"github.com/docuchat/ragengine/internal/tracing"
)

// NewServeCmd constructs the `ragengine serve` command, which starts the
// HTTP API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragengine HTTP API server",
		Long: `Start the ragengine HTTP server on localhost.

The server exposes REST endpoints for document ingestion, querying,
corpus inspection, health probes, and Prometheus metrics. Idle corpora
are reaped in the background after a configurable TTL.

Examples:
  ragengine serve
  ragengine serve --port 9090
  MODEL_PROVIDER=azure ragengine serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Flags win over SERVER_HOST / SERVER_PORT from config or env.
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("SERVER_HOST"); v != "" {
					host = v
				}
			}
			if !cmd.Flags().Changed("port") {
				if v := getEnvInt("SERVER_PORT", 0); v != 0 {
					port = v
				}
			}

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			eng, index, cleanup, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			// Background TTL reaper for idle corpora.
			maxIdle := time.Duration(getEnvInt("RAGENGINE_MAX_IDLE_HOURS", 24)) * time.Hour
			interval := time.Duration(getEnvInt("RAGENGINE_REAPER_INTERVAL_MINUTES", 60)) * time.Minute
			eng.StartReaper(ctx, interval, maxIdle)
			log.Info("corpus reaper started",
				slog.Duration("interval", interval),
				slog.Duration("max_idle", maxIdle),
			)

			// Open query history store. RAGENGINE_HISTORY_DB overrides the
			// default path (~/.ragengine/history.db). Set to "disabled" to disable.
			var historyStore store.HistoryStore
			dbPath := os.Getenv("RAGENGINE_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via RAGENGINE_HISTORY_DB=disabled")
			}

			var pingers []server.Pinger
			if emb := buildEmbedderForPing(); emb != nil {
				backend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
				pingers = append(pingers, server.NewEmbedderPinger(emb, backend))
			}
			if index != nil {
				pingers = append(pingers, server.NewQdrantPinger(index.Client()))
			}

			srv, err := server.New(eng, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("RAGENGINE_API_KEY"),
				History: historyStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
