package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/chatdocs/chatdocs/internal/conversation"
	"github.com/chatdocs/chatdocs/internal/embedder"
	"github.com/chatdocs/chatdocs/internal/logging"
	"github.com/chatdocs/chatdocs/internal/metering"
	"github.com/chatdocs/chatdocs/internal/rag"
	"github.com/chatdocs/chatdocs/internal/server"
	"github.com/chatdocs/chatdocs/internal/store"
	"github.com/chatdocs/chatdocs/internal/tracing"
	"github.com/chatdocs/chatdocs/internal/vectorstore"
)

// NewServeCmd constructs the `chatdocs serve` command, which starts the HTTP
// API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chatdocs HTTP API server",
		Long: `Start the chatdocs HTTP API server.

The server exposes the chatbot, document, share, and conversation APIs,
plus /api/health, /api/ready, and /metrics. It expects an upstream gateway
to authenticate end users and pass their identity in the X-User-ID header.

Examples:
  chatdocs serve
  chatdocs serve --port 9090
  MODEL_PROVIDER=openai chatdocs serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			// Relational store. CHATDOCS_DB overrides the default path
			// (~/.chatdocs/chatdocs.db).
			dbPath := os.Getenv("CHATDOCS_DB")
			if dbPath == "" {
				var err error
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open store: %w", err)
			}
			defer func() { _ = st.Close() }()
			log.Info("store opened", slog.String("path", dbPath))

			// Embedding backend. Validate is a pre-flight check so operators
			// get a clear error at startup, not on the first upload.
			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised",
				slog.String("provider", emb.ProviderName()),
				slog.String("model", emb.ModelName()),
				slog.Int("dimensions", emb.Dimensions()))

			backend, err := vectorstore.NewQdrantBackend(qdrantConfigFromEnv())
			if err != nil {
				return fmt.Errorf("serve: failed to connect to qdrant: %w", err)
			}
			defer func() { _ = backend.Close() }()

			meter := metering.New(st)
			gateway := vectorstore.NewGateway(backend, emb, meter, log)
			orchestrator := rag.New(gateway, rag.EnvGeneratorFactory, meter, log)
			conversations := conversation.New(st, orchestrator, meter, log)

			pingers := []server.Pinger{
				server.NewStorePinger(st),
				server.NewQdrantPinger(backend),
				server.NewEmbedderPinger(emb),
			}

			srv, err := server.New(st, gateway, conversations, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("CHATDOCS_API_KEY"),
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
