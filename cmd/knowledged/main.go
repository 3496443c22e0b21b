// Knowledged is the multi-tenant knowledge-base daemon.
//
// This binary starts the knowledged HTTP server with full service
// initialization: relational store, vector store, embeddings, completion,
// and the tenant, quota, document, customization and retrieval services.
//
// Configuration is loaded from an optional YAML file plus KNOWLEDGED_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults (sqlite + embedded vector store)
//	knowledged
//
//	# Configure via file and environment
//	KNOWLEDGED_SERVER__PORT=9090 knowledged -config /etc/knowledged.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/answer"
	"github.com/fyrsmithlabs/knowledged/internal/completion"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/customize"
	"github.com/fyrsmithlabs/knowledged/internal/db"
	"github.com/fyrsmithlabs/knowledged/internal/document"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	khttp "github.com/fyrsmithlabs/knowledged/internal/http"
	"github.com/fyrsmithlabs/knowledged/internal/logging"
	"github.com/fyrsmithlabs/knowledged/internal/quota"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"github.com/fyrsmithlabs/knowledged/internal/services"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  knowledged           Start the knowledged daemon\n")
			fmt.Fprintf(os.Stderr, "  knowledged version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("knowledged by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the knowledged server and blocks until context cancellation.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Connect to the relational store and migrate
//  4. Connect to the vector store
//  5. Create embedding and completion clients
//  6. Wire business services into the registry
//  7. Start the HTTP server
//  8. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting knowledged",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("vectorstore_provider", cfg.VectorStore.Provider))

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store, err := vectorstore.New(ctx, cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	embedder, err := embeddings.NewOpenAIEmbedder(cfg.Embeddings, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	completer, err := completion.NewClient(cfg.Completion, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize completion client: %w", err)
	}

	resolver := customize.NewResolver(gormDB, cfg.Customization.Defaults, cfg.Customization.CacheTTL, logger)
	directory := tenant.NewDirectory(gormDB, cfg.Quota.DefaultOrg, resolver, logger)
	ledger := quota.NewLedger(gormDB, cfg.Quota.PersonalMaxDocuments, cfg.Quota.PersonalMaxQueriesDaily, logger)
	documents := document.NewRegistry(gormDB, ledger, store, logger)
	engine := retrieval.NewEngine(store, embedder, retrieval.Config{
		TopK:           cfg.Retrieval.TopK,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		CacheTTL:       cfg.Retrieval.CacheTTL,
		ExpandQueries:  cfg.Retrieval.ExpandQueries,
		Synonyms:       cfg.Retrieval.Synonyms,
	}, logger)
	assembler := answer.NewAssembler(completer, logger)

	registry := services.NewRegistry(services.Options{
		Directory:     directory,
		Ledger:        ledger,
		Documents:     documents,
		Customization: resolver,
		Retrieval:     engine,
		Assembler:     assembler,
		VectorStore:   store,
		Embedder:      embedder,
		Completer:     completer,
	})
	ask := services.NewAskService(gormDB, registry, logger)

	srv, err := khttp.NewServer(registry, ask, logger, &khttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
