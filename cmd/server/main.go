/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the crew rotation engine. Handles configuration,
  dependency injection, and graceful shutdown.

COMMANDS:
  serve    Run the HTTP API and the rotation scheduler
  rotate   Run one forced rotation cycle against the store and exit
  seed     Load a zone catalog file or a named demo scenario

FLAGS:
  --port       HTTP server port (default: 8080)
  --db         SQLite database path (default: rotation.db, ":memory:" works)
  --env-file   Optional dotenv file with policy overrides
  --catalog    YAML zone catalog file (seed)
  --scenario   Demo scenario id (seed)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the scheduler, stop accepting connections,
  wait for active requests (30s timeout), close the database.

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/rotation.db

  # Seed the downtown demo and serve from memory
  ./server seed --db=:memory: --scenario=downtown

  # Force a rotation cycle
  ./server rotate --db=./data/rotation.db

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Rotation scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/murmuration/rotation-engine/api"
	"github.com/murmuration/rotation-engine/engine"
	"github.com/murmuration/rotation-engine/factory"
	"github.com/murmuration/rotation-engine/store/sqlite"
)

var (
	flagPort     int
	flagDB       string
	flagEnvFile  string
	flagCatalog  string
	flagScenario string
)

func main() {
	root := &cobra.Command{
		Use:           "rotation-engine",
		Short:         "Crew assignment and rotation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagDB, "db", "rotation.db", "SQLite database path (\":memory:\" for in-memory)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "dotenv file with policy overrides")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and rotation scheduler",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&flagPort, "port", 8080, "HTTP server port")

	rotateCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Run one forced rotation cycle and exit",
		RunE:  runRotate,
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a zone catalog file or a named demo scenario",
		RunE:  runSeed,
	}
	seedCmd.Flags().StringVar(&flagCatalog, "catalog", "", "YAML zone catalog file")
	seedCmd.Flags().StringVar(&flagScenario, "scenario", "", "demo scenario id")

	root.AddCommand(serveCmd, rotateCmd, seedCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup builds the shared dependencies: logger, policy, store.
func setup() (*zap.Logger, engine.Policy, *sqlite.Store, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, engine.Policy{}, nil, err
	}

	f := factory.NewPolicyFactory()
	if err := f.LoadEnvFile(flagEnvFile); err != nil {
		return nil, engine.Policy{}, nil, fmt.Errorf("load env file: %w", err)
	}
	policy, err := f.FromEnv(engine.DefaultPolicy())
	if err != nil {
		return nil, engine.Policy{}, nil, fmt.Errorf("policy configuration: %w", err)
	}

	store, err := sqlite.New(flagDB)
	if err != nil {
		return nil, engine.Policy{}, nil, fmt.Errorf("open database: %w", err)
	}
	return logger, policy, store, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, policy, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()
	defer logger.Sync()

	handler := api.NewHandler(store, policy, logger)
	router := api.NewRouter(handler)

	scheduler := api.NewRotationScheduler(store, policy, logger, handler.Anchor)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", flagPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", flagPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func runRotate(cmd *cobra.Command, _ []string) error {
	logger, policy, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()
	defer logger.Sync()

	scheduler := api.NewRotationScheduler(store, policy, logger, api.NewAnchorTracker())
	scheduler.RunNow()
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	logger, _, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()
	defer logger.Sync()

	ctx := cmd.Context()
	switch {
	case flagScenario != "":
		if err := api.LoadScenarioByID(ctx, store, flagScenario, time.Now()); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
		logger.Info("scenario loaded", zap.String("scenario", flagScenario))
	case flagCatalog != "":
		data, err := os.ReadFile(flagCatalog)
		if err != nil {
			return err
		}
		zones, err := factory.ParseZoneCatalog(data)
		if err != nil {
			return err
		}
		if err := store.ReplaceZones(ctx, zones); err != nil {
			return err
		}
		logger.Info("catalog loaded", zap.String("file", flagCatalog), zap.Int("zones", len(zones)))
	default:
		return fmt.Errorf("either --catalog or --scenario is required")
	}
	return nil
}
