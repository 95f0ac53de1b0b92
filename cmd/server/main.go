/*
main.go - Server entrypoint

PURPOSE:
  Wires the pieces together: configuration, SQLite store, allocation
  engine, HTTP router and the round-close worker, with graceful shutdown
  on SIGINT/SIGTERM.

USAGE:
  server [-config config.yaml] [-port N] [-demo]

  -demo seeds a small scenario into a fresh database before serving.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/varaus/allocation-engine/allocation"
	"github.com/varaus/allocation-engine/api"
	"github.com/varaus/allocation-engine/config"
	"github.com/varaus/allocation-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML configuration")
	port := flag.Int("port", 0, "override the configured port")
	demo := flag.Bool("demo", false, "seed the demo scenario before serving")
	flag.Parse()

	if err := run(*configPath, *port, *demo); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string, port int, demo bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if demo {
		if err := sqlite.LoadDemo(context.Background(), store); err != nil {
			return fmt.Errorf("seed demo scenario: %w", err)
		}
		logger.Info().Msg("demo scenario seeded")
	}

	indexes := allocation.NewIndexCache(store, cfg.IndexCacheTTL)
	locks := allocation.NewRoundLocks()
	allocator := allocation.NewAllocator(store, locks, indexes, logger)
	ledger := allocation.NewLedger(store, logger)

	handler := api.NewHandler(store, allocator, ledger, indexes, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimit: rate.Limit(cfg.RateLimit),
		RateBurst: cfg.RateBurst,
		CacheTTL:  cfg.CacheTTL,
	})

	worker := api.NewRoundCloseWorker(store, logger, cfg.WorkerInterval)
	worker.Start()
	defer worker.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
