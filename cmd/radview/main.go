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

	"github.com/mrsinham/radview/internal/config"
	"github.com/mrsinham/radview/internal/logging"
	"github.com/mrsinham/radview/internal/render"
	"github.com/mrsinham/radview/internal/server"
	"github.com/mrsinham/radview/internal/store"
	"github.com/mrsinham/radview/internal/study"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("radview %s\n", version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	blobs, err := store.NewBlobStore(cfg.Media.Root)
	if err != nil {
		return err
	}

	docs, err := store.OpenDocumentStore(cfg.Data.Dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := docs.Close(); err != nil {
			log.Error().Err(err).Msg("close document store")
		}
	}()

	renderer := render.New(blobs, cfg.Media.URLPrefix)
	ingestor := study.NewIngestor(renderer, docs, log.With().Str("component", "ingest").Logger())
	srv := server.New(ingestor, docs, blobs.Root(), cfg.Media.URLPrefix, log.With().Str("component", "http").Logger())

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("media", cfg.Media.Root).
			Str("data", cfg.Data.Dir).
			Str("version", version).
			Msg("radview listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
