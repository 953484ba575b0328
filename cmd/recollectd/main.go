// cmd/recollectd wires the Recollect memory core: configuration, the
// SQLite record stores, the optional pgvector index, and the guarded
// reasoning capability. The serving surface (MCP, HTTP) lives in the
// host application; this binary exists for local wiring checks and as
// the canonical assembly sequence.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/core"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/internal/storage/postgres"
	"github.com/scrypster/recollect/internal/storage/sqlite"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("recollectd: ")
	log.SetFlags(log.LstdFlags)

	configPath := flag.String("config", "", "path to YAML config (optional; env overrides apply either way)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o700); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	store, err := sqlite.Open(cfg.Storage.SQLitePath, sqlite.Options{
		AliasTouchBoost:    cfg.Resolver.AliasTouchBoost,
		AliasConfidenceCap: cfg.Resolver.AliasConfidenceCap,
	})
	if err != nil {
		log.Fatalf("failed to open database at %q: %v", cfg.Storage.SQLitePath, err)
	}
	defer store.Close()

	var (
		vectors storage.VectorIndex
		sink    core.EmbeddingSink
	)
	if cfg.Storage.PostgresDSN != "" {
		index, err := postgres.Open(cfg.Storage.PostgresDSN, cfg.Storage.EmbeddingDims)
		if err != nil {
			log.Fatalf("failed to open vector index: %v", err)
		}
		defer index.Close()
		vectors = index
		sink = index
		log.Printf("vector index enabled (%d dims)", cfg.Storage.EmbeddingDims)
	} else {
		log.Printf("no postgres DSN configured, semantic search disabled")
	}

	if _, err := core.New(cfg, core.Deps{
		Entities:  store,
		Memories:  store,
		Conflicts: store,
		Vectors:   vectors,
		Sink:      sink,
	}); err != nil {
		log.Fatalf("failed to assemble memory core: %v", err)
	}

	log.Printf("memory core ready (db=%s)", cfg.Storage.SQLitePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("received shutdown signal")
}
