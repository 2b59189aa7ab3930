// Package cli implements the memcore CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/memcore/memcore/internal/config"
	"github.com/memcore/memcore/internal/embedding"
	"github.com/memcore/memcore/internal/extract"
	"github.com/memcore/memcore/internal/ingest"
	"github.com/memcore/memcore/internal/memory"
	"github.com/memcore/memcore/internal/store"
)

var (
	dbPath    string
	ownerFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memcore",
	Short: "Versioned memory store for AI agents",
	Long:  "A memory engine with deduplication, supersede chains, and ranked retrieval. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MEMCORE_DB or ~/.memcore/memcore.db)")
	RootCmd.PersistentFlags().StringVarP(&ownerFlag, "owner", "o", "", "Owner id (default: $MEMCORE_OWNER or \"default\")")
}

func getOwner() string {
	if ownerFlag != "" {
		return ownerFlag
	}
	if env := os.Getenv("MEMCORE_OWNER"); env != "" {
		return env
	}
	return "default"
}

// app bundles the wired engine for one command invocation.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   *store.SQLiteStore
	manager *memory.Manager
	llm     *extract.LLMExtractor // nil when no credential is configured
}

func openApp() (*app, error) {
	cfg := config.Load()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	llm := extract.NewFromEnv()
	var synth extract.Synthesizer
	if llm != nil {
		synth = llm
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		manager: memory.NewManager(st, embedding.NewFromEnv(), synth, cfg, log),
		llm:     llm,
	}, nil
}

func (a *app) Close() { a.store.Close() }

func (a *app) orchestrator() *ingest.Orchestrator {
	var extractor extract.Extractor
	if a.llm != nil {
		extractor = a.llm
	}
	return ingest.New(ingest.NewInMemoryJobs(), a.manager, extractor, a.cfg, a.log)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
