package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/server"
	"github.com/lazypower/recall/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()

	// Check for ANTHROPIC_API_KEY env override
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.AnthropicKey = key
	}

	// Resolve database path
	dbPath := cfg.Database.Path
	if p := os.Getenv("RECALL_DB"); p != "" {
		dbPath = p
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mgr := memory.NewManager(db, cfg.Memory)
	tracker := memory.NewTracker(db, cfg.Memory.FlowLimit)

	// Optional generation collaborator; scoring and replies work without it.
	var llmClient llm.Client
	if cfg.LLM.Provider != "" {
		llmClient, err = llm.NewClient(cfg.LLM)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), heuristic scoring only\n", err)
		} else {
			mgr.Scorer.Client = llmClient
			fmt.Fprintf(os.Stderr, "  llm: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
		}
	}

	// Detect and configure embedder
	{
		ollamaURL := cfg.LLM.OllamaURL
		if ollamaURL == "" {
			ollamaURL = "http://localhost:11434"
		}
		embeddingModel := cfg.LLM.EmbeddingModel
		if embeddingModel == "" {
			embeddingModel = "nomic-embed-text"
		}

		if memory.ProbeOllama(ollamaURL, embeddingModel) {
			mgr.SetEmbedder(memory.NewOllamaEmbedder(ollamaURL, embeddingModel, 768))
			fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", embeddingModel)
		} else {
			emb, tfidfErr := memory.NewTFIDFEmbedder(db, 512)
			if tfidfErr != nil {
				fmt.Fprintf(os.Stderr, "warning: tfidf embedder init failed: %v\n", tfidfErr)
			} else {
				mgr.SetEmbedder(emb)
				fmt.Fprintf(os.Stderr, "  embedder: tfidf (fallback)\n")
			}
		}
	}

	mgr.StartSweepTimer()
	defer mgr.Stop()

	srv := server.New(db, mgr, tracker, llmClient, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "recall serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
