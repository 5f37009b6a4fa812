package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire stale memories and promote eligible ones, once",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	mgr := memory.NewManager(db, config.Default().Memory)
	stats, err := mgr.Sweep(time.Now())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	fmt.Printf("expired %d, promoted %d\n", stats.Expired, stats.Promoted)
	return nil
}

// openDB resolves the database path and opens the store.
func openDB() (*store.DB, error) {
	dbPath := os.Getenv("RECALL_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
