package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/memory"
	"github.com/spf13/cobra"
)

var (
	searchOwner string
	searchKind  string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search an owner's memories",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchOwner, "owner", "", "owner to search (required)")
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "filter by memory kind")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "max results")
	searchCmd.MarkFlagRequired("owner")
}

func runSearch(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	mgr := memory.NewManager(db, config.Default().Memory)

	var kinds []string
	if searchKind != "" {
		kinds = []string{searchKind}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := mgr.Search(ctx, searchOwner, args[0], kinds, searchLimit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%.3f  [%s]  %s\n", r.Score, r.Memory.Kind, r.Memory.Title)
		fmt.Printf("       %s\n", r.Memory.Content)
	}
	return nil
}
