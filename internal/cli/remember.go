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
	rememberOwner      string
	rememberTitle      string
	rememberImportance float64
)

var rememberCmd = &cobra.Command{
	Use:   "remember [content]",
	Short: "Store a long-term memory directly",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemember,
}

func init() {
	rememberCmd.Flags().StringVar(&rememberOwner, "owner", "", "memory owner (required)")
	rememberCmd.Flags().StringVar(&rememberTitle, "title", "", "short label")
	rememberCmd.Flags().Float64Var(&rememberImportance, "importance", 0.8, "importance in [0,1]")
	rememberCmd.MarkFlagRequired("owner")
}

func runRemember(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	mgr := memory.NewManager(db, config.Default().Memory)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem, err := mgr.StoreLongTerm(ctx, rememberOwner, rememberTitle, args[0], rememberImportance)
	if err != nil {
		return fmt.Errorf("remember: %w", err)
	}

	fmt.Printf("stored %s [%s] importance %.2f\n", mem.ID, mem.Kind, mem.Importance)
	return nil
}
