package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/ivawatch/internal/core/domain"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [vm_id] [block]",
	Short: "Make a subscription resume from the given block",
	Args:  cobra.ExactArgs(2),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	vmID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid vm id: %v\n", err)
		os.Exit(1)
	}
	block, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()

	ctx := context.Background()
	repo, closeFn, err := openCheckpoints(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open checkpoints", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	var latest uint64
	if block > 0 {
		latest = block - 1
	}
	if err := repo.Save(ctx, &domain.Checkpoint{
		VMID:               vmID,
		NextBlock:          block,
		LatestCheckedBlock: latest,
		UpdatedAt:          time.Now(),
	}); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor for vm %d to block %d\n", vmID, block)
}
