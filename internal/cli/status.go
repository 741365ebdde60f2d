package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored checkpoint of every subscription",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	repo, closeFn, err := openCheckpoints(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open checkpoints", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	checkpoints, err := repo.List(ctx)
	if err != nil {
		slog.Error("Failed to list checkpoints", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "VM ID\tNEXT BLOCK\tLATEST CHECKED\tUPDATED")
	for _, cp := range checkpoints {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\n",
			cp.VMID, cp.NextBlock, cp.LatestCheckedBlock, cp.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
