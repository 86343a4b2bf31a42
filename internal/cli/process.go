package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/opensource-finance/bonusledger/internal/ledger"
	"github.com/opensource-finance/bonusledger/internal/reconcile"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("as-of", "", "Reference date YYYY-MM-DD for contract and bonus validity (default: today)")
	processCmd.Flags().String("default-kind", "", "Kind of rows without a kind marker: invoice or credit_note")
	processCmd.Flags().String("operator", "", "Operator recorded as the batch submitter")
}

var processCmd = &cobra.Command{
	Use:   "process FILE",
	Short: "Process one export synchronously and print its report",
	Long: `Process one CSV or XLSX export in this process and print the finalized
batch, including its report, as JSON. Exits non-zero when the batch fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !ledger.SupportedExtension(path) {
		return fmt.Errorf("unsupported file type: %s", path)
	}

	job := reconcile.Job{Path: path}
	job.SubmittedBy, _ = cmd.Flags().GetString("operator")

	if v, _ := cmd.Flags().GetString("as-of"); v != "" {
		asOf, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
		}
		job.AsOf = asOf
	}
	if v, _ := cmd.Flags().GetString("default-kind"); v != "" {
		kind, ok := domain.ParseDocumentKind(v)
		if !ok {
			return fmt.Errorf("--default-kind must be invoice or credit_note, got %q", v)
		}
		job.DefaultKind = kind
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	batch, runErr := a.reconciler.Process(ctx, job)
	if batch != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(batch); err != nil {
			return err
		}
	}
	return runErr
}
