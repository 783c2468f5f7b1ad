package reconciler

import (
	"context"
	"path/filepath"
	"testing"

	"buckets-migrator/internal/testutil/budgetgen"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"
)

func TestDryRunOverGeneratedBudget(t *testing.T) {
	seeds := []int64{1, 7, 42}

	for _, seed := range seeds {
		gen := budgetgen.Default()
		gen.Seed = seed
		gen.Transfers = 25
		path := filepath.Join(t.TempDir(), "backup.buckets")

		stats, err := gen.WriteFile(path)
		if err != nil {
			t.Fatalf("seed %d: failed to generate budget: %v", seed, err)
		}

		config := DefaultConfig()
		config.SourcePath = path
		config.DryRun = true

		result, err := NewOrchestrator(OpenSQLiteSource, nil, config, logger.NewNopLogger()).Run(context.Background())
		if err != nil {
			t.Fatalf("seed %d: unexpected error: %v", seed, err)
		}

		summary := result.Summary
		if summary.SourceTransactions != stats.Rows {
			t.Errorf("seed %d: expected %d source rows, got %d", seed, stats.Rows, summary.SourceTransactions)
		}
		if summary.Reconciliation.Matched != stats.TransferPairs || summary.Reconciliation.Unmatched != 0 {
			t.Errorf("seed %d: expected every transfer matched, got %+v", seed, summary.Reconciliation)
		}
		if summary.Normalized != stats.Rows-stats.TransferPairs {
			t.Errorf("seed %d: expected %d normalized, got %d", seed, stats.Rows-stats.TransferPairs, summary.Normalized)
		}
		if !summary.NetAmount.Equal(stats.Net) {
			t.Errorf("seed %d: expected net %s, got %s", seed, stats.Net, summary.NetAmount)
		}
		if result.Warnings.HasCode(errors.CodeUnmatchedTransfer) {
			t.Errorf("seed %d: unexpected unmatched transfer warnings", seed)
		}
		if summary.Submitted != 0 {
			t.Errorf("seed %d: dry run submitted %d transactions", seed, summary.Submitted)
		}
	}
}
