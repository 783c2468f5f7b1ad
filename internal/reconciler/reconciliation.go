package reconciler

import (
	"context"
	"fmt"
	"time"

	"buckets-migrator/internal/actual"
	"buckets-migrator/internal/matcher"
	"buckets-migrator/internal/models"
	"buckets-migrator/internal/normalizer"
	"buckets-migrator/internal/source"
	"buckets-migrator/pkg/errors"

	"github.com/shopspring/decimal"
)

// SourceStore is the read side of a migration
type SourceStore interface {
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	ListCategories(ctx context.Context) (*source.Categories, error)
	ListTransactions(ctx context.Context) ([]*models.RawTransaction, error)
	Close() error
}

// SourceOpener opens the source store at path
type SourceOpener func(ctx context.Context, path string) (SourceStore, error)

// OpenSQLiteSource is the SourceOpener for a buckets file on disk
func OpenSQLiteSource(ctx context.Context, path string) (SourceStore, error) {
	store, err := source.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// TargetClient is the write side of a migration
type TargetClient interface {
	ListAccounts(ctx context.Context) ([]actual.Account, error)
	CreateAccount(ctx context.Context, name, accountType string, openingBalance int64) (models.TargetID, error)
	CreateCategoryGroup(ctx context.Context, name string) (models.TargetID, error)
	CreateCategory(ctx context.Context, name string, group models.TargetID) (models.TargetID, error)
	ListPayees(ctx context.Context) ([]models.Payee, error)
	AddTransactions(ctx context.Context, account models.TargetID, transactions []*models.NormalizedTransaction) error
}

// TargetPurger removes everything from a target budget
type TargetPurger interface {
	ListAccounts(ctx context.Context) ([]actual.Account, error)
	ListCategoryGroups(ctx context.Context) ([]actual.CategoryGroup, error)
	ListTransactions(ctx context.Context, account models.TargetID, since time.Time) ([]actual.Transaction, error)
	DeleteTransaction(ctx context.Context, id models.TargetID) error
	DeleteCategory(ctx context.Context, id models.TargetID) error
	DeleteCategoryGroup(ctx context.Context, id models.TargetID) error
	DeleteAccount(ctx context.Context, id models.TargetID) error
}

// Config holds configuration options for one import run
type Config struct {
	SourcePath string

	// DryRun reads and reconciles everything but mutates nothing in the
	// target. Target ids are synthesized.
	DryRun bool

	// ReuseAccounts maps source accounts onto existing target accounts of
	// the same name instead of creating duplicates.
	ReuseAccounts bool

	// Date range filtering options, inclusive. Applied before transfer
	// matching, so a transfer straddling a boundary loses its other leg.
	StartDate *time.Time
	EndDate   *time.Time

	// ProgressInterval controls how often submission progress is logged
	ProgressInterval time.Duration
}

// DefaultConfig returns a default configuration for an import run
func DefaultConfig() *Config {
	return &Config{
		SourcePath:       "./backup.buckets",
		ProgressInterval: 5 * time.Second,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SourcePath == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "source", nil, nil)
	}
	if c.StartDate != nil && c.EndDate != nil && c.StartDate.After(*c.EndDate) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "since",
			c.StartDate.Format(models.DateLayout),
			fmt.Errorf("start date must be before end date"))
	}
	return nil
}

// RunResult contains the complete results of one import run
type RunResult struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	DryRun     bool      `json:"dry_run" yaml:"dry_run"`
	SourcePath string    `json:"source" yaml:"source"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Summary  *RunSummary              `json:"summary" yaml:"summary"`
	Matches  []*matcher.TransferMatch `json:"matches,omitempty" yaml:"matches,omitempty"`
	Batches  []*normalizer.Batch      `json:"batches,omitempty" yaml:"batches,omitempty"`
	Warnings *errors.ErrorSummary     `json:"warnings" yaml:"warnings"`
	Stats    *ProcessingStats         `json:"processing_stats" yaml:"processing_stats"`
}

// RunSummary provides a high-level overview of an import run
type RunSummary struct {
	Accounts         int `json:"accounts" yaml:"accounts"`
	AccountsReused   int `json:"accounts_reused" yaml:"accounts_reused"`
	CategoryGroups   int `json:"category_groups" yaml:"category_groups"`
	Categories       int `json:"categories" yaml:"categories"`
	CategoriesFailed int `json:"categories_failed" yaml:"categories_failed"`

	SourceTransactions int             `json:"source_transactions" yaml:"source_transactions"`
	Filtered           int             `json:"filtered" yaml:"filtered"`
	Reconciliation     matcher.Summary `json:"reconciliation" yaml:"reconciliation"`
	Normalized         int             `json:"normalized" yaml:"normalized"`
	Skipped            int             `json:"skipped" yaml:"skipped"`
	Submitted          int             `json:"submitted" yaml:"submitted"`
	Batches            int             `json:"batches" yaml:"batches"`

	OpeningBalances decimal.Decimal `json:"opening_balances" yaml:"opening_balances"`
	NetAmount       decimal.Decimal `json:"net_amount" yaml:"net_amount"`
}

// ProcessingStats records how long each phase took
type ProcessingStats struct {
	Phases        []PhaseTiming `json:"phases" yaml:"phases"`
	TotalDuration time.Duration `json:"total_duration" yaml:"total_duration"`
}

// PhaseTiming is the duration of one phase
type PhaseTiming struct {
	Phase    string        `json:"phase" yaml:"phase"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

func (s *ProcessingStats) record(phase string, started time.Time) {
	s.Phases = append(s.Phases, PhaseTiming{Phase: phase, Duration: time.Since(started)})
}

// PurgeResult counts what a purge removed
type PurgeResult struct {
	Transactions   int                  `json:"transactions" yaml:"transactions"`
	Categories     int                  `json:"categories" yaml:"categories"`
	CategoryGroups int                  `json:"category_groups" yaml:"category_groups"`
	Accounts       int                  `json:"accounts" yaml:"accounts"`
	Warnings       *errors.ErrorSummary `json:"warnings" yaml:"warnings"`
}
