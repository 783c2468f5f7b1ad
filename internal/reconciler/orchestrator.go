// Package reconciler sequences a full Buckets to Actual migration.
//
// The Orchestrator runs the phases strictly in order, each one finishing
// before the next starts:
//
//  1. open the source store
//  2. create target accounts and record their ids
//  3. create category groups, then the categories under each group
//  4. read source transactions
//  5. fetch the transfer payee table from the target
//  6. pair transfers and normalize transactions
//  7. submit one batch per target account
//
// Fatal errors stop the run and are returned. Per-category and
// per-transaction problems are collected as warnings on the RunResult.
//
// Example usage:
//
//	orch := reconciler.NewOrchestrator(reconciler.OpenSQLiteSource, client, cfg, log)
//	result, err := orch.Run(ctx)
package reconciler

import (
	"context"
	"fmt"
	"time"

	"buckets-migrator/internal/identity"
	"buckets-migrator/internal/matcher"
	"buckets-migrator/internal/models"
	"buckets-migrator/internal/normalizer"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"

	"github.com/google/uuid"
)

const (
	PhaseOpenSource     = "open_source"
	PhaseAccounts       = "create_accounts"
	PhaseCategories     = "create_categories"
	PhaseTransactions   = "read_transactions"
	PhasePayees         = "fetch_payees"
	PhaseReconcile      = "reconcile"
	PhaseSubmit         = "submit"
	dryRunTargetPrefix  = "dry-run"
	progressOperationID = "submit_transactions"
)

// Orchestrator runs one import against one target budget
type Orchestrator struct {
	open   SourceOpener
	target TargetClient
	config *Config
	logger logger.Logger

	translator *identity.Translator
	warnings   []*errors.MigrationError
}

// NewOrchestrator creates an orchestrator. target may be nil for a dry run.
func NewOrchestrator(open SourceOpener, target TargetClient, config *Config, log logger.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if open == nil {
		open = OpenSQLiteSource
	}
	return &Orchestrator{
		open:   open,
		target: target,
		config: config,
		logger: log.WithComponent("import_orchestrator"),
	}
}

// Run performs the import. On a fatal error the partial result is returned
// alongside the error so the caller can still report what happened.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	if o.target == nil && !o.config.DryRun {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "server-url", nil, nil).
			WithSuggestion("configure the target server or pass --dry-run")
	}

	runID := uuid.NewString()
	log := o.logger.WithField("run_id", runID)
	o.translator = identity.NewTranslator()
	o.warnings = nil

	result := &RunResult{
		RunID:      runID,
		DryRun:     o.config.DryRun,
		SourcePath: o.config.SourcePath,
		StartedAt:  time.Now(),
		Summary:    &RunSummary{},
		Stats:      &ProcessingStats{},
	}

	log.WithFields(logger.Fields{
		"source":  o.config.SourcePath,
		"dry_run": o.config.DryRun,
	}).Info("Starting import")

	err := o.run(ctx, log, result)

	result.FinishedAt = time.Now()
	result.Stats.TotalDuration = result.FinishedAt.Sub(result.StartedAt)
	result.Warnings = errors.NewErrorSummary(o.warnings)

	if err != nil {
		log.WithError(err).Error("Import aborted")
		return result, err
	}

	log.WithFields(logger.Fields{
		"submitted": result.Summary.Submitted,
		"warnings":  result.Warnings.Total,
		"duration":  result.Stats.TotalDuration.Round(time.Millisecond).String(),
	}).Info("Import completed")
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, log logger.Logger, result *RunResult) error {
	// (a) open source store
	started := time.Now()
	phase := logger.StartPhase(PhaseOpenSource, log)
	store, err := o.open(ctx, o.config.SourcePath)
	if err != nil {
		phase.Failed(err)
		return errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeStoreUnavailable, "open source store")
	}
	defer store.Close()
	phase.Done(logger.Fields{"source": o.config.SourcePath})
	result.Stats.record(PhaseOpenSource, started)

	preprocessor := NewDataPreprocessor(&PreprocessingConfig{
		StartDate:        o.config.StartDate,
		EndDate:          o.config.EndDate,
		TrimWhitespace:   true,
		CollapseSpaces:   true,
		RejectDuplicates: true,
	})

	// (b) accounts
	started = time.Now()
	phase = logger.StartPhase(PhaseAccounts, log)
	accounts, err := o.createAccounts(ctx, store, preprocessor, result.Summary)
	if err != nil {
		phase.Failed(err)
		return err
	}
	phase.Done(logger.Fields{"accounts": result.Summary.Accounts, "reused": result.Summary.AccountsReused})
	result.Stats.record(PhaseAccounts, started)

	// (c) category groups, then categories
	started = time.Now()
	phase = logger.StartPhase(PhaseCategories, log)
	if err := o.createCategories(ctx, store, result.Summary); err != nil {
		phase.Failed(err)
		return err
	}
	phase.Done(logger.Fields{
		"groups":     result.Summary.CategoryGroups,
		"categories": result.Summary.Categories,
		"failed":     result.Summary.CategoriesFailed,
	})
	result.Stats.record(PhaseCategories, started)

	// (d) transactions
	started = time.Now()
	phase = logger.StartPhase(PhaseTransactions, log)
	raw, err := store.ListTransactions(ctx)
	if err != nil {
		phase.Failed(err)
		return err
	}
	result.Summary.SourceTransactions = len(raw)
	transactions, stats, err := preprocessor.PreprocessTransactions(raw)
	if err != nil {
		phase.Failed(err)
		return err
	}
	result.Summary.Filtered = stats.RecordsRemoved
	phase.Done(logger.Fields{"transactions": len(raw), "filtered": stats.RecordsRemoved})
	result.Stats.record(PhaseTransactions, started)

	// (e) payees
	started = time.Now()
	phase = logger.StartPhase(PhasePayees, log)
	payees, err := o.fetchPayees(ctx, accounts)
	if err != nil {
		phase.Failed(err)
		return err
	}
	phase.Done(logger.Fields{"transfer_payees": len(payees)})
	result.Stats.record(PhasePayees, started)

	// (f) reconcile and normalize
	started = time.Now()
	phase = logger.StartPhase(PhaseReconcile, log)
	outcome := matcher.NewTransferMatcher(o.translator, payees, log).Reconcile(transactions)
	o.warnings = append(o.warnings, outcome.Warnings...)
	normalized := normalizer.New(o.translator, log).Normalize(outcome.Transactions)
	o.warnings = append(o.warnings, normalized.Warnings...)

	result.Matches = outcome.Matches
	result.Batches = normalized.Batches
	result.Summary.Reconciliation = outcome.Summary
	result.Summary.Normalized = normalized.Count()
	result.Summary.Skipped = normalized.Skipped
	result.Summary.Batches = len(normalized.Batches)
	var amounts []int64
	for _, b := range normalized.Batches {
		for _, tx := range b.Transactions {
			amounts = append(amounts, tx.Amount)
		}
	}
	result.Summary.NetAmount = models.SumAmounts(amounts...)
	phase.Done(logger.Fields{
		"matched":    outcome.Summary.Matched,
		"unmatched":  outcome.Summary.Unmatched,
		"normalized": result.Summary.Normalized,
		"skipped":    result.Summary.Skipped,
	})
	result.Stats.record(PhaseReconcile, started)

	// (g) submit
	started = time.Now()
	phase = logger.StartPhase(PhaseSubmit, log)
	if err := o.submit(ctx, log, normalized.Batches, result.Summary); err != nil {
		phase.Failed(err)
		return err
	}
	phase.Done(logger.Fields{"submitted": result.Summary.Submitted, "batches": result.Summary.Batches})
	result.Stats.record(PhaseSubmit, started)

	return nil
}

func (o *Orchestrator) createAccounts(ctx context.Context, store SourceStore, pre *DataPreprocessor, summary *RunSummary) ([]*models.Account, error) {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if err := pre.PreprocessAccounts(accounts); err != nil {
		return nil, err
	}

	existing, err := o.existingAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var openings []int64
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, errors.InternalError("create accounts", err)
		}

		var target models.TargetID
		if id, ok := existing[account.Name]; ok {
			target = id
			delete(existing, account.Name)
			summary.AccountsReused++
			o.logger.WithFields(logger.Fields{
				"account":   account.Name,
				"target_id": target,
			}).Info("Reusing existing target account")
		} else if o.config.DryRun {
			target = models.TargetID(fmt.Sprintf("%s-account-%s", dryRunTargetPrefix, account.SourceID))
		} else {
			target, err = o.target.CreateAccount(ctx, account.Name, models.DefaultAccountType, account.OpeningBalance)
			if err != nil {
				return nil, err
			}
		}

		if err := account.AssignTarget(target); err != nil {
			return nil, errors.InternalError("assign account target", err)
		}
		if err := o.translator.RecordAccountTarget(account.SourceID, target); err != nil {
			return nil, err
		}
		openings = append(openings, account.OpeningBalance)
		summary.Accounts++
	}

	summary.OpeningBalances = models.SumAmounts(openings...)
	return accounts, nil
}

// existingAccounts indexes open target accounts by name when reuse is on
func (o *Orchestrator) existingAccounts(ctx context.Context) (map[string]models.TargetID, error) {
	existing := make(map[string]models.TargetID)
	if !o.config.ReuseAccounts || o.config.DryRun {
		return existing, nil
	}
	listed, err := o.target.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range listed {
		if a.Closed {
			continue
		}
		if _, dup := existing[a.Name]; !dup {
			existing[a.Name] = a.ID
		}
	}
	return existing, nil
}

func (o *Orchestrator) createCategories(ctx context.Context, store SourceStore, summary *RunSummary) error {
	categories, err := store.ListCategories(ctx)
	if err != nil {
		return err
	}

	for _, groupName := range categories.Groups {
		if err := ctx.Err(); err != nil {
			return errors.InternalError("create categories", err)
		}
		members := categories.ByGroup[groupName]

		groupID, err := o.createGroup(ctx, groupName)
		if err != nil {
			o.warn(errors.WrapIfNeeded(err, errors.CategoryRemote, errors.CodeRemoteOperationFailed, "create category group").
				AsWarning().
				WithContext("group", groupName).
				WithSuggestion("categories in this group stay unresolved"))
			summary.CategoriesFailed += len(members)
			continue
		}
		summary.CategoryGroups++

		for _, category := range members {
			id, err := o.createCategory(ctx, category, groupID)
			if err != nil {
				o.warn(errors.WrapIfNeeded(err, errors.CategoryRemote, errors.CodeRemoteOperationFailed, "create category").
					AsWarning().
					WithContext("category_id", category.SourceID.String()))
				summary.CategoriesFailed++
				continue
			}
			if err := category.AssignTarget(id); err != nil {
				return errors.InternalError("assign category target", err)
			}
			if err := o.translator.RecordCategoryTarget(category.SourceID, id); err != nil {
				return err
			}
			summary.Categories++
		}
	}
	return nil
}

func (o *Orchestrator) createGroup(ctx context.Context, name string) (models.TargetID, error) {
	if o.config.DryRun {
		return models.TargetID(fmt.Sprintf("%s-group-%s", dryRunTargetPrefix, name)), nil
	}
	return o.target.CreateCategoryGroup(ctx, name)
}

func (o *Orchestrator) createCategory(ctx context.Context, category *models.Category, group models.TargetID) (models.TargetID, error) {
	if o.config.DryRun {
		return models.TargetID(fmt.Sprintf("%s-category-%s", dryRunTargetPrefix, category.SourceID)), nil
	}
	return o.target.CreateCategory(ctx, category.Name, group)
}

// fetchPayees builds the transfer payee table. A dry run fabricates one
// payee per created account, mirroring what the target does.
func (o *Orchestrator) fetchPayees(ctx context.Context, accounts []*models.Account) (matcher.PayeeTable, error) {
	if o.config.DryRun {
		payees := make([]models.Payee, 0, len(accounts))
		for _, a := range accounts {
			payees = append(payees, models.Payee{
				ID:                models.TargetID(fmt.Sprintf("%s-payee-%s", dryRunTargetPrefix, a.SourceID)),
				Name:              a.Name,
				TransferAccountID: a.TargetID,
			})
		}
		return matcher.NewPayeeTable(payees), nil
	}

	payees, err := o.target.ListPayees(ctx)
	if err != nil {
		return nil, err
	}
	return matcher.NewPayeeTable(payees), nil
}

func (o *Orchestrator) submit(ctx context.Context, log logger.Logger, batches []*normalizer.Batch, summary *RunSummary) error {
	if o.config.DryRun {
		log.WithField("batches", len(batches)).Info("Dry run, nothing submitted")
		return nil
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   progressOperationID,
		Total:       int64(summary.Normalized),
		LogInterval: o.config.ProgressInterval,
		Logger:      log,
	})

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			progress.CompleteWithError(err)
			return errors.InternalError("submit transactions", err)
		}
		if err := o.target.AddTransactions(ctx, batch.AccountID, batch.Transactions); err != nil {
			progress.CompleteWithError(err)
			return err
		}
		summary.Submitted += len(batch.Transactions)
		progress.Add(int64(len(batch.Transactions)))
	}

	progress.Complete()
	return nil
}

func (o *Orchestrator) warn(w *errors.MigrationError) {
	o.warnings = append(o.warnings, w)
	o.logger.WithFields(logger.Fields(w.Context)).Warn(w.Error())
}
