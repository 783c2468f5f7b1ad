package normalizer

import (
	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"
)

// Resolver maps source ids to target ids
type Resolver interface {
	ResolveAccount(source models.SourceID) (models.TargetID, error)
	ResolveCategory(source models.SourceID) (models.TargetID, error)
}

// Batch holds the normalized transactions for one target account
type Batch struct {
	AccountID    models.TargetID                 `json:"account_id" yaml:"account_id"`
	Transactions []*models.NormalizedTransaction `json:"transactions" yaml:"transactions"`
}

// Result is the normalizer output. Batches keep the order in which each
// account first appeared in the input.
type Result struct {
	Batches  []*Batch
	Skipped  int
	Warnings []*errors.MigrationError
}

// Count returns the number of normalized transactions across batches
func (r *Result) Count() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Transactions)
	}
	return n
}

// Normalizer converts reconciled transactions into the target shape
type Normalizer struct {
	resolver Resolver
	logger   logger.Logger
}

// New creates a normalizer
func New(resolver Resolver, log logger.Logger) *Normalizer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Normalizer{resolver: resolver, logger: log.WithComponent("normalizer")}
}

// Normalize resolves references for every transaction. A transaction whose
// account or category cannot be resolved is skipped with a warning rather
// than submitted with a bad reference.
func (n *Normalizer) Normalize(transactions []*models.ReconciledTransaction) *Result {
	result := &Result{}
	byAccount := make(map[models.TargetID]*Batch)

	for _, tx := range transactions {
		normalized, err := n.normalizeOne(tx)
		if err != nil {
			warning := err.AsWarning().
				WithContext("transaction_id", tx.SourceID.String()).
				WithSuggestion("the transaction is skipped")
			result.Warnings = append(result.Warnings, warning)
			result.Skipped++
			n.logger.WithFields(logger.Fields(warning.Context)).Warn(warning.Message)
			continue
		}

		batch, ok := byAccount[normalized.AccountID]
		if !ok {
			batch = &Batch{AccountID: normalized.AccountID}
			byAccount[normalized.AccountID] = batch
			result.Batches = append(result.Batches, batch)
		}
		batch.Transactions = append(batch.Transactions, normalized)
	}

	n.logger.WithFields(logger.Fields{
		"normalized": result.Count(),
		"skipped":    result.Skipped,
		"accounts":   len(result.Batches),
	}).Info("Normalized transactions")

	return result
}

func (n *Normalizer) normalizeOne(tx *models.ReconciledTransaction) (*models.NormalizedTransaction, *errors.MigrationError) {
	account, err := n.resolver.ResolveAccount(tx.AccountID)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryReference, errors.CodeUnresolvedReference, "resolve account")
	}

	var category models.TargetID
	if tx.HasCategory() {
		category, err = n.resolver.ResolveCategory(tx.CategoryID)
		if err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryReference, errors.CodeUnresolvedReference, "resolve category")
		}
	}

	return &models.NormalizedTransaction{
		AccountID:  account,
		Date:       models.CalendarDate(tx.Date),
		Amount:     tx.Amount,
		CategoryID: category,
		PayeeID:    tx.PayeeID,
		Notes:      tx.Notes,
		Cleared:    true,
		ImportedID: models.ImportedID(tx.SourceID, tx.SplitLine),
	}, nil
}
