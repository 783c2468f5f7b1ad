// Package matcher pairs transfer legs with their counter-legs.
//
// Buckets stores a transfer between two accounts as two independent rows:
// one on each account, with opposite amounts and no bucket. Actual models
// the same movement as a single transaction whose payee is the transfer
// payee of the destination account. The matcher rebuilds that link.
//
// Matching is greedy: for each transfer-flagged row, in sequence order, the
// first later row that is not yet consumed, is uncategorized and carries
// the opposite amount becomes its counter-leg. This relies on the source
// ordering (date, then id) putting both legs close together. Interleaved
// transfers of identical amounts, or three-way movements, can pair the
// wrong legs; that is a known limitation and not a bipartite matcher.
//
// Example usage:
//
//	m := matcher.NewTransferMatcher(translator, payees, log)
//	outcome := m.Reconcile(transactions)
//	for _, w := range outcome.Warnings {
//		fmt.Println(w)
//	}
package matcher

import (
	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"
)

// AccountResolver maps source accounts to target accounts
type AccountResolver interface {
	ResolveAccount(source models.SourceID) (models.TargetID, error)
}

// PayeeLookup maps a target account to the payee representing transfers
// into it.
type PayeeLookup interface {
	TransferPayee(account models.TargetID) (models.TargetID, bool)
}

// PayeeTable is the in-memory PayeeLookup built from the target's payee list
type PayeeTable map[models.TargetID]models.TargetID

// TransferPayee implements PayeeLookup
func (p PayeeTable) TransferPayee(account models.TargetID) (models.TargetID, bool) {
	payee, ok := p[account]
	return payee, ok
}

// NewPayeeTable indexes transfer payees by the account they point to.
// Payees without a transfer account are ignored.
func NewPayeeTable(payees []models.Payee) PayeeTable {
	table := make(PayeeTable, len(payees))
	for _, p := range payees {
		if p.TransferAccountID == "" {
			continue
		}
		table[p.TransferAccountID] = p.ID
	}
	return table
}

// TransferMatch records one linked transfer pair
type TransferMatch struct {
	Leg             *models.RawTransaction `json:"leg"`
	CounterLeg      *models.RawTransaction `json:"counter_leg"`
	LegPosition     int                    `json:"leg_position"`
	CounterPosition int                    `json:"counter_position"`
	PayeeID         models.TargetID        `json:"payee_id"`
}

// Summary provides aggregate statistics about one reconciliation pass
type Summary struct {
	Input          int `json:"input"`
	Output         int `json:"output"`
	TransferLegs   int `json:"transfer_legs"`
	Matched        int `json:"matched"`
	Unmatched      int `json:"unmatched"`
	Unlinked       int `json:"unlinked"` // counter-leg found, payee unresolved
	CounterLegsOut int `json:"counter_legs_excluded"`
}

// Outcome is the result of Reconcile. Warnings are recoverable; the caller
// decides whether to surface or abort on them.
type Outcome struct {
	Transactions []*models.ReconciledTransaction
	Matches      []*TransferMatch
	Warnings     []*errors.MigrationError
	Summary      Summary
}

// TransferMatcher runs the forward-only transfer pairing pass
type TransferMatcher struct {
	accounts AccountResolver
	payees   PayeeLookup
	logger   logger.Logger
}

// NewTransferMatcher creates a matcher. A nil logger uses the global one.
func NewTransferMatcher(accounts AccountResolver, payees PayeeLookup, log logger.Logger) *TransferMatcher {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if payees == nil {
		payees = PayeeTable{}
	}
	return &TransferMatcher{
		accounts: accounts,
		payees:   payees,
		logger:   log.WithComponent("transfer_matcher"),
	}
}

// Reconcile scans the ordered sequence once and returns every position that
// was not consumed as a counter-leg, in the original order.
func (m *TransferMatcher) Reconcile(transactions []*models.RawTransaction) *Outcome {
	outcome := &Outcome{Summary: Summary{Input: len(transactions)}}
	index := NewCandidateIndex(transactions)
	excluded := make(ExclusionSet)
	payees := make(map[int]models.TargetID)

	last := len(transactions) - 1
	for pos, tx := range transactions {
		if excluded.Contains(pos) || !tx.IsTransfer {
			continue
		}
		outcome.Summary.TransferLegs++

		if pos == last {
			m.warn(outcome, errors.UnmatchedTransfer(tx.SourceID.String(), tx.Amount).
				WithContext("reason", "last in sequence"))
			outcome.Summary.Unmatched++
			continue
		}

		counterPos, found := index.NextCandidate(pos, -tx.Amount, excluded)
		if !found {
			m.warn(outcome, errors.UnmatchedTransfer(tx.SourceID.String(), tx.Amount))
			outcome.Summary.Unmatched++
			continue
		}

		counter := transactions[counterPos]
		payee, err := m.transferPayee(counter)
		if err != nil {
			m.warn(outcome, err.
				WithContext("transaction_id", tx.SourceID.String()).
				WithContext("counter_leg_id", counter.SourceID.String()).
				WithSuggestion("both legs are imported as plain transactions"))
			outcome.Summary.Unlinked++
			continue
		}

		excluded.Add(counterPos)
		payees[pos] = payee
		outcome.Matches = append(outcome.Matches, &TransferMatch{
			Leg:             tx,
			CounterLeg:      counter,
			LegPosition:     pos,
			CounterPosition: counterPos,
			PayeeID:         payee,
		})
		outcome.Summary.Matched++

		m.logger.WithFields(logger.Fields{
			"transaction_id": tx.SourceID,
			"counter_leg_id": counter.SourceID,
			"amount":         models.FormatAmount(tx.Amount),
			"payee":          payee,
		}).Debug("Matched transfer")
	}

	outcome.Transactions = make([]*models.ReconciledTransaction, 0, len(transactions)-len(excluded))
	for pos, tx := range transactions {
		if excluded.Contains(pos) {
			continue
		}
		outcome.Transactions = append(outcome.Transactions, &models.ReconciledTransaction{
			RawTransaction: tx,
			Position:       pos,
			PayeeID:        payees[pos],
		})
	}
	outcome.Summary.Output = len(outcome.Transactions)
	outcome.Summary.CounterLegsOut = len(excluded)

	m.logger.WithFields(logger.Fields{
		"input":     outcome.Summary.Input,
		"output":    outcome.Summary.Output,
		"transfers": outcome.Summary.TransferLegs,
		"matched":   outcome.Summary.Matched,
		"unmatched": outcome.Summary.Unmatched,
	}).Info("Transfer reconciliation finished")

	return outcome
}

// transferPayee resolves the counter-leg's account to the payee that
// represents transfers into it.
func (m *TransferMatcher) transferPayee(counter *models.RawTransaction) (models.TargetID, *errors.MigrationError) {
	account, err := m.accounts.ResolveAccount(counter.AccountID)
	if err != nil {
		migrationErr := errors.WrapIfNeeded(err, errors.CategoryReference, errors.CodeUnresolvedReference, "resolve counter-leg account")
		return "", migrationErr.AsWarning()
	}
	payee, ok := m.payees.TransferPayee(account)
	if !ok {
		return "", errors.UnresolvedReference("transfer payee", account.String()).AsWarning()
	}
	return payee, nil
}

func (m *TransferMatcher) warn(outcome *Outcome, err *errors.MigrationError) {
	outcome.Warnings = append(outcome.Warnings, err)
	m.logger.WithFields(logger.Fields(err.Context)).Warn(err.Message)
}
