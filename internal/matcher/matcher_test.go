package matcher

import (
	stderrors "errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"buckets-migrator/internal/identity"
	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"
)

var baseDate = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func tx(id string, account string, category string, transfer bool, amount int64) *models.RawTransaction {
	return &models.RawTransaction{
		SourceID:   models.SourceID(id),
		Date:       baseDate,
		AccountID:  models.SourceID(account),
		CategoryID: models.SourceID(category),
		IsTransfer: transfer,
		Amount:     amount,
	}
}

// createTestResolvers maps source accounts 1..n to acc-i with payee-i.
func createTestResolvers(t *testing.T, n int) (*identity.Translator, PayeeTable) {
	t.Helper()
	tr := identity.NewTranslator()
	payees := PayeeTable{}
	for i := 1; i <= n; i++ {
		target := models.TargetID(fmt.Sprintf("acc-%d", i))
		if err := tr.RecordAccountTarget(models.SourceID(fmt.Sprint(i)), target); err != nil {
			t.Fatalf("record account: %v", err)
		}
		payees[target] = models.TargetID(fmt.Sprintf("payee-%d", i))
	}
	return tr, payees
}

func ids(txs []*models.ReconciledTransaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.SourceID.String()
	}
	return out
}

func TestReconcileSimpleTransferPair(t *testing.T) {
	tr, payees := createTestResolvers(t, 2)
	m := NewTransferMatcher(tr, payees, nil)

	outcome := m.Reconcile([]*models.RawTransaction{
		tx("1", "1", "", true, 1000),
		tx("2", "2", "", false, -1000),
	})

	if len(outcome.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(outcome.Transactions))
	}
	got := outcome.Transactions[0]
	if got.SourceID != "1" {
		t.Errorf("expected transaction 1 to be kept, got %s", got.SourceID)
	}
	if got.PayeeID != "payee-2" {
		t.Errorf("expected payee of destination account, got %q", got.PayeeID)
	}
	if len(outcome.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", outcome.Warnings)
	}
	if len(outcome.Matches) != 1 || outcome.Matches[0].CounterPosition != 1 {
		t.Errorf("expected one match against position 1, got %+v", outcome.Matches)
	}
}

func TestReconcileUnmatchedTransfer(t *testing.T) {
	tr, payees := createTestResolvers(t, 2)
	m := NewTransferMatcher(tr, payees, nil)

	outcome := m.Reconcile([]*models.RawTransaction{
		tx("1", "1", "", true, 1000),
		tx("2", "2", "", false, -999),
		tx("3", "2", "food", false, -1000),
	})

	if len(outcome.Transactions) != 3 {
		t.Fatalf("expected all 3 transactions kept, got %d", len(outcome.Transactions))
	}
	if outcome.Transactions[0].PayeeID != "" {
		t.Errorf("expected no payee on unmatched leg, got %s", outcome.Transactions[0].PayeeID)
	}
	if len(outcome.Warnings) != 1 || !stderrors.Is(outcome.Warnings[0], errors.ErrUnmatchedTransfer) {
		t.Fatalf("expected one unmatched transfer warning, got %v", outcome.Warnings)
	}
	if outcome.Warnings[0].IsFatal() {
		t.Error("expected unmatched transfer to be non-fatal")
	}
}

func TestReconcileTransferAtLastPosition(t *testing.T) {
	tr, payees := createTestResolvers(t, 2)
	m := NewTransferMatcher(tr, payees, nil)

	outcome := m.Reconcile([]*models.RawTransaction{
		tx("1", "2", "", false, -1000),
		tx("2", "1", "", true, 1000),
	})

	if len(outcome.Transactions) != 2 {
		t.Fatalf("expected both kept (no backward matching), got %d", len(outcome.Transactions))
	}
	if outcome.Transactions[1].PayeeID != "" {
		t.Error("expected last transfer leg to have no payee")
	}
	if len(outcome.Warnings) != 1 || outcome.Warnings[0].Code != errors.CodeUnmatchedTransfer {
		t.Fatalf("expected unmatched transfer warning, got %v", outcome.Warnings)
	}
	if outcome.Warnings[0].Context["reason"] != "last in sequence" {
		t.Errorf("expected last-in-sequence reason, got %v", outcome.Warnings[0].Context["reason"])
	}
}

func TestReconcileSingleTransfer(t *testing.T) {
	tr, payees := createTestResolvers(t, 1)
	outcome := NewTransferMatcher(tr, payees, nil).Reconcile([]*models.RawTransaction{
		tx("1", "1", "", true, 500),
	})
	if len(outcome.Transactions) != 1 || len(outcome.Warnings) != 1 {
		t.Fatalf("expected 1 transaction and 1 warning, got %d/%d", len(outcome.Transactions), len(outcome.Warnings))
	}
}

func TestReconcileEmptySequence(t *testing.T) {
	tr, payees := createTestResolvers(t, 1)
	outcome := NewTransferMatcher(tr, payees, nil).Reconcile(nil)
	if len(outcome.Transactions) != 0 || len(outcome.Warnings) != 0 {
		t.Fatalf("expected empty outcome, got %+v", outcome)
	}
}

func TestReconcileSkipsCategorizedCandidates(t *testing.T) {
	tr, payees := createTestResolvers(t, 3)
	outcome := NewTransferMatcher(tr, payees, nil).Reconcile([]*models.RawTransaction{
		tx("1", "1", "", true, -2500),
		tx("2", "2", "rent", false, 2500),
		tx("3", "3", "", false, 2500),
	})

	if got := ids(outcome.Transactions); fmt.Sprint(got) != "[1 2]" {
		t.Fatalf("expected [1 2], got %v", got)
	}
	if outcome.Transactions[0].PayeeID != "payee-3" {
		t.Errorf("expected payee-3, got %s", outcome.Transactions[0].PayeeID)
	}
}

func TestReconcileBothLegsFlagged(t *testing.T) {
	tr, payees := createTestResolvers(t, 2)
	outcome := NewTransferMatcher(tr, payees, nil).Reconcile([]*models.RawTransaction{
		tx("1", "1", "", true, -700),
		tx("2", "2", "", true, 700),
	})

	if len(outcome.Transactions) != 1 {
		t.Fatalf("expected consumed counter-leg not to be processed again, got %d", len(outcome.Transactions))
	}
	if len(outcome.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", outcome.Warnings)
	}
	if outcome.Summary.TransferLegs != 1 {
		t.Errorf("expected excluded leg not to be counted as a transfer leg, got %d", outcome.Summary.TransferLegs)
	}
}

func TestReconcileFirstMatchWins(t *testing.T) {
	tr, payees := createTestResolvers(t, 3)
	outcome := NewTransferMatcher(tr, payees, nil).Reconcile([]*models.RawTransaction{
		tx("1", "1", "", true, 100),
		tx("2", "1", "", true, 100),
		tx("3", "2", "", false, -100),
		tx("4", "3", "", false, -100),
	})

	if got := ids(outcome.Transactions); fmt.Sprint(got) != "[1 2]" {
		t.Fatalf("expected [1 2], got %v", got)
	}
	if outcome.Transactions[0].PayeeID != "payee-2" || outcome.Transactions[1].PayeeID != "payee-3" {
		t.Errorf("expected greedy in-order pairing, got %s and %s",
			outcome.Transactions[0].PayeeID, outcome.Transactions[1].PayeeID)
	}
}

func TestReconcileUnresolvedCounterLegAccount(t *testing.T) {
	tr, payees := createTestResolvers(t, 1)
	outcome := NewTransferMatcher(tr, payees, nil).Reconcile([]*models.RawTransaction{
		tx("1", "1", "", true, 100),
		tx("2", "9", "", false, -100),
	})

	if len(outcome.Transactions) != 2 {
		t.Fatalf("expected both legs kept when the link cannot be resolved, got %d", len(outcome.Transactions))
	}
	if len(outcome.Warnings) != 1 || !stderrors.Is(outcome.Warnings[0], errors.ErrUnresolvedReference) {
		t.Fatalf("expected unresolved reference warning, got %v", outcome.Warnings)
	}
	if outcome.Warnings[0].IsFatal() {
		t.Error("expected warning severity")
	}
	if outcome.Summary.Unlinked != 1 {
		t.Errorf("expected 1 unlinked transfer, got %d", outcome.Summary.Unlinked)
	}
}

func TestReconcileMissingTransferPayee(t *testing.T) {
	tr, _ := createTestResolvers(t, 2)
	outcome := NewTransferMatcher(tr, PayeeTable{}, nil).Reconcile([]*models.RawTransaction{
		tx("1", "1", "", true, 100),
		tx("2", "2", "", false, -100),
	})

	if len(outcome.Transactions) != 2 {
		t.Fatalf("expected both legs kept, got %d", len(outcome.Transactions))
	}
	if outcome.Warnings[0].Code != errors.CodeUnresolvedReference {
		t.Errorf("expected unresolved reference, got %s", outcome.Warnings[0].Code)
	}
}

func TestNewPayeeTable(t *testing.T) {
	table := NewPayeeTable([]models.Payee{
		{ID: "p1", Name: "Savings", TransferAccountID: "acc-1"},
		{ID: "p2", Name: "Grocer"},
	})
	if len(table) != 1 {
		t.Fatalf("expected only transfer payees, got %d", len(table))
	}
	if payee, ok := table.TransferPayee("acc-1"); !ok || payee != "p1" {
		t.Errorf("expected p1, got %s", payee)
	}
}

// referenceReconcile is the direct quadratic forward scan the index must agree with.
func referenceReconcile(txs []*models.RawTransaction) (kept []int, pairs map[int]int) {
	excluded := map[int]bool{}
	pairs = map[int]int{}
	for i, cur := range txs {
		if excluded[i] || !cur.IsTransfer || i == len(txs)-1 {
			continue
		}
		for j := i + 1; j < len(txs); j++ {
			if excluded[j] {
				continue
			}
			if txs[j].CategoryID == "" && txs[j].Amount == -cur.Amount {
				excluded[j] = true
				pairs[i] = j
				break
			}
		}
	}
	for i := range txs {
		if !excluded[i] {
			kept = append(kept, i)
		}
	}
	return kept, pairs
}

func randomSequence(r *rand.Rand, n int) []*models.RawTransaction {
	amounts := []int64{100, -100, 250, -250, 1000, -1000}
	txs := make([]*models.RawTransaction, n)
	for i := range txs {
		category := ""
		if r.Intn(3) == 0 {
			category = "food"
		}
		txs[i] = tx(fmt.Sprint(i+1), fmt.Sprint(r.Intn(3)+1), category, r.Intn(2) == 0, amounts[r.Intn(len(amounts))])
	}
	return txs
}

func TestReconcileAgreesWithForwardScan(t *testing.T) {
	tr, payees := createTestResolvers(t, 3)
	m := NewTransferMatcher(tr, payees, nil)
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		txs := randomSequence(r, r.Intn(25))
		outcome := m.Reconcile(txs)
		kept, pairs := referenceReconcile(txs)

		if len(outcome.Transactions) != len(kept) {
			t.Fatalf("round %d: expected %d kept, got %d", round, len(kept), len(outcome.Transactions))
		}
		for i, rec := range outcome.Transactions {
			if rec.Position != kept[i] {
				t.Fatalf("round %d: position %d expected %d, got %d", round, i, kept[i], rec.Position)
			}
		}
		if len(outcome.Matches) != len(pairs) {
			t.Fatalf("round %d: expected %d matches, got %d", round, len(pairs), len(outcome.Matches))
		}

		// Output size is input minus consumed counter-legs.
		if len(outcome.Transactions) != len(txs)-len(outcome.Matches) {
			t.Fatalf("round %d: count invariant broken", round)
		}

		for _, match := range outcome.Matches {
			if pairs[match.LegPosition] != match.CounterPosition {
				t.Fatalf("round %d: leg %d paired with %d, want %d", round, match.LegPosition, match.CounterPosition, pairs[match.LegPosition])
			}
			if match.CounterPosition <= match.LegPosition {
				t.Fatalf("round %d: counter-leg must come after the leg", round)
			}
			if match.Leg.Amount != -match.CounterLeg.Amount || match.CounterLeg.HasCategory() {
				t.Fatalf("round %d: invalid pair %v / %v", round, match.Leg, match.CounterLeg)
			}
			for _, rec := range outcome.Transactions {
				if rec.Position == match.CounterPosition {
					t.Fatalf("round %d: counter-leg %d present in output", round, match.CounterPosition)
				}
			}
		}
	}
}

func TestReorderingCategorizedTransactionsKeepsMatches(t *testing.T) {
	tr, payees := createTestResolvers(t, 3)
	m := NewTransferMatcher(tr, payees, nil)

	original := []*models.RawTransaction{
		tx("1", "1", "", true, 500),
		tx("2", "2", "food", false, -500),
		tx("3", "3", "rent", false, 900),
		tx("4", "2", "", false, -500),
		tx("5", "1", "", true, -900),
		tx("6", "3", "fun", false, 20),
		tx("7", "3", "", false, 900),
	}
	reordered := []*models.RawTransaction{
		original[5], original[0], original[2], original[3], original[1], original[4], original[6],
	}

	pairsOf := func(o *Outcome) map[models.SourceID]models.SourceID {
		out := map[models.SourceID]models.SourceID{}
		for _, match := range o.Matches {
			out[match.Leg.SourceID] = match.CounterLeg.SourceID
		}
		return out
	}

	a := pairsOf(m.Reconcile(original))
	b := pairsOf(m.Reconcile(reordered))
	if fmt.Sprint(a) != fmt.Sprint(b) {
		t.Errorf("expected identical matches, got %v and %v", a, b)
	}
	if a["1"] != "4" || a["5"] != "7" {
		t.Errorf("unexpected pairs %v", a)
	}
}

func TestCandidateIndex(t *testing.T) {
	txs := []*models.RawTransaction{
		tx("1", "1", "", true, 100),
		tx("2", "1", "", false, -100),
		tx("3", "1", "food", false, -100),
		tx("4", "1", "", false, -100),
	}
	index := NewCandidateIndex(txs)
	if index.Size() != 3 {
		t.Errorf("expected 3 uncategorized positions indexed, got %d", index.Size())
	}

	excluded := make(ExclusionSet)
	pos, ok := index.NextCandidate(0, -100, excluded)
	if !ok || pos != 1 {
		t.Fatalf("expected position 1, got %d (%t)", pos, ok)
	}

	excluded.Add(1)
	pos, ok = index.NextCandidate(0, -100, excluded)
	if !ok || pos != 3 {
		t.Fatalf("expected position 3 after excluding 1, got %d (%t)", pos, ok)
	}

	if _, ok := index.NextCandidate(3, -100, excluded); ok {
		t.Error("expected no candidate after the last position")
	}
	if _, ok := index.NextCandidate(0, 42, excluded); ok {
		t.Error("expected no candidate for unknown amount")
	}
}
