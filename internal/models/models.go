package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceID identifies a record in the source (Buckets) store.
type SourceID string

// TargetID identifies an entity created in the target (Actual) budget.
type TargetID string

// String returns the identifier as a plain string
func (id SourceID) String() string { return string(id) }

// String returns the identifier as a plain string
func (id TargetID) String() string { return string(id) }

const (
	// DefaultGroupName is the synthetic group for buckets without one.
	DefaultGroupName = "Misc"

	// LicenseCategoryID is the reserved bucket that must never be imported.
	LicenseCategoryID SourceID = "x-license"

	// TransferTag is the source-side tag marking a transfer leg.
	TransferTag = "transfer"

	// DefaultAccountType is used for every account created in the target.
	DefaultAccountType = "other"

	// DateLayout is the calendar date format expected by the target.
	DateLayout = "2006-01-02"
)

// Account represents a source account and, once created, its target id
type Account struct {
	SourceID       SourceID `json:"source_id"`
	Name           string   `json:"name"`
	OpeningBalance int64    `json:"opening_balance"`
	TargetID       TargetID `json:"target_id,omitempty"`
}

// AssignTarget records the target id. It may only happen once.
func (a *Account) AssignTarget(id TargetID) error {
	if a.TargetID != "" {
		return fmt.Errorf("account %s already assigned target id %s", a.SourceID, a.TargetID)
	}
	if id == "" {
		return fmt.Errorf("account %s: empty target id", a.SourceID)
	}
	a.TargetID = id
	return nil
}

// String returns a string representation of the Account
func (a *Account) String() string {
	return fmt.Sprintf("Account{ID: %s, Name: %s, Opening: %s}", a.SourceID, a.Name, FormatAmount(a.OpeningBalance))
}

// CategoryGroup is a parent of categories, keyed by name
type CategoryGroup struct {
	Name     string   `json:"name"`
	TargetID TargetID `json:"target_id,omitempty"`
}

// Category represents a source bucket
type Category struct {
	SourceID  SourceID `json:"source_id"`
	Name      string   `json:"name"`
	GroupName string   `json:"group_name"`
	TargetID  TargetID `json:"target_id,omitempty"`
}

// AssignTarget records the target id. It may only happen once.
func (c *Category) AssignTarget(id TargetID) error {
	if c.TargetID != "" {
		return fmt.Errorf("category %s already assigned target id %s", c.SourceID, c.TargetID)
	}
	if id == "" {
		return fmt.Errorf("category %s: empty target id", c.SourceID)
	}
	c.TargetID = id
	return nil
}

// RawTransaction is a transaction row as read from the source store
type RawTransaction struct {
	SourceID   SourceID  `json:"source_id"`
	Date       time.Time `json:"date"`
	AccountID  SourceID  `json:"account_id"`
	CategoryID SourceID  `json:"category_id,omitempty"` // empty when uncategorized
	IsTransfer bool      `json:"is_transfer"`
	Amount     int64     `json:"amount"` // minor currency units
	Notes      string    `json:"notes,omitempty"`
	SplitLine  int       `json:"split_line,omitempty"` // 1-based line of a split, 0 otherwise
}

// HasCategory reports whether the transaction is assigned to a bucket
func (t *RawTransaction) HasCategory() bool {
	return t.CategoryID != ""
}

// IsCounterLegOf reports whether t can be the other leg of transfer.
// The candidate must be uncategorized and carry the opposite amount.
func (t *RawTransaction) IsCounterLegOf(transfer *RawTransaction) bool {
	return !t.HasCategory() && t.Amount == -transfer.Amount
}

// String returns a string representation of the RawTransaction
func (t *RawTransaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Account: %s, Amount: %s, Date: %s, Transfer: %t}",
		t.SourceID, t.AccountID, FormatAmount(t.Amount), t.Date.Format(DateLayout), t.IsTransfer)
}

// ReconciledTransaction is a retained transaction after transfer matching.
// PayeeID is set only on transfer legs with a matched counter-leg.
type ReconciledTransaction struct {
	*RawTransaction
	Position int      `json:"position"`
	PayeeID  TargetID `json:"payee_id,omitempty"`
}

// IsLinkedTransfer reports whether a payee was attached by the matcher
func (r *ReconciledTransaction) IsLinkedTransfer() bool {
	return r.PayeeID != ""
}

// NormalizedTransaction is the target-side transaction shape
type NormalizedTransaction struct {
	AccountID  TargetID `json:"account" yaml:"account"`
	Date       string   `json:"date" yaml:"date"`
	Amount     int64    `json:"amount" yaml:"amount"`
	CategoryID TargetID `json:"category,omitempty" yaml:"category,omitempty"`
	PayeeID    TargetID `json:"payee,omitempty" yaml:"payee,omitempty"`
	Notes      string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Cleared    bool     `json:"cleared" yaml:"cleared"`
	ImportedID string   `json:"imported_id,omitempty" yaml:"imported_id,omitempty"`
}

// Payee is a target-side counterparty. Transfer payees carry the account
// they transfer into.
type Payee struct {
	ID                TargetID `json:"id"`
	Name              string   `json:"name"`
	TransferAccountID TargetID `json:"transfer_acct,omitempty"`
}

// ImportedID builds the stable id the target uses to skip re-imports.
func ImportedID(id SourceID, splitLine int) string {
	if splitLine > 0 {
		return fmt.Sprintf("buckets:%s:%d", id, splitLine)
	}
	return "buckets:" + string(id)
}

// AmountDecimal converts minor units to a decimal with two places.
func AmountDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatAmount renders minor units as a fixed two-place string
func FormatAmount(minor int64) string {
	return AmountDecimal(minor).StringFixed(2)
}

// SumAmounts totals a set of minor-unit amounts as a decimal
func SumAmounts(amounts ...int64) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(AmountDecimal(a))
	}
	return total
}

// ParseSourceTime attempts to parse time from string using the formats the
// source store has been seen to use
func ParseSourceTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.000Z",
		DateLayout,
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// CalendarDate strips the time of day, keeping the date as written.
func CalendarDate(t time.Time) string {
	return t.Format(DateLayout)
}
