package reconciler

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"
)

// DataPreprocessor cleans source rows before they reach the matcher
type DataPreprocessor struct {
	config *PreprocessingConfig
}

// PreprocessingConfig contains configuration for data preprocessing
type PreprocessingConfig struct {
	// Inclusive calendar-day bounds; nil means unbounded
	StartDate *time.Time
	EndDate   *time.Time

	// String normalization options
	TrimWhitespace   bool
	CollapseSpaces   bool
	RejectDuplicates bool
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		TrimWhitespace:   true,
		CollapseSpaces:   true,
		RejectDuplicates: true,
	}
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &DataPreprocessor{config: config}
}

// PreprocessingStats contains statistics about preprocessing operations
type PreprocessingStats struct {
	TotalRecordsProcessed int `json:"total_records_processed"`
	RecordsRemoved        int `json:"records_removed"`
}

var multiSpace = regexp.MustCompile(`[ \t]{2,}`)

// PreprocessAccounts normalizes account names and rejects repeated ids
func (dp *DataPreprocessor) PreprocessAccounts(accounts []*models.Account) error {
	seen := make(map[models.SourceID]bool, len(accounts))
	for _, a := range accounts {
		if dp.config.RejectDuplicates && seen[a.SourceID] {
			return errors.DuplicateSource("account", a.SourceID.String())
		}
		seen[a.SourceID] = true
		a.Name = dp.normalizeString(a.Name)
	}
	return nil
}

// PreprocessTransactions normalizes notes, applies the date range and
// rejects a repeated (id, split line) pair. Order is preserved.
func (dp *DataPreprocessor) PreprocessTransactions(transactions []*models.RawTransaction) ([]*models.RawTransaction, *PreprocessingStats, error) {
	stats := &PreprocessingStats{TotalRecordsProcessed: len(transactions)}
	seen := make(map[string]bool, len(transactions))
	kept := make([]*models.RawTransaction, 0, len(transactions))

	for _, tx := range transactions {
		key := fmt.Sprintf("%s_%d", tx.SourceID, tx.SplitLine)
		if dp.config.RejectDuplicates && seen[key] {
			return nil, stats, errors.DuplicateSource("transaction", tx.SourceID.String())
		}
		seen[key] = true

		if !dp.isWithinDateRange(tx.Date) {
			stats.RecordsRemoved++
			continue
		}
		tx.Notes = dp.normalizeString(tx.Notes)
		kept = append(kept, tx)
	}

	return kept, stats, nil
}

// normalizeString applies string normalization rules
func (dp *DataPreprocessor) normalizeString(s string) string {
	if dp.config.TrimWhitespace {
		s = strings.TrimSpace(s)
	}
	if dp.config.CollapseSpaces {
		s = multiSpace.ReplaceAllString(s, " ")
	}
	return s
}

// isWithinDateRange compares calendar days so a bound includes the whole day
func (dp *DataPreprocessor) isWithinDateRange(date time.Time) bool {
	day := models.CalendarDate(date)
	if dp.config.StartDate != nil && day < models.CalendarDate(*dp.config.StartDate) {
		return false
	}
	if dp.config.EndDate != nil && day > models.CalendarDate(*dp.config.EndDate) {
		return false
	}
	return true
}
