// Package reporter renders the outcome of an import or purge run.
//
// Supported output formats:
//   - Console: colored, human-readable summary for a terminal
//   - JSON: structured data for programmatic consumption
//   - YAML: the same structure, easier to read and diff
//   - CSV: one row per normalized transaction, for spreadsheets
//
// Amounts are rendered as two-place decimals, never as raw minor units.
//
// Example usage:
//
//	gen, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatYAML})
//	err = gen.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"buckets-migrator/internal/models"
	"buckets-migrator/internal/reconciler"
	"buckets-migrator/pkg/errors"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatches         bool `json:"include_matches"`
	IncludeTransactions    bool `json:"include_transactions"`
	IncludeProcessingStats bool `json:"include_processing_stats"`
	MaxItems               int  `json:"max_items"` // per list on the console, 0 for all

	UseColors bool `json:"use_colors"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeMatches:         false,
		IncludeTransactions:    false,
		IncludeProcessingStats: true,
		MaxItems:               50,
		UseColors:              true,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items must not be negative, got %d", c.MaxItems)
	}
	return nil
}

// ReportGenerator generates run reports in various formats
type ReportGenerator struct {
	config *ReportConfig

	heading *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	faint   *color.Color
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	rg := &ReportGenerator{
		config:  config,
		heading: color.New(color.FgCyan, color.Bold),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed, color.Bold),
		faint:   color.New(color.Faint),
	}
	if !config.UseColors {
		for _, c := range []*color.Color{rg.heading, rg.good, rg.warn, rg.bad, rg.faint} {
			c.DisableColor()
		}
	}
	return rg, nil
}

// GenerateReport writes a report for an import run
func (rg *ReportGenerator) GenerateReport(result *reconciler.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return writeJSON(writer, rg.buildRunReport(result))
	case FormatYAML:
		return writeYAML(writer, rg.buildRunReport(result))
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GeneratePurgeReport writes a report for a purge
func (rg *ReportGenerator) GeneratePurgeReport(result *reconciler.PurgeResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("purge result cannot be nil")
	}

	report := &purgeReport{
		Transactions:   result.Transactions,
		Categories:     result.Categories,
		CategoryGroups: result.CategoryGroups,
		Accounts:       result.Accounts,
		Warnings:       buildWarnings(result.Warnings),
	}

	switch rg.config.Format {
	case FormatJSON:
		return writeJSON(writer, report)
	case FormatYAML:
		return writeYAML(writer, report)
	case FormatConsole, FormatCSV:
		rg.heading.Fprintf(writer, "PURGE REPORT\n")
		fmt.Fprintf(writer, "  Transactions deleted:    %d\n", report.Transactions)
		fmt.Fprintf(writer, "  Categories deleted:      %d\n", report.Categories)
		fmt.Fprintf(writer, "  Category groups deleted: %d\n", report.CategoryGroups)
		fmt.Fprintf(writer, "  Accounts deleted:        %d\n", report.Accounts)
		rg.printWarnings(report.Warnings, writer)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// runReport is the serialized form of a RunResult
type runReport struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	DryRun     bool              `json:"dry_run" yaml:"dry_run"`
	Source     string            `json:"source" yaml:"source"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time         `json:"finished_at" yaml:"finished_at"`
	Summary    summaryReport     `json:"summary" yaml:"summary"`
	Warnings   []warningReport   `json:"warnings" yaml:"warnings"`
	Matches    []matchReport     `json:"matches,omitempty" yaml:"matches,omitempty"`
	Batches    []batchReport     `json:"batches,omitempty" yaml:"batches,omitempty"`
	Phases     map[string]string `json:"phases,omitempty" yaml:"phases,omitempty"`
	Duration   string            `json:"duration" yaml:"duration"`
}

type summaryReport struct {
	Accounts           int    `json:"accounts" yaml:"accounts"`
	AccountsReused     int    `json:"accounts_reused" yaml:"accounts_reused"`
	CategoryGroups     int    `json:"category_groups" yaml:"category_groups"`
	Categories         int    `json:"categories" yaml:"categories"`
	CategoriesFailed   int    `json:"categories_failed" yaml:"categories_failed"`
	SourceTransactions int    `json:"source_transactions" yaml:"source_transactions"`
	Filtered           int    `json:"filtered" yaml:"filtered"`
	TransferLegs       int    `json:"transfer_legs" yaml:"transfer_legs"`
	TransfersMatched   int    `json:"transfers_matched" yaml:"transfers_matched"`
	TransfersUnmatched int    `json:"transfers_unmatched" yaml:"transfers_unmatched"`
	TransfersUnlinked  int    `json:"transfers_unlinked" yaml:"transfers_unlinked"`
	Normalized         int    `json:"normalized" yaml:"normalized"`
	Skipped            int    `json:"skipped" yaml:"skipped"`
	Submitted          int    `json:"submitted" yaml:"submitted"`
	Batches            int    `json:"batches" yaml:"batches"`
	OpeningBalances    string `json:"opening_balances" yaml:"opening_balances"`
	NetAmount          string `json:"net_amount" yaml:"net_amount"`
}

type warningReport struct {
	Code       errors.ErrorCode     `json:"code" yaml:"code"`
	Category   errors.ErrorCategory `json:"category" yaml:"category"`
	Message    string               `json:"message" yaml:"message"`
	Suggestion string               `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Context    map[string]string    `json:"context,omitempty" yaml:"context,omitempty"`
}

type matchReport struct {
	Leg        models.SourceID `json:"leg" yaml:"leg"`
	CounterLeg models.SourceID `json:"counter_leg" yaml:"counter_leg"`
	Date       string          `json:"date" yaml:"date"`
	Amount     string          `json:"amount" yaml:"amount"`
	Payee      models.TargetID `json:"payee" yaml:"payee"`
}

type batchReport struct {
	Account      models.TargetID     `json:"account" yaml:"account"`
	Total        string              `json:"total" yaml:"total"`
	Transactions []transactionReport `json:"transactions" yaml:"transactions"`
}

type transactionReport struct {
	ImportedID string          `json:"imported_id" yaml:"imported_id"`
	Date       string          `json:"date" yaml:"date"`
	Amount     string          `json:"amount" yaml:"amount"`
	Category   models.TargetID `json:"category,omitempty" yaml:"category,omitempty"`
	Payee      models.TargetID `json:"payee,omitempty" yaml:"payee,omitempty"`
	Notes      string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}

type purgeReport struct {
	Transactions   int             `json:"transactions" yaml:"transactions"`
	Categories     int             `json:"categories" yaml:"categories"`
	CategoryGroups int             `json:"category_groups" yaml:"category_groups"`
	Accounts       int             `json:"accounts" yaml:"accounts"`
	Warnings       []warningReport `json:"warnings" yaml:"warnings"`
}

func (rg *ReportGenerator) buildRunReport(result *reconciler.RunResult) *runReport {
	report := &runReport{
		RunID:      result.RunID,
		DryRun:     result.DryRun,
		Source:     result.SourcePath,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Warnings:   buildWarnings(result.Warnings),
	}

	if s := result.Summary; s != nil {
		report.Summary = summaryReport{
			Accounts:           s.Accounts,
			AccountsReused:     s.AccountsReused,
			CategoryGroups:     s.CategoryGroups,
			Categories:         s.Categories,
			CategoriesFailed:   s.CategoriesFailed,
			SourceTransactions: s.SourceTransactions,
			Filtered:           s.Filtered,
			TransferLegs:       s.Reconciliation.TransferLegs,
			TransfersMatched:   s.Reconciliation.Matched,
			TransfersUnmatched: s.Reconciliation.Unmatched,
			TransfersUnlinked:  s.Reconciliation.Unlinked,
			Normalized:         s.Normalized,
			Skipped:            s.Skipped,
			Submitted:          s.Submitted,
			Batches:            s.Batches,
			OpeningBalances:    s.OpeningBalances.StringFixed(2),
			NetAmount:          s.NetAmount.StringFixed(2),
		}
	}

	if rg.config.IncludeMatches {
		for _, m := range result.Matches {
			report.Matches = append(report.Matches, matchReport{
				Leg:        m.Leg.SourceID,
				CounterLeg: m.CounterLeg.SourceID,
				Date:       models.CalendarDate(m.Leg.Date),
				Amount:     models.FormatAmount(m.Leg.Amount),
				Payee:      m.PayeeID,
			})
		}
	}

	if rg.config.IncludeTransactions {
		for _, b := range result.Batches {
			batch := batchReport{Account: b.AccountID}
			var amounts []int64
			for _, tx := range b.Transactions {
				amounts = append(amounts, tx.Amount)
				batch.Transactions = append(batch.Transactions, transactionReport{
					ImportedID: tx.ImportedID,
					Date:       tx.Date,
					Amount:     models.FormatAmount(tx.Amount),
					Category:   tx.CategoryID,
					Payee:      tx.PayeeID,
					Notes:      tx.Notes,
				})
			}
			batch.Total = models.SumAmounts(amounts...).StringFixed(2)
			report.Batches = append(report.Batches, batch)
		}
	}

	if rg.config.IncludeProcessingStats && result.Stats != nil {
		report.Phases = make(map[string]string, len(result.Stats.Phases))
		for _, p := range result.Stats.Phases {
			report.Phases[p.Phase] = p.Duration.Round(time.Millisecond).String()
		}
		report.Duration = result.Stats.TotalDuration.Round(time.Millisecond).String()
	}

	return report
}

func buildWarnings(summary *errors.ErrorSummary) []warningReport {
	warnings := []warningReport{}
	if summary == nil {
		return warnings
	}
	for _, w := range summary.Errors {
		entry := warningReport{
			Code:       w.Code,
			Category:   w.Category,
			Message:    w.Message,
			Suggestion: w.Suggestion,
		}
		if len(w.Context) > 0 {
			entry.Context = make(map[string]string, len(w.Context))
			for k, v := range w.Context {
				entry.Context[k] = fmt.Sprint(v)
			}
		}
		warnings = append(warnings, entry)
	}
	return warnings
}

func writeJSON(writer io.Writer, v interface{}) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeYAML(writer io.Writer, v interface{}) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.RunResult, writer io.Writer) error {
	report := rg.buildRunReport(result)

	title := "IMPORT REPORT"
	if report.DryRun {
		title += " (dry run)"
	}
	rg.heading.Fprintf(writer, "%s\n", title)
	fmt.Fprintf(writer, "Run:    %s\n", report.RunID)
	fmt.Fprintf(writer, "Source: %s\n\n", report.Source)

	s := report.Summary
	rg.heading.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Accounts:         %d (reused %d)\n", s.Accounts, s.AccountsReused)
	fmt.Fprintf(writer, "Category groups:  %d\n", s.CategoryGroups)
	fmt.Fprintf(writer, "Categories:       %d", s.Categories)
	if s.CategoriesFailed > 0 {
		rg.warn.Fprintf(writer, " (%d failed)", s.CategoriesFailed)
	}
	fmt.Fprintf(writer, "\n")
	fmt.Fprintf(writer, "Opening balances: %s\n\n", s.OpeningBalances)

	rg.heading.Fprintf(writer, "=== TRANSACTIONS ===\n")
	fmt.Fprintf(writer, "Read:        %d", s.SourceTransactions)
	if s.Filtered > 0 {
		fmt.Fprintf(writer, " (%d outside date range)", s.Filtered)
	}
	fmt.Fprintf(writer, "\n")
	fmt.Fprintf(writer, "Transfers:   %d legs, ", s.TransferLegs)
	rg.good.Fprintf(writer, "%d matched", s.TransfersMatched)
	fmt.Fprintf(writer, ", ")
	rg.printCount(writer, s.TransfersUnmatched, "unmatched")
	fmt.Fprintf(writer, ", ")
	rg.printCount(writer, s.TransfersUnlinked, "unlinked")
	fmt.Fprintf(writer, "\n")
	fmt.Fprintf(writer, "Normalized:  %d (", s.Normalized)
	rg.printCount(writer, s.Skipped, "skipped")
	fmt.Fprintf(writer, ")\n")
	if report.DryRun {
		rg.faint.Fprintf(writer, "Submitted:   nothing, dry run\n")
	} else {
		rg.good.Fprintf(writer, "Submitted:   %d in %d batches\n", s.Submitted, s.Batches)
	}
	fmt.Fprintf(writer, "Net amount:  %s\n\n", s.NetAmount)

	if len(report.Matches) > 0 {
		rg.heading.Fprintf(writer, "=== TRANSFERS ===\n")
		for i, m := range report.Matches {
			if rg.truncated(writer, i, len(report.Matches)) {
				break
			}
			fmt.Fprintf(writer, "  %s  %s -> %s  %10s  payee %s\n", m.Date, m.Leg, m.CounterLeg, m.Amount, m.Payee)
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Batches) > 0 {
		rg.heading.Fprintf(writer, "=== BATCHES ===\n")
		for _, b := range report.Batches {
			fmt.Fprintf(writer, "  %s: %d transactions, total %s\n", b.Account, len(b.Transactions), b.Total)
			for i, tx := range b.Transactions {
				if rg.truncated(writer, i, len(b.Transactions)) {
					break
				}
				fmt.Fprintf(writer, "    %s  %10s  %s\n", tx.Date, tx.Amount, tx.Notes)
			}
		}
		fmt.Fprintf(writer, "\n")
	}

	rg.printWarnings(report.Warnings, writer)

	if len(report.Phases) > 0 {
		rg.heading.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		for _, phase := range result.Stats.Phases {
			fmt.Fprintf(writer, "  %-18s %s\n", phase.Phase, report.Phases[phase.Phase])
		}
		fmt.Fprintf(writer, "  %-18s %s\n", "total", report.Duration)
	}

	return nil
}

func (rg *ReportGenerator) printCount(writer io.Writer, n int, label string) {
	if n > 0 {
		rg.warn.Fprintf(writer, "%d %s", n, label)
		return
	}
	fmt.Fprintf(writer, "%d %s", n, label)
}

// truncated prints a marker and reports true once MaxItems is reached
func (rg *ReportGenerator) truncated(writer io.Writer, i, total int) bool {
	if rg.config.MaxItems == 0 || i < rg.config.MaxItems {
		return false
	}
	rg.faint.Fprintf(writer, "    ... %d more\n", total-i)
	return true
}

func (rg *ReportGenerator) printWarnings(warnings []warningReport, writer io.Writer) {
	if len(warnings) == 0 {
		rg.good.Fprintf(writer, "No warnings\n\n")
		return
	}

	byCode := make(map[errors.ErrorCode][]warningReport)
	var codes []string
	for _, w := range warnings {
		if _, ok := byCode[w.Code]; !ok {
			codes = append(codes, string(w.Code))
		}
		byCode[w.Code] = append(byCode[w.Code], w)
	}
	sort.Strings(codes)

	rg.heading.Fprintf(writer, "=== WARNINGS (%d) ===\n", len(warnings))
	for _, code := range codes {
		group := byCode[errors.ErrorCode(code)]
		rg.warn.Fprintf(writer, "%s (%d)\n", code, len(group))
		for i, w := range group {
			if rg.truncated(writer, i, len(group)) {
				break
			}
			fmt.Fprintf(writer, "  - %s\n", w.Message)
		}
		if s := group[0].Suggestion; s != "" {
			rg.faint.Fprintf(writer, "    %s\n", s)
		}
	}
	fmt.Fprintf(writer, "\n")
}

// generateCSVReport writes one row per normalized transaction
func (rg *ReportGenerator) generateCSVReport(result *reconciler.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{"Account", "Imported_ID", "Date", "Amount", "Category", "Payee", "Notes"}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, batch := range result.Batches {
		for _, tx := range batch.Transactions {
			record := []string{
				tx.AccountID.String(),
				tx.ImportedID,
				tx.Date,
				models.FormatAmount(tx.Amount),
				tx.CategoryID.String(),
				tx.PayeeID.String(),
				tx.Notes,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write transaction record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
