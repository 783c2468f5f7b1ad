// Package errors defines the error taxonomy shared by every migration phase.
//
// Each MigrationError carries a category, a specific code and a severity.
// Fatal errors abort the run before (or during) target-side mutation;
// warnings are collected per transaction or per category and reported at
// the end of the run without interrupting the batch.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryStore         ErrorCategory = "store"
	CategoryRemote        ErrorCategory = "remote"
	CategoryReference     ErrorCategory = "reference"
	CategoryTransfer      ErrorCategory = "transfer"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Source store errors
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeQueryFailed      ErrorCode = "query_failed"
	CodeDuplicateSource  ErrorCode = "duplicate_source_id"

	// Target system errors
	CodeRemoteOperationFailed ErrorCode = "remote_operation_failed"
	CodeDuplicateCategory     ErrorCode = "duplicate_category"

	// Identity errors
	CodeUnresolvedReference ErrorCode = "unresolved_reference"
	CodeDuplicateMapping    ErrorCode = "duplicate_mapping"

	// Transfer errors
	CodeUnmatchedTransfer ErrorCode = "unmatched_transfer"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// Severity separates run-aborting failures from recoverable ones.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityWarning Severity = "warning"
)

// MigrationError is the base error type for all application errors
type MigrationError struct {
	Category   ErrorCategory     `json:"category" yaml:"category"`
	Code       ErrorCode         `json:"code" yaml:"code"`
	Severity   Severity          `json:"severity" yaml:"severity"`
	Message    string            `json:"message" yaml:"message"`
	Suggestion string            `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty" yaml:"context,omitempty"`
	Cause      error             `json:"-" yaml:"-"`
	StackTrace errors.StackTrace `json:"-" yaml:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *MigrationError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// Is matches another MigrationError by code, so sentinel comparisons work
// through errors.Is.
func (e *MigrationError) Is(target error) bool {
	t, ok := target.(*MigrationError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsFatal reports whether the error must abort the run.
func (e *MigrationError) IsFatal() bool {
	return e.Severity != SeverityWarning
}

// GetExitCode returns an appropriate exit code for the error
func (e *MigrationError) GetExitCode() int {
	switch e.Category {
	case CategoryStore:
		return 2
	case CategoryReference, CategoryTransfer:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryInternal:
		return 5
	case CategoryRemote:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *MigrationError) WithContext(key string, value interface{}) *MigrationError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *MigrationError) WithSuggestion(suggestion string) *MigrationError {
	e.Suggestion = suggestion
	return e
}

// AsWarning downgrades the error so the caller can continue the batch.
func (e *MigrationError) AsWarning() *MigrationError {
	e.Severity = SeverityWarning
	return e
}

// New creates a new fatal MigrationError
func New(category ErrorCategory, code ErrorCode, message string) *MigrationError {
	return &MigrationError{
		Category:   category,
		Code:       code,
		Severity:   SeverityFatal,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with MigrationError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *MigrationError {
	if err == nil {
		return nil
	}

	return &MigrationError{
		Category:   category,
		Code:       code,
		Severity:   SeverityFatal,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Sentinels for errors.Is checks.
var (
	ErrStoreUnavailable      = &MigrationError{Code: CodeStoreUnavailable}
	ErrRemoteOperationFailed = &MigrationError{Code: CodeRemoteOperationFailed}
	ErrDuplicateCategory     = &MigrationError{Code: CodeDuplicateCategory}
	ErrUnresolvedReference   = &MigrationError{Code: CodeUnresolvedReference}
	ErrUnmatchedTransfer     = &MigrationError{Code: CodeUnmatchedTransfer}
)

// StoreUnavailable reports that the source store cannot be opened or used.
func StoreUnavailable(path string, err error) *MigrationError {
	message := fmt.Sprintf("source store unavailable: %s", path)
	var result *MigrationError
	if err != nil {
		result = Wrap(err, CategoryStore, CodeStoreUnavailable, message)
	} else {
		result = New(CategoryStore, CodeStoreUnavailable, message)
	}
	return result.
		WithSuggestion("check that the buckets file exists and is a readable SQLite database").
		WithContext("path", path)
}

// QueryFailed reports a failed read against the source store.
func QueryFailed(query string, err error) *MigrationError {
	return Wrap(err, CategoryStore, CodeQueryFailed, fmt.Sprintf("source query %s failed", query)).
		WithSuggestion("the buckets file may be from an unsupported version").
		WithContext("query", query)
}

// DuplicateSource reports a source identifier seen twice in one record set.
func DuplicateSource(kind, id string) *MigrationError {
	return New(CategoryStore, CodeDuplicateSource, fmt.Sprintf("duplicate %s id %q in source store", kind, id)).
		WithContext("kind", kind).
		WithContext("id", id)
}

// RemoteOperationFailed wraps a failed call against the target system.
func RemoteOperationFailed(operation string, err error) *MigrationError {
	message := fmt.Sprintf("target operation %s failed", operation)
	var result *MigrationError
	if err != nil {
		result = Wrap(err, CategoryRemote, CodeRemoteOperationFailed, message)
	} else {
		result = New(CategoryRemote, CodeRemoteOperationFailed, message)
	}
	return result.
		WithSuggestion("check server url, api key and budget id").
		WithContext("operation", operation)
}

// DuplicateCategory reports a category the target refused because the name
// already exists. Always a warning.
func DuplicateCategory(name string, err error) *MigrationError {
	message := fmt.Sprintf("category %q already exists in target", name)
	var result *MigrationError
	if err != nil {
		result = Wrap(err, CategoryRemote, CodeDuplicateCategory, message)
	} else {
		result = New(CategoryRemote, CodeDuplicateCategory, message)
	}
	return result.
		WithSuggestion("rename or remove the existing category, or purge the budget before re-running").
		WithContext("category", name).
		AsWarning()
}

// UnresolvedReference reports an identifier with no target counterpart yet.
func UnresolvedReference(kind, id string) *MigrationError {
	return New(CategoryReference, CodeUnresolvedReference, fmt.Sprintf("%s %q has no target counterpart", kind, id)).
		WithSuggestion("the referenced entity was not created in the target; see earlier warnings").
		WithContext("kind", kind).
		WithContext("id", id)
}

// DuplicateMapping reports a second target assignment for the same source id.
func DuplicateMapping(kind, id string) *MigrationError {
	return New(CategoryInternal, CodeDuplicateMapping, fmt.Sprintf("%s %q already mapped to a target id", kind, id)).
		WithContext("kind", kind).
		WithContext("id", id)
}

// UnmatchedTransfer reports a transfer leg with no counter-leg. Always a warning.
func UnmatchedTransfer(transactionID string, amount int64) *MigrationError {
	return New(CategoryTransfer, CodeUnmatchedTransfer, fmt.Sprintf("transfer %s has no matching counter-leg", transactionID)).
		WithSuggestion("the leg is imported as a plain transaction without a payee").
		WithContext("transaction_id", transactionID).
		WithContext("amount", amount).
		AsWarning()
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *MigrationError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the flag, environment variable or config file value"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "set it with a flag, a MIGRATOR_ environment variable or a .env file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *MigrationError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *MigrationError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	var result *MigrationError
	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, message)
	} else {
		result = New(CategoryInternal, CodeUnexpectedError, message)
	}
	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total" yaml:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category" yaml:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code" yaml:"by_code"`
	Errors     []*MigrationError     `json:"errors" yaml:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*MigrationError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if summary.Errors == nil {
		summary.Errors = []*MigrationError{}
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var codes []string
	for code, count := range es.ByCode {
		codes = append(codes, fmt.Sprintf("%s: %d", code, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(codes, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// Count returns how many errors carry the given code.
func (es *ErrorSummary) Count(code ErrorCode) int {
	return es.ByCode[code]
}

// AsMigrationError extracts a MigrationError from an error chain
func AsMigrationError(err error) (*MigrationError, bool) {
	var migrationErr *MigrationError
	if errors.As(err, &migrationErr) {
		return migrationErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a MigrationError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *MigrationError {
	if err == nil {
		return nil
	}

	if migrationErr, ok := AsMigrationError(err); ok {
		return migrationErr
	}

	return Wrap(err, category, code, message)
}

// IsWarning reports whether err is a recoverable MigrationError.
func IsWarning(err error) bool {
	migrationErr, ok := AsMigrationError(err)
	return ok && !migrationErr.IsFatal()
}
