package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler turns command errors into readable messages and exit codes
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if migrationErr, ok := errors.AsMigrationError(err); ok {
		return h.handleMigrationError(migrationErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleMigrationError(err *errors.MigrationError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
		if len(err.StackTrace) > 0 {
			fmt.Fprintf(h.out, "%+v\n", err.StackTrace)
		}
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if os.IsNotExist(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check the --source path\n")
		return 2
	}
	if os.IsPermission(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions on the source and output files\n")
		return 2
	}

	// cobra flag parsing errors land here
	fmt.Fprintf(h.out, "Error: %v\n", err)
	if strings.Contains(err.Error(), "flag") {
		fmt.Fprintf(h.out, "Run 'migrator --help' for usage.\n")
	}
	return 1
}

func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryStore:
		return `Source store help:
• Check that --source points at a Buckets budget file
• Close Buckets before running so the file is not locked
• The store is opened read-only and is never modified`

	case errors.CategoryRemote:
		return `Target server help:
• Check that actual-http-api is running at --server-url
• Verify --api-key and --budget-id
• Encrypted budgets also need --budget-password
• The target may hold partial data; run 'migrator purge --yes' before retrying`

	case errors.CategoryReference, errors.CategoryTransfer:
		return `Data help:
• A transaction refers to an account or category that was not migrated
• Run with --dry-run --include-matches to inspect the source data`

	case errors.CategoryConfiguration:
		return `Configuration help:
• Settings come from flags, MIGRATOR_ environment variables, a .env file or --config
• Use 'migrator import --help' to see all available options`

	default:
		return `For more help:
• Use 'migrator --help' for general help
• Re-run with --verbose for the underlying error`
	}
}
