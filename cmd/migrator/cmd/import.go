package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"buckets-migrator/cmd/migrator/config"
	"buckets-migrator/internal/actual"
	"buckets-migrator/internal/reconciler"
	"buckets-migrator/internal/reporter"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a Buckets budget into Actual Budget",
	Long: `Import reads accounts, buckets and transactions from a Buckets budget file
and recreates them in an Actual Budget. The two legs of every transfer are
paired so Actual links them instead of importing two unrelated transactions.

Settings can be passed as flags, MIGRATOR_ environment variables (for example
MIGRATOR_SERVER_URL), a .env file or a config file.

Examples:
  # Full import
  migrator import --source backup.buckets --server-url http://localhost:5007 \
    --api-key secret --budget-id 1cfdbb80-6274-49bf-b0c2-737235a4c81f

  # Inspect what would be imported without touching the target
  migrator import --dry-run --include-matches

  # Import one year, reusing accounts that already exist in the target
  migrator import --since 2024-01-01 --until 2024-12-31 --reuse-accounts

  # Machine readable report
  migrator import --output-format json --output-file report.json`,

	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP(config.KeySource, "s", "./backup.buckets", "path to the Buckets budget file")
	importCmd.Flags().Bool(config.KeyDryRun, false, "read and reconcile without writing to the target")
	importCmd.Flags().Bool(config.KeyReuseAccounts, false, "reuse target accounts with the same name instead of creating new ones")

	importCmd.Flags().String(config.KeySince, "", "only import transactions on or after this date (YYYY-MM-DD)")
	importCmd.Flags().String(config.KeyUntil, "", "only import transactions on or before this date (YYYY-MM-DD)")

	importCmd.Flags().StringP(config.KeyOutputFormat, "f", "console", "report format: console, json, yaml, csv")
	importCmd.Flags().StringP(config.KeyOutputFile, "o", "", "report file path (default: stdout)")
	importCmd.Flags().Bool(config.KeyIncludeMatches, false, "list every paired transfer in the report")
	importCmd.Flags().Bool(config.KeyIncludeTxs, false, "list every submitted transaction in the report")
	importCmd.Flags().Bool(config.KeyNoColor, false, "disable colors in the console report")

	for _, key := range []string{
		config.KeySource, config.KeyDryRun, config.KeyReuseAccounts,
		config.KeySince, config.KeyUntil,
		config.KeyOutputFormat, config.KeyOutputFile,
		config.KeyIncludeMatches, config.KeyIncludeTxs, config.KeyNoColor,
	} {
		viper.BindPFlag(key, importCmd.Flags().Lookup(key))
	}
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	settings := config.Load(viper.GetViper())
	if err := settings.Validate(); err != nil {
		return err
	}

	if err := validateSourceFile(settings.Source); err != nil {
		return err
	}

	if settings.OutputFile != "" {
		dir := filepath.Dir(settings.OutputFile)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyOutputFile, settings.OutputFile,
				fmt.Errorf("output directory does not exist: %s", dir))
		}
	}
	return nil
}

func validateSourceFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.StoreUnavailable(path, err)
	}
	if info.IsDir() {
		return errors.StoreUnavailable(path, fmt.Errorf("%s is a directory, expected a budget file", path))
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, stop := runContext(cmd)
	defer stop()

	settings := config.Load(viper.GetViper())
	log := logger.GetGlobalLogger().WithComponent("cli")

	runConfig, err := settings.ToReconcilerConfig()
	if err != nil {
		return err
	}

	var target reconciler.TargetClient
	if settings.RequiresTarget() {
		client, err := actual.NewClient(settings.ToClientConfig(), log)
		if err != nil {
			return err
		}
		target = client
	}

	log.WithFields(logger.Fields{
		"server":         settings.ServerURL,
		"reuse_accounts": settings.ReuseAccounts,
		"since":          settings.Since,
		"until":          settings.Until,
	}).Debug("Resolved import settings")

	result, runErr := reconciler.NewOrchestrator(reconciler.OpenSQLiteSource, target, runConfig, log).Run(ctx)

	// A partial result still tells the user how far the run got
	if result != nil {
		if err := writeRunReport(settings, result, log); err != nil {
			if runErr == nil {
				return err
			}
			log.WithError(err).Error("Could not write the report for the failed run")
		}
	}
	return runErr
}

func writeRunReport(settings *config.Settings, result *reconciler.RunResult, log logger.Logger) error {
	generator, err := reporter.NewSafeReportGenerator(settings.ToReportConfig(), log)
	if err != nil {
		return err
	}

	return withOutput(settings.OutputFile, func(w io.Writer) error {
		return generator.GenerateReportSafely(result, w)
	})
}

// withOutput runs write against the output file, or stdout when path is empty
func withOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}

	output, err := os.Create(path)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyOutputFile, path, err)
	}
	defer output.Close()

	return write(output)
}

// runContext is shared by commands that only need cancellation
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
