package cmd

import (
	"io"

	"buckets-migrator/cmd/migrator/config"
	"buckets-migrator/internal/actual"
	"buckets-migrator/internal/reconciler"
	"buckets-migrator/internal/reporter"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var purgeConfirmed bool

// purgeCmd represents the purge command
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all accounts, categories and transactions from the target budget",
	Long: `Purge empties the target budget so an import can be repeated from scratch.
Transactions go first, then categories and category groups, then accounts.
Income groups are kept because Actual does not allow deleting them.

This cannot be undone. Pass --yes to confirm.

Examples:
  migrator purge --server-url http://localhost:5007 --budget-id <sync-id> --yes`,

	PreRunE: validatePurgeFlags,
	RunE:    runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().BoolVar(&purgeConfirmed, "yes", false, "confirm deleting everything in the target budget")
	purgeCmd.Flags().StringP(config.KeyOutputFormat, "f", "console", "report format: console, json, yaml")
}

func validatePurgeFlags(cmd *cobra.Command, args []string) error {
	if !purgeConfirmed {
		return errors.ConfigurationError(errors.CodeMissingConfig, "yes", nil, nil).
			WithSuggestion("purge deletes everything in the target budget; pass --yes to confirm")
	}
	return config.Load(viper.GetViper()).ValidateTarget()
}

func runPurge(cmd *cobra.Command, args []string) error {
	ctx, stop := runContext(cmd)
	defer stop()

	settings := config.Load(viper.GetViper())
	format, _ := cmd.Flags().GetString(config.KeyOutputFormat)
	settings.OutputFormat = format
	settings.OutputFile = ""

	log := logger.GetGlobalLogger().WithComponent("cli")

	client, err := actual.NewClient(settings.ToClientConfig(), log)
	if err != nil {
		return err
	}

	log.WithField("budget_id", settings.BudgetID).Warn("Purging target budget")

	result, purgeErr := reconciler.Purge(ctx, client, log)
	if result != nil {
		generator, err := reporter.NewSafeReportGenerator(settings.ToReportConfig(), log)
		if err != nil {
			return err
		}
		err = withOutput("", func(w io.Writer) error {
			return generator.GeneratePurgeReportSafely(result, w)
		})
		if err != nil && purgeErr == nil {
			return err
		}
	}
	return purgeErr
}
