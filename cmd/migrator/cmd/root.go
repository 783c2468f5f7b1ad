package cmd

import (
	"fmt"
	"os"

	"buckets-migrator/cmd/migrator/config"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "migrator",
	Short: "Move a Buckets budget into Actual Budget",
	Long: `Migrator reads a Buckets budget file (SQLite), pairs up the two legs of
every transfer between accounts, and recreates accounts, categories and
transactions in an Actual Budget through actual-http-api.

Examples:
  migrator import --source backup.buckets --server-url http://localhost:5007 --budget-id <sync-id>
  migrator import --dry-run --include-matches
  migrator purge --yes
  migrator version`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolP(config.KeyVerbose, "v", false, "verbose output")
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String(config.KeyLogFormat, "text", "log format: text, json")

	// Connection settings are shared by import and purge
	rootCmd.PersistentFlags().String(config.KeyServerURL, "", "actual-http-api base URL")
	rootCmd.PersistentFlags().String(config.KeyAPIKey, "", "actual-http-api key")
	rootCmd.PersistentFlags().String(config.KeyBudgetID, "", "sync id of the target budget")
	rootCmd.PersistentFlags().String(config.KeyBudgetPassword, "", "encryption password of the target budget")
	rootCmd.PersistentFlags().Duration(config.KeyTimeout, 0, "timeout per target request (default 30s)")

	for _, key := range []string{
		config.KeyVerbose, config.KeyLogLevel, config.KeyLogFormat,
		config.KeyServerURL, config.KeyAPIKey, config.KeyBudgetID,
		config.KeyBudgetPassword, config.KeyTimeout,
	} {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}
}

// initConfig reads in the dotenv file, config file and ENV variables.
func initConfig() {
	// A missing .env is normal; variables may come from the real environment
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error reading env file %s: %s\n", envFile, err)
			os.Exit(4)
		}
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}

		if viper.GetBool(config.KeyVerbose) {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	config.BindEnv(viper.GetViper())
}

func setupLogging(cmd *cobra.Command, args []string) error {
	settings := config.Load(viper.GetViper())
	logConfig, err := settings.LoggerConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyLogFormat, settings.LogFormat, err)
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
