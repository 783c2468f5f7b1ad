// Package config turns viper settings into the component configurations
// used by the migrator commands.
package config

import (
	"strings"
	"time"

	"buckets-migrator/internal/actual"
	"buckets-migrator/internal/models"
	"buckets-migrator/internal/reconciler"
	"buckets-migrator/internal/reporter"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the migrator reads
const EnvPrefix = "MIGRATOR"

// Setting keys shared by flags, environment variables and config files
const (
	KeySource         = "source"
	KeyServerURL      = "server-url"
	KeyAPIKey         = "api-key"
	KeyBudgetID       = "budget-id"
	KeyBudgetPassword = "budget-password"
	KeyDryRun         = "dry-run"
	KeyReuseAccounts  = "reuse-accounts"
	KeySince          = "since"
	KeyUntil          = "until"
	KeyOutputFormat   = "output-format"
	KeyOutputFile     = "output-file"
	KeyIncludeMatches = "include-matches"
	KeyIncludeTxs     = "include-transactions"
	KeyNoColor        = "no-color"
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyTimeout        = "timeout"
	KeyVerbose        = "verbose"
)

// legacyEnv maps keys to unprefixed variable names still found in older
// .env files.
var legacyEnv = map[string]string{
	KeyServerURL:      "SERVERURL",
	KeyBudgetID:       "BUDGETID",
	KeyBudgetPassword: "BUDGETPASS",
}

// Settings is the flattened view of everything the commands read
type Settings struct {
	Source         string
	ServerURL      string
	APIKey         string
	BudgetID       string
	BudgetPassword string

	DryRun        bool
	ReuseAccounts bool
	Since         string
	Until         string

	OutputFormat        string
	OutputFile          string
	IncludeMatches      bool
	IncludeTransactions bool
	NoColor             bool

	LogLevel  string
	LogFormat string
	Verbose   bool
	Timeout   time.Duration
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeySource, "./backup.buckets")
	v.SetDefault(KeyOutputFormat, string(reporter.FormatConsole))
	v.SetDefault(KeyLogLevel, string(logger.InfoLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
	v.SetDefault(KeyTimeout, 30*time.Second)
}

// BindEnv wires the MIGRATOR_ prefix plus the legacy variable names into v
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		_ = v.BindEnv(key, envName, legacy)
	}
}

// Load reads the settings from v
func Load(v *viper.Viper) *Settings {
	return &Settings{
		Source:              v.GetString(KeySource),
		ServerURL:           v.GetString(KeyServerURL),
		APIKey:              v.GetString(KeyAPIKey),
		BudgetID:            v.GetString(KeyBudgetID),
		BudgetPassword:      v.GetString(KeyBudgetPassword),
		DryRun:              v.GetBool(KeyDryRun),
		ReuseAccounts:       v.GetBool(KeyReuseAccounts),
		Since:               v.GetString(KeySince),
		Until:               v.GetString(KeyUntil),
		OutputFormat:        v.GetString(KeyOutputFormat),
		OutputFile:          v.GetString(KeyOutputFile),
		IncludeMatches:      v.GetBool(KeyIncludeMatches),
		IncludeTransactions: v.GetBool(KeyIncludeTxs),
		NoColor:             v.GetBool(KeyNoColor),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFormat:           v.GetString(KeyLogFormat),
		Verbose:             v.GetBool(KeyVerbose),
		Timeout:             v.GetDuration(KeyTimeout),
	}
}

// RequiresTarget reports whether the run talks to a target budget
func (s *Settings) RequiresTarget() bool {
	return !s.DryRun || s.ServerURL != ""
}

// Validate checks the settings an import run depends on
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.Source) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, KeySource, nil, nil)
	}
	if !reporter.OutputFormat(s.OutputFormat).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyOutputFormat, s.OutputFormat, nil).
			WithSuggestion("use one of: console, json, yaml, csv")
	}
	if s.Timeout <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyTimeout, s.Timeout, nil)
	}
	if _, err := s.LoggerConfig(); err != nil {
		return err
	}
	if _, _, err := s.dateRange(); err != nil {
		return err
	}
	if !s.DryRun {
		return s.ValidateTarget()
	}
	return nil
}

// ValidateTarget checks the connection settings only
func (s *Settings) ValidateTarget() error {
	if strings.TrimSpace(s.ServerURL) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, KeyServerURL, nil, nil)
	}
	if strings.TrimSpace(s.BudgetID) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, KeyBudgetID, nil, nil)
	}
	return nil
}

func (s *Settings) dateRange() (*time.Time, *time.Time, error) {
	start, err := parseDate(KeySince, s.Since)
	if err != nil {
		return nil, nil, err
	}
	end, err := parseDate(KeyUntil, s.Until)
	if err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeySince, s.Since, nil).
			WithSuggestion("since must not be after until")
	}
	return start, end, nil
}

func parseDate(key, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, key, value, err).
			WithSuggestion("dates use the YYYY-MM-DD format")
	}
	return &t, nil
}

// ToReconcilerConfig builds the import run configuration
func (s *Settings) ToReconcilerConfig() (*reconciler.Config, error) {
	start, end, err := s.dateRange()
	if err != nil {
		return nil, err
	}

	cfg := reconciler.DefaultConfig()
	cfg.SourcePath = s.Source
	cfg.DryRun = s.DryRun
	cfg.ReuseAccounts = s.ReuseAccounts
	cfg.StartDate = start
	cfg.EndDate = end
	return cfg, cfg.Validate()
}

// ToClientConfig builds the target client configuration
func (s *Settings) ToClientConfig() actual.Config {
	return actual.Config{
		ServerURL:      s.ServerURL,
		APIKey:         s.APIKey,
		BudgetID:       s.BudgetID,
		BudgetPassword: s.BudgetPassword,
		Timeout:        s.Timeout,
	}
}

// ToReportConfig builds the report configuration
func (s *Settings) ToReportConfig() *reporter.ReportConfig {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(s.OutputFormat)
	cfg.IncludeMatches = s.IncludeMatches || s.Verbose
	cfg.IncludeTransactions = s.IncludeTransactions
	cfg.UseColors = !s.NoColor && s.OutputFile == ""

	// Full listings go to files
	if s.OutputFile != "" {
		cfg.MaxItems = 0
	}
	return cfg
}

// LoggerConfig builds the logger configuration. Verbose forces debug level.
func (s *Settings) LoggerConfig() (*logger.Config, error) {
	cfg := logger.DefaultConfig()
	if s.LogLevel != "" {
		cfg.Level = logger.Level(strings.ToLower(s.LogLevel))
	}
	if s.LogFormat != "" {
		cfg.Format = logger.Format(strings.ToLower(s.LogFormat))
	}
	if s.Verbose {
		cfg.Level = logger.DebugLevel
	}
	cfg.Output = logger.StderrOutput

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyLogLevel, s.LogLevel, err)
	}
	return cfg, nil
}
