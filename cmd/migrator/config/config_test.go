package config

import (
	"testing"
	"time"

	"buckets-migrator/internal/reporter"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"

	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func validSettings() *Settings {
	s := Load(newViper())
	s.ServerURL = "http://localhost:5007"
	s.BudgetID = "budget-1"
	return s
}

func TestLoadDefaults(t *testing.T) {
	s := Load(newViper())

	if s.Source != "./backup.buckets" {
		t.Errorf("expected default source, got %q", s.Source)
	}
	if s.OutputFormat != "console" {
		t.Errorf("expected console output, got %q", s.OutputFormat)
	}
	if s.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", s.Timeout)
	}
	if s.DryRun {
		t.Error("dry run should be off by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MIGRATOR_SERVER_URL", "http://actual:5007")
	t.Setenv("MIGRATOR_DRY_RUN", "true")
	t.Setenv("BUDGETID", "legacy-budget")
	t.Setenv("BUDGETPASS", "secret")

	s := Load(newViper())

	if s.ServerURL != "http://actual:5007" {
		t.Errorf("expected server url from MIGRATOR_SERVER_URL, got %q", s.ServerURL)
	}
	if !s.DryRun {
		t.Error("expected dry run from MIGRATOR_DRY_RUN")
	}
	if s.BudgetID != "legacy-budget" {
		t.Errorf("expected budget id from BUDGETID, got %q", s.BudgetID)
	}
	if s.BudgetPassword != "secret" {
		t.Errorf("expected budget password from BUDGETPASS, got %q", s.BudgetPassword)
	}
}

func TestPrefixedVariableWinsOverLegacy(t *testing.T) {
	t.Setenv("MIGRATOR_BUDGET_ID", "new")
	t.Setenv("BUDGETID", "old")

	if got := Load(newViper()).BudgetID; got != "new" {
		t.Errorf("expected prefixed variable to win, got %q", got)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Settings)
		wantCode    errors.ErrorCode
		wantSetting string
	}{
		{"valid", func(s *Settings) {}, "", ""},
		{"missing source", func(s *Settings) { s.Source = " " }, errors.CodeMissingConfig, KeySource},
		{"bad format", func(s *Settings) { s.OutputFormat = "xml" }, errors.CodeInvalidConfig, KeyOutputFormat},
		{"zero timeout", func(s *Settings) { s.Timeout = 0 }, errors.CodeInvalidConfig, KeyTimeout},
		{"bad log level", func(s *Settings) { s.LogLevel = "loud" }, errors.CodeInvalidConfig, KeyLogLevel},
		{"bad since", func(s *Settings) { s.Since = "01/02/2024" }, errors.CodeInvalidConfig, KeySince},
		{"bad until", func(s *Settings) { s.Until = "2024-13-01" }, errors.CodeInvalidConfig, KeyUntil},
		{"inverted range", func(s *Settings) {
			s.Since = "2024-02-01"
			s.Until = "2024-01-01"
		}, errors.CodeInvalidConfig, KeySince},
		{"missing server", func(s *Settings) { s.ServerURL = "" }, errors.CodeMissingConfig, KeyServerURL},
		{"missing budget", func(s *Settings) { s.BudgetID = "" }, errors.CodeMissingConfig, KeyBudgetID},
		{"dry run without server", func(s *Settings) {
			s.DryRun = true
			s.ServerURL = ""
			s.BudgetID = ""
		}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := s.Validate()

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			migrationErr, ok := errors.AsMigrationError(err)
			if !ok {
				t.Fatalf("expected MigrationError, got %v", err)
			}
			if migrationErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, migrationErr.Code)
			}
			if migrationErr.Context["setting"] != tt.wantSetting {
				t.Errorf("expected setting %s, got %v", tt.wantSetting, migrationErr.Context["setting"])
			}
			if migrationErr.GetExitCode() != 4 {
				t.Errorf("expected exit code 4, got %d", migrationErr.GetExitCode())
			}
		})
	}
}

func TestToReconcilerConfig(t *testing.T) {
	s := validSettings()
	s.Source = "/data/budget.buckets"
	s.ReuseAccounts = true
	s.Since = "2024-01-01"
	s.Until = "2024-06-30"

	cfg, err := s.ToReconcilerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SourcePath != "/data/budget.buckets" || !cfg.ReuseAccounts {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.StartDate == nil || cfg.StartDate.Format("2006-01-02") != "2024-01-01" {
		t.Errorf("unexpected start date: %v", cfg.StartDate)
	}
	if cfg.EndDate == nil || cfg.EndDate.Format("2006-01-02") != "2024-06-30" {
		t.Errorf("unexpected end date: %v", cfg.EndDate)
	}
	if cfg.ProgressInterval <= 0 {
		t.Error("expected progress interval from defaults")
	}
}

func TestToClientConfig(t *testing.T) {
	s := validSettings()
	s.APIKey = "key"
	s.BudgetPassword = "pass"

	cfg := s.ToClientConfig()
	if cfg.ServerURL != s.ServerURL || cfg.BudgetID != s.BudgetID {
		t.Errorf("unexpected connection settings: %+v", cfg)
	}
	if cfg.APIKey != "key" || cfg.BudgetPassword != "pass" {
		t.Errorf("unexpected credentials: %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected timeout to carry over, got %v", cfg.Timeout)
	}
}

func TestToReportConfig(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Settings)
		wantFormat reporter.OutputFormat
		wantColors bool
		wantMax    int
	}{
		{"console to terminal", func(s *Settings) {}, reporter.FormatConsole, true, 50},
		{"no color", func(s *Settings) { s.NoColor = true }, reporter.FormatConsole, false, 50},
		{"json to file", func(s *Settings) {
			s.OutputFormat = "json"
			s.OutputFile = "report.json"
		}, reporter.FormatJSON, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			cfg := s.ToReportConfig()

			if cfg.Format != tt.wantFormat {
				t.Errorf("expected format %s, got %s", tt.wantFormat, cfg.Format)
			}
			if cfg.UseColors != tt.wantColors {
				t.Errorf("expected colors %v, got %v", tt.wantColors, cfg.UseColors)
			}
			if cfg.MaxItems != tt.wantMax {
				t.Errorf("expected max items %d, got %d", tt.wantMax, cfg.MaxItems)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("report config should be valid: %v", err)
			}
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	s := validSettings()
	s.LogLevel = "WARN"
	s.LogFormat = "json"

	cfg, err := s.LoggerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Level != logger.WarnLevel || cfg.Format != logger.JSONFormat {
		t.Errorf("unexpected logger config: %+v", cfg)
	}

	s.Verbose = true
	cfg, err = s.LoggerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Level != logger.DebugLevel {
		t.Errorf("verbose should force debug, got %s", cfg.Level)
	}
}
