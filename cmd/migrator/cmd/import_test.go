package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"buckets-migrator/cmd/migrator/config"
	"buckets-migrator/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const budgetSchema = `
CREATE TABLE account (id INTEGER PRIMARY KEY, name TEXT, balance INTEGER DEFAULT 0, starting_balance INTEGER);
CREATE TABLE bucket_group (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE bucket (id TEXT PRIMARY KEY, name TEXT, group_id INTEGER);
CREATE TABLE account_transaction (id INTEGER PRIMARY KEY, account_id INTEGER, amount INTEGER, memo TEXT, posted TEXT, general_cat TEXT);
CREATE TABLE bucket_transaction (id INTEGER PRIMARY KEY, bucket_id TEXT, amount INTEGER, memo TEXT, account_trans_id INTEGER);
INSERT INTO account (id, name, starting_balance) VALUES (1, 'Checking', 10000), (2, 'Savings', 0);
INSERT INTO bucket_group (id, name) VALUES (1, 'Misc');
INSERT INTO bucket (id, name, group_id) VALUES ('a', 'Food', 1);
INSERT INTO account_transaction (id, account_id, amount, memo, posted, general_cat) VALUES
	(1, 1, 1000, 'to savings', '2024-01-01 10:00:00', 'transfer'),
	(2, 2, -1000, NULL, '2024-01-01 10:00:00', 'transfer'),
	(3, 2, -50, 'snack', '2024-01-02 12:00:00', '');
INSERT INTO bucket_transaction (id, bucket_id, amount, memo, account_trans_id) VALUES (1, 'a', -50, NULL, 3);
`

func createBudgetFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backup.buckets")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(budgetSchema)
	require.NoError(t, err)
	return path
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	config.SetDefaults(viper.GetViper())
	t.Cleanup(viper.Reset)
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func TestValidateSourceFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "backup.buckets")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{"existing file", file, false},
		{"missing file", filepath.Join(dir, "missing.buckets"), true},
		{"directory", dir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSourceFile(tt.path)
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			migrationErr, ok := errors.AsMigrationError(err)
			require.True(t, ok, "expected MigrationError, got %v", err)
			assert.Equal(t, errors.CodeStoreUnavailable, migrationErr.Code)
		})
	}
}

func TestValidateImportFlags(t *testing.T) {
	source := createBudgetFile(t)

	tests := []struct {
		name     string
		setup    func()
		wantCode errors.ErrorCode
	}{
		{"dry run without server", func() {
			viper.Set(config.KeySource, source)
			viper.Set(config.KeyDryRun, true)
		}, ""},
		{"full run with server", func() {
			viper.Set(config.KeySource, source)
			viper.Set(config.KeyServerURL, "http://localhost:5007")
			viper.Set(config.KeyBudgetID, "budget")
		}, ""},
		{"full run without server", func() {
			viper.Set(config.KeySource, source)
		}, errors.CodeMissingConfig},
		{"missing source file", func() {
			viper.Set(config.KeySource, filepath.Join(t.TempDir(), "none.buckets"))
			viper.Set(config.KeyDryRun, true)
		}, errors.CodeStoreUnavailable},
		{"invalid format", func() {
			viper.Set(config.KeySource, source)
			viper.Set(config.KeyDryRun, true)
			viper.Set(config.KeyOutputFormat, "xml")
		}, errors.CodeInvalidConfig},
		{"inverted dates", func() {
			viper.Set(config.KeySource, source)
			viper.Set(config.KeyDryRun, true)
			viper.Set(config.KeySince, "2024-02-01")
			viper.Set(config.KeyUntil, "2024-01-01")
		}, errors.CodeInvalidConfig},
		{"missing output directory", func() {
			viper.Set(config.KeySource, source)
			viper.Set(config.KeyDryRun, true)
			viper.Set(config.KeyOutputFile, filepath.Join(t.TempDir(), "no", "such", "report.json"))
		}, errors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			tt.setup()

			err := validateImportFlags(nil, nil)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			migrationErr, ok := errors.AsMigrationError(err)
			require.True(t, ok, "expected MigrationError, got %v", err)
			assert.Equal(t, tt.wantCode, migrationErr.Code)
		})
	}
}

func TestRunImportDryRunWritesReport(t *testing.T) {
	resetViper(t)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	viper.Set(config.KeySource, createBudgetFile(t))
	viper.Set(config.KeyDryRun, true)
	viper.Set(config.KeyOutputFormat, "json")
	viper.Set(config.KeyOutputFile, reportPath)
	viper.Set(config.KeyIncludeMatches, true)

	require.NoError(t, validateImportFlags(nil, nil))
	require.NoError(t, runImport(testCommand(), nil))

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var report struct {
		DryRun  bool `json:"dry_run"`
		Summary struct {
			Accounts           int `json:"accounts"`
			Categories         int `json:"categories"`
			SourceTransactions int `json:"source_transactions"`
			TransfersMatched   int `json:"transfers_matched"`
			Submitted          int `json:"submitted"`
		} `json:"summary"`
		Matches []json.RawMessage `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(data, &report))

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Summary.Accounts)
	assert.Equal(t, 1, report.Summary.Categories)
	assert.Equal(t, 3, report.Summary.SourceTransactions)
	assert.Equal(t, 1, report.Summary.TransfersMatched)
	assert.Equal(t, 0, report.Summary.Submitted)
	assert.Len(t, report.Matches, 1)
}

func TestRunImportMissingStore(t *testing.T) {
	resetViper(t)
	viper.Set(config.KeySource, filepath.Join(t.TempDir(), "gone.buckets"))
	viper.Set(config.KeyDryRun, true)
	viper.Set(config.KeyOutputFile, filepath.Join(t.TempDir(), "report.txt"))

	err := runImport(testCommand(), nil)
	migrationErr, ok := errors.AsMigrationError(err)
	require.True(t, ok, "expected MigrationError, got %v", err)
	assert.Equal(t, 2, migrationErr.GetExitCode())
}

func TestValidatePurgeFlags(t *testing.T) {
	resetViper(t)
	viper.Set(config.KeyServerURL, "http://localhost:5007")
	viper.Set(config.KeyBudgetID, "budget")

	purgeConfirmed = false
	t.Cleanup(func() { purgeConfirmed = false })

	err := validatePurgeFlags(nil, nil)
	migrationErr, ok := errors.AsMigrationError(err)
	require.True(t, ok, "expected MigrationError, got %v", err)
	assert.Equal(t, "yes", migrationErr.Context["setting"])

	purgeConfirmed = true
	assert.NoError(t, validatePurgeFlags(nil, nil))

	viper.Set(config.KeyBudgetID, "")
	assert.Error(t, validatePurgeFlags(nil, nil))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"import", "purge", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}
