package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/stmtledger/internal/statement"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Accounts = []Account{
		{ID: "biz_chk", Name: "Business Checking", Currency: "CAD", FiscalYear: 2025},
	}
	cfg.Audit.Tolerance = "0.05"

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "ledger/ledger.db", cfg.Ledger.DBPath)
	assert.Equal(t, "backups", cfg.Ledger.BackupDir)
	assert.Equal(t, "0.01", cfg.Audit.Tolerance)
	assert.Contains(t, cfg.Parsing.DepositKeywords, "MCARD DEP CR")
	assert.Equal(t, statement.DefaultSeparators, cfg.Parsing.Separators)
	assert.Equal(t, statement.DefaultDepositKeywords, cfg.Parsing.DepositKeywords)

	// The defaults are copies; editing the config leaves the parser's lists alone.
	cfg.Parsing.Separators[0] = "|"
	assert.Equal(t, "~", statement.DefaultSeparators[0])
	assert.Equal(t, "rules/classification.yaml", cfg.Classifier.RulesFile)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.Git.AutoCommit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Accounts)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "ledger/ledger.db", cfg.Ledger.DBPath)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestYAMLFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, Default()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "db_path: ledger/ledger.db")
	assert.Contains(t, contents, "tolerance: \"0.01\"")
	assert.Contains(t, contents, "rules_file: rules/classification.yaml")
	assert.Contains(t, contents, "auto_commit: false")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"negative tolerance", func(c *Config) { c.Audit.Tolerance = "-0.01" }, "must not be negative"},
		{"bad tolerance", func(c *Config) { c.Audit.Tolerance = "a cent" }, "parsing audit.tolerance"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers must be positive"},
		{"duplicate account", func(c *Config) {
			c.Accounts = []Account{{ID: "chk"}, {ID: "chk"}}
		}, "duplicate account id"},
		{"empty account id", func(c *Config) { c.Accounts = []Account{{Name: "x"}} }, "id is required"},
		{"path in account id", func(c *Config) { c.Accounts = []Account{{ID: "biz/chk"}} }, "invalid account id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadWorkspace_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWorkspace(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Ledger, cfg.Ledger)
}

func TestLoadWorkspace_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, FileName), Default()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("STMTLEDGER_DB_PATH=from-dotenv.db\nSTMTLEDGER_WORKERS=8\n"), 0o644))

	t.Setenv(EnvWorkers, "2")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := LoadWorkspace(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.Ledger.DBPath)
	assert.Equal(t, 2, cfg.Workers, "process env wins over .env")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "backups", cfg.Ledger.BackupDir)
}

func TestLoadWorkspace_InvalidOverride(t *testing.T) {
	t.Setenv(EnvWorkers, "many")
	_, err := LoadWorkspace(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvWorkers)
}

func TestAccount(t *testing.T) {
	cfg := Default()
	cfg.Accounts = []Account{{ID: "sav", FiscalYear: 2024}, {ID: "cad", Currency: "CAD"}}

	assert.Equal(t, Account{ID: "sav", Currency: "USD", FiscalYear: 2024}, cfg.Account("sav"))
	assert.Equal(t, "CAD", cfg.Account("cad").Currency)
	assert.Equal(t, Account{ID: "new", Currency: "USD"}, cfg.Account("new"))

	cfg.Currency = "EUR"
	assert.Equal(t, "EUR", cfg.Account("sav").Currency)
	assert.Equal(t, "CAD", cfg.Account("cad").Currency)
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("ws", "ledger", "ledger.db"), Path("ws", "ledger/ledger.db"))
	assert.Equal(t, "/abs/ledger.db", Path("ws", "/abs/ledger.db"))
}
