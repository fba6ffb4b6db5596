package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/statement"
)

// FileName is the workspace configuration file.
const FileName = "stmtledger.yaml"

// Config represents the top-level stmtledger.yaml configuration.
type Config struct {
	Currency   string           `yaml:"currency"` // default for accounts without one
	Ledger     LedgerConfig     `yaml:"ledger"`
	Audit      AuditConfig      `yaml:"audit"`
	Parsing    ParsingConfig    `yaml:"parsing"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Accounts   []Account        `yaml:"accounts,omitempty"`
	Workers    int              `yaml:"workers"`
	Git        GitConfig        `yaml:"git"`
	Log        LogConfig        `yaml:"log"`
}

// LedgerConfig locates the ledger store and its snapshots, relative to the workspace.
type LedgerConfig struct {
	DBPath    string `yaml:"db_path"`
	BackupDir string `yaml:"backup_dir"`
}

// AuditConfig controls balance comparison.
type AuditConfig struct {
	Tolerance string `yaml:"tolerance"` // decimal, e.g. "0.01"
}

// ParsingConfig tunes statement reconstruction.
type ParsingConfig struct {
	DepositKeywords []string `yaml:"deposit_keywords"`
	Separators      []string `yaml:"separators"`
}

// ClassifierConfig points at the rule table.
type ClassifierConfig struct {
	RulesFile string `yaml:"rules_file"`
}

// Account describes one reconstructed account.
type Account struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Currency   string `yaml:"currency"`
	FiscalYear int    `yaml:"fiscal_year,omitempty"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Environment overrides.
const (
	EnvDBPath    = "STMTLEDGER_DB_PATH"
	EnvBackupDir = "STMTLEDGER_BACKUP_DIR"
	EnvLogLevel  = "STMTLEDGER_LOG_LEVEL"
	EnvWorkers   = "STMTLEDGER_WORKERS"
)

// Load reads a stmtledger.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new workspace.
func Default() *Config {
	return &Config{
		Currency: "USD",
		Ledger: LedgerConfig{
			DBPath:    "ledger/ledger.db",
			BackupDir: "backups",
		},
		Audit: AuditConfig{
			Tolerance: "0.01",
		},
		Parsing: ParsingConfig{
			DepositKeywords: append([]string(nil), statement.DefaultDepositKeywords...),
			Separators:      append([]string(nil), statement.DefaultSeparators...),
		},
		Classifier: ClassifierConfig{
			RulesFile: "rules/classification.yaml",
		},
		Workers: 4,
		Git: GitConfig{
			AutoCommit:  false,
			AuthorName:  "stmtledger",
			AuthorEmail: "stmtledger@localhost",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadWorkspace reads <dir>/stmtledger.yaml, falling back to defaults when the
// file is absent, then applies .env and process environment overrides. The
// process environment wins over .env.
func LoadWorkspace(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	dotenv, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.Ledger.DBPath = v
	}
	if v, ok := lookup(EnvBackupDir); ok && v != "" {
		c.Ledger.BackupDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWorkers, v, err)
		}
		c.Workers = n
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	tol, err := c.ToleranceDecimal()
	if err != nil {
		return err
	}
	if tol.IsNegative() {
		return fmt.Errorf("audit.tolerance must not be negative, got %s", tol)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[%d]: id is required", i)
		}
		if err := id.ValidateAccountID(a.ID); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// ToleranceDecimal parses audit.tolerance.
func (c *Config) ToleranceDecimal() (decimal.Decimal, error) {
	if c.Audit.Tolerance == "" {
		return decimal.Zero, nil
	}
	tol, err := decimal.NewFromString(c.Audit.Tolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing audit.tolerance %q: %w", c.Audit.Tolerance, err)
	}
	return tol, nil
}

// Account returns the configured account with id. Unknown ids get the
// workspace currency and no fiscal-year hint.
func (c *Config) Account(accountID string) Account {
	cur := c.Currency
	if cur == "" {
		cur = "USD"
	}
	for _, a := range c.Accounts {
		if a.ID == accountID {
			if a.Currency == "" {
				a.Currency = cur
			}
			return a
		}
	}
	return Account{ID: accountID, Currency: cur}
}

// Path resolves a configured path against the workspace root.
func Path(workspace, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}
