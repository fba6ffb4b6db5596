package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtledger/internal/checkpoint"
	"github.com/cleared-dev/stmtledger/internal/classify"
	"github.com/cleared-dev/stmtledger/internal/config"
	"github.com/cleared-dev/stmtledger/internal/gitops"
	"github.com/cleared-dev/stmtledger/internal/importer"
	"github.com/cleared-dev/stmtledger/internal/ledger"
)

type initOptions struct {
	currency  string
	accountID string
	name      string
	year      int
	git       bool
}

func newInitCommand() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new stmtledger workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd, absDir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.currency, "currency", "USD", "default account currency (ISO 4217)")
	cmd.Flags().StringVar(&opts.accountID, "account", "", "register an account id")
	cmd.Flags().StringVar(&opts.name, "name", "", "account display name")
	cmd.Flags().IntVar(&opts.year, "year", 0, "fiscal-year hint for the account")
	cmd.Flags().BoolVar(&opts.git, "git", false, "initialize a git repository and commit after each apply")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts initOptions) error {
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
		return fmt.Errorf("%s already exists in %s", config.FileName, dir)
	}

	cfg := config.Default()
	cfg.Currency = opts.currency
	if opts.accountID != "" {
		cfg.Accounts = append(cfg.Accounts, config.Account{
			ID:         opts.accountID,
			Name:       opts.name,
			Currency:   opts.currency,
			FiscalYear: opts.year,
		})
	}
	cfg.Git.AutoCommit = opts.git
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create directory structure.
	dirs := []string{
		filepath.Dir(cfg.Ledger.DBPath),
		cfg.Ledger.BackupDir,
		filepath.Dir(cfg.Classifier.RulesFile),
		"logs",
		importer.Dir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(filepath.Join(dir, config.FileName), cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if err := classify.Save(filepath.Join(dir, cfg.Classifier.RulesFile), classify.DefaultRules()); err != nil {
		return fmt.Errorf("writing rules: %w", err)
	}

	if err := writeCheckpointTemplate(filepath.Join(dir, checkpoint.FileName)); err != nil {
		return fmt.Errorf("writing checkpoints: %w", err)
	}

	conn, err := ledger.Open(config.Path(dir, cfg.Ledger.DBPath))
	if err != nil {
		return fmt.Errorf("creating ledger: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("closing ledger: %w", err)
	}

	gitignore := ".env\n*.db-journal\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, importer.Dir, ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	out := cmd.OutOrStdout()
	if !opts.git {
		fmt.Fprintf(out, "Initialized stmtledger workspace at %s\n", dir)
		return nil
	}

	ctx := cmd.Context()
	if err := gitops.Init(ctx, dir); err != nil {
		return err
	}
	c := &gitops.Committer{Dir: dir, AuthorName: cfg.Git.AuthorName, AuthorEmail: cfg.Git.AuthorEmail}
	hash, err := c.CommitAll(ctx, "init: stmtledger workspace")
	if err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	fmt.Fprintf(out, "Initialized stmtledger workspace at %s (%s)\n", dir, hash)
	return nil
}

// writeCheckpointTemplate writes a checkpoint file holding only the header.
func writeCheckpointTemplate(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := checkpoint.WriteCheckpoints(f, nil); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
