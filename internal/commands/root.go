package commands

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtledger/internal/buildinfo"
	"github.com/cleared-dev/stmtledger/internal/config"
	"github.com/cleared-dev/stmtledger/internal/logger"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	workspace string
	logLevel  string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     "stmtledger",
		Short:   "Reconstruct bank statements into a balance-audited ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.workspace, "workspace", ".", "workspace directory")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (overrides log.level)")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newReconstructCommand(g))
	rootCmd.AddCommand(newRunsCommand(g))
	rootCmd.AddCommand(newBackupsCommand(g))

	return rootCmd
}

// workspace is a loaded workspace: its root, configuration and logger.
type workspace struct {
	dir string
	cfg *config.Config
	log zerolog.Logger
}

func openWorkspace(cmd *cobra.Command, g *globalFlags) (*workspace, error) {
	dir, err := filepath.Abs(g.workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	cfg, err := config.LoadWorkspace(dir)
	if err != nil {
		return nil, err
	}

	levelName := cfg.Log.Level
	if g.logLevel != "" {
		levelName = g.logLevel
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	return &workspace{
		dir: dir,
		cfg: cfg,
		log: logger.NewConsole(cmd.ErrOrStderr(), level),
	}, nil
}

func (w *workspace) dbPath() string {
	return config.Path(w.dir, w.cfg.Ledger.DBPath)
}

func (w *workspace) backupDir() string {
	return config.Path(w.dir, w.cfg.Ledger.BackupDir)
}
