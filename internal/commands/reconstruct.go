package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtledger/internal/audit"
	"github.com/cleared-dev/stmtledger/internal/checkpoint"
	"github.com/cleared-dev/stmtledger/internal/classify"
	"github.com/cleared-dev/stmtledger/internal/config"
	"github.com/cleared-dev/stmtledger/internal/gitops"
	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/importer"
	"github.com/cleared-dev/stmtledger/internal/ledger"
	"github.com/cleared-dev/stmtledger/internal/merge"
	"github.com/cleared-dev/stmtledger/internal/model"
	"github.com/cleared-dev/stmtledger/internal/pipeline"
	"github.com/cleared-dev/stmtledger/internal/report"
	"github.com/cleared-dev/stmtledger/internal/statement"
)

type reconstructOptions struct {
	accountID   string
	year        int
	checkpoints string
	apply       bool
	samples     int
}

func newReconstructCommand(g *globalFlags) *cobra.Command {
	var opts reconstructOptions

	cmd := &cobra.Command{
		Use:   "reconstruct [input...]",
		Short: "Parse statements, audit balances and merge into the ledger",
		Long: `Reconstruct transactions from statement text or PDF files and audit the
running balance against checkpoints. Inputs may be files or directories;
with no input the workspace import/ directory is scanned. Without --apply
nothing is written to the ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}
			return runReconstruct(cmd, ws, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.accountID, "account", "", "account id (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().IntVar(&opts.year, "year", 0, "fiscal-year hint for the first dated line")
	cmd.Flags().StringVar(&opts.checkpoints, "checkpoints", "", "CSV file of checkpoint balances (default: workspace "+checkpoint.FileName+")")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "merge new transactions into the ledger")
	cmd.Flags().IntVar(&opts.samples, "samples", 20, "preview rows per document (0 for all)")

	return cmd
}

func runReconstruct(cmd *cobra.Command, ws *workspace, args []string, opts reconstructOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := id.ValidateAccountID(opts.accountID); err != nil {
		return err
	}
	acct := ws.cfg.Account(opts.accountID)
	year := opts.year
	if year == 0 {
		year = acct.FiscalYear
	}
	if year == 0 {
		return errors.New("--year is required when the account has no fiscal_year")
	}

	inputs, err := loadInputs(ws.dir, args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no statement files found in %s", filepath.Join(ws.dir, importer.Dir))
	}

	cps, err := loadCheckpoints(ws.dir, opts)
	if err != nil {
		return err
	}

	rulesFile := config.Path(ws.dir, ws.cfg.Classifier.RulesFile)
	classifier, err := classify.Load(rulesFile)
	if err != nil {
		return err
	}
	ws.log.Debug().Str("file", rulesFile).Int("rules", len(classifier.Rules())).Msg("classification rules loaded")
	tol, err := ws.cfg.ToleranceDecimal()
	if err != nil {
		return err
	}

	mode := model.ModeDryRun
	if opts.apply {
		mode = model.ModeApply
	}
	store, closeStore, err := openStore(ws.dbPath(), opts.apply)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := merge.NewEngine(store, ws.backupDir(), ws.log)
	p := pipeline.New(classifier, audit.New(tol), engine, ws.log)
	p.Workspace = ws.dir
	if ws.cfg.Git.AutoCommit {
		p.Committer = &gitops.Committer{Dir: ws.dir, AuthorName: ws.cfg.Git.AuthorName, AuthorEmail: ws.cfg.Git.AuthorEmail}
	}

	res, err := p.Run(ctx, pipeline.Options{
		AccountID:   opts.accountID,
		FiscalYear:  year,
		Mode:        mode,
		Checkpoints: cps,
		Statement: statement.Options{
			DepositKeywords: ws.cfg.Parsing.DepositKeywords,
			Separators:      ws.cfg.Parsing.Separators,
		},
		Workers: ws.cfg.Workers,
	}, inputs)
	if res != nil {
		if perr := printResult(out, report.NewFormatter(acct.Currency), res, opts.samples); perr != nil {
			return fmt.Errorf("writing report: %w", perr)
		}
	}
	if err != nil {
		return err
	}
	return res.Err()
}

// loadInputs reads every file argument and every statement file inside
// directory arguments. Unreadable input fails the whole command.
func loadInputs(workspace string, args []string) ([]pipeline.Input, error) {
	reg := importer.DefaultRegistry()
	if len(args) == 0 {
		return loadDir(reg, filepath.Join(workspace, importer.Dir))
	}

	var inputs []pipeline.Input
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		if info.IsDir() {
			dirInputs, err := loadDir(reg, arg)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, dirInputs...)
			continue
		}

		doc, lines, err := reg.Load(arg)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, pipeline.Input{Document: doc, Lines: lines})
	}
	return inputs, nil
}

// loadCheckpoints reads --checkpoints, or the workspace checkpoint file when
// the flag is unset and the file exists.
func loadCheckpoints(dir string, opts reconstructOptions) ([]model.CheckpointBalance, error) {
	path := opts.checkpoints
	if path == "" {
		path = filepath.Join(dir, checkpoint.FileName)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
	}
	return checkpoint.Load(path, opts.accountID)
}

func loadDir(reg *importer.Registry, dir string) ([]pipeline.Input, error) {
	files, err := reg.Scan(dir)
	if err != nil {
		return nil, err
	}
	inputs := make([]pipeline.Input, 0, len(files))
	for _, f := range files {
		doc, lines, err := reg.Load(f.Path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, pipeline.Input{Document: doc, Lines: lines, Dir: dir})
	}
	return inputs, nil
}

// openStore opens the ledger for writing, or read-only for a dry run. A dry
// run against a ledger that does not exist yet gets a nil store.
func openStore(path string, writable bool) (*ledger.Store, func(), error) {
	var (
		conn *ledger.Connection
		err  error
	)
	if writable {
		conn, err = ledger.Open(path)
	} else {
		conn, err = ledger.OpenReadOnly(path)
		if ledger.IsNotExist(err) {
			return nil, func() {}, nil
		}
	}
	if err != nil {
		return nil, nil, err
	}
	return ledger.NewStore(conn), func() { conn.Close() }, nil
}

func printResult(w io.Writer, f report.Formatter, res *pipeline.Result, samples int) error {
	for _, seq := range res.Sequences {
		fmt.Fprintf(w, "== %s (%s, run %s) ==\n", seq.Document, seq.Run.Mode, seq.Run.RunID)
		if seq.Audit == nil {
			fmt.Fprintf(w, "FAILED %v\n\n", seq.Err)
			continue
		}

		if err := report.Preview(w, f, seq.Audit.Transactions, samples); err != nil {
			return err
		}
		fmt.Fprintln(w)
		if err := report.Verification(w, f, seq.Audit); err != nil {
			return err
		}
		fmt.Fprintln(w)
		report.Findings(w, seq.Audit, seq.Warnings())
		report.Counts(w, seq.Audit, seq.Plan, seq.Run.Mode)
		if seq.Apply != nil {
			fmt.Fprintf(w, "backup %s (%d rows)\n", seq.Apply.BackupID, seq.Apply.Backup)
		}
		if seq.Err != nil {
			fmt.Fprintf(w, "FAILED %v\n", seq.Err)
		}
		fmt.Fprintln(w)
	}

	parsed, merged, dup, flagged := res.Totals()
	fmt.Fprintf(w, "total: %d document(s), %d parsed, %d merged, %d duplicate, %d flagged\n",
		len(res.Sequences), parsed, merged, dup, flagged)
	if res.CommitHash != "" {
		fmt.Fprintf(w, "committed %s\n", res.CommitHash)
	}
	return nil
}
