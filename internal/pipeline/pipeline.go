// Package pipeline runs one reconstruction pass: parse, classify and audit
// every input sequence in parallel, then merge them one at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/stmtledger/internal/audit"
	"github.com/cleared-dev/stmtledger/internal/classify"
	"github.com/cleared-dev/stmtledger/internal/gitops"
	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/importer"
	"github.com/cleared-dev/stmtledger/internal/merge"
	"github.com/cleared-dev/stmtledger/internal/model"
	"github.com/cleared-dev/stmtledger/internal/runlog"
	"github.com/cleared-dev/stmtledger/internal/statement"
)

// Input is one ordered line sequence, usually one document.
type Input struct {
	Document string
	Lines    []model.RawLine
	// Dir is set when the document was picked up from an import directory;
	// the file is moved to Dir/processed after a successful apply.
	Dir string
}

// Options configures one pass.
type Options struct {
	AccountID   string
	FiscalYear  int
	Mode        model.RunMode
	Checkpoints []model.CheckpointBalance
	Statement   statement.Options // AccountID and FiscalYear are filled in
	Workers     int
}

// Pipeline wires the reconstruction stages to a merge engine.
type Pipeline struct {
	classifier *classify.Classifier
	auditor    *audit.Auditor
	engine     *merge.Engine
	log        zerolog.Logger

	// Workspace, when set, receives the run log.
	Workspace string
	// Committer, when set, commits the workspace after an apply that merged rows.
	Committer *gitops.Committer

	now   func() time.Time
	runID func() string
}

// New creates a Pipeline.
func New(classifier *classify.Classifier, auditor *audit.Auditor, engine *merge.Engine, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		auditor:    auditor,
		engine:     engine,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		runID:      id.NewRunID,
	}
}

// SequenceResult is the outcome for one input. Err is set on a structural
// failure of this sequence only.
type SequenceResult struct {
	Document string
	Run      model.ImportRun
	Parse    *statement.Result
	Audit    *audit.Result
	Plan     *merge.Plan
	Apply    *merge.ApplyResult
	Err      error
	// MoveErr is set when an applied document could not be moved to the
	// processed directory. The merge itself stands.
	MoveErr error

	dir string
}

// Warnings returns parse warnings followed by merge warnings.
func (s *SequenceResult) Warnings() []statement.ParseWarning {
	var out []statement.ParseWarning
	if s.Parse != nil {
		out = append(out, s.Parse.Warnings...)
	}
	if s.Plan != nil {
		out = append(out, s.Plan.Warnings...)
	}
	if s.MoveErr != nil {
		out = append(out, statement.ParseWarning{
			Document: s.Document,
			Reason:   fmt.Sprintf("not moved to %s: %v", importer.ProcessedDir, s.MoveErr),
		})
	}
	return out
}

// Result collects every sequence of a pass, in input order.
type Result struct {
	Mode       model.RunMode
	Sequences  []*SequenceResult
	CommitHash string
}

// Err joins the structural failures of all sequences.
func (r *Result) Err() error {
	var errs []error
	for _, s := range r.Sequences {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Totals sums the run counters across sequences.
func (r *Result) Totals() (parsed, merged, duplicate, flagged int) {
	for _, s := range r.Sequences {
		parsed += s.Run.Parsed
		merged += s.Run.Merged
		duplicate += s.Run.Duplicate
		flagged += s.Run.Flagged
	}
	return parsed, merged, duplicate, flagged
}

// Run executes one pass over inputs. The returned error covers context
// cancellation and bookkeeping failures; per-sequence failures are on the
// SequenceResults.
func (p *Pipeline) Run(ctx context.Context, opts Options, inputs []Input) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = model.ModeDryRun
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	res := &Result{Mode: opts.Mode, Sequences: make([]*SequenceResult, len(inputs))}
	for i, in := range inputs {
		res.Sequences[i] = &SequenceResult{
			Document: in.Document,
			dir:      in.Dir,
			Run: model.ImportRun{
				RunID:            p.runID(),
				StartedAt:        p.now(),
				Mode:             opts.Mode,
				SourceDocumentID: in.Document,
				AccountID:        opts.AccountID,
				Status:           model.RunOpen,
			},
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		seq := res.Sequences[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.reconstruct(opts, in, seq)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, seq := range res.Sequences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seq.Err == nil {
			p.merge(ctx, opts.Mode, seq)
		}
		if seq.Err != nil && !seq.Run.Closed() {
			seq.Run.Close(model.RunFailed, p.now())
		}
	}

	if err := p.finish(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// reconstruct parses, classifies and audits one sequence. It touches only seq.
func (p *Pipeline) reconstruct(opts Options, in Input, seq *SequenceResult) {
	log := p.log.With().Str("run_id", seq.Run.RunID).Str("account", opts.AccountID).Str("document", in.Document).Logger()

	so := opts.Statement
	so.AccountID = opts.AccountID
	so.FiscalYear = opts.FiscalYear
	parsed, err := statement.NewParser(so).Parse(in.Lines)
	if err != nil {
		seq.Err = fmt.Errorf("%s: %w", in.Document, err)
		log.Error().Err(err).Msg("parse failed")
		return
	}
	seq.Parse = parsed
	for _, w := range parsed.Warnings {
		log.Debug().Int("line", w.Line).Str("reason", w.Reason).Msg(w.Text)
	}
	rules := zerolog.Dict()
	for r, n := range parsed.Rules {
		rules.Int(r.String(), n)
	}
	log.Debug().Dict("rules", rules).Msg("columns disambiguated")

	p.classifier.Apply(parsed.Transactions)

	checkpoints := append(append([]model.CheckpointBalance(nil), opts.Checkpoints...), parsed.Checkpoints...)
	seq.Audit = p.auditor.Audit(parsed.Transactions, parsed.Opening, checkpoints)
	for _, m := range seq.Audit.Flagged {
		log.Warn().Str("hash", seq.Audit.Transactions[m.Index].ContentHash).Msg(m.Error())
	}
	for _, m := range seq.Audit.CheckpointMismatches {
		log.Warn().Msg(m.Error())
	}

	seq.Run.Parsed = len(seq.Audit.Transactions)
	seq.Run.Flagged = len(seq.Audit.Flagged)
	log.Info().
		Int("parsed", seq.Run.Parsed).
		Int("flagged", seq.Run.Flagged).
		Int("checkpoint_mismatches", len(seq.Audit.CheckpointMismatches)).
		Int("warnings", len(parsed.Warnings)).
		Msg("sequence reconstructed")
}

// merge plans and, in apply mode, writes one sequence.
func (p *Pipeline) merge(ctx context.Context, mode model.RunMode, seq *SequenceResult) {
	plan, err := p.engine.Plan(ctx, seq.Audit.Transactions)
	if err != nil {
		seq.Err = fmt.Errorf("%s: planning merge: %w", seq.Document, err)
		return
	}
	seq.Plan = plan
	seq.Run.Duplicate = plan.Duplicates()

	if mode != model.ModeApply {
		seq.Run.Close(model.RunCompleted, p.now())
		return
	}

	applied, err := p.engine.Apply(ctx, plan, &seq.Run)
	if err != nil {
		seq.Err = fmt.Errorf("%s: %w", seq.Document, err)
		return
	}
	seq.Apply = applied

	if seq.dir != "" {
		if err := importer.MarkProcessed(seq.dir, seq.Document); err != nil {
			seq.MoveErr = err
			p.log.Warn().Err(err).Str("document", seq.Document).Msg("could not move processed file")
		}
	}
}

// finish appends the run log and commits the workspace.
func (p *Pipeline) finish(ctx context.Context, res *Result) error {
	if p.Workspace == "" {
		return nil
	}

	entries := make([]runlog.Entry, len(res.Sequences))
	var docs []string
	merged := 0
	for i, seq := range res.Sequences {
		entries[i] = runlog.Entry{ImportRun: seq.Run}
		if seq.Err != nil {
			entries[i].Error = seq.Err.Error()
		}
		if seq.Apply != nil {
			docs = append(docs, seq.Document)
			merged += seq.Apply.Merged
		}
	}
	if err := runlog.Append(p.Workspace, entries); err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}

	if p.Committer == nil || merged == 0 || !gitops.IsRepo(p.Committer.Dir) {
		return nil
	}
	hash, err := p.Committer.CommitAll(ctx, gitops.ImportMessage(docs, merged))
	if err != nil {
		return fmt.Errorf("committing workspace: %w", err)
	}
	res.CommitHash = hash
	p.log.Info().Str("commit", hash).Msg("workspace committed")
	return nil
}
