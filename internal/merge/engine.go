// Package merge partitions parsed transactions against the ledger and
// writes the new ones exactly once.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/ledger"
	"github.com/cleared-dev/stmtledger/internal/model"
	"github.com/cleared-dev/stmtledger/internal/statement"
)

// MergeConflictError means a row planned as new was already stored when the
// batch was written: another run merged it since the plan was made. The
// whole batch has been rolled back.
type MergeConflictError struct {
	Hash      string
	AccountID string
	Err       error
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %s (account %s): row already stored; batch rolled back", e.Hash, e.AccountID)
}

func (e *MergeConflictError) Unwrap() error {
	return e.Err
}

// Plan is the partition of one batch against the ledger.
type Plan struct {
	AccountID string
	DateFrom  time.Time
	DateTo    time.Time

	New            []model.Transaction
	AlreadyPresent []model.Transaction
	// InBatch holds later copies of a hash already seen in this batch.
	InBatch  []model.Transaction
	Warnings []statement.ParseWarning
}

// Duplicates counts rows that will not be written.
func (p *Plan) Duplicates() int {
	return len(p.AlreadyPresent) + len(p.InBatch)
}

// ApplyResult describes a committed apply.
type ApplyResult struct {
	BackupID   string
	BackupPath string
	Backup     int // rows in the snapshot
	Merged     int
	Touched    int
}

// Engine plans and applies merges. Applies for one account are serialized.
type Engine struct {
	store     *ledger.Store
	backupDir string
	log       zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an Engine. store may be nil for a dry run against a
// ledger that does not exist yet.
func NewEngine(store *ledger.Store, backupDir string, log zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		backupDir: backupDir,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lock(accountID string) func() {
	e.mu.Lock()
	l, ok := e.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[accountID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Plan partitions batch into new, already present and in-batch duplicate
// rows. It reads the ledger only.
func (e *Engine) Plan(ctx context.Context, batch []model.Transaction) (*Plan, error) {
	p := &Plan{}
	if len(batch) == 0 {
		return p, nil
	}

	p.AccountID = batch[0].AccountID
	p.DateFrom, p.DateTo = batch[0].Date, batch[0].Date
	for _, t := range batch {
		if t.AccountID != p.AccountID {
			return nil, fmt.Errorf("batch mixes accounts %q and %q", p.AccountID, t.AccountID)
		}
		if t.Date.Before(p.DateFrom) {
			p.DateFrom = t.Date
		}
		if t.Date.After(p.DateTo) {
			p.DateTo = t.Date
		}
	}

	existing := map[string]bool{}
	if e.store != nil {
		var err error
		existing, err = e.store.ExistingHashes(ctx, p.AccountID, p.DateFrom, p.DateTo)
		if err != nil {
			return nil, fmt.Errorf("reading existing hashes: %w", err)
		}
	}

	seen := make(map[string]model.SourceRef, len(batch))
	for _, t := range batch {
		if first, dup := seen[t.ContentHash]; dup {
			p.InBatch = append(p.InBatch, t)
			p.Warnings = append(p.Warnings, statement.ParseWarning{
				Document: t.Source.Document,
				Line:     t.Source.LineStart,
				Text:     t.Description,
				Reason:   fmt.Sprintf("duplicate of %s in the same batch", first),
			})
			continue
		}
		seen[t.ContentHash] = t.Source

		if existing[t.ContentHash] {
			p.AlreadyPresent = append(p.AlreadyPresent, t)
		} else {
			p.New = append(p.New, t)
		}
	}
	return p, nil
}

// Apply writes the plan's new rows in one SQL transaction, after taking a
// snapshot of the account's rows in the plan's date range. run is closed
// and recorded in the same transaction. Any failure leaves the ledger as
// it was.
func (e *Engine) Apply(ctx context.Context, p *Plan, run *model.ImportRun) (*ApplyResult, error) {
	if e.store == nil || e.store.Connection().ReadOnly() {
		return nil, errors.New("apply needs a writable ledger")
	}
	if err := e.store.Connection().CheckContract(ctx); err != nil {
		return nil, err
	}

	accountID := p.AccountID
	if accountID == "" {
		accountID = run.AccountID
	}
	unlock := e.lock(accountID)
	defer unlock()

	log := e.log.With().Str("run_id", run.RunID).Str("account", accountID).Logger()
	now := e.now()

	backupID, backupPath, err := e.reserveBackup(accountID, now)
	if err != nil {
		return nil, err
	}

	res := &ApplyResult{BackupID: backupID, BackupPath: backupPath}
	err = e.store.Update(ctx, func(tx *ledger.Tx) error {
		rows, err := tx.Transactions(ctx, accountID, p.DateFrom, p.DateTo)
		if err != nil {
			return err
		}
		if err := writeSnapshot(backupPath, rows); err != nil {
			return err
		}
		res.Backup = len(rows)
		if err := tx.InsertBackup(ctx, ledger.Backup{
			BackupID:  backupID,
			AccountID: accountID,
			CreatedAt: now,
			Path:      backupPath,
			Rows:      len(rows),
			DateFrom:  p.DateFrom,
			DateTo:    p.DateTo,
		}); err != nil {
			return err
		}

		fresh := make([]model.Transaction, len(p.New))
		for i, t := range p.New {
			t.FirstSeenAt = now
			t.FirstImportRunID = run.RunID
			t.LastSeenImportRunID = run.RunID
			fresh[i] = t
		}
		if verrs := ledger.ValidateTransactions(fresh); len(verrs) > 0 {
			msgs := make([]string, len(verrs))
			for i, ve := range verrs {
				msgs[i] = ve.Error()
			}
			return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
		}

		if err := tx.Insert(ctx, fresh); err != nil {
			var rowErr *ledger.RowError
			if errors.As(err, &rowErr) && ledger.IsUniqueViolation(err) {
				return &MergeConflictError{Hash: rowErr.Hash, AccountID: accountID, Err: err}
			}
			return err
		}

		hashes := make([]string, len(p.AlreadyPresent))
		for i, t := range p.AlreadyPresent {
			hashes[i] = t.ContentHash
		}
		if err := tx.Touch(ctx, hashes, run.RunID); err != nil {
			return err
		}

		run.Merged = len(fresh)
		run.Duplicate = p.Duplicates()
		run.BackupID = backupID
		run.Close(model.RunCompleted, e.now())
		return tx.InsertRun(ctx, *run)
	})
	if err != nil {
		if rmErr := removeSnapshot(backupPath); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
		run.BackupID = ""
		run.Merged = 0
		run.Status = model.RunOpen
		run.Close(model.RunRolledBack, e.now())
		log.Error().Err(err).Msg("apply rolled back")
		return nil, err
	}

	res.Merged = run.Merged
	res.Touched = len(p.AlreadyPresent)
	log.Info().
		Int("merged", res.Merged).
		Int("duplicate", run.Duplicate).
		Str("backup", backupID).
		Msg("apply committed")
	return res, nil
}

// removeSnapshot deletes the snapshot of a rolled-back apply. A snapshot
// that was never written is not an error.
func removeSnapshot(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing snapshot %s: %w", path, err)
	}
	return nil
}

// reserveBackup picks a snapshot id whose file does not exist yet.
func (e *Engine) reserveBackup(accountID string, at time.Time) (string, string, error) {
	if err := id.ValidateAccountID(accountID); err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(e.backupDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating backup dir: %w", err)
	}
	for {
		backupID := id.FormatBackupID(accountID, at)
		path := filepath.Join(e.backupDir, backupID+".csv")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return backupID, path, nil
		}
		at = at.Add(time.Second)
	}
}
