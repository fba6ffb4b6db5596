package merge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/ledger"
	"github.com/cleared-dev/stmtledger/internal/model"
)

var fixedNow = time.Date(2025, 2, 1, 9, 30, 15, 0, time.UTC)

func txn(day int, desc, signed string) model.Transaction {
	date := time.Date(2025, time.January, day, 0, 0, 0, 0, time.UTC)
	amt := decimal.RequireFromString(signed)
	t := model.Transaction{
		AccountID:         "chk",
		Date:              date,
		Description:       desc,
		Classification:    model.ClassUncategorized,
		CalculatedBalance: decimal.RequireFromString("100.00"),
		Source:            model.SourceRef{Document: "jan.txt", Page: 1, LineStart: day, LineEnd: day},
		ContentHash:       id.ContentHash("chk", date, desc, amt),
	}
	if amt.IsNegative() {
		t.Withdrawal = decimal.NewNullDecimal(amt.Neg())
	} else {
		t.Deposit = decimal.NewNullDecimal(amt)
	}
	return t
}

func batch() []model.Transaction {
	return []model.Transaction{
		txn(3, "PURCHASE", "-63.50"),
		txn(9, "MCARD DEP CR CHASE", "756.14"),
		txn(12, "AUTO LEASE", "-2525.25"),
	}
}

type fixture struct {
	dir    string
	dbPath string
	store  *ledger.Store
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger", "ledger.db")
	conn, err := ledger.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := ledger.NewStore(conn)
	e := NewEngine(store, filepath.Join(dir, "backups"), zerolog.Nop())
	e.now = func() time.Time { return fixedNow }
	return &fixture{dir: dir, dbPath: dbPath, store: store, engine: e}
}

func newRun() *model.ImportRun {
	return &model.ImportRun{
		RunID:            id.NewRunID(),
		StartedAt:        fixedNow,
		Mode:             model.ModeApply,
		SourceDocumentID: "jan.txt",
		AccountID:        "chk",
		Status:           model.RunOpen,
	}
}

func (f *fixture) apply(t *testing.T, txns []model.Transaction) (*ApplyResult, *model.ImportRun) {
	t.Helper()
	ctx := context.Background()
	plan, err := f.engine.Plan(ctx, txns)
	require.NoError(t, err)
	run := newRun()
	res, err := f.engine.Apply(ctx, plan, run)
	require.NoError(t, err)
	return res, run
}

func (f *fixture) rows(t *testing.T) []model.Transaction {
	t.Helper()
	rows, err := f.store.Transactions(context.Background(), "chk", time.Time{}, time.Time{})
	require.NoError(t, err)
	return rows
}

// businessRows drops the audit-trail columns a re-import may touch.
func businessRows(rows []model.Transaction) []model.Transaction {
	out := make([]model.Transaction, len(rows))
	for i, r := range rows {
		r.LastSeenImportRunID = ""
		out[i] = r
	}
	return out
}

func TestPlan_Partition(t *testing.T) {
	f := newFixture(t)
	f.apply(t, batch()[:1])

	b := append(batch(), txn(9, "MCARD  DEP CR  CHASE", "756.14"))
	plan, err := f.engine.Plan(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, "chk", plan.AccountID)
	assert.Len(t, plan.AlreadyPresent, 1)
	assert.Len(t, plan.New, 2)
	assert.Len(t, plan.InBatch, 1)
	assert.Equal(t, 2, plan.Duplicates())
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0].Reason, "duplicate of jan.txt p1 L9")
	assert.Equal(t, 3, plan.DateFrom.Day())
	assert.Equal(t, 12, plan.DateTo.Day())
}

func TestPlan_MixedAccounts(t *testing.T) {
	f := newFixture(t)
	b := batch()
	b[1].AccountID = "sav"
	_, err := f.engine.Plan(context.Background(), b)
	assert.Error(t, err)
}

func TestPlan_NoStore(t *testing.T) {
	e := NewEngine(nil, t.TempDir(), zerolog.Nop())
	plan, err := e.Plan(context.Background(), batch())
	require.NoError(t, err)
	assert.Len(t, plan.New, 3)

	_, err = e.Apply(context.Background(), plan, newRun())
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	f := newFixture(t)
	f.apply(t, batch()[:1])

	res, run := f.apply(t, batch())
	assert.Equal(t, 2, res.Merged)
	assert.Equal(t, 1, res.Touched)
	assert.Equal(t, 1, res.Backup, "snapshot holds the rows present before apply")

	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Merged)
	assert.Equal(t, 1, run.Duplicate)
	assert.Equal(t, res.BackupID, run.BackupID)

	rows := f.rows(t)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, run.RunID, r.LastSeenImportRunID)
		assert.Equal(t, fixedNow, r.FirstSeenAt)
	}
	assert.NotEqual(t, run.RunID, rows[0].FirstImportRunID)

	snap, err := ReadSnapshot(res.BackupPath)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, rows[0].ContentHash, snap[0].ContentHash)

	runs, err := f.store.Runs(context.Background(), "chk")
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	backups, err := f.store.Backups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	ids := []string{backups[0].BackupID, backups[1].BackupID}
	assert.Contains(t, ids, "chk_20250201T093015Z")
	assert.Contains(t, ids, "chk_20250201T093016Z")
}

func TestApply_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.apply(t, batch())
	first := f.rows(t)

	res, _ := f.apply(t, batch())
	assert.Equal(t, 0, res.Merged)
	assert.Equal(t, 3, res.Touched)
	assert.Equal(t, businessRows(first), businessRows(f.rows(t)))
}

func fileSum(t *testing.T, path string) [32]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return sha256.Sum256(data)
}

func TestDryRun_DoesNotMutate(t *testing.T) {
	f := newFixture(t)
	f.apply(t, batch()[:2])
	before := fileSum(t, f.dbPath)

	ro, err := ledger.OpenReadOnly(f.dbPath)
	require.NoError(t, err)
	defer ro.Close()

	e := NewEngine(ledger.NewStore(ro), filepath.Join(f.dir, "backups"), zerolog.Nop())
	plan, err := e.Plan(context.Background(), append(batch(), txn(20, "NEW", "-1.00")))
	require.NoError(t, err)
	assert.Len(t, plan.New, 2)
	assert.Len(t, plan.AlreadyPresent, 2)

	_, err = e.Apply(context.Background(), plan, newRun())
	assert.Error(t, err)

	assert.Equal(t, before, fileSum(t, f.dbPath))
}

func TestApply_StalePlanConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	planA, err := f.engine.Plan(ctx, batch())
	require.NoError(t, err)
	planB, err := f.engine.Plan(ctx, append(batch()[1:], txn(20, "EXTRA", "-5.00")))
	require.NoError(t, err)

	_, err = f.engine.Apply(ctx, planA, newRun())
	require.NoError(t, err)
	before := f.rows(t)

	run := newRun()
	_, err = f.engine.Apply(ctx, planB, run)
	require.Error(t, err)

	var conflict *MergeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "chk", conflict.AccountID)
	assert.Equal(t, batch()[1].ContentHash, conflict.Hash)
	assert.True(t, ledger.IsUniqueViolation(err))

	assert.Equal(t, model.RunRolledBack, run.Status)
	assert.Empty(t, run.BackupID)
	assert.Equal(t, before, f.rows(t), "no partial merge")

	runs, err := f.store.Runs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	entries, err := os.ReadDir(filepath.Join(f.dir, "backups"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed apply leaves no snapshot file")
}

func TestApply_ValidationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := batch()
	bad[2].Description = "EDITED AFTER HASHING"
	plan, err := f.engine.Plan(ctx, bad)
	require.NoError(t, err)

	_, err = f.engine.Apply(ctx, plan, newRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Empty(t, f.rows(t))
}

func TestApply_RejectsUnsafeAccountID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	txns := batch()
	for i := range txns {
		txns[i].AccountID = "biz/chk"
	}
	plan, err := f.engine.Plan(ctx, txns)
	require.NoError(t, err)

	_, err = f.engine.Apply(ctx, plan, newRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid account id")

	rows, err := f.store.Transactions(ctx, "biz/chk", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRemoveSnapshot(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, removeSnapshot(filepath.Join(dir, "never-written.csv")))

	written := filepath.Join(dir, "chk_20250201T093015Z.csv")
	require.NoError(t, os.WriteFile(written, []byte("x"), 0o644))
	require.NoError(t, removeSnapshot(written))
	_, err := os.Stat(written)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// A non-empty directory cannot be removed.
	stuck := filepath.Join(dir, "stuck")
	require.NoError(t, os.MkdirAll(filepath.Join(stuck, "inner"), 0o755))
	err = removeSnapshot(stuck)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removing snapshot")
}

func TestApply_ContractCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Connection().Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`ALTER TABLE transactions RENAME COLUMN last_seen_import_run_id TO last_seen`)
		return err
	}))

	plan, err := f.engine.Plan(ctx, batch())
	require.NoError(t, err)
	_, err = f.engine.Apply(ctx, plan, newRun())

	var ce *ledger.ContractError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"last_seen_import_run_id"}, ce.Missing)
}

func TestApply_ConcurrentSameAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, b := range [][]model.Transaction{batch()[:2], {txn(25, "OTHER", "-3.00")}} {
		wg.Add(1)
		go func(i int, b []model.Transaction) {
			defer wg.Done()
			plan, err := f.engine.Plan(ctx, b)
			if err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = f.engine.Apply(ctx, plan, newRun())
		}(i, b)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Len(t, f.rows(t), 3)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.apply(t, batch()[:1])
	before := f.rows(t)

	res, _ := f.apply(t, batch())
	require.Len(t, f.rows(t), 3)

	removed, restored, err := f.engine.Restore(ctx, res.BackupID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, restored)
	assert.Equal(t, before, f.rows(t))
}
