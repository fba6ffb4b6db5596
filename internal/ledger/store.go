package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

const (
	dateFormat = "2006-01-02"
	timeFormat = time.RFC3339
)

// Backup is the record of one pre-apply snapshot file.
type Backup struct {
	BackupID  string
	AccountID string
	CreatedAt time.Time
	Path      string
	Rows      int
	DateFrom  time.Time
	DateTo    time.Time
}

// Store reads and writes ledger rows.
type Store struct {
	conn *Connection
}

// NewStore wraps a connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Connection returns the underlying connection.
func (s *Store) Connection() *Connection {
	return s.conn
}

// Update runs fn inside one SQL transaction.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	return s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ExistingHashes returns the content hashes stored for an account within
// [from, to]. Zero bounds are open.
func (s *Store) ExistingHashes(ctx context.Context, accountID string, from, to time.Time) (map[string]bool, error) {
	return existingHashes(ctx, s.conn.db, accountID, from, to)
}

func existingHashes(ctx context.Context, q querier, accountID string, from, to time.Time) (map[string]bool, error) {
	where, args := rangeClause(accountID, from, to)
	rows, err := q.QueryContext(ctx, `SELECT content_hash FROM transactions`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning hash: %w", err)
		}
		out[h] = true
	}
	return out, rows.Err()
}

// Transactions returns an account's rows within [from, to] in ledger order.
func (s *Store) Transactions(ctx context.Context, accountID string, from, to time.Time) ([]model.Transaction, error) {
	return transactions(ctx, s.conn.db, accountID, from, to)
}

const selectTransactions = `SELECT content_hash, account_id, date, description, withdrawal, deposit,
	stated_balance, calculated_balance, balance_diff, balance_error, classification,
	source_document, source_page, line_start, line_end,
	first_seen_at, first_import_run_id, last_seen_import_run_id
	FROM transactions`

func transactions(ctx context.Context, q querier, accountID string, from, to time.Time) ([]model.Transaction, error) {
	where, args := rangeClause(accountID, from, to)
	rows, err := q.QueryContext(ctx, selectTransactions+where+` ORDER BY account_id, date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (model.Transaction, error) {
	var (
		t                                     model.Transaction
		date, firstSeen, calc, class          string
		withdrawal, deposit, stated, diffText sql.NullString
		balanceError                          int
	)
	err := rows.Scan(&t.ContentHash, &t.AccountID, &date, &t.Description, &withdrawal, &deposit,
		&stated, &calc, &diffText, &balanceError, &class,
		&t.Source.Document, &t.Source.Page, &t.Source.LineStart, &t.Source.LineEnd,
		&firstSeen, &t.FirstImportRunID, &t.LastSeenImportRunID)
	if err != nil {
		return t, fmt.Errorf("scanning transaction: %w", err)
	}

	if t.Date, err = time.Parse(dateFormat, date); err != nil {
		return t, fmt.Errorf("parsing date %q: %w", date, err)
	}
	if t.FirstSeenAt, err = time.Parse(timeFormat, firstSeen); err != nil {
		return t, fmt.Errorf("parsing first_seen_at %q: %w", firstSeen, err)
	}
	if t.CalculatedBalance, err = decimal.NewFromString(calc); err != nil {
		return t, fmt.Errorf("parsing calculated_balance %q: %w", calc, err)
	}
	for _, f := range []struct {
		src sql.NullString
		dst *decimal.NullDecimal
	}{
		{withdrawal, &t.Withdrawal},
		{deposit, &t.Deposit},
		{stated, &t.StatedBalance},
		{diffText, &t.BalanceDiff},
	} {
		if !f.src.Valid {
			continue
		}
		v, err := decimal.NewFromString(f.src.String)
		if err != nil {
			return t, fmt.Errorf("parsing amount %q: %w", f.src.String, err)
		}
		*f.dst = decimal.NewNullDecimal(v)
	}
	t.BalanceError = balanceError != 0
	t.Classification = model.Classification(class)
	return t, nil
}

func rangeClause(accountID string, from, to time.Time) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if accountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, accountID)
	}
	if !from.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, from.Format(dateFormat))
	}
	if !to.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, to.Format(dateFormat))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Runs returns recorded import runs, newest first. An empty accountID lists all.
func (s *Store) Runs(ctx context.Context, accountID string) ([]model.ImportRun, error) {
	query := `SELECT run_id, started_at, finished_at, mode, source_document_id, account_id,
		parsed, merged, duplicate, flagged, backup_id, status FROM import_runs`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY started_at DESC, run_id`

	rows, err := s.conn.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []model.ImportRun
	for rows.Next() {
		var (
			r               model.ImportRun
			started, closed string
			mode, status    string
		)
		if err := rows.Scan(&r.RunID, &started, &closed, &mode, &r.SourceDocumentID, &r.AccountID,
			&r.Parsed, &r.Merged, &r.Duplicate, &r.Flagged, &r.BackupID, &status); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeFormat, started); err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", started, err)
		}
		if r.FinishedAt, err = time.Parse(timeFormat, closed); err != nil {
			return nil, fmt.Errorf("parsing finished_at %q: %w", closed, err)
		}
		r.Mode = model.RunMode(mode)
		r.Status = model.RunStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Backups returns recorded snapshots, newest first.
func (s *Store) Backups(ctx context.Context) ([]Backup, error) {
	rows, err := s.conn.db.QueryContext(ctx, `SELECT backup_id, account_id, created_at, path, row_count, date_from, date_to
		FROM backups ORDER BY created_at DESC, backup_id`)
	if err != nil {
		return nil, fmt.Errorf("querying backups: %w", err)
	}
	defer rows.Close()

	var out []Backup
	for rows.Next() {
		var (
			b                 Backup
			created, from, to string
		)
		if err := rows.Scan(&b.BackupID, &b.AccountID, &created, &b.Path, &b.Rows, &from, &to); err != nil {
			return nil, fmt.Errorf("scanning backup: %w", err)
		}
		if b.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
		}
		if b.DateFrom, err = time.Parse(dateFormat, from); err != nil {
			return nil, fmt.Errorf("parsing date_from %q: %w", from, err)
		}
		if b.DateTo, err = time.Parse(dateFormat, to); err != nil {
			return nil, fmt.Errorf("parsing date_to %q: %w", to, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Backup looks up one snapshot record.
func (s *Store) Backup(ctx context.Context, backupID string) (Backup, error) {
	all, err := s.Backups(ctx)
	if err != nil {
		return Backup{}, err
	}
	for _, b := range all {
		if b.BackupID == backupID {
			return b, nil
		}
	}
	return Backup{}, fmt.Errorf("backup %q not found", backupID)
}

// Tx is the write side of the store, scoped to one SQL transaction.
type Tx struct {
	tx *sql.Tx
}

// Transactions reads rows inside the transaction.
func (t *Tx) Transactions(ctx context.Context, accountID string, from, to time.Time) ([]model.Transaction, error) {
	return transactions(ctx, t.tx, accountID, from, to)
}

// Insert writes new rows. A content hash already stored fails the whole
// statement with a UNIQUE violation; see IsUniqueViolation.
func (t *Tx) Insert(ctx context.Context, txns []model.Transaction) error {
	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO transactions (
		content_hash, account_id, date, description, withdrawal, deposit,
		stated_balance, calculated_balance, balance_diff, balance_error, classification,
		source_document, source_page, line_start, line_end,
		first_seen_at, first_import_run_id, last_seen_import_run_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, txn := range txns {
		_, err := stmt.ExecContext(ctx,
			txn.ContentHash, txn.AccountID, txn.Date.Format(dateFormat), txn.Description,
			nullAmount(txn.Withdrawal), nullAmount(txn.Deposit),
			nullAmount(txn.StatedBalance), txn.CalculatedBalance.StringFixed(2), nullAmount(txn.BalanceDiff),
			boolInt(txn.BalanceError), string(txn.Classification),
			txn.Source.Document, txn.Source.Page, txn.Source.LineStart, txn.Source.LineEnd,
			txn.FirstSeenAt.UTC().Format(timeFormat), txn.FirstImportRunID, txn.LastSeenImportRunID,
		)
		if err != nil {
			return &RowError{Hash: txn.ContentHash, Err: err}
		}
	}
	return nil
}

// RowError is a write failure on one ledger row.
type RowError struct {
	Hash string
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("writing row %s: %v", e.Hash, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Touch records that runID saw the given hashes again.
func (t *Tx) Touch(ctx context.Context, hashes []string, runID string) error {
	stmt, err := t.tx.PrepareContext(ctx, `UPDATE transactions SET last_seen_import_run_id = ? WHERE content_hash = ?`)
	if err != nil {
		return fmt.Errorf("preparing touch: %w", err)
	}
	defer stmt.Close()

	for _, h := range hashes {
		if _, err := stmt.ExecContext(ctx, runID, h); err != nil {
			return fmt.Errorf("touching %s: %w", h, err)
		}
	}
	return nil
}

// DeleteRange removes an account's rows within [from, to]. Only restore uses it.
func (t *Tx) DeleteRange(ctx context.Context, accountID string, from, to time.Time) (int64, error) {
	where, args := rangeClause(accountID, from, to)
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting range: %w", err)
	}
	return res.RowsAffected()
}

// InsertRun records a closed import run.
func (t *Tx) InsertRun(ctx context.Context, r model.ImportRun) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO import_runs (
		run_id, started_at, finished_at, mode, source_document_id, account_id,
		parsed, merged, duplicate, flagged, backup_id, status
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.StartedAt.UTC().Format(timeFormat), r.FinishedAt.UTC().Format(timeFormat),
		string(r.Mode), r.SourceDocumentID, r.AccountID,
		r.Parsed, r.Merged, r.Duplicate, r.Flagged, r.BackupID, string(r.Status))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.RunID, err)
	}
	return nil
}

// InsertBackup records a snapshot file.
func (t *Tx) InsertBackup(ctx context.Context, b Backup) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO backups (
		backup_id, account_id, created_at, path, row_count, date_from, date_to
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.BackupID, b.AccountID, b.CreatedAt.UTC().Format(timeFormat), b.Path, b.Rows,
		b.DateFrom.Format(dateFormat), b.DateTo.Format(dateFormat))
	if err != nil {
		return fmt.Errorf("inserting backup %s: %w", b.BackupID, err)
	}
	return nil
}

func nullAmount(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.StringFixed(2), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
