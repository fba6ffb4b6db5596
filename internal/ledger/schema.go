package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Schema creates the ledger tables. Amounts are stored as decimal text.
const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content_hash TEXT NOT NULL,
    account_id TEXT NOT NULL,
    date TEXT NOT NULL,                -- YYYY-MM-DD
    description TEXT NOT NULL,
    withdrawal TEXT,
    deposit TEXT,
    stated_balance TEXT,
    calculated_balance TEXT NOT NULL,
    balance_diff TEXT,
    balance_error INTEGER NOT NULL DEFAULT 0,
    classification TEXT NOT NULL,
    source_document TEXT NOT NULL,
    source_page INTEGER NOT NULL,
    line_start INTEGER NOT NULL,
    line_end INTEGER NOT NULL,
    first_seen_at TEXT NOT NULL,
    first_import_run_id TEXT NOT NULL,
    last_seen_import_run_id TEXT NOT NULL,
    UNIQUE(content_hash)
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_date
    ON transactions(account_id, date);

CREATE TABLE IF NOT EXISTS import_runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    mode TEXT NOT NULL,
    source_document_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    parsed INTEGER NOT NULL,
    merged INTEGER NOT NULL,
    duplicate INTEGER NOT NULL,
    flagged INTEGER NOT NULL,
    backup_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backups (
    backup_id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    path TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    date_from TEXT NOT NULL,
    date_to TEXT NOT NULL
);
`

// RequiredColumns lists the transactions columns the store reads and writes.
var RequiredColumns = []string{
	"content_hash", "account_id", "date", "description",
	"withdrawal", "deposit", "stated_balance", "calculated_balance",
	"balance_diff", "balance_error", "classification",
	"source_document", "source_page", "line_start", "line_end",
	"first_seen_at", "first_import_run_id", "last_seen_import_run_id",
}

// ContractError reports columns the store expects but the database lacks.
type ContractError struct {
	Missing []string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("ledger schema missing columns: %s", strings.Join(e.Missing, ", "))
}

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	_, err := conn.db.Exec(Schema)
	return err
}

// CheckContract introspects the transactions table once and reports any
// required column it lacks.
func (c *Connection) CheckContract(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `PRAGMA table_info(transactions)`)
	if err != nil {
		return fmt.Errorf("reading table info: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scanning table info: %w", err)
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading table info: %w", err)
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ContractError{Missing: missing}
	}
	return nil
}
