package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func newTxn(account string, day time.Time, desc, signed string) model.Transaction {
	t := model.Transaction{
		AccountID:           account,
		Date:                day,
		Description:         desc,
		Classification:      model.ClassUncategorized,
		CalculatedBalance:   dec("100.00"),
		Source:              model.SourceRef{Document: "stmt.txt", Page: 1, LineStart: 3, LineEnd: 4},
		FirstSeenAt:         time.Date(2025, 2, 1, 9, 30, 15, 0, time.UTC),
		FirstImportRunID:    "run-1",
		LastSeenImportRunID: "run-1",
	}
	amt := dec(signed)
	if amt.IsNegative() {
		t.Withdrawal = decimal.NewNullDecimal(amt.Neg())
	} else {
		t.Deposit = decimal.NewNullDecimal(amt)
	}
	t.ContentHash = id.ContentHash(account, day, desc, amt)
	return t
}

func openStore(t *testing.T) *Store {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "ledger", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewStore(conn)
}
