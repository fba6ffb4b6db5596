package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/model"
)

// ValidationError describes a single invariant violation.
type ValidationError struct {
	Invariant   int
	Hash        string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invariant %d [%s]: %s", e.Invariant, e.Hash, e.Description)
}

// ValidateTransactions enforces the row invariants checked before insert.
func ValidateTransactions(txns []model.Transaction) []ValidationError {
	var errs []ValidationError
	add := func(inv int, t model.Transaction, format string, args ...any) {
		errs = append(errs, ValidationError{Invariant: inv, Hash: t.ContentHash, Description: fmt.Sprintf(format, args...)})
	}

	seen := make(map[string]bool, len(txns))
	hundred := decimal.NewFromInt(100)

	for _, t := range txns {
		// Invariant 1: Required identity fields.
		if t.AccountID == "" || t.Date.IsZero() || t.ContentHash == "" {
			add(1, t, "account, date and content hash are required")
		}

		// Invariant 2: At most one of withdrawal/deposit.
		if t.Withdrawal.Valid && t.Deposit.Valid {
			add(2, t, "row has both withdrawal and deposit")
		}

		// Invariant 3: Amounts are non-negative with at most 2 decimal places.
		for _, amt := range []struct {
			name string
			v    decimal.NullDecimal
		}{{"withdrawal", t.Withdrawal}, {"deposit", t.Deposit}} {
			if !amt.v.Valid {
				continue
			}
			if amt.v.Decimal.IsNegative() {
				add(3, t, "%s %s is negative", amt.name, amt.v.Decimal)
			}
			if scaled := amt.v.Decimal.Mul(hundred); !scaled.Equal(scaled.Floor()) {
				add(3, t, "%s %s has more than 2 decimal places", amt.name, amt.v.Decimal)
			}
		}

		// Invariant 4: Known classification.
		if !t.Classification.Valid() {
			add(4, t, "unknown classification %q", t.Classification)
		}

		// Invariant 5: Hash matches the business key.
		if want := id.ContentHash(t.AccountID, t.Date, t.Description, t.SignedAmount()); t.ContentHash != want {
			add(5, t, "content hash does not match account/date/description/amount")
		}

		// Invariant 6: Unique within the batch.
		if seen[t.ContentHash] {
			add(6, t, "duplicate content hash in batch")
		}
		seen[t.ContentHash] = true
	}
	return errs
}
