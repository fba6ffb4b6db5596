package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification tags a transaction for withdrawal/deposit selection and reporting.
type Classification string

const (
	ClassFee           Classification = "fee"
	ClassTransfer      Classification = "transfer"
	ClassDeposit       Classification = "deposit"
	ClassVendorExpense Classification = "vendor_expense"
	ClassUncategorized Classification = "uncategorized"
)

// Valid reports whether c is one of the known tags.
func (c Classification) Valid() bool {
	switch c {
	case ClassFee, ClassTransfer, ClassDeposit, ClassVendorExpense, ClassUncategorized:
		return true
	}
	return false
}

// RawLine is one physical line of source text. Discarded after parsing.
type RawLine struct {
	Document string // source document identifier
	Page     int    // 1-based
	Line     int    // 1-based, document-wide
	Text     string
}

// SourceRef points back at the lines a transaction was built from.
type SourceRef struct {
	Document  string
	Page      int
	LineStart int
	LineEnd   int
}

func (r SourceRef) String() string {
	if r.LineStart == r.LineEnd {
		return fmt.Sprintf("%s p%d L%d", r.Document, r.Page, r.LineStart)
	}
	return fmt.Sprintf("%s p%d L%d-%d", r.Document, r.Page, r.LineStart, r.LineEnd)
}

// Transaction is the durable unit merged into the ledger store.
type Transaction struct {
	AccountID         string
	Date              time.Time
	Description       string
	Withdrawal        decimal.NullDecimal // non-negative when valid
	Deposit           decimal.NullDecimal // non-negative when valid
	StatedBalance     decimal.NullDecimal // as printed on the source line
	CalculatedBalance decimal.Decimal
	BalanceDiff       decimal.NullDecimal // calculated - stated
	BalanceError      bool
	Classification    Classification
	Source            SourceRef
	ContentHash       string

	// Audit trail, set by the ledger store.
	FirstSeenAt         time.Time
	FirstImportRunID    string
	LastSeenImportRunID string
}

// SignedAmount returns deposit - withdrawal.
func (t Transaction) SignedAmount() decimal.Decimal {
	amt := decimal.Zero
	if t.Deposit.Valid {
		amt = amt.Add(t.Deposit.Decimal)
	}
	if t.Withdrawal.Valid {
		amt = amt.Sub(t.Withdrawal.Decimal)
	}
	return amt
}

// HasMovement reports whether the transaction moves money.
func (t Transaction) HasMovement() bool {
	return t.Withdrawal.Valid || t.Deposit.Valid
}
