package audit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// BalanceMismatch flags a transaction whose calculated balance differs from
// the balance printed beside it by more than the tolerance.
type BalanceMismatch struct {
	Index      int // into Result.Transactions
	Date       time.Time
	Source     model.SourceRef
	Stated     decimal.Decimal
	Calculated decimal.Decimal
	Diff       decimal.Decimal
}

func (m BalanceMismatch) Error() string {
	return fmt.Sprintf("%s %s: calculated %s, stated %s (diff %s)",
		m.Date.Format("2006-01-02"), m.Source, m.Calculated.StringFixed(2), m.Stated.StringFixed(2), m.Diff.StringFixed(2))
}

// CheckpointMismatch reports a checkpoint the running balance failed to
// reach. At is the transaction after which it was evaluated (-1 for the
// opening balance); FirstSuspect is the first transaction of the period
// with a balance error (-1 when none had one).
type CheckpointMismatch struct {
	Checkpoint    model.CheckpointBalance
	At            int
	AtSource      model.SourceRef
	FirstSuspect  int
	SuspectSource model.SourceRef
	Expected      decimal.Decimal
	Calculated    decimal.Decimal
}

// Diff returns calculated minus expected.
func (m CheckpointMismatch) Diff() decimal.Decimal {
	return m.Calculated.Sub(m.Expected)
}

func (m CheckpointMismatch) Error() string {
	msg := fmt.Sprintf("checkpoint %s (%s): expected %s, calculated %s",
		m.Checkpoint.AsOf.Format("2006-01-02"), m.Checkpoint.Source, m.Expected.StringFixed(2), m.Calculated.StringFixed(2))
	if m.At >= 0 {
		msg += fmt.Sprintf(" after %s", m.AtSource)
	} else {
		msg += " at opening balance"
	}
	if m.FirstSuspect >= 0 {
		msg += fmt.Sprintf("; first suspect %s", m.SuspectSource)
	}
	return msg
}
