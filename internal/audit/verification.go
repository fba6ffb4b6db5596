package audit

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// Status is the verification state of one row of the month table.
type Status string

const (
	StatusMatch      Status = "match"
	StatusMismatch   Status = "mismatch"
	StatusUnverified Status = "unverified"
)

// MonthRow is one line of the month-by-month verification table. Months
// with checkpoints get one row per checkpoint; others get a single
// unverified row carrying the month-end calculated balance.
type MonthRow struct {
	Month      time.Time // first day of the month
	Checkpoint *model.CheckpointBalance
	Expected   decimal.NullDecimal
	Calculated decimal.Decimal
	Diff       decimal.NullDecimal
	Status     Status
}

// Period formats the month as YYYY-MM.
func (r MonthRow) Period() string {
	return r.Month.Format("2006-01")
}

func monthTable(checked []MonthRow, sorted []model.Transaction, opening decimal.Decimal, start, end time.Time) []MonthRow {
	covered := make(map[time.Time]bool, len(checked))
	for _, r := range checked {
		covered[r.Month] = true
	}

	monthEnd := make(map[time.Time]decimal.Decimal)
	for _, txn := range sorted {
		monthEnd[monthStart(txn.Date)] = txn.CalculatedBalance
	}

	rows := append([]MonthRow(nil), checked...)
	bal := opening
	for m := start; m.Before(end); m = m.AddDate(0, 1, 0) {
		if b, ok := monthEnd[m]; ok {
			bal = b
		}
		if covered[m] {
			continue
		}
		rows = append(rows, MonthRow{Month: m, Calculated: bal, Status: StatusUnverified})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Month.Before(rows[j].Month) })
	return rows
}

// Counts tallies rows by status.
func (r *Result) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, row := range r.Months {
		out[row.Status]++
	}
	return out
}

// Clean reports whether the pass found no balance or checkpoint mismatch.
func (r *Result) Clean() bool {
	return len(r.Flagged) == 0 && len(r.CheckpointMismatches) == 0
}
