// Package audit recomputes running balances and checks them against the
// balances printed on each line and against trusted checkpoints.
package audit

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// DefaultTolerance is one cent.
var DefaultTolerance = decimal.New(1, -2)

// OpeningSource says where the opening balance came from.
type OpeningSource string

const (
	OpeningStated   OpeningSource = "stated"
	OpeningInferred OpeningSource = "inferred"
	OpeningNone     OpeningSource = "none"
)

// Result is the outcome of one audit pass. Nothing in it stops the pipeline.
type Result struct {
	AccountID     string
	Opening       decimal.Decimal
	OpeningSource OpeningSource
	Closing       decimal.Decimal

	// Transactions are in chronological order with balances filled in.
	Transactions         []model.Transaction
	Flagged              []BalanceMismatch
	CheckpointMismatches []CheckpointMismatch
	Months               []MonthRow
	// Uncovered checkpoints fall outside the transactions' months.
	Uncovered []model.CheckpointBalance
}

// Auditor runs the balance audit for one account sequence.
type Auditor struct {
	Tolerance decimal.Decimal
}

// New returns an Auditor; a zero tolerance means DefaultTolerance.
func New(tolerance decimal.Decimal) *Auditor {
	if tolerance.IsZero() {
		tolerance = DefaultTolerance
	}
	return &Auditor{Tolerance: tolerance}
}

func (a *Auditor) exceeds(diff decimal.Decimal) bool {
	return diff.Abs().GreaterThan(a.Tolerance)
}

// Audit walks txns in date order (stable on source order), keeping a running
// balance from the opening balance. Checkpoints for other accounts are
// ignored. A checkpoint is compared after the last transaction dated on or
// before it; after a mismatch the running balance restarts from the
// checkpoint so each divergence is reported once.
func (a *Auditor) Audit(txns []model.Transaction, opening decimal.NullDecimal, checkpoints []model.CheckpointBalance) *Result {
	sorted := make([]model.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	res := &Result{Transactions: sorted}
	if len(sorted) > 0 {
		res.AccountID = sorted[0].AccountID
	}
	res.Opening, res.OpeningSource = inferOpening(sorted, opening)

	cps := forAccount(checkpoints, res.AccountID)
	if len(sorted) == 0 {
		res.Closing = res.Opening
		res.Uncovered = cps
		return res
	}

	start := monthStart(sorted[0].Date)
	end := monthStart(sorted[len(sorted)-1].Date).AddDate(0, 1, 0) // exclusive

	running := res.Opening
	suspect := -1
	next := 0

	evaluate := func(cp model.CheckpointBalance, at int) {
		diff := running.Sub(cp.ExpectedBalance)
		row := MonthRow{
			Month:      monthStart(cp.AsOf),
			Checkpoint: &cp,
			Expected:   decimal.NewNullDecimal(cp.ExpectedBalance),
			Calculated: running,
			Diff:       decimal.NewNullDecimal(diff),
			Status:     StatusMatch,
		}
		if a.exceeds(diff) {
			row.Status = StatusMismatch
			m := CheckpointMismatch{
				Checkpoint:   cp,
				At:           at,
				FirstSuspect: suspect,
				Expected:     cp.ExpectedBalance,
				Calculated:   running,
			}
			if at >= 0 {
				m.AtSource = sorted[at].Source
			}
			if suspect >= 0 {
				m.SuspectSource = sorted[suspect].Source
			}
			res.CheckpointMismatches = append(res.CheckpointMismatches, m)
			running = cp.ExpectedBalance
		}
		res.Months = append(res.Months, row)
		suspect = -1
	}

	for next < len(cps) && cps[next].AsOf.Before(start) {
		res.Uncovered = append(res.Uncovered, cps[next])
		next++
	}
	for next < len(cps) && cps[next].AsOf.Before(sorted[0].Date) {
		evaluate(cps[next], -1)
		next++
	}

	for i := range sorted {
		txn := &sorted[i]
		running = running.Add(txn.SignedAmount())
		txn.CalculatedBalance = running
		txn.BalanceDiff = decimal.NullDecimal{}
		txn.BalanceError = false

		if txn.StatedBalance.Valid {
			diff := running.Sub(txn.StatedBalance.Decimal)
			txn.BalanceDiff = decimal.NewNullDecimal(diff)
			if a.exceeds(diff) {
				txn.BalanceError = true
				res.Flagged = append(res.Flagged, BalanceMismatch{
					Index:      i,
					Date:       txn.Date,
					Source:     txn.Source,
					Stated:     txn.StatedBalance.Decimal,
					Calculated: running,
					Diff:       diff,
				})
				if suspect < 0 {
					suspect = i
				}
			}
		}

		limit := end
		if i+1 < len(sorted) {
			limit = sorted[i+1].Date
		}
		for next < len(cps) && cps[next].AsOf.Before(limit) {
			evaluate(cps[next], i)
			next++
		}
	}
	res.Uncovered = append(res.Uncovered, cps[next:]...)
	res.Closing = running
	res.Months = monthTable(res.Months, sorted, res.Opening, start, end)
	return res
}

// inferOpening prefers the printed opening balance, then backs one out of
// the first stated balance.
func inferOpening(sorted []model.Transaction, opening decimal.NullDecimal) (decimal.Decimal, OpeningSource) {
	if opening.Valid {
		return opening.Decimal, OpeningStated
	}
	moved := decimal.Zero
	for _, txn := range sorted {
		moved = moved.Add(txn.SignedAmount())
		if txn.StatedBalance.Valid {
			return txn.StatedBalance.Decimal.Sub(moved), OpeningInferred
		}
	}
	return decimal.Zero, OpeningNone
}

func forAccount(cps []model.CheckpointBalance, accountID string) []model.CheckpointBalance {
	var out []model.CheckpointBalance
	for _, cp := range cps {
		if cp.AccountID == "" || accountID == "" || cp.AccountID == accountID {
			out = append(out, cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AsOf.Before(out[j].AsOf) })
	return out
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
