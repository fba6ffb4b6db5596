// Package report renders the outcome of a reconstruction pass as plain-text tables.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cleared-dev/stmtledger/internal/audit"
	"github.com/cleared-dev/stmtledger/internal/merge"
	"github.com/cleared-dev/stmtledger/internal/model"
	"github.com/cleared-dev/stmtledger/internal/statement"
)

const dateFormat = "2006-01-02"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// Preview writes the parsed-transaction table. limit > 0 keeps the first
// limit rows plus every flagged row.
func Preview(w io.Writer, f Formatter, txns []model.Transaction, limit int) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tDESCRIPTION\tWITHDRAWAL\tDEPOSIT\tSTATED\tCALCULATED\tDIFF\tCLASS\tSOURCE\t")
	hidden := 0
	for i, t := range txns {
		if limit > 0 && i >= limit && !t.BalanceError {
			hidden++
			continue
		}
		flag := ""
		if t.BalanceError {
			flag = " !"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s%s\t%s\t%s\t\n",
			t.Date.Format(dateFormat),
			truncate(t.Description, 40),
			f.Null(t.Withdrawal),
			f.Null(t.Deposit),
			f.Null(t.StatedBalance),
			f.Amount(t.CalculatedBalance),
			f.Null(t.BalanceDiff), flag,
			t.Classification,
			t.Source,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if hidden > 0 {
		_, err := fmt.Fprintf(w, "... %d more\n", hidden)
		return err
	}
	return nil
}

// Verification writes the month-by-month checkpoint table.
func Verification(w io.Writer, f Formatter, res *audit.Result) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MONTH\tAS OF\tEXPECTED\tCALCULATED\tDIFF\tSTATUS\tSOURCE\t")
	for _, row := range res.Months {
		asOf, source := "", ""
		if row.Checkpoint != nil {
			asOf = row.Checkpoint.AsOf.Format(dateFormat)
			source = row.Checkpoint.Source
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			row.Period(), asOf,
			f.Null(row.Expected),
			f.Amount(row.Calculated),
			f.Null(row.Diff),
			row.Status,
			source,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, cp := range res.Uncovered {
		fmt.Fprintf(w, "uncovered checkpoint %s %s (%s)\n", cp.AsOf.Format(dateFormat), f.Amount(cp.ExpectedBalance), cp.Source)
	}
	return nil
}

// Findings lists checkpoint mismatches, balance flags and warnings.
func Findings(w io.Writer, res *audit.Result, warnings []statement.ParseWarning) {
	for _, m := range res.CheckpointMismatches {
		fmt.Fprintf(w, "MISMATCH %s\n", m.Error())
	}
	for _, m := range res.Flagged {
		fmt.Fprintf(w, "FLAG     %s %s\n", m.Error(), res.Transactions[m.Index].Description)
	}
	for _, warn := range warnings {
		fmt.Fprintf(w, "WARN     %s\n", warn.Error())
	}
}

// Counts writes the one-line summary of a sequence.
func Counts(w io.Writer, res *audit.Result, plan *merge.Plan, mode model.RunMode) {
	counts := res.Counts()
	newRows, dup := 0, 0
	if plan != nil {
		newRows, dup = len(plan.New), plan.Duplicates()
	}
	verb := "new"
	if mode == model.ModeApply {
		verb = "merged"
	}
	fmt.Fprintf(w, "%d parsed, %d %s, %d duplicate, %d flagged; opening %s (%s), closing %s; months: %d match, %d mismatch, %d unverified\n",
		len(res.Transactions), newRows, verb, dup, len(res.Flagged),
		res.Opening.StringFixed(2), res.OpeningSource, res.Closing.StringFixed(2),
		counts[audit.StatusMatch], counts[audit.StatusMismatch], counts[audit.StatusUnverified])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
