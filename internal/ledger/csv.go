package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// Header is the CSV header of a ledger snapshot.
const Header = "content_hash,account_id,date,description,withdrawal,deposit,stated_balance,calculated_balance,balance_diff,balance_error,classification,source_document,source_page,line_start,line_end,first_seen_at,first_import_run_id,last_seen_import_run_id"

const (
	numFields     = 18
	colHash       = 0
	colAcctID     = 1
	colDate       = 2
	colDesc       = 3
	colWithdrawal = 4
	colDeposit    = 5
	colStated     = 6
	colCalc       = 7
	colDiff       = 8
	colBalErr     = 9
	colClass      = 10
	colDoc        = 11
	colPage       = 12
	colLineStart  = 13
	colLineEnd    = 14
	colFirstSeen  = 15
	colFirstRun   = 16
	colLastRun    = 17
)

// ReadTransactions reads all rows from a snapshot reader.
func ReadTransactions(r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var txns []model.Transaction
	for i, rec := range records[1:] {
		txn, err := UnmarshalTransaction(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// WriteTransactions writes rows to a snapshot writer (including header).
func WriteTransactions(w io.Writer, txns []model.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, txn := range txns {
		if err := cw.Write(MarshalTransaction(txn)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalTransaction converts a Transaction to a CSV row.
func MarshalTransaction(t model.Transaction) []string {
	row := make([]string, numFields)
	row[colHash] = t.ContentHash
	row[colAcctID] = t.AccountID
	row[colDate] = t.Date.Format(dateFormat)
	row[colDesc] = t.Description
	row[colWithdrawal] = nullAmount(t.Withdrawal).String
	row[colDeposit] = nullAmount(t.Deposit).String
	row[colStated] = nullAmount(t.StatedBalance).String
	row[colCalc] = t.CalculatedBalance.StringFixed(2)
	row[colDiff] = nullAmount(t.BalanceDiff).String
	row[colBalErr] = strconv.FormatBool(t.BalanceError)
	row[colClass] = string(t.Classification)
	row[colDoc] = t.Source.Document
	row[colPage] = strconv.Itoa(t.Source.Page)
	row[colLineStart] = strconv.Itoa(t.Source.LineStart)
	row[colLineEnd] = strconv.Itoa(t.Source.LineEnd)
	if !t.FirstSeenAt.IsZero() {
		row[colFirstSeen] = t.FirstSeenAt.UTC().Format(timeFormat)
	}
	row[colFirstRun] = t.FirstImportRunID
	row[colLastRun] = t.LastSeenImportRunID
	return row
}

// UnmarshalTransaction converts a CSV row to a Transaction.
func UnmarshalTransaction(record []string) (model.Transaction, error) {
	if len(record) != numFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	date, err := time.Parse(dateFormat, record[colDate])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing date %q: %w", record[colDate], err)
	}

	t := model.Transaction{
		ContentHash:         record[colHash],
		AccountID:           record[colAcctID],
		Date:                date,
		Description:         record[colDesc],
		Classification:      model.Classification(record[colClass]),
		FirstImportRunID:    record[colFirstRun],
		LastSeenImportRunID: record[colLastRun],
		Source:              model.SourceRef{Document: record[colDoc]},
	}

	for _, f := range []struct {
		col  int
		name string
		dst  *decimal.NullDecimal
	}{
		{colWithdrawal, "withdrawal", &t.Withdrawal},
		{colDeposit, "deposit", &t.Deposit},
		{colStated, "stated_balance", &t.StatedBalance},
		{colDiff, "balance_diff", &t.BalanceDiff},
	} {
		if record[f.col] == "" {
			continue
		}
		v, err := decimal.NewFromString(record[f.col])
		if err != nil {
			return model.Transaction{}, fmt.Errorf("parsing %s %q: %w", f.name, record[f.col], err)
		}
		*f.dst = decimal.NewNullDecimal(v)
	}

	if t.CalculatedBalance, err = decimal.NewFromString(record[colCalc]); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing calculated_balance %q: %w", record[colCalc], err)
	}
	if t.BalanceError, err = strconv.ParseBool(record[colBalErr]); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing balance_error %q: %w", record[colBalErr], err)
	}

	for _, f := range []struct {
		col int
		dst *int
	}{
		{colPage, &t.Source.Page},
		{colLineStart, &t.Source.LineStart},
		{colLineEnd, &t.Source.LineEnd},
	} {
		if *f.dst, err = strconv.Atoi(record[f.col]); err != nil {
			return model.Transaction{}, fmt.Errorf("parsing source %q: %w", record[f.col], err)
		}
	}

	if record[colFirstSeen] != "" {
		if t.FirstSeenAt, err = time.Parse(timeFormat, record[colFirstSeen]); err != nil {
			return model.Transaction{}, fmt.Errorf("parsing first_seen_at %q: %w", record[colFirstSeen], err)
		}
	}
	return t, nil
}
