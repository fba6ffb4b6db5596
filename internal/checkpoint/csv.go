// Package checkpoint reads and writes the tabular file of trusted balances.
package checkpoint

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// Header is the checkpoint file header.
const Header = "account_id,as_of_date,expected_balance,source"

// FileName is the workspace checkpoint file read when no other is given.
const FileName = "checkpoints.csv"

const (
	numFields   = 4
	dateFormat  = "2006-01-02"
	colAcctID   = 0
	colAsOf     = 1
	colExpected = 2
	colSource   = 3
)

var amountCleaner = strings.NewReplacer(",", "", "$", "", " ", "")

// ReadCheckpoints reads a checkpoint file. The header row is optional.
// Rows with an empty account_id belong to defaultAccount. The source column
// may be omitted.
func ReadCheckpoints(r io.Reader, defaultAccount string) ([]model.CheckpointBalance, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading checkpoints CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	first := 1
	if isHeader(records[0]) {
		records = records[1:]
		first = 2
	}

	var cps []model.CheckpointBalance
	for i, rec := range records {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		cp, err := UnmarshalCheckpoint(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+first, err)
		}
		if cp.AccountID == "" {
			cp.AccountID = defaultAccount
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

func isHeader(rec []string) bool {
	want := strings.Split(Header, ",")
	if len(rec) < numFields-1 {
		return false
	}
	for i := range rec[:min(len(rec), numFields)] {
		if !strings.EqualFold(strings.TrimSpace(rec[i]), want[i]) {
			return false
		}
	}
	return true
}

// Load reads a checkpoint file from disk.
func Load(path, defaultAccount string) ([]model.CheckpointBalance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoints: %w", err)
	}
	defer f.Close()
	return ReadCheckpoints(f, defaultAccount)
}

// WriteCheckpoints writes a checkpoint file.
func WriteCheckpoints(w io.Writer, cps []model.CheckpointBalance) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, cp := range cps {
		if err := cw.Write(MarshalCheckpoint(cp)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalCheckpoint converts a CheckpointBalance to a CSV row.
func MarshalCheckpoint(cp model.CheckpointBalance) []string {
	row := make([]string, numFields)
	row[colAcctID] = cp.AccountID
	row[colAsOf] = cp.AsOf.Format(dateFormat)
	row[colExpected] = cp.ExpectedBalance.StringFixed(2)
	row[colSource] = cp.Source
	return row
}

// UnmarshalCheckpoint converts a CSV row to a CheckpointBalance.
func UnmarshalCheckpoint(record []string) (model.CheckpointBalance, error) {
	if len(record) != numFields && len(record) != numFields-1 {
		return model.CheckpointBalance{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	asOf, err := time.Parse(dateFormat, strings.TrimSpace(record[colAsOf]))
	if err != nil {
		return model.CheckpointBalance{}, fmt.Errorf("parsing as_of_date %q: %w", record[colAsOf], err)
	}

	raw := amountCleaner.Replace(record[colExpected])
	neg := strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")")
	if neg {
		raw = raw[1 : len(raw)-1]
	}
	expected, err := decimal.NewFromString(raw)
	if err != nil {
		return model.CheckpointBalance{}, fmt.Errorf("parsing expected_balance %q: %w", record[colExpected], err)
	}
	if neg {
		expected = expected.Neg()
	}

	cp := model.CheckpointBalance{
		AccountID:       strings.TrimSpace(record[colAcctID]),
		AsOf:            asOf,
		ExpectedBalance: expected,
	}
	if len(record) == numFields {
		cp.Source = record[colSource]
	}
	return cp, nil
}
