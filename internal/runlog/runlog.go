// Package runlog keeps the append-only CSV log of import runs, dry-runs included.
package runlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// Entry is one row in the run log.
type Entry struct {
	model.ImportRun
	Error string // why the run failed or rolled back
}

// Header is the CSV header for import-runs.csv.
const Header = "run_id,started_at,finished_at,mode,status,source_document_id,account_id," +
	"parsed,merged,duplicate,flagged,backup_id,error"

const (
	numFields     = 13
	logDir        = "logs"
	logFile       = "logs/import-runs.csv"
	colRunID      = 0
	colStartedAt  = 1
	colFinishedAt = 2
	colMode       = 3
	colStatus     = 4
	colDocument   = 5
	colAccountID  = 6
	colParsed     = 7
	colMerged     = 8
	colDuplicate  = 9
	colFlagged    = 10
	colBackupID   = 11
	colError      = 12
)

// Path returns the run log location inside a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, logFile)
}

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colRunID] = e.RunID
	row[colStartedAt] = e.StartedAt.UTC().Format(time.RFC3339)
	if !e.FinishedAt.IsZero() {
		row[colFinishedAt] = e.FinishedAt.UTC().Format(time.RFC3339)
	}
	row[colMode] = string(e.Mode)
	row[colStatus] = string(e.Status)
	row[colDocument] = e.SourceDocumentID
	row[colAccountID] = e.AccountID
	row[colParsed] = strconv.Itoa(e.Parsed)
	row[colMerged] = strconv.Itoa(e.Merged)
	row[colDuplicate] = strconv.Itoa(e.Duplicate)
	row[colFlagged] = strconv.Itoa(e.Flagged)
	row[colBackupID] = e.BackupID
	row[colError] = e.Error
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	started, err := time.Parse(time.RFC3339, record[colStartedAt])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing started_at %q: %w", record[colStartedAt], err)
	}
	var finished time.Time
	if record[colFinishedAt] != "" {
		if finished, err = time.Parse(time.RFC3339, record[colFinishedAt]); err != nil {
			return Entry{}, fmt.Errorf("parsing finished_at %q: %w", record[colFinishedAt], err)
		}
	}

	counts := make([]int, 4)
	for i, col := range []int{colParsed, colMerged, colDuplicate, colFlagged} {
		n, err := strconv.Atoi(record[col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[col], err)
		}
		counts[i] = n
	}

	return Entry{
		ImportRun: model.ImportRun{
			RunID:            record[colRunID],
			StartedAt:        started,
			FinishedAt:       finished,
			Mode:             model.RunMode(record[colMode]),
			Status:           model.RunStatus(record[colStatus]),
			SourceDocumentID: record[colDocument],
			AccountID:        record[colAccountID],
			Parsed:           counts[0],
			Merged:           counts[1],
			Duplicate:        counts[2],
			Flagged:          counts[3],
			BackupID:         record[colBackupID],
		},
		Error: record[colError],
	}, nil
}

// Append writes entries to <workspace>/logs/import-runs.csv, creating the file and header if needed.
func Append(workspace string, entries []Entry) error {
	dir := filepath.Join(workspace, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := Path(workspace)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <workspace>/logs/import-runs.csv.
// Returns an empty slice if the file does not exist.
func Read(workspace string) ([]Entry, error) {
	f, err := os.Open(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

// ForAccount keeps the entries of one account. An empty id keeps all.
func ForAccount(entries []Entry, accountID string) []Entry {
	if accountID == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading run log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
