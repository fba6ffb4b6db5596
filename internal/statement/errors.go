package statement

import (
	"errors"
	"fmt"
)

// ErrNoTransactions is returned when a document yields no transaction lines.
var ErrNoTransactions = errors.New("no transactions found")

// ParseWarning records a line or token that was dropped or resolved by
// heuristic. Parsing continues.
type ParseWarning struct {
	Document string
	Line     int
	Text     string
	Reason   string
}

func (w ParseWarning) Error() string {
	if w.Text == "" {
		return fmt.Sprintf("%s L%d: %s", w.Document, w.Line, w.Reason)
	}
	return fmt.Sprintf("%s L%d: %s (%q)", w.Document, w.Line, w.Reason, w.Text)
}

// MissingOpeningDateError is returned when the first transaction of a
// sequence has no date to carry forward. Fatal for that sequence only.
type MissingOpeningDateError struct {
	Document string
	Line     int
}

func (e *MissingOpeningDateError) Error() string {
	return fmt.Sprintf("%s L%d: first transaction has no date", e.Document, e.Line)
}
