package statement

import (
	"fmt"
	"time"
)

// FillState is the state threaded through date forward-filling.
type FillState struct {
	Year    int
	Last    time.Time
	HasLast bool
}

// NewFillState starts a sequence whose first dated line falls in year.
func NewFillState(year int) FillState {
	return FillState{Year: year}
}

// Resolve turns a printed month/day into a full date. A month that jumps back
// by more than six from the previous date rolls into the next year. ok is
// false when the day does not exist in the resolved year; the state is then
// returned unchanged.
func (s FillState) Resolve(md MonthDay) (date time.Time, next FillState, ok bool) {
	year := s.yearFor(md)
	date = time.Date(year, md.Month, md.Day, 0, 0, 0, 0, time.UTC)
	if date.Month() != md.Month || date.Day() != md.Day {
		return time.Time{}, s, false
	}
	return date, FillState{Year: year, Last: date, HasLast: true}, true
}

// Fill returns the candidate's date: its own when printed, otherwise the
// last date seen. A printed day that does not exist in its year is reported
// and the last date is carried instead. A transaction with no date to carry
// fails; a balance line without one gets the zero time.
func (s FillState) Fill(c Candidate) (time.Time, FillState, []ParseWarning, error) {
	var warns []ParseWarning
	if c.HasDate {
		date, next, ok := s.Resolve(c.Date)
		if ok {
			return date, next, nil, nil
		}
		warns = append(warns, ParseWarning{
			Document: c.Source.Document,
			Line:     c.Source.LineStart,
			Text:     c.Description(),
			Reason:   fmt.Sprintf("%s %d does not exist in %d; previous date kept", c.Date.Month, c.Date.Day, s.yearFor(c.Date)),
		})
	}
	if !s.HasLast {
		if c.Kind != KindTransaction {
			return time.Time{}, s, warns, nil
		}
		return time.Time{}, s, warns, &MissingOpeningDateError{Document: c.Source.Document, Line: c.Source.LineStart}
	}
	return s.Last, s, warns, nil
}

func (s FillState) yearFor(md MonthDay) int {
	if s.HasLast {
		if int(md.Month)-int(s.Last.Month()) < -6 {
			return s.Last.Year() + 1
		}
		return s.Last.Year()
	}
	return s.Year
}

// ForwardFill dates every candidate of one sequence. Balance lines before
// the first dated line get the zero time.
func ForwardFill(cands []Candidate, state FillState) ([]time.Time, FillState, []ParseWarning, error) {
	dates := make([]time.Time, len(cands))
	var warnings []ParseWarning
	for i, c := range cands {
		date, next, warns, err := state.Fill(c)
		warnings = append(warnings, warns...)
		if err != nil {
			return nil, state, warnings, err
		}
		dates[i], state = date, next
	}
	return dates, state, warnings, nil
}
