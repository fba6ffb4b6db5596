package statement

import (
	"strings"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// CandidateKind distinguishes transaction candidates from balance lines.
type CandidateKind int

const (
	KindTransaction CandidateKind = iota
	KindOpeningBalance
	KindClosingBalance
)

// Candidate is a transaction assembled from one or more physical lines.
type Candidate struct {
	Kind      CandidateKind
	Date      MonthDay
	HasDate   bool
	Fragments []string
	Amounts   []Token
	// SeparatorAt indexes the first amount printed after a separator glyph;
	// -1 when the candidate has no separator.
	SeparatorAt int
	Source      model.SourceRef
}

// Description joins the text fragments.
func (c Candidate) Description() string {
	return strings.Join(c.Fragments, " ")
}

func newCandidate(kind CandidateKind, l Line) *Candidate {
	c := &Candidate{
		Kind:        kind,
		SeparatorAt: -1,
		Source: model.SourceRef{
			Document:  l.Raw.Document,
			Page:      l.Raw.Page,
			LineStart: l.Raw.Line,
			LineEnd:   l.Raw.Line,
		},
	}
	if md, ok := l.Date(); ok {
		c.Date, c.HasDate = md, true
	}
	c.absorb(l)
	return c
}

func (c *Candidate) absorb(l Line) {
	for _, t := range l.Tokens {
		switch t.Kind {
		case TokenText:
			c.Fragments = append(c.Fragments, t.Text)
		case TokenAmount:
			c.Amounts = append(c.Amounts, t)
		case TokenSeparator:
			if c.SeparatorAt < 0 {
				c.SeparatorAt = len(c.Amounts)
			}
		}
	}
	if l.Raw.Line > c.Source.LineEnd {
		c.Source.LineEnd = l.Raw.Line
	}
}

// Accumulator groups tokenized lines into candidates. A dated line opens a
// candidate; dateless lines extend it until a boundary closes it.
type Accumulator struct {
	Patterns Patterns
}

// Accumulate walks lines in order. Dropped lines are reported as warnings.
func (a Accumulator) Accumulate(lines []Line) ([]Candidate, []ParseWarning) {
	var (
		out      []Candidate
		warnings []ParseWarning
		cur      *Candidate
		page     = -1
	)
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	drop := func(l Line, reason string) {
		warnings = append(warnings, ParseWarning{
			Document: l.Raw.Document,
			Line:     l.Raw.Line,
			Text:     strings.TrimSpace(l.Raw.Text),
			Reason:   reason,
		})
	}

	for _, l := range lines {
		if l.Raw.Page != page {
			flush()
			page = l.Raw.Page
		}
		raw := l.Raw.Text
		if strings.TrimSpace(raw) == "" {
			continue
		}

		switch {
		case matchAny(a.Patterns.PageMarkers, raw),
			matchAny(a.Patterns.HeaderFooters, raw),
			matchAny(a.Patterns.SectionHeaders, raw):
			flush()
			continue
		case matchAny(a.Patterns.OpeningBalance, raw), matchAny(a.Patterns.ClosingBalance, raw):
			flush()
			kind := KindClosingBalance
			if matchAny(a.Patterns.OpeningBalance, raw) {
				kind = KindOpeningBalance
			}
			if len(l.Amounts()) == 0 {
				drop(l, "balance line without amount")
				continue
			}
			out = append(out, *newCandidate(kind, l))
			continue
		}

		if l.HasDate() {
			flush()
			cur = newCandidate(KindTransaction, l)
			continue
		}

		if l.Noise() {
			if cur == nil {
				if l.Text() != "" {
					drop(l, "noise line")
				}
				continue
			}
			cur.absorb(l)
			continue
		}

		// A wrapped record can carry its amounts on a later line. Once the
		// open candidate has amounts, a new amount line is a new record.
		if cur != nil && len(cur.Amounts) == 0 {
			cur.absorb(l)
			continue
		}
		flush()
		cur = newCandidate(KindTransaction, l)
	}
	flush()
	return out, warnings
}
