package statement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// Options configure a Parser for one account and statement year.
type Options struct {
	AccountID       string
	FiscalYear      int
	DepositKeywords []string
	Separators      []string
	Patterns        *Patterns
}

// Parser reconstructs transactions from the raw lines of one sequence.
type Parser struct {
	tokenizer     Tokenizer
	accumulator   Accumulator
	disambiguator Disambiguator
	builder       Builder
	fiscalYear    int
}

// Result is what one sequence parses to.
type Result struct {
	Document     string
	Transactions []model.Transaction
	// Opening is the printed opening balance, when the statement has one.
	Opening     decimal.NullDecimal
	Checkpoints []model.CheckpointBalance
	Warnings    []ParseWarning
	// Rules counts the transaction candidates each disambiguation rule decided.
	Rules map[Rule]int
}

// NewParser builds a parser, filling unset options with defaults.
func NewParser(opts Options) *Parser {
	patterns := DefaultPatterns()
	if opts.Patterns != nil {
		patterns = *opts.Patterns
	}
	seps := opts.Separators
	if seps == nil {
		seps = DefaultSeparators
	}
	keywords := opts.DepositKeywords
	if keywords == nil {
		keywords = DefaultDepositKeywords
	}
	return &Parser{
		tokenizer:     Tokenizer{Separators: seps},
		accumulator:   Accumulator{Patterns: patterns},
		disambiguator: Disambiguator{DepositKeywords: keywords},
		builder:       Builder{AccountID: opts.AccountID},
		fiscalYear:    opts.FiscalYear,
	}
}

// Parse runs tokenizer, accumulator, disambiguator, forward-filler and
// builder over one ordered sequence of lines.
func (p *Parser) Parse(lines []model.RawLine) (*Result, error) {
	res := &Result{Rules: make(map[Rule]int)}
	if len(lines) > 0 {
		res.Document = lines[0].Document
	}

	tokenized := make([]Line, 0, len(lines))
	for _, raw := range lines {
		l, warns := p.tokenizer.Tokenize(raw)
		res.Warnings = append(res.Warnings, warns...)
		tokenized = append(tokenized, l)
	}

	cands, warns := p.accumulator.Accumulate(tokenized)
	res.Warnings = append(res.Warnings, warns...)

	dates, _, warns, err := ForwardFill(cands, NewFillState(p.fiscalYear))
	res.Warnings = append(res.Warnings, warns...)
	if err != nil {
		return nil, err
	}

	for i, c := range cands {
		if c.Kind != KindTransaction {
			p.balanceLine(res, c, dates[i])
			continue
		}
		r := p.disambiguator.Resolve(c)
		res.Rules[r.Rule]++
		res.Warnings = append(res.Warnings, r.Warnings...)
		res.Transactions = append(res.Transactions, p.builder.Build(c, dates[i], r)...)
	}

	if len(res.Transactions) == 0 {
		return nil, fmt.Errorf("%s: %w", res.Document, ErrNoTransactions)
	}
	return res, nil
}

func (p *Parser) balanceLine(res *Result, c Candidate, date time.Time) {
	amount := balanceValue(c.Amounts[len(c.Amounts)-1])

	warn := func(reason string) {
		res.Warnings = append(res.Warnings, ParseWarning{
			Document: c.Source.Document,
			Line:     c.Source.LineStart,
			Text:     c.Description(),
			Reason:   reason,
		})
	}

	switch {
	case c.Kind == KindOpeningBalance:
		if len(res.Transactions) > 0 || res.Opening.Valid {
			warn("repeated opening balance ignored")
			return
		}
		res.Opening = decimal.NewNullDecimal(amount)
	case date.IsZero():
		warn("closing balance without date ignored")
	default:
		res.Checkpoints = append(res.Checkpoints, model.CheckpointBalance{
			AccountID:       p.builder.AccountID,
			AsOf:            date,
			ExpectedBalance: amount,
			Source:          fmt.Sprintf("statement page %d line %d", c.Source.Page, c.Source.LineStart),
		})
	}
}
