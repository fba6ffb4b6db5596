package report

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Formatter renders amounts in one currency.
type Formatter struct {
	code  string
	cur   money.Currency
	known bool
}

// NewFormatter returns a Formatter for an ISO 4217 code. Unknown codes are
// rendered as plain two-decimal numbers followed by the code.
func NewFormatter(code string) Formatter {
	if money.GetCurrency(code) == nil {
		return Formatter{code: code}
	}
	return Formatter{code: code, cur: *money.New(0, code).Currency(), known: true}
}

// Amount formats d, e.g. "$7,113.84" or "-$63.50".
func (f Formatter) Amount(d decimal.Decimal) string {
	if !f.known {
		return d.StringFixed(2) + " " + f.code
	}
	minor := d.Shift(int32(f.cur.Fraction)).Round(0)
	return f.cur.Formatter().Format(minor.IntPart())
}

// Null formats n, or returns "" when it is absent.
func (f Formatter) Null(n decimal.NullDecimal) string {
	if !n.Valid {
		return ""
	}
	return f.Amount(n.Decimal)
}
