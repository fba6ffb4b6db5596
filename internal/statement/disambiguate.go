package statement

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the side of the account a movement lands on.
type Direction int

const (
	Withdrawal Direction = iota
	Deposit
)

func (d Direction) String() string {
	if d == Deposit {
		return "deposit"
	}
	return "withdrawal"
}

// Movement is one non-negative amount with its direction.
type Movement struct {
	Direction Direction
	Amount    decimal.Decimal
}

// Rule names the disambiguation rule that decided a candidate.
type Rule int

const (
	RuleNone Rule = iota
	RuleSeparator
	RuleColumns
	RuleKeyword
	RuleExcess
)

// Resolution is the outcome of disambiguating one candidate.
type Resolution struct {
	Movements []Movement
	Balance   decimal.NullDecimal
	Rule      Rule
	Warnings  []ParseWarning
}

// Signed returns deposits minus withdrawals.
func (r Resolution) Signed() decimal.Decimal {
	total := decimal.Zero
	for _, m := range r.Movements {
		if m.Direction == Deposit {
			total = total.Add(m.Amount)
		} else {
			total = total.Sub(m.Amount)
		}
	}
	return total
}

// DefaultDepositKeywords mark a single unseparated amount as a deposit.
var DefaultDepositKeywords = []string{
	"DEPOSIT", "CREDIT MEMO", "E-TRANSFER RECLAIM", "MCARD DEP CR",
	"DEP", "PAYROLL", "REFUND", "INTEREST PAID",
}

// Disambiguator assigns each amount of a candidate to withdrawal, deposit
// or balance.
type Disambiguator struct {
	DepositKeywords []string
}

// Resolve applies, in order: the separator rule, the balance-is-last rule,
// the two-column convention and the keyword rule. More than two movement
// amounts keep the last two and report the rest as noise.
func (d Disambiguator) Resolve(c Candidate) Resolution {
	var res Resolution
	amts := c.Amounts
	desc := c.Description()

	warn := func(t Token, reason string) {
		res.Warnings = append(res.Warnings, ParseWarning{
			Document: c.Source.Document,
			Line:     c.Source.LineStart,
			Text:     t.Text,
			Reason:   reason,
		})
	}

	if c.SeparatorAt >= 0 {
		res.Rule = RuleSeparator
		moves := amts[:min(c.SeparatorAt, len(amts))]
		if c.SeparatorAt < len(amts) {
			res.Balance = decimal.NewNullDecimal(balanceValue(amts[c.SeparatorAt]))
			for _, t := range amts[c.SeparatorAt+1:] {
				warn(t, "amount after balance ignored")
			}
		}
		if len(moves) > 2 {
			for _, t := range moves[:len(moves)-2] {
				warn(t, "excess amount ignored")
			}
			moves = moves[len(moves)-2:]
		}
		for _, t := range moves {
			d.addMovement(&res, t, desc, warn)
		}
		return res
	}

	moves := amts
	if len(amts) >= 2 {
		res.Balance = decimal.NewNullDecimal(balanceValue(amts[len(amts)-1]))
		moves = amts[:len(amts)-1]
	}

	if len(moves) > 2 {
		res.Rule = RuleExcess
		for _, t := range moves[:len(moves)-2] {
			warn(t, "excess amount ignored")
		}
		moves = moves[len(moves)-2:]
	}

	switch len(moves) {
	case 0:
	case 1:
		if res.Rule == RuleNone {
			res.Rule = RuleKeyword
		}
		d.addMovement(&res, moves[0], desc, warn)
	case 2:
		if res.Rule == RuleNone {
			res.Rule = RuleColumns
		}
		// Withdrawal column precedes the deposit column; zero is a placeholder.
		if w := moves[0].Amount.Abs(); !w.IsZero() {
			res.Movements = append(res.Movements, Movement{Direction: Withdrawal, Amount: w})
		}
		if dep := moves[1].Amount.Abs(); !dep.IsZero() {
			res.Movements = append(res.Movements, Movement{Direction: Deposit, Amount: dep})
		}
	}

	if len(res.Movements) == 0 {
		res.Warnings = append(res.Warnings, ParseWarning{
			Document: c.Source.Document,
			Line:     c.Source.LineStart,
			Text:     desc,
			Reason:   "no monetary movement",
		})
	}
	return res
}

func (d Disambiguator) addMovement(res *Resolution, t Token, desc string, warn func(Token, string)) {
	amt := t.Amount.Abs()
	if amt.IsZero() {
		warn(t, "zero amount ignored")
		return
	}
	res.Movements = append(res.Movements, Movement{Direction: d.direction(t, desc), Amount: amt})
}

func (d Disambiguator) direction(t Token, desc string) Direction {
	switch {
	case t.Marker == MarkerCredit:
		return Deposit
	case t.Marker == MarkerDebit, t.Amount.IsNegative():
		return Withdrawal
	case d.isDeposit(desc):
		return Deposit
	}
	return Withdrawal
}

func (d Disambiguator) isDeposit(desc string) bool {
	upper := " " + strings.ToUpper(desc) + " "
	for _, kw := range d.DepositKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(upper, " "+strings.ToUpper(kw)+" ") {
			return true
		}
	}
	return false
}

// balanceValue applies an overdraft marker to a printed balance.
func balanceValue(t Token) decimal.Decimal {
	if t.Marker == MarkerDebit && t.Amount.IsPositive() {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (r Rule) String() string {
	switch r {
	case RuleSeparator:
		return "separator"
	case RuleColumns:
		return "columns"
	case RuleKeyword:
		return "keyword"
	case RuleExcess:
		return "excess"
	}
	return "none"
}
