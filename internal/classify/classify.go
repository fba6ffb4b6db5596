// Package classify tags transactions with an ordered (pattern, tag) table.
package classify

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// Sign restricts a rule to one direction of movement.
type Sign string

const (
	SignAny    Sign = "any"
	SignDebit  Sign = "debit"
	SignCredit Sign = "credit"
)

// Rule maps description patterns to a tag. Patterns are case-insensitive
// regular expressions; any one matching is enough.
type Rule struct {
	Tag      model.Classification `yaml:"tag"`
	Patterns []string             `yaml:"patterns"`
	Sign     Sign                 `yaml:"sign,omitempty"`

	compiled []*regexp.Regexp
}

func (r Rule) matches(desc string, signed decimal.Decimal) bool {
	switch r.Sign {
	case SignDebit:
		if !signed.IsNegative() {
			return false
		}
	case SignCredit:
		if !signed.IsPositive() {
			return false
		}
	}
	for _, re := range r.compiled {
		if re.MatchString(desc) {
			return true
		}
	}
	return false
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// New compiles rules into a Classifier.
func New(rules []Rule) (*Classifier, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if !r.Tag.Valid() {
			return nil, fmt.Errorf("rule %d: unknown tag %q", i+1, r.Tag)
		}
		switch r.Sign {
		case "":
			r.Sign = SignAny
		case SignAny, SignDebit, SignCredit:
		default:
			return nil, fmt.Errorf("rule %d: unknown sign %q", i+1, r.Sign)
		}
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("rule %d: no patterns", i+1)
		}
		r.compiled = make([]*regexp.Regexp, 0, len(r.Patterns))
		for _, p := range r.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("rule %d: compiling %q: %w", i+1, p, err)
			}
			r.compiled = append(r.compiled, re)
		}
		out = append(out, r)
	}
	return &Classifier{rules: out}, nil
}

// Classify is a pure function of description and signed amount.
func (c *Classifier) Classify(desc string, signed decimal.Decimal) model.Classification {
	for _, r := range c.rules {
		if r.matches(desc, signed) {
			return r.Tag
		}
	}
	return model.ClassUncategorized
}

// Apply tags every transaction in place.
func (c *Classifier) Apply(txns []model.Transaction) {
	for i := range txns {
		txns[i].Classification = c.Classify(txns[i].Description, txns[i].SignedAmount())
	}
}

// Rules returns a copy of the rule table.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}
