package statement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/model"
)

// Builder turns a dated, disambiguated candidate into transactions.
type Builder struct {
	AccountID string
}

// Build emits one transaction per movement. The printed balance belongs to
// the last one. A candidate without movement still yields one transaction.
func (b Builder) Build(c Candidate, date time.Time, r Resolution) []model.Transaction {
	desc := id.NormalizeSpace(c.Description())

	moves := r.Movements
	if len(moves) == 0 {
		moves = []Movement{{}}
	}

	out := make([]model.Transaction, 0, len(moves))
	for i, m := range moves {
		txn := model.Transaction{
			AccountID:      b.AccountID,
			Date:           date,
			Description:    desc,
			Classification: model.ClassUncategorized,
			Source:         c.Source,
		}
		if !m.Amount.IsZero() {
			if m.Direction == Deposit {
				txn.Deposit = decimal.NewNullDecimal(m.Amount)
			} else {
				txn.Withdrawal = decimal.NewNullDecimal(m.Amount)
			}
		}
		if i == len(moves)-1 {
			txn.StatedBalance = r.Balance
		}
		txn.ContentHash = id.ContentHash(b.AccountID, date, desc, txn.SignedAmount())
		out = append(out, txn)
	}
	return out
}
