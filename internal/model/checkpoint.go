package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckpointBalance is an externally trusted balance used to audit a reconstruction.
type CheckpointBalance struct {
	AccountID       string
	AsOf            time.Time
	ExpectedBalance decimal.Decimal
	Source          string // provenance, e.g. "statement page 3 footer"
}
