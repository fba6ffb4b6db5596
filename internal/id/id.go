package id

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	hashDateFormat   = "2006-01-02"
	backupTimeFormat = "20060102T150405Z"
)

// ContentHash fingerprints a transaction's business key:
// account|date|description|amount|sign. Whitespace in the description is
// collapsed first, so wrapped and unwrapped renderings of a line agree.
func ContentHash(accountID string, date time.Time, description string, signed decimal.Decimal) string {
	sign := "+"
	if signed.IsNegative() {
		sign = "-"
	}
	key := strings.Join([]string{
		accountID,
		date.Format(hashDateFormat),
		NormalizeSpace(description),
		signed.Abs().StringFixed(2),
		sign,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NormalizeSpace trims s and collapses internal whitespace runs to one space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NewRunID returns a fresh import run identifier.
func NewRunID() string {
	return uuid.NewString()
}

var accountIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateAccountID rejects ids that cannot name a snapshot file: anything
// beyond letters, digits, dot, dash and underscore.
func ValidateAccountID(accountID string) error {
	if !accountIDRe.MatchString(accountID) {
		return fmt.Errorf("invalid account id %q: use letters, digits, '.', '-' or '_'", accountID)
	}
	return nil
}

// FormatBackupID returns a snapshot id like "chk-001_20250201T090000Z".
func FormatBackupID(accountID string, at time.Time) string {
	return accountID + "_" + at.UTC().Format(backupTimeFormat)
}

// ParseBackupID splits a snapshot id into account and timestamp.
func ParseBackupID(backupID string) (accountID string, at time.Time, err error) {
	i := strings.LastIndex(backupID, "_")
	if i <= 0 || i == len(backupID)-1 {
		return "", time.Time{}, fmt.Errorf("invalid backup ID format: %q", backupID)
	}
	at, err = time.Parse(backupTimeFormat, backupID[i+1:])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp in backup ID %q: %w", backupID, err)
	}
	return backupID[:i], at, nil
}
