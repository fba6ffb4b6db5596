package id

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan3 = time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestContentHash_WhitespaceInsensitive(t *testing.T) {
	a := ContentHash("chk", jan3, "PURCHASE  SHELL   #42", dec("-63.50"))
	b := ContentHash("chk", jan3, " PURCHASE SHELL #42\t", dec("-63.5"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestContentHash_Differs(t *testing.T) {
	base := ContentHash("chk", jan3, "PURCHASE", dec("-63.50"))

	tests := []struct {
		name string
		hash string
	}{
		{"one cent", ContentHash("chk", jan3, "PURCHASE", dec("-63.51"))},
		{"sign", ContentHash("chk", jan3, "PURCHASE", dec("63.50"))},
		{"account", ContentHash("sav", jan3, "PURCHASE", dec("-63.50"))},
		{"date", ContentHash("chk", jan3.AddDate(0, 0, 1), "PURCHASE", dec("-63.50"))},
		{"description", ContentHash("chk", jan3, "PURCHASE 2", dec("-63.50"))},
	}
	for _, tt := range tests {
		assert.NotEqual(t, base, tt.hash, tt.name)
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	first := ContentHash("chk", jan3, "X", dec("1"))
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, ContentHash("chk", jan3, "X", dec("1.00")))
	}
	// Zero is unsigned.
	assert.Equal(t, ContentHash("chk", jan3, "X", dec("0")), ContentHash("chk", jan3, "X", dec("-0")))
}

func TestNormalizeSpace(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  a   b  ", "a b"},
		{"a\tb\nc", "a b c"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSpace(tt.input))
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestBackupIDRoundTrip(t *testing.T) {
	at := time.Date(2025, 2, 1, 9, 30, 15, 0, time.UTC)
	backupID := FormatBackupID("biz_chk", at)
	assert.Equal(t, "biz_chk_20250201T093015Z", backupID)

	acct, got, err := ParseBackupID(backupID)
	require.NoError(t, err)
	assert.Equal(t, "biz_chk", acct)
	assert.True(t, at.Equal(got))
}

func TestParseBackupID_Errors(t *testing.T) {
	badInputs := []string{
		"",
		"noseparator",
		"_20250201T093015Z",
		"chk_",
		"chk_2025-02-01",
	}
	for _, input := range badInputs {
		_, _, err := ParseBackupID(input)
		assert.Error(t, err, "expected error for input: %s", input)
	}
}

func TestValidateAccountID(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"biz_chk", true},
		{"chk-001", true},
		{"CAD.savings", true},
		{"", false},
		{"biz/chk", false},
		{"../chk", false},
		{".hidden", false},
		{"my account", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateAccountID(tt.input)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
