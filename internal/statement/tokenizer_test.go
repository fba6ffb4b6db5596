package statement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/stmtledger/internal/model"
)

func tokenize(t *testing.T, text string) (Line, []ParseWarning) {
	t.Helper()
	tz := Tokenizer{Separators: DefaultSeparators}
	return tz.Tokenize(model.RawLine{Document: "stmt.txt", Page: 1, Line: 1, Text: text})
}

func kinds(l Line) []TokenKind {
	var out []TokenKind
	for _, tok := range l.Tokens {
		out = append(out, tok.Kind)
	}
	return out
}

func amountStrings(l Line) []string {
	var out []string
	for _, tok := range l.Amounts() {
		out = append(out, tok.Amount.StringFixed(2))
	}
	return out
}

func TestTokenize_TransactionLine(t *testing.T) {
	l, warns := tokenize(t, "Jan 3 PURCHASE 63.50 7,113.84")
	assert.Empty(t, warns)
	assert.Equal(t, []TokenKind{TokenDate, TokenText, TokenAmount, TokenAmount}, kinds(l))

	md, ok := l.Date()
	require.True(t, ok)
	assert.Equal(t, MonthDay{Month: time.January, Day: 3}, md)
	assert.Equal(t, "PURCHASE", l.Text())
	assert.Equal(t, []string{"63.50", "7113.84"}, amountStrings(l))
}

func TestTokenize_DateForms(t *testing.T) {
	tests := []struct {
		text string
		want MonthDay
		ok   bool
	}{
		{"Jan 3 X", MonthDay{time.January, 3}, true},
		{"JANUARY 31 X", MonthDay{time.January, 31}, true},
		{"Sept 9 X", MonthDay{time.September, 9}, true},
		{"Jan l4 X", MonthDay{time.January, 14}, true},
		{"JAN03 X", MonthDay{time.January, 3}, true},
		{"01|07 X", MonthDay{time.January, 7}, true},
		{"12/31 X", MonthDay{time.December, 31}, true},
		{"0107 X", MonthDay{time.January, 7}, true},
		{"| Jan 3 | X", MonthDay{time.January, 3}, true},
		{"0107", MonthDay{}, false},
		{"2025 ANNUAL FEE", MonthDay{}, false},
		{"Feb 29 X", MonthDay{time.February, 29}, true},
		{"Feb 30 X", MonthDay{}, false},
		{"Apr 31 X", MonthDay{}, false},
		{"May BE LATE", MonthDay{}, false},
		{"Janitor 3 X", MonthDay{}, false},
		{"13/01 X", MonthDay{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			l, _ := tokenize(t, tt.text)
			md, ok := l.Date()
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, md)
			}
		})
	}
}

func TestTokenize_Amounts(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   []string
		marker SignMarker
	}{
		{"plain", "X 63.50", []string{"63.50"}, MarkerNone},
		{"thousands", "X 1,234,567.89", []string{"1234567.89"}, MarkerNone},
		{"currency", "X $1,234.56", []string{"1234.56"}, MarkerNone},
		{"parentheses", "X (63.50)", []string{"-63.50"}, MarkerNone},
		{"leading minus", "X -63.50", []string{"-63.50"}, MarkerNone},
		{"trailing minus", "X 63.50-", []string{"-63.50"}, MarkerNone},
		{"credit marker", "X 756.14CR", []string{"756.14"}, MarkerCredit},
		{"debit marker", "X 120.00DR", []string{"120.00"}, MarkerDebit},
		{"ocr letters", "X 7,ll3.84 1O.5O", []string{"7113.84", "10.50"}, MarkerNone},
		{"space thousands", "X 63.50 7 113.84", []string{"63.50", "7113.84"}, MarkerNone},
		{"space thousands after date", "Jan 3 1 000.00", []string{"1000.00"}, MarkerNone},
		{"pipes", "| X | 63.50 | 7,113.84 |", []string{"63.50", "7113.84"}, MarkerNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, warns := tokenize(t, tt.text)
			assert.Empty(t, warns)
			assert.Equal(t, tt.want, amountStrings(l))
			assert.Equal(t, tt.marker, l.Amounts()[0].Marker)
		})
	}
}

func TestTokenize_SpaceThousandsNotAfterText(t *testing.T) {
	l, _ := tokenize(t, "STORE 7 113.84")
	assert.Equal(t, "STORE 7", l.Text())
	assert.Equal(t, []string{"113.84"}, amountStrings(l))
}

func TestTokenize_TextStaysText(t *testing.T) {
	l, warns := tokenize(t, "CHQ 1234 STORE #0412 1ST AVE lO.OO")
	assert.Empty(t, warns)
	assert.Empty(t, l.Amounts())
	assert.Equal(t, "CHQ 1234 STORE #0412 1ST AVE lO.OO", l.Text())
	assert.True(t, l.Noise())
}

func TestTokenize_InvalidAmountDropped(t *testing.T) {
	l, warns := tokenize(t, "Jan 3 PURCHASE 63.5 12.345 7,113.84")
	require.Len(t, warns, 2)
	assert.Equal(t, "63.5", warns[0].Text)
	assert.Equal(t, "12.345", warns[1].Text)
	assert.Equal(t, 1, warns[0].Line)
	assert.Equal(t, []string{"7113.84"}, amountStrings(l))
}

func TestTokenize_Separator(t *testing.T) {
	l, _ := tokenize(t, "Jul 12 AUTO LEASE HEFFNER 2525.25 1475.25 ... ~ 9000.00")
	assert.Equal(t, []TokenKind{
		TokenDate, TokenText, TokenText, TokenText,
		TokenAmount, TokenAmount, TokenSeparator, TokenAmount,
	}, kinds(l))

	attached, _ := tokenize(t, "X 1475.25→9000.00")
	assert.Equal(t, []TokenKind{TokenText, TokenAmount, TokenSeparator, TokenAmount}, kinds(attached))
}

func TestTokenize_NoSeparatorsConfigured(t *testing.T) {
	l, _ := Tokenizer{}.Tokenize(model.RawLine{Text: "X 1.00 ~ 2.00"})
	assert.Equal(t, []TokenKind{TokenText, TokenAmount, TokenText, TokenAmount}, kinds(l))
}
