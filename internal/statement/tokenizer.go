package statement

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// TokenKind classifies a token produced by the Tokenizer.
type TokenKind int

const (
	TokenText TokenKind = iota
	TokenDate
	TokenAmount
	TokenSeparator
)

// SignMarker is an explicit credit/debit suffix printed next to an amount.
type SignMarker int

const (
	MarkerNone SignMarker = iota
	MarkerCredit
	MarkerDebit
)

// MonthDay is a calendar date without a year, as most statements print it.
type MonthDay struct {
	Month time.Month
	Day   int
}

// Token is one date, amount, separator or text fragment of a line.
type Token struct {
	Kind   TokenKind
	Text   string
	Date   MonthDay
	Amount decimal.Decimal // signed as printed
	Marker SignMarker
}

// Line is a tokenized RawLine. Tokens keep their left-to-right order.
type Line struct {
	Raw    model.RawLine
	Tokens []Token
}

// HasDate reports whether the line begins with a date token.
func (l Line) HasDate() bool {
	return len(l.Tokens) > 0 && l.Tokens[0].Kind == TokenDate
}

// Date returns the leading date token's value.
func (l Line) Date() (MonthDay, bool) {
	if !l.HasDate() {
		return MonthDay{}, false
	}
	return l.Tokens[0].Date, true
}

// Amounts returns the amount tokens in source order.
func (l Line) Amounts() []Token {
	var out []Token
	for _, t := range l.Tokens {
		if t.Kind == TokenAmount {
			out = append(out, t)
		}
	}
	return out
}

// Text joins the text fragments with single spaces.
func (l Line) Text() string {
	var parts []string
	for _, t := range l.Tokens {
		if t.Kind == TokenText {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Noise reports whether the line carries neither a date nor an amount.
func (l Line) Noise() bool {
	if l.HasDate() {
		return false
	}
	for _, t := range l.Tokens {
		if t.Kind == TokenAmount {
			return false
		}
	}
	return true
}

// sepMark replaces separator glyphs before splitting; it never occurs in
// statement text.
const sepMark = "\x1f"

var (
	amountRe       = regexp.MustCompile(`^(\d{1,3}(,\d{3})+|\d+)\.\d{2}$`)
	numericLikeRe  = regexp.MustCompile(`^[\d,.]+$`)
	thousandsHead  = regexp.MustCompile(`^\d{1,3}$`)
	thousandsTail  = regexp.MustCompile(`(?i)^\d{3}\.\d{2}(cr|dr|-)?$`)
	slashDateRe    = regexp.MustCompile(`^(\d{1,2})[|/-](\d{1,2})$`)
	compactDateRe  = regexp.MustCompile(`^(\d{2})(\d{2})$`)
	joinedMonthRe  = regexp.MustCompile(`^([A-Za-z]{3,9})\.?(\d{1,2})$`)
	fillerRe       = regexp.MustCompile(`^[.\-*_=·…]+$`)
	currencySymbol = strings.NewReplacer("$", "", "£", "", "€", "")
	ocrDigits      = strings.NewReplacer("o", "0", "O", "0", "l", "1", "I", "1", "!", "1")
)

var monthAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Tokenizer splits raw lines into date, amount, separator and text tokens.
type Tokenizer struct {
	// Separators are column separator glyphs; the token after one is the balance.
	Separators []string
}

// DefaultSeparators are the column separator glyphs recognised out of the box.
var DefaultSeparators = []string{"~", "→"}

// Tokenize splits one raw line. Numeric-looking tokens that are not valid
// amounts are dropped and reported as warnings.
func (tz Tokenizer) Tokenize(raw model.RawLine) (Line, []ParseWarning) {
	text := raw.Text
	for _, sep := range tz.Separators {
		if sep != "" {
			text = strings.ReplaceAll(text, sep, " "+sepMark+" ")
		}
	}

	var fields []string
	for _, f := range strings.Fields(text) {
		if f = strings.Trim(f, "|"); f != "" {
			fields = append(fields, f)
		}
	}

	line := Line{Raw: raw}
	var warnings []ParseWarning

	start := 0
	if md, n, ok := tz.leadingDate(fields); ok {
		line.Tokens = append(line.Tokens, Token{Kind: TokenDate, Text: strings.Join(fields[:n], " "), Date: md})
		start = n
	}

	// Column rulings leave pipes inside fields too.
	var rest []string
	for _, f := range fields[start:] {
		rest = append(rest, strings.FieldsFunc(f, func(r rune) bool { return r == '|' })...)
	}

	for i := 0; i < len(rest); i++ {
		f := rest[i]
		if f == sepMark {
			line.Tokens = append(line.Tokens, Token{Kind: TokenSeparator, Text: f})
			continue
		}
		if fillerRe.MatchString(f) {
			continue
		}

		if i+1 < len(rest) && thousandsHead.MatchString(f) && thousandsTail.MatchString(rest[i+1]) && !afterText(line.Tokens) {
			joined := f + "," + rest[i+1]
			if amt, marker, _, ok := parseAmount(joined); ok {
				line.Tokens = append(line.Tokens, Token{Kind: TokenAmount, Text: f + " " + rest[i+1], Amount: amt, Marker: marker})
				i++
				continue
			}
		}

		amt, marker, numeric, ok := parseAmount(f)
		switch {
		case ok:
			line.Tokens = append(line.Tokens, Token{Kind: TokenAmount, Text: f, Amount: amt, Marker: marker})
		case numeric:
			warnings = append(warnings, ParseWarning{
				Document: raw.Document,
				Line:     raw.Line,
				Text:     f,
				Reason:   "unparseable amount dropped",
			})
		default:
			line.Tokens = append(line.Tokens, Token{Kind: TokenText, Text: f})
		}
	}
	return line, warnings
}

func afterText(tokens []Token) bool {
	return len(tokens) > 0 && tokens[len(tokens)-1].Kind == TokenText
}

// leadingDate recognises "Jan 3", "JAN03", "01|07", "01/07" and "0107" at
// the start of a line. It returns the number of fields consumed.
func (tz Tokenizer) leadingDate(fields []string) (MonthDay, int, bool) {
	if len(fields) == 0 {
		return MonthDay{}, 0, false
	}
	first := fields[0]

	if m, ok := parseMonthName(first); ok && len(fields) > 1 {
		if d, ok := parseDay(fields[1]); ok && validDate(m, d) {
			return MonthDay{Month: m, Day: d}, 2, true
		}
	}
	if sm := joinedMonthRe.FindStringSubmatch(first); sm != nil {
		if m, ok := parseMonthName(sm[1]); ok {
			if d, ok := parseDay(sm[2]); ok && validDate(m, d) {
				return MonthDay{Month: m, Day: d}, 1, true
			}
		}
	}
	if sm := slashDateRe.FindStringSubmatch(first); sm != nil {
		if md, ok := tz.monthDay(sm[1], sm[2]); ok {
			return md, 1, true
		}
	}
	// A bare four-digit MMDD needs something after it to be a record.
	if sm := compactDateRe.FindStringSubmatch(first); sm != nil && len(fields) > 1 {
		if md, ok := tz.monthDay(sm[1], sm[2]); ok {
			return md, 1, true
		}
	}
	return MonthDay{}, 0, false
}

func (tz Tokenizer) monthDay(month, day string) (MonthDay, bool) {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return MonthDay{}, false
	}
	d, ok := parseDay(day)
	if !ok || !validDate(time.Month(m), d) {
		return MonthDay{}, false
	}
	return MonthDay{Month: time.Month(m), Day: d}, true
}

// validDate accepts any day that exists in a leap year. Whether Feb 29 exists
// in the statement's year is decided when the year is known.
func validDate(m time.Month, d int) bool {
	return time.Date(2000, m, d, 0, 0, 0, 0, time.UTC).Day() == d
}

func parseMonthName(s string) (time.Month, bool) {
	s = strings.ToLower(strings.TrimRight(s, ".,"))
	if len(s) < 3 {
		return 0, false
	}
	m, ok := monthAbbrev[s[:3]]
	if !ok || !strings.HasPrefix(strings.ToLower(m.String()), s) {
		return 0, false
	}
	return m, true
}

func parseDay(s string) (int, bool) {
	s = strings.TrimRight(s, ".,")
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	d, err := strconv.Atoi(ocrDigits.Replace(s))
	if err != nil || d < 1 || d > 31 {
		return 0, false
	}
	return d, true
}

// parseAmount reads a monetary token. numeric is true when the token looks
// like a number but is not a valid amount.
func parseAmount(f string) (amt decimal.Decimal, marker SignMarker, numeric, ok bool) {
	s := currencySymbol.Replace(f)

	if len(s) > 2 {
		switch strings.ToUpper(s[len(s)-2:]) {
		case "CR":
			marker, s = MarkerCredit, s[:len(s)-2]
		case "DR":
			marker, s = MarkerDebit, s[:len(s)-2]
		}
	}

	neg := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		neg, s = true, s[1:len(s)-1]
	case strings.HasPrefix(s, "-"):
		neg, s = true, s[1:]
	case strings.HasSuffix(s, "-"):
		neg, s = true, s[:len(s)-1]
	}
	s = currencySymbol.Replace(s)

	if !strings.ContainsAny(s, "0123456789") {
		return decimal.Zero, MarkerNone, false, false
	}
	s = ocrDigits.Replace(s)

	if !amountRe.MatchString(s) {
		return decimal.Zero, MarkerNone, numericLikeRe.MatchString(s) && strings.Contains(s, "."), false
	}
	amt, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, MarkerNone, true, false
	}
	if neg {
		amt = amt.Neg()
	}
	return amt, marker, true, true
}
