// Package cells parses the loosely formatted text that dashboard spreadsheets
// put in their cells: grouped numbers, percentages with a sample count,
// currency amounts with a trailing window total, and durations.
//
// Every parser returns the zero Value and false when the text does not match;
// callers treat that as "absent" and default to zero.
package cells

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind tags what a cell was recognized as.
type Kind string

// Recognized kinds.
const (
	KindEmpty          Kind = "empty"
	KindText           Kind = "text"
	KindNumber         Kind = "number"
	KindPercent        Kind = "percent"
	KindPercentCount   Kind = "percent_count"
	KindCurrency       Kind = "currency"
	KindCurrencyWindow Kind = "currency_window"
	KindDuration       Kind = "duration"
)

// Value is a parsed cell.
//
// Number holds the primary quantity: the plain number, the percentage in
// percent points (12.5 for "12.5%"), the currency amount, or the duration in
// seconds.
type Value struct {
	Raw        string  `json:"raw"`
	Kind       Kind    `json:"kind"`
	Number     float64 `json:"value"`
	Count      int     `json:"count,omitempty"`
	Window     float64 `json:"window,omitempty"`
	WindowDays int     `json:"window_days,omitempty"`
	Currency   string  `json:"currency,omitempty"`
}

// Numeric reports whether the value carries a usable number.
func (v Value) Numeric() bool {
	return v.Kind != KindEmpty && v.Kind != KindText
}

var (
	percentRe        = regexp.MustCompile(`^([-+]?[\d,. ]*\d)\s*%$`)
	percentCountRe   = regexp.MustCompile(`^([-+]?[\d,. ]*\d)\s*%\s*\(\s*([\d,]+)\s*\)$`)
	currencyRe       = regexp.MustCompile(`^([-+]?)\s*([$€£¥₹])\s*([-+]?[\d,. ]*\d)$`)
	currencySuffixRe = regexp.MustCompile(`^([-+]?[\d,. ]*\d)\s*([$€£¥₹]|USD|EUR|GBP)$`)
	currencyWindowRe = regexp.MustCompile(`(?i)^(.+?)\s*\(\s*(?:last|past)\s+(\d+)\s+days?\s*:?\s*(.+?)\s*\)$`)
	clockRe          = regexp.MustCompile(`^(\d+):([0-5]\d)(?::([0-5]\d))?$`)
	unitDurationRe   = regexp.MustCompile(`(?i)^(?:(\d+(?:\.\d+)?)\s*h(?:rs?|ours?)?)?\s*(?:(\d+(?:\.\d+)?)\s*m(?:in(?:ute)?s?)?)?\s*(?:(\d+(?:\.\d+)?)\s*s(?:ec(?:ond)?s?)?)?$`)
)

// blanks are placeholders spreadsheets use for "no data".
var blanks = map[string]struct{}{ //nolint:gochecknoglobals // static lookup
	"": {}, "-": {}, "—": {}, "–": {}, "n/a": {}, "na": {}, "#n/a": {}, "#div/0!": {},
	"#value!": {}, "#ref!": {}, "#error!": {}, "#num!": {}, "null": {}, "none": {},
}

// IsBlank reports whether s is empty or a spreadsheet "no data" marker.
func IsBlank(s string) bool {
	_, ok := blanks[strings.ToLower(clean(s))]
	return ok
}

// clean trims and normalizes the non-breaking and thin spaces Sheets emits
// for locale-formatted numbers.
func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u00a0', '\u2009', '\u202f':
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// number parses digits with comma or space thousands separators.
func number(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || !strings.ContainsAny(s, "0123456789") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseNumber parses "1,234", "1 234.5", "-12" and the accounting form "(12)".
// A signed number inside parentheses is rejected.
func ParseNumber(s string) (Value, bool) {
	raw := s
	s = clean(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return Value{}, false
		}
	}
	f, ok := number(s)
	if !ok {
		return Value{}, false
	}
	if neg {
		f = -f
	}
	return Value{Raw: raw, Kind: KindNumber, Number: f}, true
}

// ParsePercent parses "12.5%" into 12.5.
func ParsePercent(s string) (Value, bool) {
	m := percentRe.FindStringSubmatch(clean(s))
	if m == nil {
		return Value{}, false
	}
	f, ok := number(m[1])
	if !ok {
		return Value{}, false
	}
	return Value{Raw: s, Kind: KindPercent, Number: f}, true
}

// ParsePercentCount parses "3.67%(9)" into 3.67 with count 9.
func ParsePercentCount(s string) (Value, bool) {
	m := percentCountRe.FindStringSubmatch(clean(s))
	if m == nil {
		return Value{}, false
	}
	f, ok := number(m[1])
	if !ok {
		return Value{}, false
	}
	c, ok := number(m[2])
	if !ok {
		return Value{}, false
	}
	return Value{Raw: s, Kind: KindPercentCount, Number: f, Count: int(c)}, true
}

// ParseCurrency parses "$1,670", "-$5.20", "$-5.20", "€12" and "12 EUR".
func ParseCurrency(s string) (Value, bool) {
	c := clean(s)
	if m := currencyRe.FindStringSubmatch(c); m != nil {
		f, ok := number(m[3])
		if !ok {
			return Value{}, false
		}
		if m[1] == "-" {
			f = -f
		}
		return Value{Raw: s, Kind: KindCurrency, Number: f, Currency: m[2]}, true
	}
	if m := currencySuffixRe.FindStringSubmatch(c); m != nil {
		f, ok := number(m[1])
		if !ok {
			return Value{}, false
		}
		return Value{Raw: s, Kind: KindCurrency, Number: f, Currency: m[2]}, true
	}
	return Value{}, false
}

// ParseCurrencyWindow parses "$32 (Last 30 days: $1,670)" into the current
// amount 32 and the window total 1670 over 30 days.
func ParseCurrencyWindow(s string) (Value, bool) {
	m := currencyWindowRe.FindStringSubmatch(clean(s))
	if m == nil {
		return Value{}, false
	}
	cur, ok := amount(m[1])
	if !ok {
		return Value{}, false
	}
	win, ok := amount(m[3])
	if !ok {
		return Value{}, false
	}
	days, _ := strconv.Atoi(m[2])
	currency := cur.Currency
	if currency == "" {
		currency = win.Currency
	}
	return Value{
		Raw:        s,
		Kind:       KindCurrencyWindow,
		Number:     cur.Number,
		Window:     win.Number,
		WindowDays: days,
		Currency:   currency,
	}, true
}

// amount accepts a currency or a bare number.
func amount(s string) (Value, bool) {
	if v, ok := ParseCurrency(s); ok {
		return v, true
	}
	return ParseNumber(s)
}

// ParseDuration parses "1:05", "1:02:03", "4m 12s", "90s" and "1h 5m" into seconds.
func ParseDuration(s string) (Value, bool) {
	c := clean(s)
	if c == "" {
		return Value{}, false
	}
	if m := clockRe.FindStringSubmatch(c); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		secs := float64(a*60 + b)
		if m[3] != "" {
			ss, _ := strconv.Atoi(m[3])
			secs = float64(a*3600 + b*60 + ss)
		}
		return Value{Raw: s, Kind: KindDuration, Number: secs}, true
	}
	m := unitDurationRe.FindStringSubmatch(c)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return Value{}, false
	}
	var secs float64
	for i, mult := range []float64{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		f, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return Value{}, false
		}
		secs += f * mult
	}
	return Value{Raw: s, Kind: KindDuration, Number: secs}, true
}

// Parse detects the cell format. More specific shapes are tried first so
// "3.67%(9)" is not read as a bare percentage.
func Parse(s string) Value {
	if IsBlank(s) {
		return Value{Raw: s, Kind: KindEmpty}
	}
	for _, p := range []func(string) (Value, bool){
		ParseCurrencyWindow,
		ParsePercentCount,
		ParsePercent,
		ParseCurrency,
		ParseDuration,
		ParseNumber,
	} {
		if v, ok := p(s); ok {
			return v
		}
	}
	return Value{Raw: s, Kind: KindText}
}

// ParseAs parses s with the parser for kind. Unknown kinds fall back to Parse.
func ParseAs(kind Kind, s string) (Value, bool) {
	switch kind {
	case KindNumber:
		return ParseNumber(s)
	case KindPercent:
		return ParsePercent(s)
	case KindPercentCount:
		return ParsePercentCount(s)
	case KindCurrency:
		return ParseCurrency(s)
	case KindCurrencyWindow:
		return ParseCurrencyWindow(s)
	case KindDuration:
		return ParseDuration(s)
	}
	v := Parse(s)
	return v, v.Numeric()
}
