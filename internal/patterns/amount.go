package patterns

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	nonAmountChars = regexp.MustCompile(`[^\d,.\-]`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	columnGap      = regexp.MustCompile(`\s{2,}`)
	lineAmount     = regexp.MustCompile(`([+-]?\d[\d,]*\.?\d*)\s?(₪|€|USD|CHF|\$)?`)
)

// AmountMatch is one amount found in a free-form line.
type AmountMatch struct {
	Raw      string
	Value    decimal.Decimal
	Currency string // empty when no symbol followed the number
}

// ParseFlexibleAmount reads spreadsheet amounts such as "1,234.50 ₪",
// "-45,90" or "1200". When both separators appear the comma is a thousands
// separator; a lone comma is the decimal mark.
func ParseFlexibleAmount(text string) (decimal.Decimal, bool) {
	s := nonAmountChars.ReplaceAllString(strings.TrimSpace(text), "")
	if s == "" {
		return decimal.Zero, false
	}
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ",", "")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	return toDecimal(s)
}

// ParseEuropeanAmount reads "1.234,56" style amounts. A single dot without a
// comma is kept as the decimal mark so "12.50" stays twelve and a half.
func ParseEuropeanAmount(text string) (decimal.Decimal, bool) {
	s := whitespaceRun.ReplaceAllString(text, "")
	if s == "" {
		return decimal.Zero, false
	}
	dots := strings.Count(s, ".")
	if strings.Contains(s, ",") || dots > 1 {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	return toDecimal(s)
}

// ParseFrenchAmount reads "1 234,56 €", "-12,00" or "1'234,56". Spaces,
// non-breaking spaces and apostrophes group thousands.
func ParseFrenchAmount(text string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(text)
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "", "€", "", "EUR", "").Replace(s)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.Trim(s, "()")
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	return toDecimal(s)
}

// FindAmounts returns every number in a line, left to right, with the
// currency symbol that directly follows it. Commas are thousands separators.
func FindAmounts(line string) []AmountMatch {
	var out []AmountMatch
	for _, m := range lineAmount.FindAllStringSubmatch(line, -1) {
		v, ok := toDecimal(strings.ReplaceAll(m[1], ",", ""))
		if !ok {
			continue
		}
		out = append(out, AmountMatch{Raw: m[0], Value: v, Currency: DetectCurrency(m[2], "")})
	}
	return out
}

// CollapseSpaces trims s and squeezes internal whitespace runs to one space.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// SplitColumns splits a text line into columns on runs of two or more spaces.
func SplitColumns(line string) []string {
	var parts []string
	for _, p := range columnGap.Split(line, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{line}
	}
	return parts
}

func toDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" || s == "+" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
