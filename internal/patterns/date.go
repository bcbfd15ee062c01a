// Package patterns holds the small text grammar used to pull dates, amounts,
// currencies and installment notes out of statement cells and free-form PDF
// lines.
package patterns

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	dmyDatePattern = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)

	// D/M/YY, DD.MM.YYYY, DD-MM-YYYY: only accepted for whole cells.
	looseDMYPattern = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2}|\d{4})$`)

	excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
)

// DateMatch is a date found inside a longer text.
type DateMatch struct {
	Value string // YYYY-MM-DD
	Raw   string // substring as it appeared in the text
}

// FindDate looks for an ISO date first, then DD/MM/YYYY.
func FindDate(text string) (DateMatch, bool) {
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		if v, ok := validDate(m[1], m[2], m[3]); ok {
			return DateMatch{Value: v, Raw: m[0]}, true
		}
	}
	if m := dmyDatePattern.FindStringSubmatch(text); m != nil {
		if v, ok := validDate(m[3], m[2], m[1]); ok {
			return DateMatch{Value: v, Raw: m[0]}, true
		}
	}
	return DateMatch{}, false
}

func validDate(year, month, day string) (string, bool) {
	v := fmt.Sprintf("%s-%s-%s", year, month, day)
	if _, err := time.Parse("2006-01-02", v); err != nil {
		return "", false
	}
	return v, true
}

// ParseDate extracts a YYYY-MM-DD date from a cell holding ISO or DD/MM/YYYY.
func ParseDate(text string) (string, bool) {
	m, ok := FindDate(strings.TrimSpace(text))
	return m.Value, ok
}

// ParseLooseDate accepts everything ParseDate does plus D/M/YY, DD.MM.YYYY and
// DD-MM-YYYY whole cells. Two-digit years are read as 20YY.
func ParseLooseDate(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if v, ok := ParseDate(text); ok {
		return v, true
	}
	m := looseDMYPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return "", false
	}
	return d.Format("2006-01-02"), true
}

// ExcelSerialToDate converts a spreadsheet serial day number (1900 date
// system) to YYYY-MM-DD.
func ExcelSerialToDate(serial float64) (string, bool) {
	if serial < 1 || serial > 2958465 {
		return "", false
	}
	days := int(serial)
	return excelEpoch.AddDate(0, 0, days).Format("2006-01-02"), true
}

// ParseSpreadsheetDate handles cells coming from a workbook read with raw
// values: text dates, or numeric serials.
func ParseSpreadsheetDate(cell string) (string, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return "", false
	}
	if v, ok := ParseDate(cell); ok {
		return v, true
	}
	if serial, err := strconv.ParseFloat(cell, 64); err == nil {
		return ExcelSerialToDate(serial)
	}
	if t, err := time.Parse(time.RFC3339, cell); err == nil {
		return t.UTC().Format("2006-01-02"), true
	}
	return "", false
}
