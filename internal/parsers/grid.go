package parsers

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var lineBreak = regexp.MustCompile(`\r?\n`)

// Grid is a table of text cells with blank rows removed.
type Grid struct {
	Rows   [][]string
	Sample [][]string
}

func newGrid(rows [][]string) Grid {
	cleaned := make([][]string, 0, len(rows))
	for _, r := range rows {
		if !isBlankRow(r) {
			cleaned = append(cleaned, r)
		}
	}
	return Grid{Rows: cleaned, Sample: sample(cleaned)}
}

// ParseCSV splits delimited text into a grid. The delimiter is guessed from
// the first non-blank line among , ; tab and |.
func ParseCSV(data []byte) Grid {
	text := strings.TrimPrefix(string(data), "\ufeff")

	var lines []string
	for _, l := range lineBreak.Split(text, -1) {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return Grid{}
	}

	delim := detectDelimiter(lines[0])
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, splitDelimited(l, delim))
	}
	return newGrid(rows)
}

// detectDelimiter picks the most frequent candidate; ties keep the earlier
// candidate and no candidate at all means a comma.
func detectDelimiter(line string) rune {
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// splitDelimited tokenizes one line. Double quotes toggle quoting and "" inside
// quotes is a literal quote. Cells are trimmed.
func splitDelimited(line string, delim rune) []string {
	var (
		out      []string
		current  strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case ch == delim && !inQuotes:
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	return append(out, strings.TrimSpace(current.String()))
}

// ParseXLSX reads the first sheet of a workbook. Cells are returned as raw
// values, so dates arrive as spreadsheet serial numbers.
func ParseXLSX(data []byte) (Grid, []string) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Grid{}, []string{fmt.Sprintf("unreadable XLSX workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Grid{}, []string{"no XLSX sheet found"}
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Grid{}, []string{fmt.Sprintf("unreadable XLSX sheet %q: %v", sheets[0], err)}
	}
	for _, r := range rows {
		for i := range r {
			r[i] = strings.TrimSpace(r[i])
		}
	}
	return newGrid(rows), nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
