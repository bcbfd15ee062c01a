package parsers

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeHeader lower-cases and NFC-normalizes a header cell so that
// decomposed accents ("e" + U+0301) match the aliases.
func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

func containsAny(value string, aliases []string) bool {
	for _, a := range aliases {
		if strings.Contains(value, a) {
			return true
		}
	}
	return false
}

// columnMap maps logical column names to indexes; missing columns are -1.
type columnMap map[string]int

func (m columnMap) index(name string) int {
	if i, ok := m[name]; ok {
		return i
	}
	return -1
}

func (m columnMap) has(names ...string) bool {
	for _, n := range names {
		if _, ok := m[n]; !ok {
			return false
		}
	}
	return true
}

// mapColumns assigns each header cell to every alias group it matches; a later
// column wins over an earlier one.
func mapColumns(header []string, aliases map[string][]string, normalize func(string) string) columnMap {
	m := columnMap{}
	for i, raw := range header {
		v := normalize(raw)
		if v == "" {
			continue
		}
		for name, list := range aliases {
			if containsAny(v, list) {
				m[name] = i
			}
		}
	}
	return m
}
