package patterns

import "strings"

// DetectCurrency maps the first currency marker found in text to its ISO
// code. Shekel is checked first since Israeli exports mix symbols in notes.
func DetectCurrency(text, fallback string) string {
	switch {
	case strings.Contains(text, "₪"):
		return "ILS"
	case strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(text, "$"), strings.Contains(strings.ToUpper(text), "USD"):
		return "USD"
	case strings.Contains(strings.ToUpper(text), "CHF"):
		return "CHF"
	}
	return fallback
}
