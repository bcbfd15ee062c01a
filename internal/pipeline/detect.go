package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

type sourceHint struct {
	key    string
	label  string
	tokens []string
}

// sourceHints are checked in order; the first hint with a token contained
// in the lower-cased filename wins.
var sourceHints = []sourceHint{
	{key: "isracard", label: "Isracard", tokens: []string{"isracard", "ישראכרט"}},
	{key: "max", label: "Max", tokens: []string{"max", "מקס"}},
	{key: "visa", label: "Visa", tokens: []string{"visa", "ויזה"}},
	{key: "mizrahi", label: "Mizrahi-Tefahot", tokens: []string{"מזרחי", "טפחות", "mizrahi", "tefahot"}},
	{key: "bank", label: "Bank (generic)", tokens: []string{"bank", "banque"}},
}

var unknownSource = domain.DetectedSource{Key: "unknown", Label: "Unknown source"}

// DetectSource guesses the issuer of a statement from its filename.
func DetectSource(filename string) domain.DetectedSource {
	lower := strings.ToLower(filename)
	for _, h := range sourceHints {
		for _, token := range h.tokens {
			if strings.Contains(lower, token) {
				return domain.DetectedSource{Key: h.key, Label: h.label}
			}
		}
	}
	return unknownSource
}

// FileTypeOf maps a filename extension to a file type.
func FileTypeOf(filename string) domain.FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return domain.FileTypeCSV
	case ".xlsx":
		return domain.FileTypeXLSX
	case ".pdf":
		return domain.FileTypePDF
	default:
		return domain.FileTypeUnknown
	}
}

// IsHebrewSource reports whether exports of the source use the Hebrew
// spreadsheet layout.
func IsHebrewSource(key string) bool {
	switch key {
	case "isracard", "max", "visa", "mizrahi":
		return true
	}
	return false
}
