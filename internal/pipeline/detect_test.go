package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

func TestDetectSource(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"Isracard_2024_03.xlsx", "isracard"},
		{"פירוט ישראכרט מרץ.xlsx", "isracard"},
		{"max-export.csv", "max"},
		{"MAX VISA.csv", "max"},
		{"visa-cal.pdf", "visa"},
		{"דף חשבון מזרחי טפחות.pdf", "mizrahi"},
		{"releve-banque.csv", "bank"},
		{"statement.csv", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectSource(tt.filename).Key)
		})
	}
	assert.Equal(t, domain.DetectedSource{Key: "unknown", Label: "Unknown source"}, DetectSource(""))
	assert.Equal(t, "Mizrahi-Tefahot", DetectSource("mizrahi.pdf").Label)
}

func TestFileTypeOf(t *testing.T) {
	assert.Equal(t, domain.FileTypeCSV, FileTypeOf("a.CSV"))
	assert.Equal(t, domain.FileTypeXLSX, FileTypeOf("dir/a.xlsx"))
	assert.Equal(t, domain.FileTypePDF, FileTypeOf("a.pdf"))
	assert.Equal(t, domain.FileTypeUnknown, FileTypeOf("a.xls"))
	assert.Equal(t, domain.FileTypeUnknown, FileTypeOf("noext"))
}

func TestIsHebrewSource(t *testing.T) {
	for _, k := range []string{"isracard", "max", "visa", "mizrahi"} {
		assert.True(t, IsHebrewSource(k), k)
	}
	assert.False(t, IsHebrewSource("bank"))
	assert.False(t, IsHebrewSource("unknown"))
}

func TestEstimateTransactions(t *testing.T) {
	assert.Equal(t, 0, EstimateTransactions(0))
	assert.Equal(t, 25, EstimateTransactions(49_999))
	assert.Equal(t, 80, EstimateTransactions(50_000))
	assert.Equal(t, 80, EstimateTransactions(249_999))
	assert.Equal(t, 150, EstimateTransactions(250_000))
}
