package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindDate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantRaw string
		ok      bool
	}{
		{"iso", "2024-03-15 SUPER PHARM 120.00", "2024-03-15", "2024-03-15", true},
		{"dmy", "רמי לוי 15/03/2024 89.90", "2024-03-15", "15/03/2024", true},
		{"iso wins over dmy", "01/02/2024 2024-02-03", "2024-02-03", "2024-02-03", true},
		{"no date", "TOTAL 1,250.00", "", "", false},
		{"short year is not a pdf date", "15/03/24 CAFE", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := FindDate(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, m.Value)
			assert.Equal(t, tt.wantRaw, m.Raw)
		})
	}
}

func TestParseLooseDate(t *testing.T) {
	tests := map[string]string{
		"15/03/2024": "2024-03-15",
		"5/3/24":     "2024-03-05",
		"15.03.2024": "2024-03-15",
		"15-03-2024": "2024-03-15",
		"2024-03-15": "2024-03-15",
	}
	for in, want := range tests {
		got, ok := ParseLooseDate(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"31.04.2024", "13/13/2024", "hier", ""} {
		_, ok := ParseLooseDate(bad)
		assert.False(t, ok, bad)
	}
}

func TestExcelSerialToDate(t *testing.T) {
	got, ok := ExcelSerialToDate(45292)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01", got)

	got, ok = ExcelSerialToDate(45366.75)
	assert.True(t, ok)
	assert.Equal(t, "2024-03-15", got)

	_, ok = ExcelSerialToDate(0)
	assert.False(t, ok)
}

func TestParseSpreadsheetDate(t *testing.T) {
	tests := []struct {
		cell string
		want string
		ok   bool
	}{
		{"45366", "2024-03-15", true},
		{"15/03/2024", "2024-03-15", true},
		{" 2024-03-15 ", "2024-03-15", true},
		{"2024-03-15T10:00:00Z", "2024-03-15", true},
		{"שם בית עסק", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSpreadsheetDate(tt.cell)
		assert.Equal(t, tt.ok, ok, tt.cell)
		assert.Equal(t, tt.want, got, tt.cell)
	}
}

func TestFindDate_RejectsImpossibleDates(t *testing.T) {
	_, ok := FindDate("32/01/2024 COFFEE 12.00")
	assert.False(t, ok)
}
