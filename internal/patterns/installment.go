package patterns

import (
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

var installmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`תשלום\s*(\d+)\s*מתוך\s*(\d+)`),
	regexp.MustCompile(`(?i)payment\s*(\d+)\s*of\s*(\d+)`),
}

// Installment is the "payment N of M" marker of a split purchase.
type Installment struct {
	Current int
	Total   int
}

// MatchInstallment finds a Hebrew or English installment note.
func MatchInstallment(text string) (Installment, bool) {
	for _, re := range installmentPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		current, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		return Installment{Current: current, Total: total}, true
	}
	return Installment{}, false
}

// RemainingInstallment is total minus monthly times the current payment number.
func RemainingInstallment(total, monthly decimal.Decimal, current int) decimal.Decimal {
	return total.Sub(monthly.Mul(decimal.NewFromInt(int64(current))))
}
