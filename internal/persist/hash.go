package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

const unknownSource = "unknown"

// HashTransaction is the content hash that identifies a transaction of a
// user: hex SHA-256 of "date|merchant|amount|currency|source".
func HashTransaction(date, merchant string, amount decimal.Decimal, currency, sourceID string) string {
	if sourceID == "" {
		sourceID = unknownSource
	}
	payload := strings.Join([]string{date, merchant, amount.String(), currency, sourceID}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
