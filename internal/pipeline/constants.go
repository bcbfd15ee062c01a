package pipeline

const (
	maxSampleTransactions = 10

	warnNoTransactions = "no transactions detected, check the file format or type"
	warnEmptyXLSX      = "no XLSX rows detected, check the file"
)

// Size buckets used to estimate the transaction count of files nothing could
// be extracted from.
const (
	smallFileBytes  = 50_000
	mediumFileBytes = 250_000

	smallFileEstimate  = 25
	mediumFileEstimate = 80
	largeFileEstimate  = 150
)
