package models

// DividendSymbolSummary holds the aggregated distributions of a symbol in a year.
type DividendSymbolSummary struct {
	GrossAmt        float64 `json:"gross_amt"`
	ReturnOfCapital float64 `json:"return_of_capital"`
	Income          float64 `json:"income"`
	Count           int     `json:"count"`
}

// DividendSummaryResult is map[Year]map[Symbol]DividendSymbolSummary.
type DividendSummaryResult map[string]map[string]DividendSymbolSummary
