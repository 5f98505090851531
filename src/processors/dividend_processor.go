package processors

import (
	"strconv"

	"github.com/username/folioledger/backend/src/models"
)

// dividendProcessorImpl implements the DividendProcessor interface.
type dividendProcessorImpl struct{}

// NewDividendProcessor creates a new instance of DividendProcessor.
func NewDividendProcessor() DividendProcessor {
	return &dividendProcessorImpl{}
}

// CalculateSummary aggregates distributions per year and symbol, splitting out the
// return-of-capital part the ledger absorbed into cost basis.
func (p *dividendProcessorImpl) CalculateSummary(ledgers map[string]*models.SymbolLedger) models.DividendSummaryResult {
	result := make(models.DividendSummaryResult)

	for symbol, ledger := range ledgers {
		for _, div := range ledger.Dividends {
			year := strconv.Itoa(div.Date.Year())
			if _, ok := result[year]; !ok {
				result[year] = make(map[string]models.DividendSymbolSummary)
			}

			summary := result[year][symbol]
			summary.GrossAmt += div.Amount
			summary.ReturnOfCapital += div.ReturnOfCapital
			summary.Income += div.Income()
			summary.Count++
			result[year][symbol] = summary
		}
	}

	return result
}
