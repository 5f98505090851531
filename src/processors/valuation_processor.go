package processors

import (
	"math"

	"github.com/username/folioledger/backend/src/models"
)

type valuationProcessorImpl struct{}

func NewValuationProcessor() ValuationProcessor {
	return &valuationProcessorImpl{}
}

// BuildHoldings turns open lots into holdings ordered by symbol.
func (p *valuationProcessorImpl) BuildHoldings(ledgers map[string]*models.SymbolLedger, prices map[string]models.PriceInfo) models.HoldingsResult {
	result := models.HoldingsResult{
		Holdings: []models.Holding{},
		Warnings: []*models.PriceUnavailableError{},
	}

	var total float64
	for _, symbol := range sortedLedgerSymbols(ledgers) {
		ledger := ledgers[symbol]
		units := ledger.OpenUnits()
		if len(ledger.Lots) == 0 || math.Abs(units) <= quantityEpsilon {
			continue
		}

		holding := models.Holding{
			Symbol:       symbol,
			SecurityType: ledger.SecurityType,
			Units:        units,
			CostBasis:    ledger.OpenCost(),
			PriceStatus:  models.PriceStatusUnavailable,
		}
		price := resolvePrice(ledger, prices)
		if price.Available() {
			holding.LastPrice = price.Price
			holding.MarketValue = units * price.Price
			holding.PriceStatus = models.PriceStatusOK
		} else {
			result.Warnings = append(result.Warnings, unavailable(symbol, price))
		}
		total += holding.MarketValue
		result.Holdings = append(result.Holdings, holding)
	}

	for i := range result.Holdings {
		if total != 0 {
			result.Holdings[i].Weight = result.Holdings[i].MarketValue / total
		}
	}
	return result
}

func (p *valuationProcessorImpl) Allocation(holdings []models.Holding) models.Allocation {
	allocation := models.Allocation{
		Labels: make([]string, 0, len(holdings)),
		Values: make([]float64, 0, len(holdings)),
	}
	for _, h := range holdings {
		allocation.Labels = append(allocation.Labels, h.Symbol)
		allocation.Values = append(allocation.Values, h.Weight)
	}
	return allocation
}

