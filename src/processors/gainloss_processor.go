package processors

import (
	"math"
	"sort"
	"time"

	"github.com/username/folioledger/backend/src/models"
)

type gainLossProcessorImpl struct {
	now func() time.Time
}

func NewGainLossProcessor() GainLossProcessor {
	return &gainLossProcessorImpl{now: time.Now}
}

// Calculate builds one record per ledger. Symbols without a usable price get zero unrealized
// gain and are reported in Warnings.
func (p *gainLossProcessorImpl) Calculate(ledgers map[string]*models.SymbolLedger, prices map[string]models.PriceInfo) models.GainLossResult {
	result := models.GainLossResult{
		Records:     make(map[string]models.GainLossRecord, len(ledgers)),
		Warnings:    []*models.PriceUnavailableError{},
		LastUpdated: p.now(),
	}
	for _, symbol := range sortedLedgerSymbols(ledgers) {
		ledger := ledgers[symbol]
		price := resolvePrice(ledger, prices)
		if len(ledger.Lots) > 0 && !price.Available() {
			result.Warnings = append(result.Warnings, unavailable(symbol, price))
		}
		result.Records[symbol] = p.CalculateSymbol(ledger, price)
	}
	return result
}

func (p *gainLossProcessorImpl) CalculateSymbol(ledger *models.SymbolLedger, price models.PriceInfo) models.GainLossRecord {
	record := models.GainLossRecord{
		Symbol:       ledger.Symbol,
		SecurityType: ledger.SecurityType,
		PriceStatus:  models.PriceStatusUnavailable,
	}
	if price.Available() {
		record.LastPrice = price.Price
		record.PriceStatus = models.PriceStatusOK
	}

	var realized float64
	for _, closing := range ledger.Closings {
		realized += closing.RealizedGain
	}

	var unrealized float64
	for _, lot := range ledger.Lots {
		record.CurrentUnits += lot.SignedUnits()
		record.TotalCostBasis += lot.RemainingCost()
		if price.Available() {
			unrealized += lot.Direction * (price.Price - lot.CostBasisPerUnit) * lot.RemainingQuantity
		}
	}
	if price.Available() {
		record.MarketValue = record.CurrentUnits * price.Price
	}

	if ledger.SecurityType == models.SecurityOption {
		record.OptionGainLoss = realized + unrealized
	} else {
		record.RealizedGainLoss = realized
		record.UnrealizedGainLoss = unrealized
	}

	for _, div := range ledger.Dividends {
		record.DividendIncome += div.Income()
	}
	for _, fee := range ledger.Fees {
		record.FeesPaid += fee.Amount
	}
	record.FeesPaid += ledger.TradeFees

	record.AdjustedCostBasis = math.Max(0, record.TotalCostBasis-ledger.ReturnOfCapital)
	record.TotalReturn = record.RealizedGainLoss + record.UnrealizedGainLoss + record.OptionGainLoss + record.DividendIncome
	record.TotalReturnPct = safeRatio(record.TotalReturn, record.TotalCostBasis)
	record.UnrealizedGainLossPct = safeRatio(record.UnrealizedGainLoss, record.TotalCostBasis)
	return record
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// resolvePrice prices cash symbols at par and everything else from the lookup.
func resolvePrice(ledger *models.SymbolLedger, prices map[string]models.PriceInfo) models.PriceInfo {
	if ledger.SecurityType == models.SecurityCash {
		return models.PriceInfo{Status: models.PriceStatusOK, Price: 1.0}
	}
	price, ok := prices[ledger.Symbol]
	if !ok {
		return models.PriceInfo{Status: models.PriceStatusUnavailable, Reason: "no quote returned"}
	}
	return price
}

func unavailable(symbol string, price models.PriceInfo) *models.PriceUnavailableError {
	reason := price.Reason
	if reason == "" {
		reason = "no usable quote"
	}
	return &models.PriceUnavailableError{Symbol: symbol, Reason: reason}
}

func sortedLedgerSymbols(ledgers map[string]*models.SymbolLedger) []string {
	symbols := make([]string, 0, len(ledgers))
	for symbol := range ledgers {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
