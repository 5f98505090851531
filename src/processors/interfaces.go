// backend/src/processors/interfaces.go
package processors

import (
	"time"

	"github.com/username/folioledger/backend/src/models"
)

// LedgerProcessor replays transactions into per-symbol lot ledgers.
type LedgerProcessor interface {
	// BuildLedgers replays every symbol. Symbols that fail are left out of the map and their
	// errors are joined into the returned error.
	BuildLedgers(transactions []models.Transaction) (map[string]*models.SymbolLedger, error)
	Replay(symbol string, transactions []models.Transaction) (*models.SymbolLedger, error)
}

type GainLossProcessor interface {
	Calculate(ledgers map[string]*models.SymbolLedger, prices map[string]models.PriceInfo) models.GainLossResult
	CalculateSymbol(ledger *models.SymbolLedger, price models.PriceInfo) models.GainLossRecord
}

type ValuationProcessor interface {
	BuildHoldings(ledgers map[string]*models.SymbolLedger, prices map[string]models.PriceInfo) models.HoldingsResult
	Allocation(holdings []models.Holding) models.Allocation
}

type PerformanceProcessor interface {
	BuildSeries(transactions []models.Transaction, history map[string]models.PriceMap, today time.Time) []models.PerformancePoint
	FilterTimeframe(points []models.PerformancePoint, timeframe string, today time.Time) ([]models.PerformancePoint, error)
	AnnualReturns(points []models.PerformancePoint) []models.AnnualReturn
}

type RiskProcessor interface {
	Calculate(points []models.PerformancePoint) models.RiskMetrics
}

type RebalanceProcessor interface {
	Plan(holdings []models.Holding, settings []models.Setting, prices map[string]models.PriceInfo) models.RebalancePlan
}

type DividendProcessor interface {
	CalculateSummary(ledgers map[string]*models.SymbolLedger) models.DividendSummaryResult
}

type FeeProcessor interface {
	Process(transactions []models.Transaction) []models.FeeDetail
}
