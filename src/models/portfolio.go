package models

import "time"

// Price status values reported per symbol.
const (
	PriceStatusOK          = "OK"
	PriceStatusUnavailable = "UNAVAILABLE"
)

// Portfolio groups transactions, settings and upload history.
type Portfolio struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Holding is a current position valued at the latest price.
type Holding struct {
	Symbol       string       `json:"symbol"`
	SecurityType SecurityType `json:"security_type"`
	Units        float64      `json:"units"`
	LastPrice    float64      `json:"last_price"`
	MarketValue  float64      `json:"market_value"`
	CostBasis    float64      `json:"cost_basis"`
	Weight       float64      `json:"weight"`
	PriceStatus  string       `json:"price_status"`
}

// HoldingsResult carries holdings plus the soft price failures met while valuing them.
type HoldingsResult struct {
	Holdings []Holding                `json:"holdings"`
	Warnings []*PriceUnavailableError `json:"warnings"`
}

// Allocation is the symbol -> weight view, in holding order.
type Allocation struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// GainLossRecord is the per-symbol gain/loss breakdown.
type GainLossRecord struct {
	Symbol                string       `json:"symbol"`
	SecurityType          SecurityType `json:"security_type"`
	CurrentUnits          float64      `json:"current_units"`
	LastPrice             float64      `json:"last_price"`
	PriceStatus           string       `json:"price_status"`
	MarketValue           float64      `json:"market_value"`
	TotalCostBasis        float64      `json:"total_cost_basis"`
	AdjustedCostBasis     float64      `json:"adjusted_cost_basis"`
	RealizedGainLoss      float64      `json:"realized_gain_loss"`
	UnrealizedGainLoss    float64      `json:"unrealized_gain_loss"`
	UnrealizedGainLossPct float64      `json:"unrealized_gain_loss_pct"`
	OptionGainLoss        float64      `json:"option_gain_loss"`
	DividendIncome        float64      `json:"dividend_income"`
	FeesPaid              float64      `json:"fees_paid"`
	TotalReturn           float64      `json:"total_return"`
	TotalReturnPct        float64      `json:"total_return_pct"`
}

// GainLossResult maps symbol -> record.
type GainLossResult struct {
	Records     map[string]GainLossRecord `json:"records"`
	Warnings    []*PriceUnavailableError  `json:"warnings"`
	LastUpdated time.Time                 `json:"last_update"`
}

// PerformancePoint is one day of the value-over-time series.
type PerformancePoint struct {
	Date           time.Time `json:"date"`
	PortfolioValue float64   `json:"portfolio_value"`
	InvestedAmount float64   `json:"invested_amount"`
}

// RiskMetrics fields are nil when the metric is undefined for the series.
type RiskMetrics struct {
	AnnualizedReturn *float64 `json:"annualized_return"`
	Volatility       *float64 `json:"volatility"`
	SharpeRatio      *float64 `json:"sharpe_ratio"`
}

// PerformanceResult is the column-oriented series returned to clients.
type PerformanceResult struct {
	Timeframe       string                   `json:"timeframe"`
	Dates           []string                 `json:"dates"`
	PortfolioValues []float64                `json:"portfolio_values"`
	InvestedAmounts []float64                `json:"invested_amounts"`
	Metrics         RiskMetrics              `json:"metrics"`
	Warnings        []*PriceUnavailableError `json:"warnings"`
}

// AnnualReturn is the money-weighted approximation for one calendar year.
type AnnualReturn struct {
	Year   int     `json:"year"`
	Return float64 `json:"return"`
}

// Rebalance actions.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// RebalanceAction is one suggested trade.
type RebalanceAction struct {
	Symbol        string  `json:"symbol"`
	Action        string  `json:"action"`
	Units         float64 `json:"units"` // Always positive; Action carries the sign
	LastPrice     float64 `json:"last_price"`
	ValueToChange float64 `json:"value_to_change"`
	CurrentWeight float64 `json:"current_weight"`
	TargetWeight  float64 `json:"target_weight"`
}

// RebalancePlan is the ordered trade list plus skipped symbols.
type RebalancePlan struct {
	Actions    []RebalanceAction        `json:"actions"`
	TotalValue float64                  `json:"total_value"`
	Warnings   []*PriceUnavailableError `json:"warnings"`
}
