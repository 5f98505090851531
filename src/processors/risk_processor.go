package processors

import (
	"math"
	"time"

	"github.com/username/folioledger/backend/src/models"
	"gonum.org/v1/gonum/stat"
)

const (
	tradingDaysPerYear = 252
	daysPerYear        = 365.25
)

type riskProcessorImpl struct {
	riskFreeRate float64
}

// NewRiskProcessor takes the annual risk-free rate used by the Sharpe ratio.
func NewRiskProcessor(riskFreeRate float64) RiskProcessor {
	return &riskProcessorImpl{riskFreeRate: riskFreeRate}
}

func (p *riskProcessorImpl) Calculate(points []models.PerformancePoint) models.RiskMetrics {
	var metrics models.RiskMetrics
	if len(points) == 0 {
		return metrics
	}

	first, last := points[0], points[len(points)-1]
	days := last.Date.Sub(first.Date).Hours() / 24
	if days >= 2 && first.PortfolioValue > 0 {
		annualized := math.Pow(last.PortfolioValue/first.PortfolioValue, daysPerYear/days) - 1
		if isFinite(annualized) {
			metrics.AnnualizedReturn = &annualized
		}
	}

	returns := DailyReturns(points)
	if len(returns) < 2 {
		return metrics
	}
	volatility := stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear)
	if !isFinite(volatility) {
		return metrics
	}
	metrics.Volatility = &volatility
	if volatility > 0 {
		sharpe := (stat.Mean(returns, nil)*tradingDaysPerYear - p.riskFreeRate) / volatility
		metrics.SharpeRatio = &sharpe
	}
	return metrics
}

// DailyReturns measures returns between consecutive trading days, so the sqrt(252)
// annualization matches the sampling. Weekend points only carry Friday's prices forward and are
// skipped, as are days whose previous value is zero.
func DailyReturns(points []models.PerformancePoint) []float64 {
	returns := make([]float64, 0, len(points))
	prev := -1
	for i, point := range points {
		if !isTradingDay(point.Date) {
			continue
		}
		if prev >= 0 && points[prev].PortfolioValue != 0 {
			returns = append(returns, point.PortfolioValue/points[prev].PortfolioValue-1)
		}
		prev = i
	}
	return returns
}

func isTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
