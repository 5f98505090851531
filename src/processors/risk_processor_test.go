package processors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/folioledger/backend/src/models"
)

func series(start string, values ...float64) []models.PerformancePoint {
	points := make([]models.PerformancePoint, len(values))
	d := date(start)
	for i, v := range values {
		points[i] = models.PerformancePoint{Date: d.AddDate(0, 0, i), PortfolioValue: v}
	}
	return points
}

func TestRiskMetrics(t *testing.T) {
	points := series("2023-01-02", 100, 110, 99, 108.9)
	metrics := NewRiskProcessor(0).Calculate(points)

	require.NotNil(t, metrics.AnnualizedReturn)
	assert.InDelta(t, math.Pow(1.089, 365.25/3)-1, *metrics.AnnualizedReturn, 1e-9)

	returns := []float64{0.1, -0.1, 0.1}
	mean := 0.1 / 3
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / 2)

	require.NotNil(t, metrics.Volatility)
	assert.InDelta(t, std*math.Sqrt(252), *metrics.Volatility, 1e-9)
	require.NotNil(t, metrics.SharpeRatio)
	assert.InDelta(t, mean*252/(std*math.Sqrt(252)), *metrics.SharpeRatio, 1e-9)
}

func TestRiskMetrics_RiskFreeRate(t *testing.T) {
	points := series("2023-01-02", 100, 110, 99, 108.9)
	plain := NewRiskProcessor(0).Calculate(points)
	withRate := NewRiskProcessor(0.05).Calculate(points)

	require.NotNil(t, withRate.SharpeRatio)
	assert.InDelta(t, *plain.SharpeRatio-0.05/(*plain.Volatility), *withRate.SharpeRatio, 1e-9)
}

func TestRiskMetrics_UndefinedCases(t *testing.T) {
	tests := []struct {
		name           string
		points         []models.PerformancePoint
		wantAnnualized bool
		wantVolatility bool
		wantSharpe     bool
	}{
		{name: "empty series", points: nil},
		{name: "single day", points: series("2023-01-02", 100)},
		{name: "one day apart", points: series("2023-01-02", 100, 101)},
		{name: "zero initial value", points: series("2023-01-02", 0, 100, 110, 105), wantVolatility: true, wantSharpe: true},
		{name: "flat series has zero volatility", points: series("2023-01-02", 100, 100, 100), wantAnnualized: true, wantVolatility: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewRiskProcessor(0).Calculate(tt.points)
			assert.Equal(t, tt.wantAnnualized, m.AnnualizedReturn != nil, "annualized_return")
			assert.Equal(t, tt.wantVolatility, m.Volatility != nil, "volatility")
			assert.Equal(t, tt.wantSharpe, m.SharpeRatio != nil, "sharpe_ratio")
		})
	}
}

func TestDailyReturns_SkipsZeroBase(t *testing.T) {
	returns := DailyReturns(series("2023-01-02", 0, 50, 0, 100, 110))
	assert.InDeltaSlice(t, []float64{-1, 0.1}, returns, 1e-9)
}

func TestDailyReturns_WeekendsAreNotSampled(t *testing.T) {
	// Thursday 2023-01-05 through Tuesday 2023-01-10; the weekend repeats Friday's value.
	returns := DailyReturns(series("2023-01-05", 100, 110, 110, 110, 121, 121))
	assert.InDeltaSlice(t, []float64{0.1, 0.1, 0}, returns, 1e-9)
}
