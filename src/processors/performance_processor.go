package processors

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/username/folioledger/backend/src/models"
)

// Timeframes accepted by FilterTimeframe, as (years, months) to subtract from today.
var timeframeWindows = map[string][2]int{
	"1M": {0, 1},
	"3M": {0, 3},
	"6M": {0, 6},
	"1Y": {1, 0},
	"3Y": {3, 0},
	"5Y": {5, 0},
}

const TimeframeAll = "ALL"

type performanceProcessorImpl struct{}

func NewPerformanceProcessor() PerformanceProcessor {
	return &performanceProcessorImpl{}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildSeries produces one point per calendar day from the first transaction to today.
func (p *performanceProcessorImpl) BuildSeries(transactions []models.Transaction, history map[string]models.PriceMap, today time.Time) []models.PerformancePoint {
	if len(transactions) == 0 {
		return []models.PerformancePoint{}
	}
	sorted := make([]models.Transaction, len(transactions))
	copy(sorted, transactions)
	SortTransactions(sorted)

	start := Day(sorted[0].Date)
	end := Day(today)
	if end.Before(start) {
		end = start
	}

	fills := make(map[string]*priceFill)
	cashSymbols := make(map[string]bool)
	for _, tx := range sorted {
		if tx.Symbol == "" {
			continue
		}
		if tx.SecurityType == models.SecurityCash {
			cashSymbols[tx.Symbol] = true
		}
		if _, ok := fills[tx.Symbol]; !ok {
			fills[tx.Symbol] = newPriceFill(history[tx.Symbol])
		}
	}

	units := make(map[string]float64)
	var invested float64
	points := make([]models.PerformancePoint, 0, int(end.Sub(start).Hours()/24)+1)

	next := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for next < len(sorted) && !Day(sorted[next].Date).After(day) {
			invested += applyToPosition(units, sorted[next])
			next++
		}

		dateKey := day.Format(models.DateLayout)
		var value float64
		for symbol, held := range units {
			if math.Abs(held) <= quantityEpsilon {
				continue
			}
			if cashSymbols[symbol] {
				value += held
				continue
			}
			if price, ok := fills[symbol].at(dateKey); ok {
				value += held * price
			}
		}
		points = append(points, models.PerformancePoint{
			Date:           day,
			PortfolioValue: value,
			InvestedAmount: invested,
		})
	}
	return points
}

// applyToPosition updates held units and returns the change in invested capital.
func applyToPosition(units map[string]float64, tx models.Transaction) float64 {
	var delta float64
	switch tx.Kind {
	case models.KindBuy, models.KindOptionOpen:
		delta = tx.Quantity
		if tx.Kind == models.KindBuy {
			delta = math.Abs(tx.Quantity)
		}
	case models.KindSell, models.KindOptionClose:
		delta = -tx.Quantity
		if tx.Kind == models.KindSell {
			delta = -math.Abs(tx.Quantity)
		}
	case models.KindSplit:
		if tx.SplitRatio > 0 {
			units[tx.Symbol] *= tx.SplitRatio
		}
		return 0
	case models.KindFee:
		return tx.FeeAmount()
	default:
		return 0
	}

	units[tx.Symbol] += delta
	flow := tx.Fees
	switch {
	case delta > 0:
		flow += tx.GrossAmount
	case delta < 0:
		flow -= tx.GrossAmount
	}
	return flow
}

// priceFill walks a price history forward, carrying the last known price.
type priceFill struct {
	dates  []string
	prices models.PriceMap
	idx    int
	last   float64
	seen   bool
}

func newPriceFill(prices models.PriceMap) *priceFill {
	dates := make([]string, 0, len(prices))
	for d, price := range prices {
		if price > 0 && !math.IsNaN(price) && !math.IsInf(price, 0) {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return &priceFill{dates: dates, prices: prices}
}

// at must be called with non-decreasing dates.
func (f *priceFill) at(date string) (float64, bool) {
	for f.idx < len(f.dates) && f.dates[f.idx] <= date {
		f.last = f.prices[f.dates[f.idx]]
		f.seen = true
		f.idx++
	}
	return f.last, f.seen
}

// ForwardFill returns the most recent price on or before date.
func ForwardFill(prices models.PriceMap, date time.Time) (float64, bool) {
	return newPriceFill(prices).at(Day(date).Format(models.DateLayout))
}

// FilterTimeframe keeps the points dated on or after today minus the window.
func (p *performanceProcessorImpl) FilterTimeframe(points []models.PerformancePoint, timeframe string, today time.Time) ([]models.PerformancePoint, error) {
	tf := strings.ToUpper(strings.TrimSpace(timeframe))
	if tf == "" || tf == TimeframeAll {
		return points, nil
	}
	window, ok := timeframeWindows[tf]
	if !ok {
		return nil, &models.ValidationError{Field: "timeframe", Reason: "must be one of 1M, 3M, 6M, 1Y, 3Y, 5Y, ALL"}
	}
	cutoff := Day(today).AddDate(-window[0], -window[1], 0)
	idx := sort.Search(len(points), func(i int) bool {
		return !points[i].Date.Before(cutoff)
	})
	return points[idx:], nil
}

// AnnualReturns computes one return per calendar year present in the series, net of contributions.
func (p *performanceProcessorImpl) AnnualReturns(points []models.PerformancePoint) []models.AnnualReturn {
	returns := []models.AnnualReturn{}
	for i := 0; i < len(points); {
		year := points[i].Date.Year()
		j := i
		for j+1 < len(points) && points[j+1].Date.Year() == year {
			j++
		}
		start, end := points[i], points[j]

		gain := end.PortfolioValue - start.PortfolioValue - (end.InvestedAmount - start.InvestedAmount)
		base := start.PortfolioValue
		if base == 0 {
			base = start.InvestedAmount
		}
		var r float64
		if base != 0 {
			r = gain / base
		}
		returns = append(returns, models.AnnualReturn{Year: year, Return: r})
		i = j + 1
	}
	return returns
}
