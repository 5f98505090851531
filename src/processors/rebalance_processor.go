package processors

import (
	"math"
	"sort"

	"github.com/username/folioledger/backend/src/models"
)

type rebalanceProcessorImpl struct {
	minTradeValue float64
}

// NewRebalanceProcessor skips trades whose absolute value is at or below minTradeValue.
func NewRebalanceProcessor(minTradeValue float64) RebalanceProcessor {
	return &rebalanceProcessorImpl{minTradeValue: minTradeValue}
}

// Plan compares current weights with targets over the union of held and configured symbols.
// prices is only consulted for symbols that have a setting but no holding.
func (p *rebalanceProcessorImpl) Plan(holdings []models.Holding, settings []models.Setting, prices map[string]models.PriceInfo) models.RebalancePlan {
	plan := models.RebalancePlan{
		Actions:  []models.RebalanceAction{},
		Warnings: []*models.PriceUnavailableError{},
	}

	held := make(map[string]models.Holding, len(holdings))
	for _, h := range holdings {
		held[h.Symbol] = h
		plan.TotalValue += h.MarketValue
	}
	targets := make(map[string]float64, len(settings))
	for _, s := range settings {
		targets[s.Stock] = s.TargetWeight
	}

	symbols := make([]string, 0, len(held)+len(targets))
	for symbol := range held {
		symbols = append(symbols, symbol)
	}
	for symbol := range targets {
		if _, ok := held[symbol]; !ok {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		target := targets[symbol]
		holding, isHeld := held[symbol]

		lastPrice := holding.LastPrice
		if !isHeld {
			if price, ok := prices[symbol]; ok && price.Available() {
				lastPrice = price.Price
			}
		}

		valueToChange := plan.TotalValue*target - holding.MarketValue
		if math.Abs(valueToChange) <= p.minTradeValue {
			continue
		}
		if lastPrice <= 0 {
			plan.Warnings = append(plan.Warnings, &models.PriceUnavailableError{Symbol: symbol, Reason: "no price to size the trade"})
			continue
		}

		action := models.ActionBuy
		if valueToChange < 0 {
			action = models.ActionSell
		}
		plan.Actions = append(plan.Actions, models.RebalanceAction{
			Symbol:        symbol,
			Action:        action,
			Units:         math.Abs(valueToChange / lastPrice),
			LastPrice:     lastPrice,
			ValueToChange: valueToChange,
			CurrentWeight: holding.Weight,
			TargetWeight:  target,
		})
	}
	return plan
}

// NormalizeSettings scales the weights so they sum to 1. A zero total is returned unchanged.
func NormalizeSettings(settings []models.Setting) []models.Setting {
	total := TotalWeight(settings)
	out := make([]models.Setting, len(settings))
	copy(out, settings)
	if total == 0 {
		return out
	}
	for i := range out {
		out[i].TargetWeight /= total
	}
	return out
}

// TotalWeight sums the target weights.
func TotalWeight(settings []models.Setting) float64 {
	var total float64
	for _, s := range settings {
		total += s.TargetWeight
	}
	return total
}
