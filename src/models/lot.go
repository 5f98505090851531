package models

import "time"

// Lot is a slice of ownership opened by a buy or option_open event.
type Lot struct {
	Symbol            string       `json:"symbol"`
	SecurityType      SecurityType `json:"security_type"`
	OpenDate          time.Time    `json:"open_date"`
	OriginalQuantity  float64      `json:"original_quantity"`
	RemainingQuantity float64      `json:"remaining_quantity"`
	CostBasisPerUnit  float64      `json:"cost_basis_per_unit"`
	Direction         float64      `json:"direction"` // +1 long, -1 short (written options)
	TransactionID     int64        `json:"transaction_id,omitempty"`
	ReturnOfCapital   float64      `json:"return_of_capital,omitempty"` // Absorbed by the remaining quantity
}

// RemainingCost is the cost basis still carried by the lot.
func (l Lot) RemainingCost() float64 {
	return l.RemainingQuantity * l.CostBasisPerUnit
}

// AdjustedCost is the remaining cost basis net of return of capital.
func (l Lot) AdjustedCost() float64 {
	return l.RemainingCost() - l.ReturnOfCapital
}

// SignedUnits is the remaining quantity with the lot direction applied.
func (l Lot) SignedUnits() float64 {
	return l.Direction * l.RemainingQuantity
}

// LotMatch is the part of a lot consumed by one closing event.
type LotMatch struct {
	OpenDate         time.Time `json:"open_date"`
	Quantity         float64   `json:"quantity"`
	CostBasisPerUnit float64   `json:"cost_basis_per_unit"`
	CostBasis        float64   `json:"cost_basis"`
	ReturnOfCapital  float64   `json:"return_of_capital,omitempty"`
}

// ClosingEvent records a sell/option_close and the lots it depleted.
type ClosingEvent struct {
	Date          time.Time  `json:"date"`
	TransactionID int64      `json:"transaction_id,omitempty"`
	Quantity      float64    `json:"quantity"`
	Proceeds      float64    `json:"proceeds"`
	CostBasis     float64    `json:"cost_basis"`
	RealizedGain  float64    `json:"realized_gain"`
	Direction     float64    `json:"direction"`
	Matched       []LotMatch `json:"matched"`
}

// DividendEvent is a cash distribution on a symbol.
type DividendEvent struct {
	Date            time.Time `json:"date"`
	Amount          float64   `json:"amount"`
	ReturnOfCapital float64   `json:"return_of_capital"` // Portion absorbed by cost basis
}

// Income is the part of the distribution reported as dividend income.
func (d DividendEvent) Income() float64 {
	return d.Amount - d.ReturnOfCapital
}

// FeeEvent is a standalone fee charged against a symbol.
type FeeEvent struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// SymbolLedger is the replayed state of one symbol.
type SymbolLedger struct {
	Symbol          string          `json:"symbol"`
	SecurityType    SecurityType    `json:"security_type"`
	Lots            []Lot           `json:"lots"` // Open lots, FIFO order
	Closings        []ClosingEvent  `json:"closings"`
	Dividends       []DividendEvent `json:"dividends"`
	Fees            []FeeEvent      `json:"fees"`
	ReturnOfCapital float64         `json:"return_of_capital"`
	TradeFees       float64         `json:"trade_fees"`
}

// OpenUnits sums the signed remaining quantity of all open lots.
func (l *SymbolLedger) OpenUnits() float64 {
	var units float64
	for _, lot := range l.Lots {
		units += lot.SignedUnits()
	}
	return units
}

// OpenCost sums the cost basis carried by open lots.
func (l *SymbolLedger) OpenCost() float64 {
	var cost float64
	for _, lot := range l.Lots {
		cost += lot.RemainingCost()
	}
	return cost
}
