package models

// PriceInfo is the current price of a symbol in the base currency.
type PriceInfo struct {
	Status   string  `json:"status"` // PriceStatusOK or PriceStatusUnavailable
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Reason   string  `json:"reason,omitempty"`
}

// Available reports whether the price can be used for valuation.
func (p PriceInfo) Available() bool {
	return p.Status == PriceStatusOK && p.Price > 0
}

// PriceMap is a map of Date (YYYY-MM-DD) -> close price.
type PriceMap map[string]float64
