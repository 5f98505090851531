package models

// Fee categories.
const (
	FeeCategoryTrade   = "Trade Commission"
	FeeCategoryAccount = "Account Fee"
)

// FeeDetail is one fee or commission charged to the portfolio.
type FeeDetail struct {
	Date        string  `json:"date"`
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"` // Negative: fees are a cost
	Source      string  `json:"source"`
	Category    string  `json:"category"`
}
