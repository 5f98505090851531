package models

import "time"

// CanonicalTransaction is the unified, intermediate representation produced by the broker parsers.
// Each parser populates as many fields as it can; TransactionProcessor validates and expands
// it into one or more ledger Transactions.
type CanonicalTransaction struct {
	Source          string    `json:"source"`
	Row             int       `json:"row"` // 1-based data row in the source file
	TransactionDate time.Time `json:"transaction_date"`
	Symbol          string    `json:"symbol"`
	Action          string    `json:"action"` // Raw broker action, e.g. "Sell to Open"
	Kind            string    `json:"kind"`   // Normalized kind, see ParseTransactionKind
	SecurityType    string    `json:"security_type"`
	Quantity        float64   `json:"quantity"`
	Price           float64   `json:"price"`
	Amount          float64   `json:"amount"` // Gross amount, unsigned
	Fees            float64   `json:"fees"`
	Currency        string    `json:"currency"`
	Description     string    `json:"description"`
	OptionType      string    `json:"option_type"`
	Underlying      string    `json:"underlying"`
	Strike          float64   `json:"strike"`
	Multiplier      float64   `json:"multiplier"` // Shares per contract; 0 means 1
	SplitRatio      float64   `json:"split_ratio"`
	ReturnOfCapital bool      `json:"return_of_capital"`
	RawText         string    `json:"raw_text"`
	HashId          string    `json:"hash_id"`
}
