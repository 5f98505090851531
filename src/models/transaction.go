package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the storage and wire format for transaction and series dates.
const DateLayout = "2006-01-02"

// TransactionKind is the normalized event type the ledger understands.
type TransactionKind string

const (
	KindBuy         TransactionKind = "buy"
	KindSell        TransactionKind = "sell"
	KindDividend    TransactionKind = "dividend"
	KindSplit       TransactionKind = "split"
	KindOptionOpen  TransactionKind = "option_open"
	KindOptionClose TransactionKind = "option_close"
	KindFee         TransactionKind = "fee"
)

// Broker events that are expanded into core kinds at ingestion.
const (
	KindReinvest   TransactionKind = "reinvest"
	KindTransferIn TransactionKind = "transfer_in"
	KindExpired    TransactionKind = "expired"
	KindAssigned   TransactionKind = "assigned"
	KindExercised  TransactionKind = "exercised"
)

// ParseTransactionKind accepts the normalized kinds plus the broker events listed above.
func ParseTransactionKind(s string) (TransactionKind, error) {
	k := TransactionKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindBuy, KindSell, KindDividend, KindSplit, KindOptionOpen, KindOptionClose, KindFee,
		KindReinvest, KindTransferIn, KindExpired, KindAssigned, KindExercised:
		return k, nil
	}
	return "", fmt.Errorf("unknown transaction kind %q", s)
}

// IsCore reports whether k is stored and replayed as-is by the ledger.
func (k TransactionKind) IsCore() bool {
	switch k {
	case KindBuy, KindSell, KindDividend, KindSplit, KindOptionOpen, KindOptionClose, KindFee:
		return true
	}
	return false
}

// Priority orders same-day events: opens before splits, cash events, then closes.
func (k TransactionKind) Priority() int {
	switch k {
	case KindBuy, KindOptionOpen:
		return 0
	case KindSplit:
		return 1
	case KindDividend, KindFee:
		return 2
	case KindSell, KindOptionClose:
		return 3
	}
	return 4
}

// SecurityType is inherited by holdings from their transactions.
type SecurityType string

const (
	SecurityEquity SecurityType = "equity"
	SecurityOption SecurityType = "option"
	SecurityCash   SecurityType = "cash"
)

// ParseSecurityType maps broker spellings onto a SecurityType. Empty means equity.
func ParseSecurityType(s string) (SecurityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "equity", "stock", "etf", "eq", "fund":
		return SecurityEquity, nil
	case "option", "optn", "options":
		return SecurityOption, nil
	case "cash", "cash equivalents", "money market":
		return SecurityCash, nil
	}
	return "", fmt.Errorf("unknown security type %q", s)
}

// Transaction is an immutable, validated ledger input.
type Transaction struct {
	ID              int64           `json:"id,omitempty"` // Store-assigned; defines original input order
	PortfolioID     int64           `json:"portfolio_id,omitempty"`
	Date            time.Time       `json:"date"`
	Symbol          string          `json:"symbol"`
	Kind            TransactionKind `json:"kind"`
	SecurityType    SecurityType    `json:"security_type"`
	Quantity        float64         `json:"quantity"` // Signed; options are in share-equivalent units
	PricePerUnit    float64         `json:"price_per_unit"`
	GrossAmount     float64         `json:"gross_amount"`
	Fees            float64         `json:"fees"`
	ReturnOfCapital bool            `json:"return_of_capital,omitempty"`
	SplitRatio      float64         `json:"split_ratio,omitempty"`
	Underlying      string          `json:"underlying,omitempty"`
	OptionType      string          `json:"option_type,omitempty"` // "call" or "put"
	Strike          float64         `json:"strike,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	Source          string          `json:"source,omitempty"`
	Description     string          `json:"description,omitempty"`
	HashId          string          `json:"hash_id"`
}

// Direction is +1 for long option flows and every equity flow, -1 for short option flows.
func (t Transaction) Direction() float64 {
	if (t.Kind == KindOptionOpen || t.Kind == KindOptionClose) && t.Quantity < 0 {
		return -1
	}
	return 1
}

// Ref identifies the transaction in error messages.
func (t Transaction) Ref() string {
	if t.ID > 0 {
		return fmt.Sprintf("#%d", t.ID)
	}
	return fmt.Sprintf("%s %s %s", t.Date.Format(DateLayout), t.Kind, t.Symbol)
}

// FeeAmount is the cash cost of a standalone fee event.
func (t Transaction) FeeAmount() float64 {
	if t.Fees > 0 {
		return t.Fees
	}
	if t.GrossAmount < 0 {
		return -t.GrossAmount
	}
	return t.GrossAmount
}
