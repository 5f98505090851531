package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientLots  = errors.New("insufficient lots")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrPortfolioNotFound = errors.New("portfolio not found")
)

// ValidationError rejects a malformed transaction or setting.
type ValidationError struct {
	Row    int    `json:"row,omitempty"`
	Ref    string `json:"ref,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	where := e.Ref
	if e.Row > 0 {
		where = fmt.Sprintf("row %d", e.Row)
	}
	if where == "" {
		where = "input"
	}
	if e.Symbol != "" {
		return fmt.Sprintf("%s (%s): invalid %s: %s", where, e.Symbol, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s: %s", where, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientLotsError means more units were closed than were open.
type InsufficientLotsError struct {
	Symbol        string    `json:"symbol"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Date          time.Time `json:"date"`
	Requested     float64   `json:"requested"`
	Available     float64   `json:"available"`
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("insufficient lots for %s on %s (transaction %d): requested %g, available %g",
		e.Symbol, e.Date.Format(DateLayout), e.TransactionID, e.Requested, e.Available)
}

func (e *InsufficientLotsError) Unwrap() error { return ErrInsufficientLots }

// PriceUnavailableError is a soft failure collected into result warnings.
type PriceUnavailableError struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date,omitempty"`
	Reason string `json:"reason"`
}

func (e *PriceUnavailableError) Error() string {
	if e.Date != "" {
		return fmt.Sprintf("price unavailable for %s on %s: %s", e.Symbol, e.Date, e.Reason)
	}
	return fmt.Sprintf("price unavailable for %s: %s", e.Symbol, e.Reason)
}

func (e *PriceUnavailableError) Unwrap() error { return ErrPriceUnavailable }

// WeightExceedsTotalWarning accompanies a successful settings write whose weights sum above 1.
type WeightExceedsTotalWarning struct {
	TotalWeight float64 `json:"total_weight"`
}

func (w *WeightExceedsTotalWarning) Error() string {
	return fmt.Sprintf("target weights sum to %.4f, which exceeds 1.0", w.TotalWeight)
}
