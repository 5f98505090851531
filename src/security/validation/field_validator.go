// backend/src/security/validation/field_validator.go
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	MaxSymbolLength        = 64
	MaxCurrencyCodeLength  = 3
	MaxPortfolioNameLength = 100
	MaxDescriptionLength   = 1024
)

var (
	// Option symbols carry spaces and slashes, e.g. "AAPL 01/19/2024 150.00 C".
	symbolRegex        = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 ./:_-]*$`)
	currencyCodeRegex  = regexp.MustCompile(`^[A-Z]{3}$`)
	portfolioNameRegex = regexp.MustCompile(`^[\p{L}0-9 _.-]+$`)
)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength counts runes, not bytes.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateSymbol expects an upper-cased ticker or option symbol.
func ValidateSymbol(s string) error {
	if err := ValidateStringNotEmpty(s, "symbol"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(s, MaxSymbolLength, "symbol"); err != nil {
		return err
	}
	if !symbolRegex.MatchString(s) {
		return fmt.Errorf("%w: symbol ('%s') contains unsupported characters", ErrValidationFailed, s)
	}
	return nil
}

// ValidateCurrencyCode accepts an empty code or three letters.
func ValidateCurrencyCode(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return nil
	}
	if !currencyCodeRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: currency code ('%s') is not in the expected format (3 letters)", ErrValidationFailed, s)
	}
	return nil
}

// ValidatePortfolioName allows letters, digits, spaces, dots, dashes and underscores.
func ValidatePortfolioName(s string) error {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, "name"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(trimmed, MaxPortfolioNameLength, "name"); err != nil {
		return err
	}
	if !portfolioNameRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: name may only contain letters, numbers, spaces, '.', '-' and '_'", ErrValidationFailed)
	}
	return nil
}

// ValidateFinite rejects NaN and infinities.
func ValidateFinite(v float64, fieldName string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateDateString checks a strict YYYY-MM-DD date.
func ValidateDateString(s, fieldName string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected YYYY-MM-DD)", ErrValidationFailed, fieldName, s)
	}
	return t, nil
}
