// backend/src/parsers/fidelity/parser.go
package fidelity

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/parsers/csvutil"
)

const Source = "fidelity"

var dateLayouts = []string{"01/02/2006", "1/2/2006"}

// FidelityParser implements the parsers.Parser interface for Fidelity "Accounts History" exports.
type FidelityParser struct{}

func NewParser() *FidelityParser {
	return &FidelityParser{}
}

// footerPrefixes mark the disclaimer block Fidelity appends after the data.
var footerPrefixes = []string{"The data and information", "Brokerage services are provided", "Date downloaded"}

func isFooter(record []string) bool {
	first := strings.TrimSpace(record[0])
	for _, prefix := range footerPrefixes {
		if strings.HasPrefix(first, prefix) {
			return true
		}
	}
	return false
}

// classify maps the free-text Action column onto a kind. The sign is the option direction
// for opens and closes, 0 otherwise.
func classify(action string) (kind string, sign float64) {
	upper := strings.ToUpper(action)
	opening := strings.Contains(upper, "OPENING TRANSACTION")
	closing := strings.Contains(upper, "CLOSING TRANSACTION")

	switch {
	case strings.Contains(upper, "YOU BOUGHT") && opening:
		return string(models.KindOptionOpen), 1
	case strings.Contains(upper, "YOU SOLD") && opening:
		return string(models.KindOptionOpen), -1
	case strings.Contains(upper, "YOU SOLD") && closing:
		return string(models.KindOptionClose), 1
	case strings.Contains(upper, "YOU BOUGHT") && closing:
		return string(models.KindOptionClose), -1
	case strings.Contains(upper, "YOU BOUGHT"):
		return string(models.KindBuy), 0
	case strings.Contains(upper, "YOU SOLD"):
		return string(models.KindSell), 0
	case strings.Contains(upper, "REINVESTMENT"):
		// The cash leg is its own DIVIDEND RECEIVED row.
		return string(models.KindBuy), 0
	case strings.Contains(upper, "DIVIDEND RECEIVED"), strings.Contains(upper, "RETURN OF CAPITAL"):
		return string(models.KindDividend), 0
	case strings.Contains(upper, "ASSIGNED"):
		return string(models.KindAssigned), 0
	case strings.Contains(upper, "EXERCISED"):
		return string(models.KindExercised), 0
	case strings.Contains(upper, "EXPIRED"):
		return string(models.KindExpired), 0
	case strings.Contains(upper, "FEE CHARGED"), strings.Contains(upper, "MARGIN INTEREST"):
		return string(models.KindFee), 0
	}
	return "", 0
}

func (p *FidelityParser) Parse(file io.Reader) ([]models.CanonicalTransaction, error) {
	header, rows, err := csvutil.ReadTable(file, "Run Date", isFooter)
	if err != nil {
		return nil, fmt.Errorf("fidelity parser: %w", err)
	}
	if !header.Has("Run Date", "Action", "Symbol", "Quantity", "Price ($)", "Amount ($)") {
		return nil, fmt.Errorf("fidelity parser: missing required columns")
	}
	csvutil.Reverse(rows)

	var canonicalTxs []models.CanonicalTransaction
	for _, row := range rows {
		tx, ok, err := convert(header, row)
		if err != nil {
			return nil, fmt.Errorf("fidelity parser: row %d: %w", row.Number, err)
		}
		if ok {
			canonicalTxs = append(canonicalTxs, tx)
		}
	}
	return canonicalTxs, nil
}

func convert(header csvutil.Header, row csvutil.Row) (models.CanonicalTransaction, bool, error) {
	get := func(name string) string { return header.Get(row.Fields, name) }

	action := get("Action")
	kind, sign := classify(action)
	if kind == "" {
		logger.L.Warn("Fidelity parser: skipping unsupported action", "row", row.Number, "action", action, "symbol", get("Symbol"))
		return models.CanonicalTransaction{}, false, nil
	}

	date, err := csvutil.ParseDate(get("Run Date"), dateLayouts...)
	if err != nil {
		return models.CanonicalTransaction{}, false, err
	}
	values := make(map[string]float64, 5)
	for _, column := range []string{"Quantity", "Price ($)", "Commission ($)", "Fees ($)", "Amount ($)"} {
		v, err := csvutil.ParseAmount(get(column))
		if err != nil {
			return models.CanonicalTransaction{}, false, fmt.Errorf("%s: %w", column, err)
		}
		values[column] = v
	}
	quantity := values["Quantity"]

	symbol := strings.TrimSpace(get("Symbol"))
	description := get("Description")
	tx := models.CanonicalTransaction{
		Source:          Source,
		Row:             row.Number,
		TransactionDate: date,
		Symbol:          symbol,
		Action:          action,
		Kind:            kind,
		SecurityType:    string(models.SecurityEquity),
		Quantity:        math.Abs(quantity),
		Price:           values["Price ($)"],
		Amount:          math.Abs(values["Amount ($)"]),
		Fees:            math.Abs(values["Commission ($)"]) + math.Abs(values["Fees ($)"]),
		Currency:        "USD",
		Description:     description,
		RawText:         row.Raw(),
	}

	contract, isOption := csvutil.ParseOptionSymbol(symbol)
	if isOption || strings.Contains(strings.ToUpper(get("Type")), "OPTION") {
		if !isOption {
			return models.CanonicalTransaction{}, false, fmt.Errorf("cannot decode option contract %q", symbol)
		}
		tx.SecurityType = string(models.SecurityOption)
		tx.Multiplier = csvutil.OptionMultiplier
		tx.Symbol = contract.Symbol()
		tx.Underlying = contract.Underlying
		tx.Strike = contract.Strike
		tx.OptionType = contract.Type
		switch {
		case sign != 0:
			tx.Quantity = sign * math.Abs(quantity)
		case kind == string(models.KindExpired):
			// Quantity is the position change: +1 retires a written contract.
			tx.Quantity = -quantity
		}
	} else if csvutil.IsCashEquivalent(symbol, description) {
		tx.SecurityType = string(models.SecurityCash)
	}

	switch models.TransactionKind(kind) {
	case models.KindDividend:
		tx.Quantity = 0
		tx.Price = 0
		tx.ReturnOfCapital = strings.Contains(strings.ToUpper(action), "RETURN OF CAPITAL")
	case models.KindFee:
		tx.Quantity = 0
		tx.Price = 0
		if tx.Fees == 0 {
			tx.Fees = tx.Amount
		}
	}
	return tx, true, nil
}
