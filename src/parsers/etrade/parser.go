// backend/src/parsers/etrade/parser.go
package etrade

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/parsers/csvutil"
)

const Source = "etrade"

var dateLayouts = []string{"01/02/06", "1/2/06", "01/02/2006"}

// EtradeParser implements the parsers.Parser interface for E*TRADE transaction downloads.
// The file starts with account lines ("For Account:,#####1234") before the header.
type EtradeParser struct{}

func NewParser() *EtradeParser {
	return &EtradeParser{}
}

type txType struct {
	kind string
	sign float64
}

var txTypes = map[string]txType{
	"bought":                {kind: string(models.KindBuy)},
	"sold":                  {kind: string(models.KindSell)},
	"dividend reinvestment": {kind: string(models.KindReinvest)},
	"bought to open":        {kind: string(models.KindOptionOpen), sign: 1},
	"sold short":            {kind: string(models.KindOptionOpen), sign: -1},
	"sold to open":          {kind: string(models.KindOptionOpen), sign: -1},
	"sold to close":         {kind: string(models.KindOptionClose), sign: 1},
	"bought to cover":       {kind: string(models.KindOptionClose), sign: -1},
	"bought to close":       {kind: string(models.KindOptionClose), sign: -1},
	"option expired":        {kind: string(models.KindExpired)},
	"option assigned":       {kind: string(models.KindAssigned)},
	"option exercised":      {kind: string(models.KindExercised)},
	"fee":                   {kind: string(models.KindFee)},
	"service fee":           {kind: string(models.KindFee)},
	"adr fee":               {kind: string(models.KindFee)},
}

func (p *EtradeParser) Parse(file io.Reader) ([]models.CanonicalTransaction, error) {
	header, rows, err := csvutil.ReadTable(file, "TransactionDate", nil)
	if err != nil {
		return nil, fmt.Errorf("etrade parser: %w", err)
	}
	if !header.Has("TransactionDate", "TransactionType", "SecurityType", "Symbol", "Quantity", "Amount", "Price") {
		return nil, fmt.Errorf("etrade parser: missing required columns")
	}
	csvutil.Reverse(rows)

	var canonicalTxs []models.CanonicalTransaction
	for _, row := range rows {
		tx, ok, err := convert(header, row)
		if err != nil {
			return nil, fmt.Errorf("etrade parser: row %d: %w", row.Number, err)
		}
		if ok {
			canonicalTxs = append(canonicalTxs, tx)
		}
	}
	return canonicalTxs, nil
}

func convert(header csvutil.Header, row csvutil.Row) (models.CanonicalTransaction, bool, error) {
	get := func(name string) string { return header.Get(row.Fields, name) }

	rawType := get("TransactionType")
	t, known := txTypes[strings.ToLower(rawType)]
	if !known {
		// Adjustments carry no price and need a manual entry.
		logger.L.Warn("E-Trade parser: skipping unsupported transaction type", "row", row.Number, "type", rawType, "symbol", get("Symbol"))
		return models.CanonicalTransaction{}, false, nil
	}

	date, err := csvutil.ParseDate(get("TransactionDate"), dateLayouts...)
	if err != nil {
		return models.CanonicalTransaction{}, false, err
	}
	quantity, err := csvutil.ParseAmount(get("Quantity"))
	if err != nil {
		return models.CanonicalTransaction{}, false, fmt.Errorf("quantity: %w", err)
	}
	amount, err := csvutil.ParseAmount(get("Amount"))
	if err != nil {
		return models.CanonicalTransaction{}, false, fmt.Errorf("amount: %w", err)
	}
	price, err := csvutil.ParseAmount(get("Price"))
	if err != nil {
		return models.CanonicalTransaction{}, false, fmt.Errorf("price: %w", err)
	}
	commission, err := csvutil.ParseAmount(get("Commission"))
	if err != nil {
		return models.CanonicalTransaction{}, false, fmt.Errorf("commission: %w", err)
	}

	symbol := get("Symbol")
	description := get("Description")
	securityType := strings.ToUpper(get("SecurityType"))

	tx := models.CanonicalTransaction{
		Source:          Source,
		Row:             row.Number,
		TransactionDate: date,
		Symbol:          symbol,
		Action:          rawType,
		Kind:            t.kind,
		SecurityType:    string(models.SecurityEquity),
		Quantity:        math.Abs(quantity),
		Price:           price,
		Amount:          math.Abs(amount),
		Fees:            math.Abs(commission),
		Currency:        "USD",
		Description:     description,
		RawText:         row.Raw(),
	}

	isOption := securityType == "OPTN"
	if isOption {
		contract, ok := csvutil.ParseOptionSymbol(symbol)
		if !ok {
			contract, ok = csvutil.ParseOptionSymbol(description)
		}
		if !ok {
			return models.CanonicalTransaction{}, false, fmt.Errorf("cannot decode option contract %q", symbol)
		}
		tx.SecurityType = string(models.SecurityOption)
		tx.Multiplier = csvutil.OptionMultiplier
		tx.Symbol = contract.Symbol()
		tx.Underlying = contract.Underlying
		tx.Strike = contract.Strike
		tx.OptionType = contract.Type
		switch {
		case t.sign != 0:
			tx.Quantity = t.sign * math.Abs(quantity)
		case tx.Kind == string(models.KindExpired):
			// Positive quantity buys back a written contract.
			tx.Quantity = -quantity
		}
	} else if t.sign != 0 {
		logger.L.Warn("E-Trade parser: skipping equity short sale", "row", row.Number, "type", rawType, "symbol", symbol)
		return models.CanonicalTransaction{}, false, nil
	} else if csvutil.IsCashEquivalent(symbol, description) {
		tx.SecurityType = string(models.SecurityCash)
	}

	switch models.TransactionKind(tx.Kind) {
	case models.KindFee:
		tx.Quantity = 0
		tx.Price = 0
		if tx.Fees == 0 {
			tx.Fees = tx.Amount
		}
	}
	return tx, true, nil
}
