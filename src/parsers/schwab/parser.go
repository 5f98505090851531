// backend/src/parsers/schwab/parser.go
package schwab

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/parsers/csvutil"
)

const Source = "schwab"

var dateLayouts = []string{"01/02/2006", "1/2/2006"}

// SchwabParser implements the parsers.Parser interface for Charles Schwab history exports.
type SchwabParser struct{}

func NewParser() *SchwabParser {
	return &SchwabParser{}
}

// action describes how one Schwab "Action" value maps onto a canonical kind.
type action struct {
	kind string
	// sign applied to the unsigned Schwab quantity for option opens and closes
	sign float64
}

var actions = map[string]action{
	"buy":                  {kind: string(models.KindBuy)},
	"sell":                 {kind: string(models.KindSell)},
	"reinvest shares":      {kind: string(models.KindReinvest)},
	"buy to open":          {kind: string(models.KindOptionOpen), sign: 1},
	"sell to open":         {kind: string(models.KindOptionOpen), sign: -1},
	"sell to close":        {kind: string(models.KindOptionClose), sign: 1},
	"buy to close":         {kind: string(models.KindOptionClose), sign: -1},
	"expired":              {kind: string(models.KindExpired)},
	"assigned":             {kind: string(models.KindAssigned)},
	"exchange or exercise": {kind: string(models.KindExercised)},
	"qualified dividend":   {kind: string(models.KindDividend)},
	"cash dividend":        {kind: string(models.KindDividend)},
	"non-qualified div":    {kind: string(models.KindDividend)},
	"special dividend":     {kind: string(models.KindDividend)},
	"pr yr cash div":       {kind: string(models.KindDividend)},
	"return of capital":    {kind: string(models.KindDividend)},
	"adr mgmt fee":         {kind: string(models.KindFee)},
	"service fee":          {kind: string(models.KindFee)},
	"foreign tax paid":     {kind: string(models.KindFee)},
	"margin interest":      {kind: string(models.KindFee)},
}

// Parse reads a Schwab CSV. Rows are returned oldest first; actions that move only cash
// or need a manual entry (splits, reorganizations) are skipped with a warning.
func (p *SchwabParser) Parse(file io.Reader) ([]models.CanonicalTransaction, error) {
	header, rows, err := csvutil.ReadTable(file, "Date", isFooter)
	if err != nil {
		return nil, fmt.Errorf("schwab parser: %w", err)
	}
	if !header.Has("Date", "Action", "Symbol", "Quantity", "Price", "Amount") {
		return nil, fmt.Errorf("schwab parser: missing required columns")
	}
	csvutil.Reverse(rows)

	var canonicalTxs []models.CanonicalTransaction
	for _, row := range rows {
		tx, ok, err := p.convert(header, row)
		if err != nil {
			return nil, fmt.Errorf("schwab parser: row %d: %w", row.Number, err)
		}
		if ok {
			canonicalTxs = append(canonicalTxs, tx)
		}
	}
	return canonicalTxs, nil
}

func isFooter(record []string) bool {
	return strings.HasPrefix(strings.TrimSpace(record[0]), "Transactions Total")
}

func (p *SchwabParser) convert(header csvutil.Header, row csvutil.Row) (models.CanonicalTransaction, bool, error) {
	get := func(name string) string { return header.Get(row.Fields, name) }

	rawAction := get("Action")
	act, known := actions[strings.ToLower(rawAction)]
	if !known {
		logger.L.Warn("Schwab parser: skipping unsupported action", "row", row.Number, "action", rawAction, "symbol", get("Symbol"))
		return models.CanonicalTransaction{}, false, nil
	}

	date, err := csvutil.ParseDate(get("Date"), dateLayouts...)
	if err != nil {
		return models.CanonicalTransaction{}, false, err
	}
	quantity, err := csvutil.ParseAmount(get("Quantity"))
	if err != nil {
		return models.CanonicalTransaction{}, false, fmt.Errorf("quantity: %w", err)
	}
	price, err := csvutil.ParseAmount(get("Price"))
	if err != nil {
		return models.CanonicalTransaction{}, false, fmt.Errorf("price: %w", err)
	}
	fees, err := csvutil.ParseAmount(get("Fees & Comm"))
	if err != nil {
		return models.CanonicalTransaction{}, false, fmt.Errorf("fees: %w", err)
	}
	amount, err := csvutil.ParseAmount(get("Amount"))
	if err != nil {
		return models.CanonicalTransaction{}, false, fmt.Errorf("amount: %w", err)
	}

	symbol := get("Symbol")
	description := get("Description")
	tx := models.CanonicalTransaction{
		Source:          Source,
		Row:             row.Number,
		TransactionDate: date,
		Symbol:          symbol,
		Action:          rawAction,
		Kind:            act.kind,
		SecurityType:    string(models.SecurityEquity),
		Quantity:        math.Abs(quantity),
		Price:           price,
		Amount:          math.Abs(amount),
		Fees:            math.Abs(fees),
		Currency:        "USD",
		Description:     description,
		RawText:         row.Raw(),
	}

	if contract, isOption := csvutil.ParseOptionSymbol(symbol); isOption || isOptionDescription(description) {
		tx.SecurityType = string(models.SecurityOption)
		tx.Multiplier = csvutil.OptionMultiplier
		if isOption {
			tx.Symbol = contract.Symbol()
			tx.Underlying = contract.Underlying
			tx.Strike = contract.Strike
			tx.OptionType = contract.Type
		}
		switch {
		case act.sign != 0:
			tx.Quantity = act.sign * math.Abs(quantity)
		case tx.Kind == string(models.KindExpired):
			tx.Quantity = expiredQuantity(quantity)
		}
	} else if csvutil.IsCashEquivalent(symbol, description) {
		tx.SecurityType = string(models.SecurityCash)
	}

	switch models.TransactionKind(tx.Kind) {
	case models.KindDividend:
		tx.Quantity = 0
		tx.Price = 0
		tx.ReturnOfCapital = strings.EqualFold(rawAction, "return of capital")
	case models.KindFee:
		tx.Quantity = 0
		tx.Price = 0
		if tx.Fees == 0 {
			tx.Fees = tx.Amount
		}
	case models.KindBuy, models.KindSell, models.KindReinvest:
		if tx.Price == 0 && tx.Quantity > 0 {
			tx.Price = tx.Amount / tx.Quantity
		}
	}
	return tx, true, nil
}

func isOptionDescription(description string) bool {
	upper := strings.ToUpper(description)
	return strings.HasPrefix(upper, "PUT ") || strings.HasPrefix(upper, "CALL ")
}

// expiredQuantity maps the reported quantity of an expiry onto the position direction.
// Schwab reports the contracts removed from the account: a positive count retires a
// written (short) position, a negative one a bought (long) position.
func expiredQuantity(reported float64) float64 {
	if reported < 0 {
		return math.Abs(reported)
	}
	return -reported
}
