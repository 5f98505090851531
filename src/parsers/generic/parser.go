// backend/src/parsers/generic/parser.go
package generic

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/parsers/csvutil"
)

const Source = "generic"

var dateLayouts = []string{models.DateLayout, "01/02/2006", "1/2/2006", "02-01-2006"}

// GenericParser reads the ledger's own column layout. Only date, symbol and kind are
// required; columns may appear in any order and header names are case-insensitive.
//
//	date,symbol,kind,quantity,price,amount,fees,security_type,currency,description,
//	option_type,underlying,strike,multiplier,split_ratio,return_of_capital
type GenericParser struct{}

func NewParser() *GenericParser {
	return &GenericParser{}
}

// aliases lets files exported from the transactions endpoint be re-imported as-is.
var aliases = map[string][]string{
	"date":   {"date", "transaction_date"},
	"price":  {"price", "price_per_unit"},
	"amount": {"amount", "gross_amount"},
}

func lookup(header csvutil.Header, record []string, name string) string {
	names, ok := aliases[name]
	if !ok {
		names = []string{name}
	}
	for _, n := range names {
		if header.Has(n) {
			return header.Get(record, n)
		}
	}
	return ""
}

func (p *GenericParser) Parse(file io.Reader) ([]models.CanonicalTransaction, error) {
	reader := csvutil.NewReader(file)
	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("generic parser: failed to read CSV header: %w", err)
	}
	header := csvutil.NewHeader(first)
	if !(header.Has("date") || header.Has("transaction_date")) || !header.Has("symbol", "kind") {
		return nil, fmt.Errorf("generic parser: header must contain date, symbol and kind")
	}

	var canonicalTxs []models.CanonicalTransaction
	rowNumber := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("generic parser: failed to read CSV record: %w", err)
		}
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}
		rowNumber++
		tx, err := convert(header, csvutil.Row{Number: rowNumber, Fields: record})
		if err != nil {
			return nil, fmt.Errorf("generic parser: row %d: %w", rowNumber, err)
		}
		canonicalTxs = append(canonicalTxs, tx)
	}
	return canonicalTxs, nil
}

func convert(header csvutil.Header, row csvutil.Row) (models.CanonicalTransaction, error) {
	get := func(name string) string { return lookup(header, row.Fields, name) }

	date, err := csvutil.ParseDate(get("date"), dateLayouts...)
	if err != nil {
		return models.CanonicalTransaction{}, err
	}

	numbers := map[string]float64{}
	for _, column := range []string{"quantity", "price", "amount", "fees", "strike", "multiplier", "split_ratio"} {
		v, err := csvutil.ParseAmount(get(column))
		if err != nil {
			return models.CanonicalTransaction{}, fmt.Errorf("%s: %w", column, err)
		}
		numbers[column] = v
	}

	roc := false
	if s := get("return_of_capital"); s != "" {
		roc, err = strconv.ParseBool(s)
		if err != nil {
			return models.CanonicalTransaction{}, fmt.Errorf("return_of_capital: invalid boolean %q", s)
		}
	}

	kind := strings.ToLower(get("kind"))
	return models.CanonicalTransaction{
		Source:          Source,
		Row:             row.Number,
		TransactionDate: date,
		Symbol:          get("symbol"),
		Action:          kind,
		Kind:            kind,
		SecurityType:    get("security_type"),
		Quantity:        numbers["quantity"],
		Price:           numbers["price"],
		Amount:          numbers["amount"],
		Fees:            numbers["fees"],
		Currency:        get("currency"),
		Description:     get("description"),
		OptionType:      get("option_type"),
		Underlying:      get("underlying"),
		Strike:          numbers["strike"],
		Multiplier:      numbers["multiplier"],
		SplitRatio:      numbers["split_ratio"],
		ReturnOfCapital: roc,
		RawText:         row.Raw(),
	}, nil
}
