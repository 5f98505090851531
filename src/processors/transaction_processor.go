// backend/src/processors/transaction_processor.go
package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/security/validation"
	"github.com/username/folioledger/backend/src/utils"
)

const defaultOptionMultiplier = 1.0

// TransactionProcessor validates canonical transactions and turns them into ledger transactions.
type TransactionProcessor struct{}

func NewTransactionProcessor() *TransactionProcessor { return &TransactionProcessor{} }

// Process validates the whole batch before returning anything: one bad record rejects the
// batch with a *models.ValidationError. Broker events (reinvest, transfer_in, expired,
// assigned, exercised) are expanded into core kinds.
func (p *TransactionProcessor) Process(txs []models.CanonicalTransaction) ([]models.Transaction, error) {
	processed := make([]models.Transaction, 0, len(txs))
	seenHashes := make(map[string]int)

	for i, tx := range txs {
		if tx.Row == 0 {
			tx.Row = i + 1
		}
		normalized, err := normalize(tx)
		if err != nil {
			return nil, err
		}
		if err := ValidateTransaction(normalized, tx.Row); err != nil {
			return nil, err
		}

		expanded, err := expand(normalized, tx.Row)
		if err != nil {
			return nil, err
		}

		base := tx.HashId
		if base == "" {
			base = baseHash(tx)
		}
		seenHashes[base]++
		if n := seenHashes[base]; n > 1 {
			base = hashString(fmt.Sprintf("%s#%d", base, n))
		}
		for j := range expanded {
			expanded[j].HashId = base
			if j > 0 {
				expanded[j].HashId = hashString(fmt.Sprintf("%s:%d:%s", base, j, expanded[j].Kind))
			}
		}
		processed = append(processed, expanded...)
	}
	return processed, nil
}

// normalize maps a canonical record onto a single Transaction of its raw kind.
func normalize(tx models.CanonicalTransaction) (models.Transaction, error) {
	kind, err := models.ParseTransactionKind(tx.Kind)
	if err != nil {
		return models.Transaction{}, &models.ValidationError{Row: tx.Row, Symbol: tx.Symbol, Field: "kind", Reason: err.Error()}
	}
	secType, err := models.ParseSecurityType(tx.SecurityType)
	if err != nil {
		return models.Transaction{}, &models.ValidationError{Row: tx.Row, Symbol: tx.Symbol, Field: "security_type", Reason: err.Error()}
	}

	switch kind {
	case models.KindOptionOpen, models.KindOptionClose, models.KindExpired, models.KindAssigned, models.KindExercised:
		secType = models.SecurityOption
	}

	quantity := tx.Quantity
	if secType == models.SecurityOption {
		multiplier := tx.Multiplier
		if multiplier == 0 {
			multiplier = defaultOptionMultiplier
		}
		quantity *= multiplier
	}

	out := models.Transaction{
		Date:            tx.TransactionDate,
		Symbol:          strings.ToUpper(validation.CleanText(tx.Symbol)),
		Kind:            kind,
		SecurityType:    secType,
		Quantity:        quantity,
		PricePerUnit:    tx.Price,
		GrossAmount:     math.Abs(tx.Amount),
		Fees:            tx.Fees,
		ReturnOfCapital: tx.ReturnOfCapital,
		SplitRatio:      tx.SplitRatio,
		Underlying:      strings.ToUpper(validation.CleanText(tx.Underlying)),
		OptionType:      normalizeOptionType(tx.OptionType),
		Strike:          tx.Strike,
		Currency:        strings.ToUpper(strings.TrimSpace(tx.Currency)),
		Source:          tx.Source,
		Description:     validation.CleanText(tx.Description),
	}
	if !tx.TransactionDate.IsZero() {
		out.Date = Day(tx.TransactionDate)
	}

	// Missing price or gross is derived from the other one.
	qty := math.Abs(out.Quantity)
	if out.PricePerUnit == 0 && out.GrossAmount > 0 && qty > 0 && kind != models.KindDividend && kind != models.KindFee {
		out.PricePerUnit = out.GrossAmount / qty
	}
	return out, nil
}

func normalizeOptionType(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "call":
		return "call"
	case "p", "put":
		return "put"
	}
	return ""
}

// grossTolerance is max(0.01, 0.5% of gross).
func grossTolerance(gross float64) float64 {
	return math.Max(0.01, 0.005*math.Abs(gross))
}

// ValidateTransaction checks one normalized transaction. row is used in error messages.
func ValidateTransaction(tx models.Transaction, row int) error {
	fail := func(field, reason string) error {
		return &models.ValidationError{Row: row, Ref: tx.Ref(), Symbol: tx.Symbol, Field: field, Reason: reason}
	}

	if tx.Date.IsZero() {
		return fail("date", "is required")
	}
	if tx.Symbol == "" && tx.Kind != models.KindFee {
		return fail("symbol", "is required")
	}
	if tx.Symbol != "" {
		if err := validation.ValidateSymbol(tx.Symbol); err != nil {
			return fail("symbol", strings.TrimPrefix(err.Error(), validation.ErrValidationFailed.Error()+": "))
		}
	}
	if err := validation.ValidateCurrencyCode(tx.Currency); err != nil {
		return fail("currency", "must be a 3-letter code")
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"quantity", tx.Quantity},
		{"price_per_unit", tx.PricePerUnit},
		{"gross_amount", tx.GrossAmount},
		{"fees", tx.Fees},
		{"split_ratio", tx.SplitRatio},
		{"strike", tx.Strike},
	} {
		if validation.ValidateFinite(f.value, f.name) != nil {
			return fail(f.name, "must be a finite number")
		}
	}
	if tx.PricePerUnit < 0 {
		return fail("price_per_unit", "must not be negative")
	}
	if tx.Fees < 0 {
		return fail("fees", "must not be negative")
	}

	switch tx.Kind {
	case models.KindBuy, models.KindSell, models.KindReinvest, models.KindTransferIn:
		if tx.Quantity <= 0 {
			return fail("quantity", "must be positive for "+string(tx.Kind))
		}
		if err := checkGross(tx); err != nil {
			return fail("gross_amount", err.Error())
		}
	case models.KindOptionOpen, models.KindOptionClose:
		if tx.Quantity == 0 {
			return fail("quantity", "must not be zero for options")
		}
		if err := checkGross(tx); err != nil {
			return fail("gross_amount", err.Error())
		}
	case models.KindExpired:
		if tx.Quantity == 0 {
			return fail("quantity", "must not be zero for options")
		}
	case models.KindAssigned, models.KindExercised:
		if tx.Quantity == 0 {
			return fail("quantity", "must not be zero for options")
		}
		if tx.Underlying == "" {
			return fail("underlying", "is required to deliver the underlying shares")
		}
		if tx.Strike <= 0 {
			return fail("strike", "must be positive")
		}
		if tx.OptionType == "" {
			return fail("option_type", "must be call or put")
		}
	case models.KindSplit:
		if tx.SplitRatio <= 0 {
			return fail("split_ratio", "must be positive")
		}
	case models.KindDividend:
		if tx.GrossAmount <= 0 {
			return fail("gross_amount", "dividend amount must be positive")
		}
	case models.KindFee:
		if tx.FeeAmount() <= 0 {
			return fail("fees", "fee amount must be positive")
		}
	}
	return nil
}

// checkGross accepts gross == |qty| x price, with or without fees folded in.
func checkGross(tx models.Transaction) error {
	expected := math.Abs(tx.Quantity) * tx.PricePerUnit
	if tx.GrossAmount == 0 {
		return nil
	}
	tol := grossTolerance(expected)
	for _, candidate := range []float64{expected, expected + tx.Fees, expected - tx.Fees} {
		if utils.AlmostEqual(tx.GrossAmount, candidate, tol) {
			return nil
		}
	}
	return fmt.Errorf("%.2f does not match quantity x price (%.2f) within fees %.2f", tx.GrossAmount, expected, tx.Fees)
}

// expand rewrites broker events into core kinds. Gross amounts are normalized to
// |quantity| x price so fees are never counted twice.
func expand(tx models.Transaction, row int) ([]models.Transaction, error) {
	switch tx.Kind {
	case models.KindBuy, models.KindSell, models.KindOptionOpen, models.KindOptionClose:
		tx.GrossAmount = math.Abs(tx.Quantity) * tx.PricePerUnit
		return []models.Transaction{tx}, nil

	case models.KindSplit, models.KindDividend, models.KindFee:
		tx.Quantity = 0
		return []models.Transaction{tx}, nil

	case models.KindReinvest:
		div := tx
		div.Kind = models.KindDividend
		div.Quantity = 0
		div.GrossAmount = math.Abs(tx.Quantity) * tx.PricePerUnit
		div.Fees = 0
		buy := tx
		buy.Kind = models.KindBuy
		buy.GrossAmount = div.GrossAmount
		return []models.Transaction{div, buy}, nil

	case models.KindTransferIn:
		tx.Kind = models.KindBuy
		tx.GrossAmount = math.Abs(tx.Quantity) * tx.PricePerUnit
		return []models.Transaction{tx}, nil

	case models.KindExpired:
		tx.Kind = models.KindOptionClose
		tx.PricePerUnit = 0
		tx.GrossAmount = 0
		return []models.Transaction{tx}, nil

	case models.KindAssigned, models.KindExercised:
		return expandDelivery(tx), nil
	}
	return nil, &models.ValidationError{Row: row, Symbol: tx.Symbol, Field: "kind", Reason: "unsupported kind " + string(tx.Kind)}
}

// expandDelivery closes the option at zero and trades the underlying at the strike.
// Assignment hits a written (short) option, exercise a bought (long) one.
func expandDelivery(tx models.Transaction) []models.Transaction {
	units := math.Abs(tx.Quantity)

	closeOpt := tx
	closeOpt.Kind = models.KindOptionClose
	closeOpt.PricePerUnit = 0
	closeOpt.GrossAmount = 0
	closeOpt.Quantity = units
	if tx.Kind == models.KindAssigned {
		closeOpt.Quantity = -units
	}

	var stockKind models.TransactionKind
	switch {
	case tx.Kind == models.KindAssigned && tx.OptionType == "call":
		stockKind = models.KindSell
	case tx.Kind == models.KindAssigned && tx.OptionType == "put":
		stockKind = models.KindBuy
	case tx.Kind == models.KindExercised && tx.OptionType == "call":
		stockKind = models.KindBuy
	default:
		stockKind = models.KindSell
	}
	stock := models.Transaction{
		Date:         tx.Date,
		Symbol:       tx.Underlying,
		Kind:         stockKind,
		SecurityType: models.SecurityEquity,
		Quantity:     units,
		PricePerUnit: tx.Strike,
		GrossAmount:  units * tx.Strike,
		Currency:     tx.Currency,
		Source:       tx.Source,
		Description:  tx.Description,
	}
	closeOpt.Fees = 0
	stock.Fees = tx.Fees
	return []models.Transaction{closeOpt, stock}
}

func baseHash(tx models.CanonicalTransaction) string {
	if strings.TrimSpace(tx.RawText) != "" {
		return hashString(tx.Source + "|" + tx.RawText)
	}
	return hashString(fmt.Sprintf("%s|%s|%s|%s|%s|%g|%g|%g|%g",
		tx.Source, tx.TransactionDate.Format(models.DateLayout), strings.ToUpper(tx.Symbol), tx.Kind, tx.Action,
		tx.Quantity, tx.Price, tx.Amount, tx.Fees))
}

func hashString(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
