package processors

import (
	"time"

	"github.com/username/folioledger/backend/src/models"
)

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func trade(id int64, day, symbol string, kind models.TransactionKind, qty, price, fees float64) models.Transaction {
	return models.Transaction{
		ID:           id,
		Date:         date(day),
		Symbol:       symbol,
		Kind:         kind,
		SecurityType: models.SecurityEquity,
		Quantity:     qty,
		PricePerUnit: price,
		GrossAmount:  abs(qty) * price,
		Fees:         fees,
	}
}

func optionTrade(id int64, day, symbol string, kind models.TransactionKind, qty, price, fees float64) models.Transaction {
	tx := trade(id, day, symbol, kind, qty, price, fees)
	tx.SecurityType = models.SecurityOption
	return tx
}

func split(id int64, day, symbol string, ratio float64) models.Transaction {
	return models.Transaction{ID: id, Date: date(day), Symbol: symbol, Kind: models.KindSplit, SplitRatio: ratio, SecurityType: models.SecurityEquity}
}

func dividend(id int64, day, symbol string, amount float64, roc bool) models.Transaction {
	return models.Transaction{ID: id, Date: date(day), Symbol: symbol, Kind: models.KindDividend, GrossAmount: amount, ReturnOfCapital: roc, SecurityType: models.SecurityEquity}
}

func okPrice(price float64) models.PriceInfo {
	return models.PriceInfo{Status: models.PriceStatusOK, Price: price, Currency: "USD"}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
