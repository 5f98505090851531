package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/folioledger/backend/src/models"
)

func TestFeeProcessor(t *testing.T) {
	accountFee := models.Transaction{Date: date("2023-02-01"), Kind: models.KindFee, Fees: 12.345, Description: "ADR fee", Source: "schwab"}
	txs := []models.Transaction{
		trade(1, "2023-01-01", "ABC", models.KindBuy, 1, 10, 0.65),
		trade(2, "2023-01-02", "ABC", models.KindSell, 1, 11, 0),
		accountFee,
	}
	fees := NewFeeProcessor().Process(txs)

	require.Len(t, fees, 2)
	assert.Equal(t, models.FeeCategoryTrade, fees[0].Category)
	assert.Equal(t, -0.65, fees[0].Amount)
	assert.Equal(t, "2023-01-01", fees[0].Date)
	assert.Equal(t, "ABC", fees[0].Symbol)

	assert.Equal(t, models.FeeCategoryAccount, fees[1].Category)
	assert.Equal(t, -12.35, fees[1].Amount)
	assert.Equal(t, "ADR fee", fees[1].Description)
}

func TestFeeProcessor_EmptyInput(t *testing.T) {
	fees := NewFeeProcessor().Process(nil)
	assert.NotNil(t, fees)
	assert.Empty(t, fees)
}
