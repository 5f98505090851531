package etrade

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/processors"
)

const sampleCSV = `
For Account:,#####3333

TransactionDate,TransactionType,SecurityType,Symbol,Quantity,Amount,Price,Commission,Description
11/22/24,Bought,EQ,COF,10,1832.00,183.20,0,CAPITAL ONE FINANCIAL CORP
11/15/24,Sold Short,OPTN,COF Mar 21 '25 $210 Call,-1,506.31,5.07,0.69,COF Mar 21 '25 $210 Call
`

func TestParse_SampleExport(t *testing.T) {
	txs, err := NewParser().Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, txs, 2)

	call := txs[0]
	assert.Equal(t, time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC), call.TransactionDate)
	assert.Equal(t, "COF 03/21/2025 210.00 C", call.Symbol)
	assert.Equal(t, string(models.KindOptionOpen), call.Kind)
	assert.Equal(t, string(models.SecurityOption), call.SecurityType)
	assert.Equal(t, -1.0, call.Quantity)
	assert.Equal(t, 100.0, call.Multiplier)
	assert.Equal(t, 5.07, call.Price)
	assert.Equal(t, 506.31, call.Amount)
	assert.Equal(t, 0.69, call.Fees)
	assert.Equal(t, "COF", call.Underlying)
	assert.Equal(t, 210.0, call.Strike)
	assert.Equal(t, "call", call.OptionType)

	buy := txs[1]
	assert.Equal(t, "COF", buy.Symbol)
	assert.Equal(t, string(models.KindBuy), buy.Kind)
	assert.Equal(t, 10.0, buy.Quantity)
	assert.Equal(t, 183.2, buy.Price)
	assert.Equal(t, 1832.0, buy.Amount)
	assert.Equal(t, 0.0, buy.Fees)

	ledgerTxs, err := processors.NewTransactionProcessor().Process(txs)
	require.NoError(t, err)
	require.Len(t, ledgerTxs, 2)
	assert.Equal(t, -100.0, ledgerTxs[0].Quantity)
	assert.InDelta(t, 507.0, ledgerTxs[0].GrossAmount, 1e-9)
}

func TestParse_SkipsUnsupportedRows(t *testing.T) {
	input := `TransactionDate,TransactionType,SecurityType,Symbol,Quantity,Amount,Price,Commission,Description
12/20/24,Option Expired,OPTN,COF Dec 20 '24 $200 Put,1,0,0,0,COF Dec 20 '24 $200 Put
12/02/24,Adjustment,EQ,COF,5,0,0,0,ADJUSTMENT
11/30/24,Sold Short,EQ,XYZ,-5,100.00,20.00,0,SHORT SALE
`
	txs, err := NewParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, txs, 1)

	expired := txs[0]
	assert.Equal(t, string(models.KindExpired), expired.Kind)
	assert.Equal(t, "COF 12/20/2024 200.00 P", expired.Symbol)
	assert.Equal(t, -1.0, expired.Quantity, "buying back one contract closes a short")
}

func TestParse_UndecodableOption(t *testing.T) {
	input := `TransactionDate,TransactionType,SecurityType,Symbol,Quantity,Amount,Price,Commission,Description
11/15/24,Sold Short,OPTN,WEIRD,-1,50.00,0.50,0,WEIRD
`
	_, err := NewParser().Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}
