package services

import (
	"context"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/username/folioledger/backend/src/database"
	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/processors"
)

type mockPriceService struct {
	mock.Mock
}

func (m *mockPriceService) GetPrice(ctx context.Context, symbol string, date time.Time) (float64, error) {
	args := m.Called(ctx, symbol, date)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockPriceService) GetCurrentPrices(ctx context.Context, symbols []string) (map[string]models.PriceInfo, error) {
	args := m.Called(ctx, symbols)
	return args.Get(0).(map[string]models.PriceInfo), args.Error(1)
}

func (m *mockPriceService) GetHistoricalPrices(ctx context.Context, symbols []string, from, to time.Time) (map[string]models.PriceMap, error) {
	args := m.Called(ctx, symbols, from, to)
	return args.Get(0).(map[string]models.PriceMap), args.Error(1)
}

func (m *mockPriceService) RefreshPrices(ctx context.Context, symbols []string) error {
	args := m.Called(ctx, symbols)
	return args.Error(0)
}

func okQuote(price float64) models.PriceInfo {
	return models.PriceInfo{Status: models.PriceStatusOK, Price: price, Currency: "USD"}
}

func day(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func sameDay(s string) any {
	return mock.MatchedBy(func(t time.Time) bool { return t.Equal(day(s)) })
}

type portfolioFixture struct {
	svc         *portfolioServiceImpl
	prices      *mockPriceService
	portfolioID int64
}

func newPortfolioFixture(t *testing.T, today string) *portfolioFixture {
	t.Helper()
	ctx := context.Background()
	db := database.NewTestDB(t)
	p, err := model.CreatePortfolio(ctx, db, "Main", "")
	require.NoError(t, err)

	prices := &mockPriceService{}
	svc := NewPortfolioService(
		processors.NewTransactionProcessor(),
		processors.NewLedgerProcessor(),
		processors.NewGainLossProcessor(),
		processors.NewValuationProcessor(),
		processors.NewPerformanceProcessor(),
		processors.NewRiskProcessor(0),
		processors.NewRebalanceProcessor(1.0),
		processors.NewDividendProcessor(),
		processors.NewFeeProcessor(),
		NewTransactionStore(db),
		NewSettingsStore(db),
		prices,
		cache.New(DefaultCacheExpiration, CacheCleanupInterval),
		DefaultCacheExpiration,
	).(*portfolioServiceImpl)
	now := day(today).Add(15 * time.Hour)
	svc.now = func() time.Time { return now }
	return &portfolioFixture{svc: svc, prices: prices, portfolioID: p.ID}
}

func (f *portfolioFixture) add(t *testing.T, txs ...models.CanonicalTransaction) {
	t.Helper()
	_, err := f.svc.AddTransactions(context.Background(), f.portfolioID, txs)
	require.NoError(t, err)
}

func equityTrade(date, symbol, kind string, qty, price, fees float64) models.CanonicalTransaction {
	return models.CanonicalTransaction{
		TransactionDate: day(date),
		Symbol:          symbol,
		Kind:            kind,
		Quantity:        qty,
		Price:           price,
		Amount:          qty * price,
		Fees:            fees,
		Currency:        "USD",
	}
}

func TestPortfolioService_BuySellExample(t *testing.T) {
	f := newPortfolioFixture(t, "2023-03-01")
	ctx := context.Background()
	f.add(t,
		equityTrade("2023-01-02", "ABC", "buy", 10, 100, 0),
		equityTrade("2023-02-01", "ABC", "sell", 4, 150, 0),
	)
	f.prices.On("GetCurrentPrices", mock.Anything, []string{"ABC"}).
		Return(map[string]models.PriceInfo{"ABC": okQuote(120)}, nil)

	gl, err := f.svc.GetGainLoss(ctx, f.portfolioID)
	require.NoError(t, err)
	record := gl.Records["ABC"]
	assert.InDelta(t, 200, record.RealizedGainLoss, 1e-9)
	assert.InDelta(t, 120, record.UnrealizedGainLoss, 1e-9)
	assert.InDelta(t, 6, record.CurrentUnits, 1e-9)
	assert.InDelta(t, 600, record.TotalCostBasis, 1e-9)
	assert.InDelta(t, 320, record.TotalReturn, 1e-9)
	assert.Empty(t, gl.Warnings)

	holdings, err := f.svc.GetHoldings(ctx, f.portfolioID)
	require.NoError(t, err)
	require.Len(t, holdings.Holdings, 1)
	assert.InDelta(t, 720, holdings.Holdings[0].MarketValue, 1e-9)
	assert.Equal(t, 1.0, holdings.Holdings[0].Weight)

	allocation, err := f.svc.GetAllocation(ctx, f.portfolioID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC"}, allocation.Labels)
	assert.Equal(t, []float64{1}, allocation.Values)

	f.prices.AssertNumberOfCalls(t, "GetCurrentPrices", 2)
}

func TestPortfolioService_CacheIsInvalidatedOnWrite(t *testing.T) {
	f := newPortfolioFixture(t, "2023-03-01")
	ctx := context.Background()
	f.add(t, equityTrade("2023-01-02", "ABC", "buy", 10, 100, 0))
	f.prices.On("GetCurrentPrices", mock.Anything, []string{"ABC"}).
		Return(map[string]models.PriceInfo{"ABC": okQuote(120)}, nil)

	first, err := f.svc.GetHoldings(ctx, f.portfolioID)
	require.NoError(t, err)
	_, err = f.svc.GetHoldings(ctx, f.portfolioID)
	require.NoError(t, err)
	f.prices.AssertNumberOfCalls(t, "GetCurrentPrices", 1)

	f.add(t, equityTrade("2023-01-03", "ABC", "buy", 5, 100, 0))
	second, err := f.svc.GetHoldings(ctx, f.portfolioID)
	require.NoError(t, err)
	f.prices.AssertNumberOfCalls(t, "GetCurrentPrices", 2)
	assert.InDelta(t, 10, first.Holdings[0].Units, 1e-9)
	assert.InDelta(t, 15, second.Holdings[0].Units, 1e-9)

	// Re-adding the same rows is a no-op and keeps the cache.
	inserted, err := f.svc.AddTransactions(ctx, f.portfolioID, []models.CanonicalTransaction{equityTrade("2023-01-03", "ABC", "buy", 5, 100, 0)})
	require.NoError(t, err)
	assert.Zero(t, inserted)
	_, err = f.svc.GetHoldings(ctx, f.portfolioID)
	require.NoError(t, err)
	f.prices.AssertNumberOfCalls(t, "GetCurrentPrices", 2)
}

func TestPortfolioService_UnavailablePriceIsSoft(t *testing.T) {
	f := newPortfolioFixture(t, "2023-03-01")
	ctx := context.Background()
	f.add(t,
		equityTrade("2023-01-02", "ABC", "buy", 10, 100, 0),
		equityTrade("2023-01-02", "XYZ", "buy", 5, 20, 0),
	)
	f.prices.On("GetCurrentPrices", mock.Anything, []string{"ABC", "XYZ"}).
		Return(map[string]models.PriceInfo{
			"ABC": okQuote(110),
			"XYZ": {Status: models.PriceStatusUnavailable, Reason: "no quote"},
		}, nil)

	holdings, err := f.svc.GetHoldings(ctx, f.portfolioID)
	require.NoError(t, err)
	require.Len(t, holdings.Holdings, 2)
	assert.Equal(t, models.PriceStatusOK, holdings.Holdings[0].PriceStatus)
	assert.Equal(t, 1.0, holdings.Holdings[0].Weight)
	assert.Equal(t, models.PriceStatusUnavailable, holdings.Holdings[1].PriceStatus)
	assert.Zero(t, holdings.Holdings[1].MarketValue)
	require.Len(t, holdings.Warnings, 1)
	assert.Equal(t, "XYZ", holdings.Warnings[0].Symbol)
}

func TestPortfolioService_OptionsAreNotQuoted(t *testing.T) {
	f := newPortfolioFixture(t, "2023-03-01")
	ctx := context.Background()
	f.add(t, models.CanonicalTransaction{
		TransactionDate: day("2023-01-02"),
		Symbol:          "ABC 230317C00100000",
		Kind:            "option_open",
		Quantity:        -1,
		Multiplier:      100,
		Price:           2,
		Amount:          200,
		OptionType:      "call",
		Underlying:      "ABC",
		Strike:          100,
	})

	holdings, err := f.svc.GetHoldings(ctx, f.portfolioID)
	require.NoError(t, err)
	require.Len(t, holdings.Holdings, 1)
	assert.InDelta(t, -100, holdings.Holdings[0].Units, 1e-9)
	assert.Equal(t, models.PriceStatusUnavailable, holdings.Holdings[0].PriceStatus)
	require.Len(t, holdings.Warnings, 1)
	assert.Equal(t, optionQuoteReason, holdings.Warnings[0].Reason)
	f.prices.AssertNotCalled(t, "GetCurrentPrices", mock.Anything, mock.Anything)
}

func TestPortfolioService_Performance(t *testing.T) {
	f := newPortfolioFixture(t, "2023-01-05")
	ctx := context.Background()
	f.add(t, equityTrade("2023-01-02", "ABC", "buy", 10, 100, 1))
	f.prices.On("GetHistoricalPrices", mock.Anything, []string{"ABC"}, sameDay("2023-01-02"), sameDay("2023-01-05")).
		Return(map[string]models.PriceMap{"ABC": {"2023-01-02": 100, "2023-01-03": 110}}, nil)

	_, err := f.svc.GetPerformance(ctx, f.portfolioID, "2W")
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "timeframe", verr.Field)
	f.prices.AssertNotCalled(t, "GetHistoricalPrices", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	result, err := f.svc.GetPerformance(ctx, f.portfolioID, "1m")
	require.NoError(t, err)
	assert.Equal(t, "1M", result.Timeframe)
	assert.Equal(t, []string{"2023-01-02", "2023-01-03", "2023-01-04", "2023-01-05"}, result.Dates)
	assert.Equal(t, []float64{1000, 1100, 1100, 1100}, result.PortfolioValues)
	assert.Equal(t, []float64{1001, 1001, 1001, 1001}, result.InvestedAmounts)
	require.NotNil(t, result.Metrics.Volatility)
	assert.Empty(t, result.Warnings)

	returns, err := f.svc.GetAnnualReturns(ctx, f.portfolioID)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, 2023, returns[0].Year)
	assert.InDelta(t, 0.1, returns[0].Return, 1e-9)

	f.prices.AssertNumberOfCalls(t, "GetHistoricalPrices", 1)
}

func TestPortfolioService_RebalancePlan(t *testing.T) {
	f := newPortfolioFixture(t, "2023-03-01")
	ctx := context.Background()
	f.add(t, equityTrade("2023-01-02", "ABC", "buy", 6, 100, 0))
	f.prices.On("GetCurrentPrices", mock.Anything, []string{"ABC"}).
		Return(map[string]models.PriceInfo{"ABC": okQuote(120)}, nil)
	f.prices.On("GetCurrentPrices", mock.Anything, []string{"XYZ"}).
		Return(map[string]models.PriceInfo{"XYZ": okQuote(60)}, nil)

	_, err := f.svc.PutSettings(ctx, f.portfolioID, []models.Setting{
		{Stock: "ABC", TargetWeight: 0.5},
		{Stock: "XYZ", TargetWeight: 0.5},
	}, false)
	require.NoError(t, err)

	plan, err := f.svc.GetRebalancePlan(ctx, f.portfolioID)
	require.NoError(t, err)
	assert.InDelta(t, 720, plan.TotalValue, 1e-9)
	require.Len(t, plan.Actions, 2)

	assert.Equal(t, "ABC", plan.Actions[0].Symbol)
	assert.Equal(t, models.ActionSell, plan.Actions[0].Action)
	assert.InDelta(t, 3, plan.Actions[0].Units, 1e-9)
	assert.InDelta(t, -360, plan.Actions[0].ValueToChange, 1e-9)

	assert.Equal(t, "XYZ", plan.Actions[1].Symbol)
	assert.Equal(t, models.ActionBuy, plan.Actions[1].Action)
	assert.InDelta(t, 6, plan.Actions[1].Units, 1e-9)
}

func TestPortfolioService_InsufficientLotsSurfaces(t *testing.T) {
	f := newPortfolioFixture(t, "2023-03-01")
	f.add(t,
		equityTrade("2023-01-02", "ABC", "buy", 1, 100, 0),
		equityTrade("2023-01-03", "ABC", "sell", 2, 100, 0),
	)

	_, err := f.svc.GetGainLoss(context.Background(), f.portfolioID)
	var lotsErr *models.InsufficientLotsError
	require.ErrorAs(t, err, &lotsErr)
	assert.Equal(t, "ABC", lotsErr.Symbol)
	assert.Equal(t, 2.0, lotsErr.Requested)
	assert.Equal(t, 1.0, lotsErr.Available)
}

func TestPortfolioService_ReportsAndUnknownPortfolio(t *testing.T) {
	f := newPortfolioFixture(t, "2023-03-01")
	ctx := context.Background()
	f.add(t,
		equityTrade("2023-01-02", "ABC", "buy", 10, 100, 2.5),
		models.CanonicalTransaction{TransactionDate: day("2023-02-15"), Symbol: "ABC", Kind: "dividend", Amount: 12},
	)

	summary, err := f.svc.GetDividendSummary(ctx, f.portfolioID)
	require.NoError(t, err)
	assert.InDelta(t, 12, summary["2023"]["ABC"].Income, 1e-9)

	fees, err := f.svc.GetFeeDetails(ctx, f.portfolioID)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, -2.5, fees[0].Amount)

	txs, err := f.svc.GetTransactions(ctx, f.portfolioID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	_, err = f.svc.GetHoldings(ctx, 999)
	assert.ErrorIs(t, err, models.ErrPortfolioNotFound)
	_, err = f.svc.GetPerformance(ctx, 999, "ALL")
	assert.ErrorIs(t, err, models.ErrPortfolioNotFound)
}

func TestPortfolioService_OversellFailsPerformanceAndAnnualReturns(t *testing.T) {
	f := newPortfolioFixture(t, "2023-01-05")
	ctx := context.Background()
	f.add(t,
		equityTrade("2023-01-02", "ABC", "buy", 5, 100, 0),
		equityTrade("2023-01-03", "ABC", "sell", 10, 100, 0),
	)

	_, err := f.svc.GetPerformance(ctx, f.portfolioID, "ALL")
	var lotsErr *models.InsufficientLotsError
	require.ErrorAs(t, err, &lotsErr)
	assert.Equal(t, "ABC", lotsErr.Symbol)
	assert.InDelta(t, 5, lotsErr.Available, 1e-9)

	_, err = f.svc.GetAnnualReturns(ctx, f.portfolioID)
	assert.ErrorIs(t, err, models.ErrInsufficientLots)

	f.prices.AssertNotCalled(t, "GetHistoricalPrices", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
