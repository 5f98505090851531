// backend/src/services/portfolio_service.go
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/processors"
)

const (
	ckHoldings             = "res_holdings_pf_%d"
	ckGainLoss             = "res_gain_loss_pf_%d"
	ckFullSeries           = "res_full_series_pf_%d"
	ckAllFeeDetails        = "res_all_fee_details_pf_%d"
	ckDividendSummary      = "agg_dividend_summary_pf_%d"
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

const optionQuoteReason = "option quotes are not supported"

// fullSeries is the cached, untruncated performance series of a portfolio.
type fullSeries struct {
	points   []models.PerformancePoint
	warnings []*models.PriceUnavailableError
}

type portfolioServiceImpl struct {
	transactionProcessor *processors.TransactionProcessor
	ledgerProcessor      processors.LedgerProcessor
	gainLossProcessor    processors.GainLossProcessor
	valuationProcessor   processors.ValuationProcessor
	performanceProcessor processors.PerformanceProcessor
	riskProcessor        processors.RiskProcessor
	rebalanceProcessor   processors.RebalanceProcessor
	dividendProcessor    processors.DividendProcessor
	feeProcessor         processors.FeeProcessor
	transactionStore     TransactionStore
	settingsStore        SettingsStore
	priceService         PriceService
	reportCache          *cache.Cache
	cacheTTL             time.Duration
	now                  func() time.Time
}

func NewPortfolioService(
	transactionProcessor *processors.TransactionProcessor,
	ledgerProcessor processors.LedgerProcessor,
	gainLossProcessor processors.GainLossProcessor,
	valuationProcessor processors.ValuationProcessor,
	performanceProcessor processors.PerformanceProcessor,
	riskProcessor processors.RiskProcessor,
	rebalanceProcessor processors.RebalanceProcessor,
	dividendProcessor processors.DividendProcessor,
	feeProcessor processors.FeeProcessor,
	transactionStore TransactionStore,
	settingsStore SettingsStore,
	priceService PriceService,
	reportCache *cache.Cache,
	cacheTTL time.Duration,
) PortfolioService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheExpiration
	}
	return &portfolioServiceImpl{
		transactionProcessor: transactionProcessor,
		ledgerProcessor:      ledgerProcessor,
		gainLossProcessor:    gainLossProcessor,
		valuationProcessor:   valuationProcessor,
		performanceProcessor: performanceProcessor,
		riskProcessor:        riskProcessor,
		rebalanceProcessor:   rebalanceProcessor,
		dividendProcessor:    dividendProcessor,
		feeProcessor:         feeProcessor,
		transactionStore:     transactionStore,
		settingsStore:        settingsStore,
		priceService:         priceService,
		reportCache:          reportCache,
		cacheTTL:             cacheTTL,
		now:                  time.Now,
	}
}

func (s *portfolioServiceImpl) InvalidatePortfolioCache(portfolioID int64) {
	keysToDelete := []string{
		fmt.Sprintf(ckHoldings, portfolioID),
		fmt.Sprintf(ckGainLoss, portfolioID),
		fmt.Sprintf(ckFullSeries, portfolioID),
		fmt.Sprintf(ckAllFeeDetails, portfolioID),
		fmt.Sprintf(ckDividendSummary, portfolioID),
	}
	for _, key := range keysToDelete {
		s.reportCache.Delete(key)
	}
}

// loadLedgers replays the whole history. A symbol that closes more than it holds fails the call.
func (s *portfolioServiceImpl) loadLedgers(ctx context.Context, portfolioID int64) (map[string]*models.SymbolLedger, error) {
	txs, err := s.transactionStore.ListTransactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	ledgers, err := s.ledgerProcessor.BuildLedgers(txs)
	if err != nil {
		logger.FromContext(ctx).Error("Ledger replay failed", "portfolioID", portfolioID, "error", err)
		return nil, err
	}
	return ledgers, nil
}

// currentPrices quotes every equity symbol with open lots in one batched call.
// Option symbols are marked unavailable, cash symbols are priced by the processors.
func (s *portfolioServiceImpl) currentPrices(ctx context.Context, ledgers map[string]*models.SymbolLedger) (map[string]models.PriceInfo, error) {
	prices := make(map[string]models.PriceInfo)
	var symbols []string
	for symbol, ledger := range ledgers {
		if len(ledger.Lots) == 0 {
			continue
		}
		switch ledger.SecurityType {
		case models.SecurityEquity:
			symbols = append(symbols, symbol)
		case models.SecurityOption:
			prices[symbol] = models.PriceInfo{Status: models.PriceStatusUnavailable, Reason: optionQuoteReason}
		}
	}
	if len(symbols) == 0 {
		return prices, nil
	}
	sort.Strings(symbols)

	quotes, err := s.priceService.GetCurrentPrices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current prices: %w", err)
	}
	for symbol, quote := range quotes {
		prices[symbol] = quote
	}
	return prices, nil
}

func logPriceWarnings(ctx context.Context, portfolioID int64, warnings []*models.PriceUnavailableError) {
	for _, w := range warnings {
		logger.FromContext(ctx).Warn("Price unavailable", "portfolioID", portfolioID, "symbol", w.Symbol, "date", w.Date, "reason", w.Reason)
	}
}

func (s *portfolioServiceImpl) GetHoldings(ctx context.Context, portfolioID int64) (*models.HoldingsResult, error) {
	cacheKey := fmt.Sprintf(ckHoldings, portfolioID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.HoldingsResult), nil
	}

	ledgers, err := s.loadLedgers(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	prices, err := s.currentPrices(ctx, ledgers)
	if err != nil {
		return nil, err
	}
	result := s.valuationProcessor.BuildHoldings(ledgers, prices)
	logPriceWarnings(ctx, portfolioID, result.Warnings)

	s.reportCache.Set(cacheKey, &result, s.cacheTTL)
	return &result, nil
}

func (s *portfolioServiceImpl) GetGainLoss(ctx context.Context, portfolioID int64) (*models.GainLossResult, error) {
	cacheKey := fmt.Sprintf(ckGainLoss, portfolioID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.GainLossResult), nil
	}

	ledgers, err := s.loadLedgers(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	prices, err := s.currentPrices(ctx, ledgers)
	if err != nil {
		return nil, err
	}
	result := s.gainLossProcessor.Calculate(ledgers, prices)
	logPriceWarnings(ctx, portfolioID, result.Warnings)

	s.reportCache.Set(cacheKey, &result, s.cacheTTL)
	return &result, nil
}

func (s *portfolioServiceImpl) GetAllocation(ctx context.Context, portfolioID int64) (*models.Allocation, error) {
	holdings, err := s.GetHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	allocation := s.valuationProcessor.Allocation(holdings.Holdings)
	return &allocation, nil
}

// loadFullSeries builds the series from the first transaction to today with one batched
// history lookup.
func (s *portfolioServiceImpl) loadFullSeries(ctx context.Context, portfolioID int64, today time.Time) (*fullSeries, error) {
	cacheKey := fmt.Sprintf(ckFullSeries, portfolioID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		series := cached.(*fullSeries)
		if len(series.points) == 0 || series.points[len(series.points)-1].Date.Equal(today) {
			return series, nil
		}
	}

	txs, err := s.transactionStore.ListTransactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	// An oversold symbol fails the series exactly as it fails gain/loss.
	if _, err := s.ledgerProcessor.BuildLedgers(txs); err != nil {
		logger.FromContext(ctx).Error("Ledger replay failed", "portfolioID", portfolioID, "error", err)
		return nil, err
	}
	series := &fullSeries{
		points:   []models.PerformancePoint{},
		warnings: []*models.PriceUnavailableError{},
	}
	if len(txs) == 0 {
		s.reportCache.Set(cacheKey, series, s.cacheTTL)
		return series, nil
	}

	first := txs[0].Date
	kinds := make(map[string]models.SecurityType)
	for _, tx := range txs {
		if tx.Date.Before(first) {
			first = tx.Date
		}
		if tx.Symbol != "" && tx.Kind != models.KindFee {
			kinds[tx.Symbol] = tx.SecurityType
		}
	}

	var symbols []string
	for symbol, secType := range kinds {
		switch secType {
		case models.SecurityEquity:
			symbols = append(symbols, symbol)
		case models.SecurityOption:
			series.warnings = append(series.warnings, &models.PriceUnavailableError{Symbol: symbol, Reason: optionQuoteReason})
		}
	}
	sort.Strings(symbols)

	history, err := s.priceService.GetHistoricalPrices(ctx, symbols, first, today)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price history: %w", err)
	}
	for _, symbol := range symbols {
		if len(history[symbol]) == 0 {
			series.warnings = append(series.warnings, &models.PriceUnavailableError{Symbol: symbol, Reason: "no price history"})
		}
	}
	sort.SliceStable(series.warnings, func(i, j int) bool { return series.warnings[i].Symbol < series.warnings[j].Symbol })
	logPriceWarnings(ctx, portfolioID, series.warnings)

	series.points = s.performanceProcessor.BuildSeries(txs, history, today)
	s.reportCache.Set(cacheKey, series, s.cacheTTL)
	return series, nil
}

func (s *portfolioServiceImpl) GetPerformance(ctx context.Context, portfolioID int64, timeframe string) (*models.PerformanceResult, error) {
	today := processors.Day(s.now())
	if _, err := s.performanceProcessor.FilterTimeframe(nil, timeframe, today); err != nil {
		return nil, err
	}
	series, err := s.loadFullSeries(ctx, portfolioID, today)
	if err != nil {
		return nil, err
	}
	points, err := s.performanceProcessor.FilterTimeframe(series.points, timeframe, today)
	if err != nil {
		return nil, err
	}

	tf := strings.ToUpper(strings.TrimSpace(timeframe))
	if tf == "" {
		tf = processors.TimeframeAll
	}
	result := &models.PerformanceResult{
		Timeframe:       tf,
		Dates:           make([]string, len(points)),
		PortfolioValues: make([]float64, len(points)),
		InvestedAmounts: make([]float64, len(points)),
		Metrics:         s.riskProcessor.Calculate(points),
		Warnings:        series.warnings,
	}
	for i, p := range points {
		result.Dates[i] = p.Date.Format(models.DateLayout)
		result.PortfolioValues[i] = p.PortfolioValue
		result.InvestedAmounts[i] = p.InvestedAmount
	}
	return result, nil
}

func (s *portfolioServiceImpl) GetAnnualReturns(ctx context.Context, portfolioID int64) ([]models.AnnualReturn, error) {
	series, err := s.loadFullSeries(ctx, portfolioID, processors.Day(s.now()))
	if err != nil {
		return nil, err
	}
	return s.performanceProcessor.AnnualReturns(series.points), nil
}

func (s *portfolioServiceImpl) GetRebalancePlan(ctx context.Context, portfolioID int64) (*models.RebalancePlan, error) {
	holdings, err := s.GetHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settingsStore.GetSettings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	held := make(map[string]bool, len(holdings.Holdings))
	for _, h := range holdings.Holdings {
		held[h.Symbol] = true
	}
	var unheld []string
	for _, setting := range settings {
		if !held[setting.Stock] {
			unheld = append(unheld, setting.Stock)
		}
	}
	prices := map[string]models.PriceInfo{}
	if len(unheld) > 0 {
		prices, err = s.priceService.GetCurrentPrices(ctx, unheld)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch current prices: %w", err)
		}
	}

	plan := s.rebalanceProcessor.Plan(holdings.Holdings, settings, prices)
	logPriceWarnings(ctx, portfolioID, plan.Warnings)
	return &plan, nil
}

func (s *portfolioServiceImpl) GetDividendSummary(ctx context.Context, portfolioID int64) (models.DividendSummaryResult, error) {
	cacheKey := fmt.Sprintf(ckDividendSummary, portfolioID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(models.DividendSummaryResult), nil
	}
	ledgers, err := s.loadLedgers(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	summary := s.dividendProcessor.CalculateSummary(ledgers)
	s.reportCache.Set(cacheKey, summary, s.cacheTTL)
	return summary, nil
}

func (s *portfolioServiceImpl) GetFeeDetails(ctx context.Context, portfolioID int64) ([]models.FeeDetail, error) {
	cacheKey := fmt.Sprintf(ckAllFeeDetails, portfolioID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.FeeDetail), nil
	}
	txs, err := s.transactionStore.ListTransactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	feeDetails := s.feeProcessor.Process(txs)
	s.reportCache.Set(cacheKey, feeDetails, s.cacheTTL)
	return feeDetails, nil
}

func (s *portfolioServiceImpl) GetTransactions(ctx context.Context, portfolioID int64) ([]models.Transaction, error) {
	return s.transactionStore.ListTransactions(ctx, portfolioID)
}

// AddTransactions validates and stores manually entered transactions as one batch.
func (s *portfolioServiceImpl) AddTransactions(ctx context.Context, portfolioID int64, canonical []models.CanonicalTransaction) (int, error) {
	for i := range canonical {
		if canonical[i].Source == "" {
			canonical[i].Source = "manual"
		}
		if canonical[i].Row == 0 {
			canonical[i].Row = i + 1
		}
	}
	txs, err := s.transactionProcessor.Process(canonical)
	if err != nil {
		return 0, err
	}
	inserted, err := s.transactionStore.AppendTransactions(ctx, portfolioID, "manual-"+uuid.NewString(), txs)
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		s.InvalidatePortfolioCache(portfolioID)
	}
	logger.FromContext(ctx).Info("Manual transactions stored", "portfolioID", portfolioID, "submitted", len(canonical), "inserted", inserted)
	return inserted, nil
}

func (s *portfolioServiceImpl) GetSettings(ctx context.Context, portfolioID int64) ([]models.Setting, error) {
	return s.settingsStore.GetSettings(ctx, portfolioID)
}

func (s *portfolioServiceImpl) PutSettings(ctx context.Context, portfolioID int64, settings []models.Setting, normalize bool) (*models.SettingsWriteResult, error) {
	result, err := s.settingsStore.PutSettings(ctx, portfolioID, settings, normalize)
	if err != nil {
		return nil, err
	}
	s.InvalidatePortfolioCache(portfolioID)
	return result, nil
}
