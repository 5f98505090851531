// backend/src/services/price_service.go
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/processors"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const yahooUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// priceLookback bounds how far GetPrice walks back over weekends and holidays.
const priceLookback = 7

// --- API Response Structs ---

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

type yahooHistoryResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// PriceServiceConfig configures the Yahoo Finance collaborator.
type PriceServiceConfig struct {
	BaseURL    string   // Query host, e.g. https://query1.finance.yahoo.com
	CookieURLs []string // Pages visited to obtain session cookies before the crumb request
	Timeout    time.Duration
	// MinRequestInterval spaces out upstream calls. Zero disables throttling.
	MinRequestInterval time.Duration
	BaseCurrency       string
}

// DefaultPriceServiceConfig returns the production Yahoo endpoints.
func DefaultPriceServiceConfig(baseURL, baseCurrency string, timeout time.Duration) PriceServiceConfig {
	return PriceServiceConfig{
		BaseURL:            strings.TrimRight(baseURL, "/"),
		CookieURLs:         []string{"https://fc.yahoo.com", "https://finance.yahoo.com"},
		Timeout:            timeout,
		MinRequestInterval: 250 * time.Millisecond,
		BaseCurrency:       baseCurrency,
	}
}

// --- Service Implementation ---

type priceServiceImpl struct {
	db            *sql.DB
	cfg           PriceServiceConfig
	httpClient    http.Client
	limiter       *rate.Limiter
	isInitialized bool
	crumb         string
	mu            sync.Mutex
	now           func() time.Time
}

func NewPriceService(db *sql.DB, cfg PriceServiceConfig) PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = "USD"
	}
	cfg.BaseCurrency = strings.ToUpper(cfg.BaseCurrency)

	limit := rate.Inf
	if cfg.MinRequestInterval > 0 {
		limit = rate.Every(cfg.MinRequestInterval)
	}

	return &priceServiceImpl{
		db:         db,
		cfg:        cfg,
		httpClient: http.Client{Jar: jar, Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

func (s *priceServiceImpl) initializeYahooSession(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInitialized && s.crumb != "" {
		return
	}

	logger.L.Info("Initializing Yahoo Finance session and fetching Crumb...")
	for _, cookieURL := range s.cfg.CookieURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cookieURL, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", yahooUserAgent)
		resp, err := s.httpClient.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		logger.L.Error("Failed to build crumb request", "error", err)
		return
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.L.Error("Failed to fetch crumb", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		s.crumb = strings.TrimSpace(string(bodyBytes))
		s.isInitialized = true
		logger.L.Info("Yahoo session initialized successfully")
	} else {
		logger.L.Warn("Failed to fetch crumb", "status", resp.Status)
	}
}

func (s *priceServiceImpl) ensureSession(ctx context.Context) {
	s.mu.Lock()
	needsInit := !s.isInitialized || s.crumb == ""
	s.mu.Unlock()

	if needsInit {
		s.initializeYahooSession(ctx)
	}
}

func (s *priceServiceImpl) resetSession() {
	s.mu.Lock()
	s.isInitialized = false
	s.mu.Unlock()
}

func (s *priceServiceImpl) currentCrumb() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crumb
}

// GetCurrentPrices serves today's cached quotes and fetches the rest from Yahoo.
func (s *priceServiceImpl) GetCurrentPrices(ctx context.Context, symbols []string) (map[string]models.PriceInfo, error) {
	results := make(map[string]models.PriceInfo)
	for _, symbol := range symbols {
		results[symbol] = models.PriceInfo{Status: models.PriceStatusUnavailable, Reason: "no quote"}
	}
	if len(symbols) == 0 {
		return results, nil
	}

	now := s.now()
	todayStr := now.Format(models.DateLayout)
	cachedPrices, err := model.GetPricesByTickersAndDate(ctx, s.db, symbols, todayStr)
	if err != nil {
		logger.L.Error("Failed to get daily prices from DB", "error", err)
		cachedPrices = map[string]model.DailyPrice{}
	}

	for _, symbol := range symbols {
		quote, ok := cachedPrices[symbol]
		if !ok {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			price, currency, err := s.fetchQuote(ctx, symbol)
			if err != nil {
				logger.L.Warn("Could not get price for ticker from API", "ticker", symbol, "error", err)
				results[symbol] = models.PriceInfo{Status: models.PriceStatusUnavailable, Reason: err.Error()}
				continue
			}
			quote = model.DailyPrice{TickerSymbol: symbol, Date: todayStr, Price: price, Currency: currency}
			model.InsertOrUpdatePrice(ctx, s.db, quote)
		}

		converted, err := processors.ConvertAmount(quote.Price, quote.Currency, s.cfg.BaseCurrency, now)
		if err != nil {
			logger.L.Warn("Could not get exchange rate to convert price", "currency", quote.Currency, "ticker", symbol, "error", err)
			results[symbol] = models.PriceInfo{Status: models.PriceStatusUnavailable, Reason: "exchange rate unavailable for " + quote.Currency}
			continue
		}
		results[symbol] = models.PriceInfo{
			Status:   models.PriceStatusOK,
			Price:    converted,
			Currency: s.cfg.BaseCurrency,
		}
	}
	return results, nil
}

// GetPrice returns the close of symbol on date, or the last close within a week before it.
func (s *priceServiceImpl) GetPrice(ctx context.Context, symbol string, date time.Time) (float64, error) {
	day := processors.Day(date)
	from := day.AddDate(0, 0, -priceLookback)
	history, err := s.GetHistoricalPrices(ctx, []string{symbol}, from, day)
	if err != nil {
		return 0, err
	}
	if price, ok := processors.ForwardFill(history[symbol], day); ok {
		return price, nil
	}
	return 0, &models.PriceUnavailableError{Symbol: symbol, Date: day.Format(models.DateLayout), Reason: "no close in the preceding week"}
}

// GetHistoricalPrices makes sure every symbol's cached history covers [from, to], fetching
// missing ranges concurrently, then reads the cache. Non-base currencies are converted at
// the rate of the range end date.
func (s *priceServiceImpl) GetHistoricalPrices(ctx context.Context, symbols []string, from, to time.Time) (map[string]models.PriceMap, error) {
	result := make(map[string]models.PriceMap)
	if len(symbols) == 0 {
		return result, nil
	}
	from, to = processors.Day(from), processors.Day(to)
	fromStr, toStr := from.Format(models.DateLayout), to.Format(models.DateLayout)

	var (
		wg     sync.WaitGroup
		dataMu sync.Mutex
	)
	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			prices, err := s.loadHistory(ctx, sym, from, to, fromStr, toStr)
			if err != nil {
				logger.L.Warn("Historical prices unavailable", "ticker", sym, "from", fromStr, "to", toStr, "error", err)
				return
			}
			if len(prices) == 0 {
				return
			}
			dataMu.Lock()
			result[sym] = prices
			dataMu.Unlock()
		}(symbol)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *priceServiceImpl) loadHistory(ctx context.Context, symbol string, from, to time.Time, fromStr, toStr string) (models.PriceMap, error) {
	first, last, err := model.PriceDateRange(ctx, s.db, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached range: %w", err)
	}

	// Cached ranges may legitimately start a few days after `from` (weekends, holidays).
	covered := first != "" && first <= from.AddDate(0, 0, priceLookback).Format(models.DateLayout) && last >= toStr
	if !covered {
		prices, currency, err := s.fetchHistory(ctx, symbol, from, to)
		if err != nil {
			if first == "" {
				return nil, err
			}
			logger.L.Warn("History refresh failed, using cached prices", "ticker", symbol, "error", err)
		} else if err := model.SavePriceHistory(ctx, s.db, symbol, currency, prices); err != nil {
			logger.L.Error("Failed to save price history", "ticker", symbol, "error", err)
		}
	}

	prices, err := model.GetPricesByTickerRange(ctx, s.db, symbol, fromStr, toStr)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached history: %w", err)
	}
	if len(prices) == 0 {
		return prices, nil
	}

	currency, err := model.GetTickerCurrency(ctx, s.db, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticker currency: %w", err)
	}
	if currency == "" || strings.EqualFold(currency, s.cfg.BaseCurrency) {
		return prices, nil
	}
	factor, err := processors.ConvertAmount(1, currency, s.cfg.BaseCurrency, to)
	if err != nil {
		return nil, fmt.Errorf("exchange rate unavailable for %s: %w", currency, err)
	}
	for date, price := range prices {
		prices[date] = price * factor
	}
	return prices, nil
}

// RefreshPrices re-fetches today's quote for every symbol, replacing cached values.
func (s *priceServiceImpl) RefreshPrices(ctx context.Context, symbols []string) error {
	todayStr := s.now().Format(models.DateLayout)
	var errs []error
	for _, symbol := range symbols {
		price, currency, err := s.fetchQuote(ctx, symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		if err := model.InsertOrUpdatePrice(ctx, s.db, model.DailyPrice{TickerSymbol: symbol, Date: todayStr, Price: price, Currency: currency}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

// doYahoo performs a throttled GET against the Yahoo API. A 401 drops the session so the
// next call fetches a fresh crumb.
func (s *priceServiceImpl) doYahoo(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	s.ensureSession(ctx)
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if crumb := s.currentCrumb(); crumb != "" {
		query.Set("crumb", crumb)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Yahoo chart API: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		s.resetSession()
		return nil, fmt.Errorf("status 401 (Unauthorized) - Crumb invalid")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("yahoo chart API returned non-OK status %d", resp.StatusCode)
	}
	return resp, nil
}

func (s *priceServiceImpl) fetchQuote(ctx context.Context, ticker string) (float64, string, error) {
	resp, err := s.doYahoo(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), url.Values{})
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var chartData yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return 0, "", fmt.Errorf("failed to decode Yahoo chart response: %w", err)
	}
	if chartData.Chart.Error != nil {
		return 0, "", fmt.Errorf("yahoo chart API returned an error: %v", chartData.Chart.Error)
	}
	if len(chartData.Chart.Result) == 0 || chartData.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return 0, "", fmt.Errorf("no price data found")
	}
	meta := chartData.Chart.Result[0].Meta
	return meta.RegularMarketPrice, strings.ToUpper(meta.Currency), nil
}

func (s *priceServiceImpl) fetchHistory(ctx context.Context, ticker string, from, to time.Time) (models.PriceMap, string, error) {
	query := url.Values{}
	query.Set("interval", "1d")
	query.Set("period1", fmt.Sprint(from.Unix()))
	query.Set("period2", fmt.Sprint(to.AddDate(0, 0, 1).Unix()))
	resp, err := s.doYahoo(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), query)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var data yahooHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, "", fmt.Errorf("failed to decode history json: %w", err)
	}
	if data.Chart.Error != nil {
		return nil, "", fmt.Errorf("yahoo history API returned an error: %v", data.Chart.Error)
	}
	if len(data.Chart.Result) == 0 {
		return nil, "", fmt.Errorf("no history result found")
	}
	result := data.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, "", fmt.Errorf("no quote data found")
	}
	closes := result.Indicators.Quote[0].Close
	if len(result.Timestamp) != len(closes) {
		return nil, "", fmt.Errorf("data mismatch")
	}

	priceMap := make(models.PriceMap, len(closes))
	for i, ts := range result.Timestamp {
		// Missing closes decode as 0.
		if closes[i] <= 0 {
			continue
		}
		priceMap[time.Unix(ts, 0).UTC().Format(models.DateLayout)] = closes[i]
	}
	return priceMap, strings.ToUpper(result.Meta.Currency), nil
}
