package processors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/folioledger/backend/src/logger"
)

// ECBBaseURL is the ECB data API root; main overrides it from config.
var ECBBaseURL = "https://data-api.ecb.europa.eu"

var (
	rateCache = cache.New(24*time.Hour, 48*time.Hour)
	ecbClient = &http.Client{Timeout: 15 * time.Second}
)

// ecbResponse is the slice of the SDMX-JSON payload we read.
type ecbResponse struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
}

// GetExchangeRate returns how many units of currency one EUR buys on date.
// Weekends and holidays fall back to the previous published day, up to a week.
func GetExchangeRate(currency string, date time.Time) (float64, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "EUR" {
		return 1.0, nil
	}

	cacheKey := fmt.Sprintf("rate-%s-%s", currency, date.Format("2006-01-02"))
	if rate, found := rateCache.Get(cacheKey); found {
		return rate.(float64), nil
	}

	for i := 0; i < 7; i++ {
		dateStr := date.AddDate(0, 0, -i).Format("2006-01-02")
		rate, found, err := fetchECBRate(currency, dateStr)
		if err != nil {
			logger.L.Warn("ECB rate lookup failed", "currency", currency, "date", dateStr, "error", err)
			continue
		}
		if !found {
			logger.L.Debug("No exchange rate found for date, trying previous day", "currency", currency, "date", dateStr)
			continue
		}
		rateCache.Set(cacheKey, rate, cache.DefaultExpiration)
		return rate, nil
	}

	return 0, fmt.Errorf("exchange rate not found for %s on or before %s", currency, date.Format("2006-01-02"))
}

// ConvertAmount converts amount from one currency to another through the EUR cross rate.
func ConvertAmount(amount float64, from, to string, date time.Time) (float64, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == "" || from == to {
		return amount, nil
	}
	fromRate, err := GetExchangeRate(from, date)
	if err != nil {
		return 0, err
	}
	toRate, err := GetExchangeRate(to, date)
	if err != nil {
		return 0, err
	}
	if fromRate == 0 {
		return 0, fmt.Errorf("zero exchange rate for %s", from)
	}
	return amount * toRate / fromRate, nil
}

// ClearExchangeRateCache drops every cached rate.
func ClearExchangeRateCache() {
	rateCache.Flush()
}

func fetchECBRate(currency, dateStr string) (float64, bool, error) {
	url := fmt.Sprintf("%s/service/data/EXR/D.%s.EUR.SP00.A?startPeriod=%s&endPeriod=%s&format=jsondata",
		ECBBaseURL, currency, dateStr, dateStr)

	resp, err := ecbClient.Get(url)
	if err != nil {
		return 0, false, fmt.Errorf("failed to make ECB API request: %w", err)
	}
	defer resp.Body.Close()

	// 404 means no data for this day (weekend/holiday).
	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("ECB API returned status %s", resp.Status)
	}

	var data ecbResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, false, fmt.Errorf("failed to decode ECB API response: %w", err)
	}
	rate, err := extractRateFromResponse(data)
	if err != nil {
		return 0, false, err
	}
	return rate, true, nil
}

func extractRateFromResponse(data ecbResponse) (float64, error) {
	if len(data.DataSets) == 0 {
		return 0, fmt.Errorf("no dataSets in response")
	}
	for _, series := range data.DataSets[0].Series {
		if observations, ok := series.Observations["0"]; ok && len(observations) > 0 && observations[0] > 0 {
			return observations[0], nil
		}
	}
	return 0, fmt.Errorf("observation value not found in the expected structure")
}
