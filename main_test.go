package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/folioledger/backend/src/database"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/processors"
	"github.com/username/folioledger/backend/src/services"
	"golang.org/x/time/rate"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := database.NewTestDB(t)

	// No upstream quotes: every lookup against this server fails.
	upstream := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(upstream.Close)

	priceService := services.NewPriceService(db, services.PriceServiceConfig{BaseURL: upstream.URL, Timeout: time.Second, BaseCurrency: "USD"})
	txProcessor := processors.NewTransactionProcessor()
	portfolioService := services.NewPortfolioService(
		txProcessor,
		processors.NewLedgerProcessor(),
		processors.NewGainLossProcessor(),
		processors.NewValuationProcessor(),
		processors.NewPerformanceProcessor(),
		processors.NewRiskProcessor(0),
		processors.NewRebalanceProcessor(1),
		processors.NewDividendProcessor(),
		processors.NewFeeProcessor(),
		services.NewTransactionStore(db),
		services.NewSettingsStore(db),
		priceService,
		cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval),
		time.Minute,
	)

	srv := httptest.NewServer(newRouter(application{
		portfolioService: portfolioService,
		uploadService:    services.NewUploadService(db, txProcessor, portfolioService),
		manager:          services.NewPortfolioManager(db, portfolioService),
		maxUploadBytes:   1 << 20,
		limiter:          rate.NewLimiter(rate.Inf, 1),
		allowedOrigins:   []string{"http://localhost:3000"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func uploadCSV(t *testing.T, url, source, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("source", source))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="ledger.csv"`)
	h.Set("Content-Type", "text/csv")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_PortfolioLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/portfolios", "application/json", strings.NewReader(`{"name":"Core","description":"index funds"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p models.Portfolio
	decode(t, resp, &p)
	require.Positive(t, p.ID)
	base := fmt.Sprintf("%s/api/portfolios/%d", srv.URL, p.ID)

	csv := "date,symbol,kind,quantity,price,amount,fees\n" +
		"2024-01-02,VTI,buy,10,230,2300,1\n" +
		"2024-02-01,VTI,sell,4,240,960,1\n"
	resp = uploadCSV(t, base+"/upload", "generic", csv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result services.UploadResult
	decode(t, resp, &result)
	assert.Equal(t, 2, result.InsertedCount)

	resp = uploadCSV(t, base+"/upload", "generic", csv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &result)
	assert.Equal(t, 0, result.InsertedCount)
	assert.Equal(t, 2, result.SkippedDuplicates)

	resp, err = http.Get(base + "/transactions")
	require.NoError(t, err)
	var txs []models.Transaction
	decode(t, resp, &txs)
	require.Len(t, txs, 2)
	assert.Equal(t, models.KindBuy, txs[0].Kind)

	resp, err = http.Get(base + "/fees")
	require.NoError(t, err)
	var fees []models.FeeDetail
	decode(t, resp, &fees)
	assert.Len(t, fees, 2)

	req, err := http.NewRequest(http.MethodPut, base+"/settings", strings.NewReader(`{"settings":[{"stock":"VTI","target_weight":1}]}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, err = http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_OversellIsConflict(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/portfolios", "application/json", strings.NewReader(`{"name":"Short"}`))
	require.NoError(t, err)
	var p models.Portfolio
	decode(t, resp, &p)
	base := fmt.Sprintf("%s/api/portfolios/%d", srv.URL, p.ID)

	resp = uploadCSV(t, base+"/upload", "generic", "date,symbol,kind,quantity,price,amount\n2024-01-02,ABC,buy,1,10,10\n2024-01-03,ABC,sell,2,10,20\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base + "/gain-loss")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_CORSAndNotFound(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/portfolios", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL + "/api/nothing-here")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	var health map[string]any
	decode(t, resp, &health)
	assert.Contains(t, health["sources"], "schwab")
}
