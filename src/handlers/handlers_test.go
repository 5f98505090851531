package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/services"
	"golang.org/x/time/rate"
)

type mockPortfolioService struct {
	mock.Mock
}

func (m *mockPortfolioService) InvalidatePortfolioCache(id int64) { m.Called(id) }

func (m *mockPortfolioService) GetHoldings(ctx context.Context, id int64) (*models.HoldingsResult, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.HoldingsResult)
	return res, args.Error(1)
}

func (m *mockPortfolioService) GetGainLoss(ctx context.Context, id int64) (*models.GainLossResult, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.GainLossResult)
	return res, args.Error(1)
}

func (m *mockPortfolioService) GetAllocation(ctx context.Context, id int64) (*models.Allocation, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.Allocation)
	return res, args.Error(1)
}

func (m *mockPortfolioService) GetPerformance(ctx context.Context, id int64, timeframe string) (*models.PerformanceResult, error) {
	args := m.Called(ctx, id, timeframe)
	res, _ := args.Get(0).(*models.PerformanceResult)
	return res, args.Error(1)
}

func (m *mockPortfolioService) GetAnnualReturns(ctx context.Context, id int64) ([]models.AnnualReturn, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).([]models.AnnualReturn)
	return res, args.Error(1)
}

func (m *mockPortfolioService) GetRebalancePlan(ctx context.Context, id int64) (*models.RebalancePlan, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.RebalancePlan)
	return res, args.Error(1)
}

func (m *mockPortfolioService) GetDividendSummary(ctx context.Context, id int64) (models.DividendSummaryResult, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(models.DividendSummaryResult)
	return res, args.Error(1)
}

func (m *mockPortfolioService) GetFeeDetails(ctx context.Context, id int64) ([]models.FeeDetail, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).([]models.FeeDetail)
	return res, args.Error(1)
}

func (m *mockPortfolioService) GetTransactions(ctx context.Context, id int64) ([]models.Transaction, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).([]models.Transaction)
	return res, args.Error(1)
}

func (m *mockPortfolioService) AddTransactions(ctx context.Context, id int64, txs []models.CanonicalTransaction) (int, error) {
	args := m.Called(ctx, id, txs)
	return args.Int(0), args.Error(1)
}

func (m *mockPortfolioService) GetSettings(ctx context.Context, id int64) ([]models.Setting, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).([]models.Setting)
	return res, args.Error(1)
}

func (m *mockPortfolioService) PutSettings(ctx context.Context, id int64, settings []models.Setting, normalize bool) (*models.SettingsWriteResult, error) {
	args := m.Called(ctx, id, settings, normalize)
	res, _ := args.Get(0).(*models.SettingsWriteResult)
	return res, args.Error(1)
}

type stubUploadService struct {
	gotSource   string
	gotFilename string
	gotBody     string
	result      *services.UploadResult
	err         error
}

func (s *stubUploadService) ProcessUpload(_ context.Context, r io.Reader, _ int64, source, filename string, _ int64) (*services.UploadResult, error) {
	body, _ := io.ReadAll(r)
	s.gotSource, s.gotFilename, s.gotBody = source, filename, string(body)
	return s.result, s.err
}

func (s *stubUploadService) GetUploadHistory(context.Context, int64) ([]model.UploadRecord, error) {
	return nil, nil
}

func newTestRouter(ps services.PortfolioService, us services.UploadService) http.Handler {
	ph := NewPortfolioHandler(ps)
	th := NewTransactionHandler(ps)
	uh := NewUploadHandler(us, 1024*1024)

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Route("/api/portfolios/{id}", func(r chi.Router) {
		r.Get("/holdings", ph.HandleGetHoldings)
		r.Get("/performance", ph.HandleGetPerformance)
		r.Get("/annual-returns", ph.HandleGetAnnualReturns)
		r.Get("/rebalance", ph.HandleGetRebalance)
		r.Put("/settings", ph.HandlePutSettings)
		r.Post("/transactions", th.HandleAddTransactions)
		r.Post("/uploads", uh.HandleUpload)
		r.Get("/uploads", uh.HandleGetUploadHistory)
		r.Get("/dividends", NewDividendHandler(ps).HandleGetDividendSummary)
		r.Get("/fees", NewFeeHandler(ps).HandleGetFeeDetails)
	})
	return r
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestGetHoldings_ETagRoundTrip(t *testing.T) {
	ps := &mockPortfolioService{}
	holdings := &models.HoldingsResult{Holdings: []models.Holding{{Symbol: "VTI", Units: 2, LastPrice: 250, MarketValue: 500, Weight: 1, PriceStatus: models.PriceStatusOK}}}
	ps.On("GetHoldings", mock.Anything, int64(7)).Return(holdings, nil)
	router := newTestRouter(ps, &stubUploadService{})

	rec := do(t, router, httptest.NewRequest(http.MethodGet, "/api/portfolios/7/holdings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Contains(t, rec.Body.String(), `"symbol":"VTI"`)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/portfolios/7/holdings", nil)
	req.Header.Set("If-None-Match", etag)
	rec = do(t, router, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
	ps.AssertExpectations(t)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"not found", models.ErrPortfolioNotFound, http.StatusNotFound, models.ErrPortfolioNotFound.Error()},
		{"insufficient lots", &models.InsufficientLotsError{Symbol: "ABC"}, http.StatusConflict, "ABC"},
		{"validation", &models.ValidationError{Row: 3, Field: "quantity", Reason: "must be positive"}, http.StatusBadRequest, "quantity"},
		{"internal", errors.New("disk I/O error"), http.StatusInternalServerError, "Error retrieving holdings"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ps := &mockPortfolioService{}
			ps.On("GetHoldings", mock.Anything, int64(1)).Return(nil, tc.err)

			rec := do(t, newTestRouter(ps, &stubUploadService{}), httptest.NewRequest(http.MethodGet, "/api/portfolios/1/holdings", nil))
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Contains(t, errorBody(t, rec), tc.wantMsg)
			assert.NotContains(t, rec.Body.String(), "disk I/O")
		})
	}
}

func TestInvalidPortfolioID(t *testing.T) {
	router := newTestRouter(&mockPortfolioService{}, &stubUploadService{})
	for _, id := range []string{"abc", "0", "-4"} {
		rec := do(t, router, httptest.NewRequest(http.MethodGet, "/api/portfolios/"+id+"/holdings", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestGetPerformance_PassesTimeframe(t *testing.T) {
	ps := &mockPortfolioService{}
	ps.On("GetPerformance", mock.Anything, int64(2), "1Y").Return(&models.PerformanceResult{Timeframe: "1Y"}, nil)

	rec := do(t, newTestRouter(ps, &stubUploadService{}), httptest.NewRequest(http.MethodGet, "/api/portfolios/2/performance?timeframe=1Y", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	ps.AssertExpectations(t)
}

func TestEmptyCollectionsEncodeAsArrays(t *testing.T) {
	ps := &mockPortfolioService{}
	ps.On("GetAnnualReturns", mock.Anything, int64(1)).Return(nil, nil)
	ps.On("GetFeeDetails", mock.Anything, int64(1)).Return(nil, nil)
	ps.On("GetDividendSummary", mock.Anything, int64(1)).Return(nil, nil)
	router := newTestRouter(ps, &stubUploadService{})

	rec := do(t, router, httptest.NewRequest(http.MethodGet, "/api/portfolios/1/annual-returns", nil))
	assert.JSONEq(t, `[]`, rec.Body.String())
	rec = do(t, router, httptest.NewRequest(http.MethodGet, "/api/portfolios/1/fees", nil))
	assert.JSONEq(t, `[]`, rec.Body.String())
	rec = do(t, router, httptest.NewRequest(http.MethodGet, "/api/portfolios/1/dividends", nil))
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestPutSettings(t *testing.T) {
	settings := []models.Setting{{Stock: "VTI", TargetWeight: 0.7}, {Stock: "BND", TargetWeight: 0.5}}
	ps := &mockPortfolioService{}
	ps.On("PutSettings", mock.Anything, int64(3), settings, false).Return(&models.SettingsWriteResult{
		Settings:    settings,
		Applied:     true,
		TotalWeight: 1.2,
		Warning:     &models.WeightExceedsTotalWarning{TotalWeight: 1.2},
	}, nil)
	router := newTestRouter(ps, &stubUploadService{})

	body := `{"settings":[{"stock":"VTI","target_weight":0.7},{"stock":"BND","target_weight":0.5}]}`
	rec := do(t, router, httptest.NewRequest(http.MethodPut, "/api/portfolios/3/settings", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":true`)
	assert.Contains(t, rec.Body.String(), `"warning"`)
	ps.AssertExpectations(t)

	rec = do(t, router, httptest.NewRequest(http.MethodPut, "/api/portfolios/3/settings", strings.NewReader(`{"settings":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, httptest.NewRequest(http.MethodPut, "/api/portfolios/3/settings", strings.NewReader(`{"weights":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, httptest.NewRequest(http.MethodPut, "/api/portfolios/3/settings?normalize=maybe", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddTransactions(t *testing.T) {
	ps := &mockPortfolioService{}
	ps.On("AddTransactions", mock.Anything, int64(4), mock.MatchedBy(func(txs []models.CanonicalTransaction) bool {
		return len(txs) == 2 &&
			txs[0].Symbol == "VTI" && txs[0].Row == 1 &&
			txs[0].TransactionDate.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) &&
			txs[1].Kind == "dividend" && txs[1].Row == 2
	})).Return(1, nil)
	router := newTestRouter(ps, &stubUploadService{})

	body := `[
		{"date":"2024-03-01","symbol":"VTI","kind":"buy","quantity":2,"price_per_unit":250,"gross_amount":500},
		{"date":"2024-03-15","symbol":"VTI","kind":"dividend","gross_amount":3.1}
	]`
	rec := do(t, router, httptest.NewRequest(http.MethodPost, "/api/portfolios/4/transactions", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"submitted":2,"inserted":1,"skipped_duplicates":1}`, rec.Body.String())
	ps.AssertExpectations(t)
}

func TestAddTransactions_BadDate(t *testing.T) {
	ps := &mockPortfolioService{}
	body := `{"date":"03/01/2024","symbol":"VTI","kind":"buy","quantity":2,"price_per_unit":250}`

	rec := do(t, newTestRouter(ps, &stubUploadService{}), httptest.NewRequest(http.MethodPost, "/api/portfolios/4/transactions", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "date")
	ps.AssertNotCalled(t, "AddTransactions", mock.Anything, mock.Anything, mock.Anything)
}

func multipartUpload(t *testing.T, source, contentType, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if source != "" {
		require.NoError(t, mw.WriteField("source", source))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="history.csv"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/portfolios/1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	csv := "date,symbol,kind,quantity,price\n2024-01-02,VTI,buy,1,250\n"
	us := &stubUploadService{result: &services.UploadResult{UploadID: "u-1", Source: "generic", ParsedCount: 1, InsertedCount: 1}}
	router := newTestRouter(&mockPortfolioService{}, us)

	rec := do(t, router, multipartUpload(t, "generic", "text/csv", csv))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "generic", us.gotSource)
	assert.Equal(t, "history.csv", us.gotFilename)
	assert.Equal(t, csv, us.gotBody)
	assert.Contains(t, rec.Body.String(), `"inserted_count":1`)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		contentType string
		content     string
		serviceErr  error
	}{
		{"missing source", "", "text/csv", "a,b\n1,2\n", nil},
		{"octet-stream", "generic", "application/octet-stream", "a,b\n1,2\n", nil},
		{"binary content", "generic", "text/csv", "PK\x03\x04\x00\x00binary", nil},
		{"parse failure", "schwab", "text/csv", "a,b\n1,2\n", services.ErrParsingFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			us := &stubUploadService{err: tc.serviceErr}
			rec := do(t, newTestRouter(&mockPortfolioService{}, us), multipartUpload(t, tc.source, tc.contentType, tc.content))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestUploadHistory_EmptyIsArray(t *testing.T) {
	rec := do(t, newTestRouter(&mockPortfolioService{}, &stubUploadService{}), httptest.NewRequest(http.MethodGet, "/api/portfolios/1/uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestContextualLoggerMiddleware_ReusesValidRequestID(t *testing.T) {
	var seen string
	h := ContextualLoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "6f1c2a1e-1b59-4c1e-9a7d-3b1f0d2c9e11")
	rec := do(t, h, req)
	assert.Equal(t, "6f1c2a1e-1b59-4c1e-9a7d-3b1f0d2c9e11", seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	rec = do(t, h, req)
	assert.NotEqual(t, "<script>", seen)
	assert.Len(t, seen, 36)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(rate.NewLimiter(rate.Limit(0.001), 2))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	assert.Equal(t, http.StatusOK, do(t, h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusOK, do(t, h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}
