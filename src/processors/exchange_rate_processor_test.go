package processors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ecbPayload(rate float64) string {
	return fmt.Sprintf(`{"dataSets":[{"series":{"0:0:0:0:0":{"observations":{"0":[%g,0,0]}}}}]}`, rate)
}

func withECBServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	previous := ECBBaseURL
	ECBBaseURL = server.URL
	ClearExchangeRateCache()
	t.Cleanup(func() {
		server.Close()
		ECBBaseURL = previous
		ClearExchangeRateCache()
	})
}

func TestGetExchangeRate_FallsBackToPreviousDay(t *testing.T) {
	var calls int32
	withECBServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/service/data/EXR/D.USD.EUR.SP00.A"))
		if r.URL.Query().Get("startPeriod") == "2023-01-07" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, ecbPayload(1.08))
	})

	rate, err := GetExchangeRate("usd", date("2023-01-07"))
	require.NoError(t, err)
	assert.Equal(t, 1.08, rate)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// Cached on the requested date.
	_, err = GetExchangeRate("USD", date("2023-01-07"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetExchangeRate_EURIsIdentity(t *testing.T) {
	rate, err := GetExchangeRate("EUR", date("2023-01-07"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}

func TestGetExchangeRate_GivesUpAfterAWeek(t *testing.T) {
	withECBServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := GetExchangeRate("XXX", date("2023-01-07"))
	assert.Error(t, err)
}

func TestConvertAmount_CrossRate(t *testing.T) {
	withECBServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "D.USD."):
			fmt.Fprint(w, ecbPayload(1.25))
		case strings.Contains(r.URL.Path, "D.GBP."):
			fmt.Fprint(w, ecbPayload(0.8))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	got, err := ConvertAmount(100, "USD", "GBP", date("2023-01-05"))
	require.NoError(t, err)
	assert.InDelta(t, 64.0, got, 1e-9)

	same, err := ConvertAmount(100, "USD", "USD", date("2023-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, same)

	toEUR, err := ConvertAmount(125, "USD", "EUR", date("2023-01-05"))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, toEUR, 1e-9)
}
