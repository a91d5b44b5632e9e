package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gexmap/analysis"
	"gexmap/chain"
	"gexmap/config"
	"gexmap/heat"
	"gexmap/massive"
	"gexmap/schwab"
)

type fakeChains struct {
	mu      sync.Mutex
	body    string
	err     error
	spot    float64
	queries []schwab.ChainQuery
	quotes  int
}

func (f *fakeChains) GetOptionChain(_ context.Context, q schwab.ChainQuery) (*chain.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var p chain.Payload
	if err := json.Unmarshal([]byte(f.body), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (f *fakeChains) GetSpotPrice(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes++
	return f.spot, nil
}

type fakeCandles struct {
	candles []heat.Candle
	err     error
	calls   int
	tf      massive.Timeframe
	from    time.Time
	to      time.Time
}

func (f *fakeCandles) Candles(_ context.Context, _ string, tf massive.Timeframe, from, to time.Time, _ int) ([]heat.Candle, error) {
	f.calls++
	f.tf, f.from, f.to = tf, from, to
	return f.candles, f.err
}

func newTestServer(t *testing.T, chains ChainSource, candles CandleSource) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(config.Default(), chains, candles, NewMemoryCache(), NewMetrics())
	s.params.Now = func() time.Time { return fixedNow }

	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type gexResponse struct {
	Data struct {
		Ticker     string  `json:"ticker"`
		Expiration string  `json:"expiration"`
		SpotPrice  float64 `json:"spot_price"`
		Peak       struct {
			Strike analysis.Strike `json:"strike"`
			Total  float64         `json:"total_exposure"`
		} `json:"peak"`
		Snapshot *analysis.Snapshot `json:"snapshot"`
	} `json:"data"`
	Meta Meta `json:"meta"`
}

func TestHandleGEX(t *testing.T) {
	chains := &fakeChains{body: testChain}
	_, ts := newTestServer(t, chains, nil)

	var got gexResponse
	status := getJSON(t, ts.URL+"/api/v1/gex/spy", &got)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "SPY", got.Data.Ticker)
	assert.Equal(t, "next-friday", got.Data.Expiration)
	assert.Equal(t, 500.0, got.Data.SpotPrice)
	assert.Equal(t, analysis.StrikeFromFloat(505), got.Data.Peak.Strike)
	assert.InDelta(t, 6e8, got.Data.Peak.Total, 1)
	require.NotNil(t, got.Data.Snapshot)
	assert.Equal(t, 2, got.Data.Snapshot.Len())
	assert.False(t, got.Meta.Cached)
	assert.NotEmpty(t, got.Meta.RequestID)

	require.Len(t, chains.queries, 1)
	assert.Equal(t, "SPY", chains.queries[0].Symbol)
	assert.Equal(t, "2026-02-20", chains.queries[0].ToDate.Format("2006-01-02"))
	assert.Zero(t, chains.quotes, "chain carried a spot price")
}

func TestHandleGEX_Cached(t *testing.T) {
	chains := &fakeChains{body: testChain}
	_, ts := newTestServer(t, chains, nil)

	var first, second gexResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/gex/SPY?expiration=all", &first))
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/gex/SPY?expiration=all", &second))

	assert.Len(t, chains.queries, 1)
	assert.True(t, chains.queries[0].ToDate.IsZero())
	assert.True(t, second.Meta.Cached)
	assert.Equal(t, first.Data.Snapshot.Levels(), second.Data.Snapshot.Levels())

	// a different filter is a different cache entry
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/gex/SPY?expiration=two-fridays", nil))
	assert.Len(t, chains.queries, 2)
}

func TestHandleGEX_SpotFallback(t *testing.T) {
	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(testChain), &p))
	delete(p, "underlyingPrice")
	body, _ := json.Marshal(p)

	chains := &fakeChains{body: string(body), spot: 501}
	_, ts := newTestServer(t, chains, nil)

	var got gexResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/gex/SPY", &got))
	assert.Equal(t, 501.0, got.Data.SpotPrice)
	assert.Equal(t, 1, chains.quotes)
}

func TestHandleGEX_Errors(t *testing.T) {
	tests := []struct {
		name   string
		chains *fakeChains
		query  string
		status int
	}{
		{"bad expiration", &fakeChains{body: testChain}, "?expiration=monthly", http.StatusBadRequest},
		{"upstream failure", &fakeChains{err: errors.New("connection refused")}, "", http.StatusBadGateway},
		{"no contracts", &fakeChains{body: `{"symbol": "SPY", "underlyingPrice": 500}`}, "", http.StatusUnprocessableEntity},
		{"nothing expires today", &fakeChains{body: testChain}, "?expiration=today", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, tt.chains, nil)

			var got Response[ErrorBody]
			assert.Equal(t, tt.status, getJSON(t, ts.URL+"/api/v1/gex/SPY"+tt.query, &got))
			assert.NotEmpty(t, got.Data.Error)
		})
	}
}

func TestHandleHeat(t *testing.T) {
	candles := &fakeCandles{candles: testCandles()}
	_, ts := newTestServer(t, &fakeChains{}, candles)

	var got Response[struct {
		Ticker    string      `json:"ticker"`
		Timeframe string      `json:"timeframe"`
		Field     *heat.Field `json:"field"`
		Bullish   []bool      `json:"bullish"`
	}]
	status := getJSON(t, ts.URL+"/api/v1/heat/spy?timeframe=15minute&days=3&bins=40", &got)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "SPY", got.Data.Ticker)
	assert.Equal(t, "15minute", got.Data.Timeframe)
	require.NotNil(t, got.Data.Field)
	assert.Len(t, got.Data.Field.Prices, 40)
	assert.Len(t, got.Data.Bullish, 4)

	assert.Equal(t, 15, candles.tf.Multiplier)
	assert.Equal(t, fixedNow, candles.to)
	assert.Equal(t, fixedNow.AddDate(0, 0, -3), candles.from)

	// served from cache the second time
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/heat/spy?timeframe=15minute&days=3&bins=40", nil))
	assert.Equal(t, 1, candles.calls)
}

func TestHandleHeat_Defaults(t *testing.T) {
	candles := &fakeCandles{candles: testCandles()}
	_, ts := newTestServer(t, &fakeChains{}, candles)

	var got Response[struct {
		Timeframe string      `json:"timeframe"`
		Field     *heat.Field `json:"field"`
	}]
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/heat/SPY", &got))
	assert.Equal(t, "5minute", got.Data.Timeframe)
	assert.Len(t, got.Data.Field.Prices, heat.DefaultBins)
	assert.Equal(t, fixedNow.AddDate(0, 0, -7), candles.from)
}

func TestHandleHeat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		candles CandleSource
		query   string
		status  int
	}{
		{"unknown timeframe", &fakeCandles{candles: testCandles()}, "?timeframe=2minute", http.StatusBadRequest},
		{"bad days", &fakeCandles{candles: testCandles()}, "?days=week", http.StatusBadRequest},
		{"days out of range", &fakeCandles{candles: testCandles()}, "?days=0", http.StatusBadRequest},
		{"too few bins", &fakeCandles{candles: testCandles()}, "?bins=1", http.StatusBadRequest},
		{"upstream failure", &fakeCandles{err: errors.New("timeout")}, "", http.StatusBadGateway},
		{"no candles", &fakeCandles{}, "", http.StatusUnprocessableEntity},
		{"no provider", nil, "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, &fakeChains{}, tt.candles)
			assert.Equal(t, tt.status, getJSON(t, ts.URL+"/api/v1/heat/SPY"+tt.query, nil))
		})
	}
}

func TestNoCandleProvider(t *testing.T) {
	s := NewServer(config.Default(), &fakeChains{}, nil, nil, nil)
	assert.Nil(t, s.candles)
	assert.Equal(t, "memory", s.cache.Name())
}

func TestHealthAndRequestID(t *testing.T) {
	_, ts := newTestServer(t, &fakeChains{}, nil)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))

	var got Response[map[string]string]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ok", got.Data["status"])
	assert.Equal(t, "abc-123", got.Meta.RequestID)
}

func TestTimeframesEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &fakeChains{}, nil)

	var got Response[map[string][]string]
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/timeframes", &got))
	assert.Equal(t, massive.Timeframes(), got.Data["timeframes"])
	assert.Contains(t, got.Data["expirations"], "next-friday")
}

func TestZstdCompression(t *testing.T) {
	_, ts := newTestServer(t, &fakeChains{}, nil)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	tr := &http.Transport{DisableCompression: true}
	resp, err := (&http.Client{Transport: tr}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "zstd", resp.Header.Get("Content-Encoding"))

	compressed, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer dec.Close()
	plain, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Contains(t, string(plain), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	chains := &fakeChains{body: testChain}
	_, ts := newTestServer(t, chains, nil)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/gex/SPY", nil))
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/gex/SPY", nil))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `gexmap_http_requests_total{code="200",route="/api/v1/gex/{ticker}"} 2`)
	assert.Contains(t, text, `gexmap_cache_hits_total{cache_type="memory"} 1`)
	assert.Contains(t, text, `gexmap_cache_misses_total{cache_type="memory"} 1`)
}
