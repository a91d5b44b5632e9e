package massive

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	rmodels "github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		label      string
		multiplier int
		timespan   rmodels.Timespan
	}{
		{"1minute", 1, rmodels.Minute},
		{"5Minute", 5, rmodels.Minute},
		{"30minute", 30, rmodels.Minute},
		{"4hour", 4, rmodels.Hour},
		{"1day", 1, rmodels.Day},
		{"1week", 1, rmodels.Week},
		{"1month", 1, rmodels.Month},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			tf, err := ParseTimeframe(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.multiplier, tf.Multiplier)
			assert.Equal(t, tt.timespan, tf.Timespan)
		})
	}

	_, err := ParseTimeframe("2minute")
	assert.ErrorIs(t, err, ErrUnknownTimeframe)
}

func TestTimeframes_Ordered(t *testing.T) {
	labels := Timeframes()
	require.Len(t, labels, 11)
	assert.Equal(t, "1minute", labels[0])
	assert.Equal(t, "1month", labels[len(labels)-1])

	tf, _ := ParseTimeframe("15minute")
	assert.Equal(t, 15*time.Minute, tf.Duration())
}

func TestFromAgg(t *testing.T) {
	ts := time.Date(2026, 10, 14, 13, 30, 0, 0, time.UTC)
	good := rmodels.Agg{
		Open: 100, High: 102, Low: 99, Close: 101,
		Volume: 12345, VWAP: 100.7,
		Timestamp: rmodels.Millis(ts),
	}

	c, ok := fromAgg(good)
	require.True(t, ok)
	assert.True(t, c.Timestamp.Equal(ts))
	assert.Equal(t, 102.0, c.High)
	assert.Equal(t, int64(12345), c.Volume)
	assert.Equal(t, 100.7, c.VWAP)

	inverted := good
	inverted.High, inverted.Low = 98, 103
	_, ok = fromAgg(inverted)
	assert.False(t, ok)

	missing := good
	missing.Close = math.NaN()
	_, ok = fromAgg(missing)
	assert.False(t, ok)

	_, ok = fromAgg(rmodels.Agg{Open: 1, High: 1, Low: 1, Close: 1})
	assert.False(t, ok, "no timestamp")
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
}

func TestCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v2/aggs/ticker/SPY/range/5/minute/"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
		  "ticker": "SPY",
		  "status": "OK",
		  "adjusted": true,
		  "queryCount": 3,
		  "resultsCount": 3,
		  "results": [
		    {"o": 100, "h": 102, "l": 99, "c": 101, "v": 1000, "vw": 100.5, "t": 1760448600000},
		    {"o": 101, "h": 100, "l": 103, "c": 102, "v": 900, "t": 1760448900000},
		    {"o": 102, "h": 104, "l": 101, "c": 103, "v": 800, "t": 1760449200000}
		  ]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(Options{APIKey: "test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	tf, _ := ParseTimeframe("5minute")
	to := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	candles, err := c.Candles(context.Background(), "spy", tf, to.AddDate(0, 0, -7), to, 0)
	require.NoError(t, err)

	require.Len(t, candles, 2, "inverted bar skipped")
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 103.0, candles[1].Close)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
}
