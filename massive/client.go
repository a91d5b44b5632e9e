package massive

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	polygonrest "github.com/polygon-io/client-go/rest"
	rmodels "github.com/polygon-io/client-go/rest/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"gexmap/heat"
)

// pageSize is the largest page the aggregates endpoint returns
const pageSize = 50000

// Options configures a Client
type Options struct {
	APIKey            string
	BaseURL           string // overrides the aggregates host, e.g. https://api.massive.com
	RequestsPerMinute float64
	HTTPClient        *http.Client
}

// Client fetches candles from the Massive (Polygon compatible) aggregates API
type Client struct {
	rest    *polygonrest.Client
	limiter *rate.Limiter
}

// NewClient creates a new candle client
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("massive api key is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.BaseURL != "" {
		target, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing massive base url: %w", err)
		}
		next := hc.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		clone := *hc
		clone.Transport = &hostRewriter{target: target, next: next}
		hc = &clone
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(opts.RequestsPerMinute / 60)
	}

	return &Client{
		rest:    polygonrest.NewWithClient(opts.APIKey, hc),
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Candles fetches up to limit bars for ticker between from and to, oldest first.
// Aggregates that can't form a valid candle are skipped.
func (c *Client) Candles(ctx context.Context, ticker string, tf Timeframe, from, to time.Time, limit int) ([]heat.Candle, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	params := &rmodels.ListAggsParams{
		Ticker:     ticker,
		Multiplier: tf.Multiplier,
		Timespan:   tf.Timespan,
		From:       rmodels.Millis(from),
		To:         rmodels.Millis(to),
	}
	lim := pageSize
	asc := rmodels.Asc
	adj := true
	params.Limit = &lim
	params.Order = &asc
	params.Adjusted = &adj

	log.Info().Str("ticker", ticker).Str("timeframe", tf.Label).
		Time("from", from).Time("to", to).Msg("Fetching candles")

	var (
		candles []heat.Candle
		skipped int
	)
	iter := c.rest.ListAggs(ctx, params)
	for iter.Next() {
		if limit > 0 && len(candles) >= limit {
			break
		}
		candle, ok := fromAgg(iter.Item())
		if !ok {
			skipped++
			continue
		}
		candles = append(candles, candle)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("fetching candles for %s: %w", ticker, err)
	}

	log.Info().Str("ticker", ticker).Int("candles", len(candles)).Int("skipped", skipped).
		Msg("Retrieved candles")
	return candles, nil
}

// fromAgg converts an aggregate bar, rejecting bars with missing or inverted prices
func fromAgg(a rmodels.Agg) (heat.Candle, bool) {
	ts := time.Time(a.Timestamp)
	if ts.IsZero() || a.High < a.Low {
		return heat.Candle{}, false
	}
	for _, p := range []float64{a.Open, a.High, a.Low, a.Close} {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return heat.Candle{}, false
		}
	}

	return heat.Candle{
		Timestamp: ts.UTC(),
		Open:      a.Open,
		High:      a.High,
		Low:       a.Low,
		Close:     a.Close,
		Volume:    int64(a.Volume),
		VWAP:      a.VWAP,
	}, true
}

// hostRewriter sends every request to a fixed scheme and host
type hostRewriter struct {
	target *url.URL
	next   http.RoundTripper
}

func (h *hostRewriter) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = h.target.Scheme
	r.URL.Host = h.target.Host
	r.Host = h.target.Host
	return h.next.RoundTrip(r)
}
