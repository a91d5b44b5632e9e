package web

import (
	"time"

	"gexmap/analysis"
	"gexmap/chain"
	"gexmap/heat"
)

// Response is the envelope every API endpoint writes
type Response[T any] struct {
	Data T    `json:"data"`
	Meta Meta `json:"meta"`
}

// Meta describes how a response was produced
type Meta struct {
	RequestID   string    `json:"request_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Cached      bool      `json:"cached"`
}

// ErrorBody is the payload of a failed request
type ErrorBody struct {
	Error string `json:"error"`
}

// GEXReport is the dashboard view of one gamma exposure snapshot
type GEXReport struct {
	Ticker        string                    `json:"ticker"`
	Expiration    analysis.ExpirationFilter `json:"expiration"`
	SpotPrice     float64                   `json:"spot_price"`
	StrikeWindow  float64                   `json:"strike_window"`
	TotalExposure float64                   `json:"total_exposure"`
	Peak          *analysis.Level           `json:"peak,omitempty"`
	Trough        *analysis.Level           `json:"trough,omitempty"`
	Top           []analysis.Level          `json:"top_strikes"`
	Snapshot      *analysis.Snapshot        `json:"snapshot"`
	Chain         ChainSummary              `json:"chain"`
}

// ChainSummary reports what the normalizer kept and dropped
type ChainSummary struct {
	Contracts   int `json:"contracts"`
	Filtered    int `json:"filtered"` // contracts left after the expiration filter
	Synthesized int `json:"synthesized"`
	Dropped     int `json:"dropped"`
}

func summarize(stats chain.Stats, filtered int) ChainSummary {
	return ChainSummary{
		Contracts:   stats.Parsed,
		Filtered:    filtered,
		Synthesized: stats.Synthesized,
		Dropped:     stats.Dropped(),
	}
}

// HeatReport is the dashboard view of one heat field
type HeatReport struct {
	Ticker    string        `json:"ticker"`
	Timeframe string        `json:"timeframe"`
	From      time.Time     `json:"from"`
	To        time.Time     `json:"to"`
	Candles   []heat.Candle `json:"candles"`
	OHLC4     []float64     `json:"ohlc4"`
	Bullish   []bool        `json:"bullish"`
	Field     *heat.Field   `json:"field"`
}
