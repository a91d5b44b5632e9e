package web

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"gexmap/analysis"
	"gexmap/chain"
	"gexmap/heat"
)

// DefaultTopStrikes is how many strikes a report ranks when none is asked for
const DefaultTopStrikes = 5

// GEXOptions controls how a chain becomes a GEXReport
type GEXOptions struct {
	Filter       analysis.ExpirationFilter
	Params       chain.Params
	SpotPrice    float64 // overrides the chain's underlying price when > 0
	StrikeWindow float64 // price units either side of spot, 0 keeps every strike
	Top          int
}

// BuildGEXReport normalizes a raw chain, applies the expiration filter and
// aggregates the remaining contracts into a windowed exposure snapshot.
func BuildGEXReport(ticker string, payload *chain.Payload, opts GEXOptions) (*GEXReport, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if payload == nil {
		return nil, fmt.Errorf("no option chain for %s", ticker)
	}

	spot := opts.SpotPrice
	if spot <= 0 {
		spot = payload.UnderlyingPrice
	}
	top := opts.Top
	if top <= 0 {
		top = DefaultTopStrikes
	}

	contracts, stats := chain.Normalize(ticker, payload, opts.Params)
	filtered := analysis.FilterByExpiration(contracts, opts.Filter, opts.Params.CurrentTime())

	log.Debug().
		Str("ticker", ticker).
		Str("expiration", string(opts.Filter)).
		Int("contracts", len(contracts)).
		Int("filtered", len(filtered)).
		Msg("Applied expiration filter")

	snap, err := analysis.CalculateExposure(filtered, spot)
	if err != nil {
		return nil, fmt.Errorf("calculating exposure for %s: %w", ticker, err)
	}
	if opts.StrikeWindow > 0 {
		snap = snap.FilterStrikes(opts.StrikeWindow)
	}

	report := &GEXReport{
		Ticker:        ticker,
		Expiration:    opts.Filter,
		SpotPrice:     spot,
		StrikeWindow:  opts.StrikeWindow,
		TotalExposure: snap.TotalExposure(),
		Top:           snap.TopStrikes(top),
		Snapshot:      snap,
		Chain:         summarize(stats, len(filtered)),
	}
	if peak, ok := snap.Peak(); ok {
		report.Peak = &peak
	}
	if trough, ok := snap.Trough(); ok {
		report.Trough = &trough
	}
	return report, nil
}

// BuildHeatReport computes the heat field of a candle series
func BuildHeatReport(ticker, timeframe string, candles []heat.Candle, bins int) (*HeatReport, error) {
	field, err := heat.Build(candles, heat.Options{Bins: bins})
	if err != nil {
		return nil, fmt.Errorf("building heat field for %s: %w", ticker, err)
	}

	bullish := make([]bool, len(candles))
	for i := range candles {
		bullish[i] = field.Bullish(i)
	}

	return &HeatReport{
		Ticker:    strings.ToUpper(strings.TrimSpace(ticker)),
		Timeframe: timeframe,
		From:      candles[0].Timestamp,
		To:        candles[len(candles)-1].Timestamp,
		Candles:   candles,
		OHLC4:     heat.OHLC4(candles),
		Bullish:   bullish,
		Field:     field,
	}, nil
}
