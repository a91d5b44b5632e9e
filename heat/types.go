package heat

import (
	"errors"
	"time"
)

const (
	// DefaultBins is the number of price bins used when Options.Bins is unset
	DefaultBins = 500
	// MinBinWidth is the bin spacing used when every candle trades at one price
	MinBinWidth = 0.01
	// rangePadding widens the binned range on both sides, as a fraction of the range
	rangePadding = 0.05
)

// ErrNoCandles is returned when a heat field is requested over an empty series
var ErrNoCandles = errors.New("no candles to build a heat field from")

// Candle is one OHLCV bar
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	VWAP      float64   `json:"vwap,omitempty"`
}

// OHLC4 returns the average of open, high, low and close
func (c Candle) OHLC4() float64 {
	return (c.Open + c.High + c.Low + c.Close) / 4
}

// OHLC4 returns the OHLC4 series of a candle sequence
func OHLC4(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.OHLC4()
	}
	return out
}

// Options tunes heat field construction
type Options struct {
	Bins int // number of price bins; values below 2 use DefaultBins
}

func (o Options) bins() int {
	if o.Bins < 2 {
		return DefaultBins
	}
	return o.Bins
}

// Segment is a run of adjacent covered bins with the same heat within one candle
type Segment struct {
	Heat     int     `json:"heat"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	FirstBin int     `json:"first_bin"`
	LastBin  int     `json:"last_bin"`
	Visible  bool    `json:"visible"` // false for zero-heat runs
}

// CandleHeat is the instantaneous overlap heat of one candle
type CandleHeat struct {
	Bins     []int     `json:"bins"`  // covered bin indexes, ascending
	Heats    []int     `json:"heats"` // heat per covered bin, same order as Bins
	Segments []Segment `json:"segments"`
	MaxHeat  int       `json:"max_heat"`
	AvgHeat  float64   `json:"avg_heat"`
}

// Field is the price-by-time heat field of a candle series
type Field struct {
	Prices     []float64    `json:"prices"` // bin centres, ascending
	BinWidth   float64      `json:"bin_width"`
	Candles    []CandleHeat `json:"candles"`
	Cumulative [][]float64  `json:"cumulative"` // [bin][candle]
	Weighted   []float64    `json:"weighted_prices"`
	Closes     []float64    `json:"closes"`
}

// Bullish reports whether the heat-weighted price of candle i sits above its close
func (f *Field) Bullish(i int) bool {
	return f.Weighted[i] > f.Closes[i]
}

// MaxCumulative returns the largest cumulative heat anywhere in the field
func (f *Field) MaxCumulative() float64 {
	var peak float64
	for _, row := range f.Cumulative {
		for _, v := range row {
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}

// MaxAvgHeat returns the largest per-candle average heat
func (f *Field) MaxAvgHeat() float64 {
	var peak float64
	for _, c := range f.Candles {
		if c.AvgHeat > peak {
			peak = c.AvgHeat
		}
	}
	return peak
}

// Column returns the cumulative heat of every bin at candle i
func (f *Field) Column(i int) []float64 {
	col := make([]float64, len(f.Cumulative))
	for b, row := range f.Cumulative {
		col[b] = row[i]
	}
	return col
}
