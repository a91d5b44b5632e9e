package heat

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// Build computes the overlap heat field of an ordered candle series.
//
// Prices are split into equal-width bins spanning the traded range plus 5% on
// each side. A bin's running counter grows while consecutive candles keep
// covering it and restarts at 1 after any gap; a candle reports
// max(0, counter-1) for each bin it covers. The cumulative field carries each
// column forward, adds heat where the overlap chain continues and subtracts it
// (clamped at zero) where a candle re-enters a level after a gap.
func Build(candles []Candle, opts Options) (*Field, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}

	prices, width := priceBins(candles, opts.bins())
	nBins, nCandles := len(prices), len(candles)

	f := &Field{
		Prices:     prices,
		BinWidth:   width,
		Candles:    make([]CandleHeat, nCandles),
		Cumulative: make([][]float64, nBins),
		Weighted:   make([]float64, nCandles),
		Closes:     make([]float64, nCandles),
	}
	for b := range f.Cumulative {
		f.Cumulative[b] = make([]float64, nCandles)
	}

	counters := make([]int, nBins)
	// bins covered by the previous candle, as the half-open range [prevLo, prevHi)
	prevLo, prevHi := 0, 0

	for i, c := range candles {
		lo, hi := coverage(prices, c.Low, c.High)
		prevCovered := func(b int) bool { return b >= prevLo && b < prevHi }

		ch := CandleHeat{
			Bins:  make([]int, 0, hi-lo),
			Heats: make([]int, 0, hi-lo),
		}
		var sum int
		for b := lo; b < hi; b++ {
			if prevCovered(b) {
				counters[b]++
			} else {
				counters[b] = 1
			}
			h := counters[b] - 1
			ch.Bins = append(ch.Bins, b)
			ch.Heats = append(ch.Heats, h)
			sum += h
			if h > ch.MaxHeat {
				ch.MaxHeat = h
			}
		}
		if len(ch.Heats) > 0 {
			ch.AvgHeat = float64(sum) / float64(len(ch.Heats))
		}

		// streaks broken by this candle
		for b := prevLo; b < prevHi; b++ {
			if b < lo || b >= hi {
				counters[b] = 0
			}
		}

		ch.Segments = segments(prices, width, ch.Bins, ch.Heats)
		f.Candles[i] = ch

		if i > 0 {
			for _, row := range f.Cumulative {
				row[i] = row[i-1]
			}
		}
		for k, b := range ch.Bins {
			h := float64(ch.Heats[k])
			row := f.Cumulative[b]
			if prevCovered(b) {
				row[i] += h
			} else {
				row[i] = max(0, row[i]-h)
			}
		}

		f.Closes[i] = c.Close
		f.Weighted[i] = weightedPrice(prices, f.Cumulative, i, c.Close)
		prevLo, prevHi = lo, hi
	}

	return f, nil
}

// priceBins returns the bin centres and spacing for a candle series
func priceBins(candles []Candle, n int) ([]float64, float64) {
	low, high := candles[0].Low, candles[0].High
	for _, c := range candles {
		low = min(low, c.Low, c.High)
		high = max(high, c.Low, c.High)
	}

	prices := make([]float64, n)
	span := high - low
	if span <= 0 {
		log.Debug().Float64("price", low).Int("candles", len(candles)).
			Msg("Degenerate candle range, using minimum bin width")
		mid := n / 2
		for i := range prices {
			prices[i] = low + float64(i-mid)*MinBinWidth
		}
		return prices, MinBinWidth
	}

	start := low - span*rangePadding
	stop := high + span*rangePadding
	width := (stop - start) / float64(n-1)
	for i := range prices {
		prices[i] = start + float64(i)*width
	}
	prices[n-1] = stop
	return prices, width
}

// coverage returns the half-open range of bins whose price lies in [low, high]
func coverage(prices []float64, low, high float64) (int, int) {
	lo := sort.SearchFloat64s(prices, low)
	hi := sort.Search(len(prices), func(i int) bool { return prices[i] > high })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// segments merges adjacent covered bins of equal heat
func segments(prices []float64, width float64, bins, heats []int) []Segment {
	if len(bins) == 0 {
		return nil
	}

	var out []Segment
	start := 0
	for j := 1; j <= len(heats); j++ {
		if j < len(heats) && heats[j] == heats[start] {
			continue
		}
		seg := Segment{
			Heat:     heats[start],
			FirstBin: bins[start],
			LastBin:  bins[j-1],
			Low:      prices[bins[start]],
			High:     prices[bins[j-1]],
			Visible:  heats[start] > 0,
		}
		if seg.High <= seg.Low {
			seg.High = seg.Low + width
		}
		out = append(out, seg)
		start = j
	}
	return out
}

// weightedPrice is the cumulative-heat weighted mean bin price of column i,
// or the fallback when the column holds no heat
func weightedPrice(prices []float64, cumulative [][]float64, i int, fallback float64) float64 {
	var weighted, total float64
	for b, row := range cumulative {
		weighted += prices[b] * row[i]
		total += row[i]
	}
	if total <= 0 {
		return fallback
	}
	return weighted / total
}
