package chain

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"gexmap/analysis"
)

// Params carries the defaults used when a chain omits volatility or rates
type Params struct {
	DefaultVolatility float64 // percent, used when neither contract nor chain reports one
	InterestRate      float64 // percent, used when the chain header has no rate
	Now               func() time.Time
}

// DefaultParams returns the parameters used when nothing is configured
func DefaultParams() Params {
	return Params{
		DefaultVolatility: 20,
		InterestRate:      4.5,
		Now:               time.Now,
	}
}

// CurrentTime returns the reference time used for expiry arithmetic
func (p Params) CurrentTime() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Stats summarizes one normalization pass
type Stats struct {
	Parsed          int // contracts produced
	Synthesized     int // produced contracts whose gamma came from Black-Scholes
	Malformed       int // records that failed to decode, or sat under a bad strike label
	Unsynthesizable int // records with no gamma and inputs too poor to synthesize one
}

// Dropped returns the number of records that did not produce a contract
func (s Stats) Dropped() int {
	return s.Malformed + s.Unsynthesizable
}

// Normalize flattens a raw chain into contracts ready for exposure aggregation.
// Records that fail to decode or whose gamma can't be recovered are dropped and
// counted in Stats; they never fail the whole chain.
func Normalize(ticker string, p *Payload, params Params) ([]analysis.Contract, Stats) {
	var stats Stats
	if p == nil {
		return nil, stats
	}

	n := &normalizer{
		ticker: ticker,
		header: p,
		params: params,
		now:    params.CurrentTime(),
		stats:  &stats,
	}

	contracts := make([]analysis.Contract, 0, p.Calls.Len()+p.Puts.Len())
	contracts = n.side(contracts, p.Calls, analysis.Call)
	contracts = n.side(contracts, p.Puts, analysis.Put)

	log.Info().
		Str("ticker", ticker).
		Int("parsed", stats.Parsed).
		Int("synthesized", stats.Synthesized).
		Int("dropped", stats.Dropped()).
		Msg("Normalized option chain")

	return contracts, stats
}

type normalizer struct {
	ticker string
	header *Payload
	params Params
	now    time.Time
	stats  *Stats
}

func (n *normalizer) side(out []analysis.Contract, m ExpDateMap, class analysis.OptionClass) []analysis.Contract {
	for _, exp := range m {
		if exp.Malformed {
			log.Debug().Str("expiration", exp.Label).Str("class", string(class)).
				Msg("Skipping expiration whose strike map is not an object")
			n.stats.Malformed++
			continue
		}
		for _, bucket := range exp.Strikes {
			var records []json.RawMessage
			if err := json.Unmarshal(bucket.Records, &records); err != nil {
				log.Debug().Err(err).Str("expiration", exp.Label).Str("strike", bucket.Label).
					Msg("Skipping strike bucket that is not a list")
				n.stats.Malformed++
				continue
			}

			strike, err := analysis.ParseStrike(bucket.Label)
			if err != nil {
				log.Debug().Err(err).Str("expiration", exp.Label).Msg("Skipping unparseable strike")
				n.stats.Malformed += len(records)
				continue
			}

			for _, raw := range records {
				if c, ok := n.contract(raw, exp.Label, strike, class); ok {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// contract decodes and normalizes one raw record
func (n *normalizer) contract(raw json.RawMessage, label string, strike analysis.Strike, class analysis.OptionClass) (analysis.Contract, bool) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Debug().Err(err).Str("strike", strike.String()).Str("class", string(class)).
			Msg("Skipping malformed contract record")
		n.stats.Malformed++
		return analysis.Contract{}, false
	}

	expiration, ok := parseExpiration(rec.ExpirationDate)
	if !ok {
		expiration = n.now
	}
	days := n.daysToExpiry(rec, label, expiration)

	vol, _ := rec.Volatility.Positive()

	c := analysis.Contract{
		Ticker:       n.ticker,
		Strike:       strike,
		Expiration:   expiration,
		Class:        class,
		OpenInterest: openInterest(rec.OpenInterest),
		ImpliedVol:   vol,
		DaysToExpiry: days,
		Bid:          rec.Bid,
		Ask:          rec.Ask,
		LastPrice:    rec.Last,
	}
	if rec.Mark > 0 {
		c.LastPrice = rec.Mark
	}

	if rec.Gamma.Valid {
		c.Gamma = rec.Gamma.Value
	} else {
		c.Gamma = BlackScholesGamma(
			n.header.UnderlyingPrice,
			strike.Float(),
			days,
			n.rate(),
			n.sigma(rec),
		)
		if c.Gamma <= 0 {
			log.Debug().Str("strike", strike.String()).Str("class", string(class)).
				Float64("days", days).Float64("underlying", n.header.UnderlyingPrice).
				Msg("Dropping contract without recoverable gamma")
			n.stats.Unsynthesizable++
			return analysis.Contract{}, false
		}
		c.GammaSynthetic = true
		n.stats.Synthesized++
	}

	n.stats.Parsed++
	return c, true
}

// daysToExpiry takes the first positive of the record's daysToExpiration, the
// expiration label suffix, and the time left until the parsed expiration
func (n *normalizer) daysToExpiry(rec record, label string, expiration time.Time) float64 {
	if days, ok := rec.DaysToExpiration.Positive(); ok {
		return days
	}
	if days, ok := daysFromLabel(label); ok && days > 0 {
		return days
	}
	return analysis.DaysToExpiry(expiration, n.now)
}

// sigma returns the volatility fraction for gamma synthesis
func (n *normalizer) sigma(rec record) float64 {
	if v, ok := rec.Volatility.Positive(); ok {
		return v / 100
	}
	if v, ok := n.header.Volatility.Positive(); ok {
		return v / 100
	}
	return n.params.DefaultVolatility / 100
}

// rate returns the interest rate fraction for gamma synthesis
func (n *normalizer) rate() float64 {
	if n.header.InterestRate.Valid {
		return n.header.InterestRate.Value / 100
	}
	return n.params.InterestRate / 100
}

func openInterest(v float64) int64 {
	if v <= 0 {
		return 0
	}
	return int64(v)
}
