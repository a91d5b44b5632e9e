package analysis

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// ContractMultiplier is the number of shares per listed equity option
const ContractMultiplier = 100

// ErrEmptyInput is returned when exposure is requested over zero contracts
var ErrEmptyInput = errors.New("no contracts with valid gamma data provided for exposure calculation")

// Clock returns the current time; swapped out in tests
var Clock = time.Now

// CalculateExposure aggregates contract gamma into signed per-strike exposure.
//
//	call exposure = +gamma * OI * 100 * spot^2
//	put exposure  = -gamma * OI * 100 * spot^2
//
// Contracts at the same strike are summed into their side of the level; the other
// side stays at zero. A spot price <= 0 degrades every level to zero exposure.
func CalculateExposure(contracts []Contract, spotPrice float64) (*Snapshot, error) {
	if len(contracts) == 0 {
		return nil, ErrEmptyInput
	}

	if spotPrice <= 0 {
		log.Warn().Float64("spot", spotPrice).Str("ticker", contracts[0].Ticker).
			Msg("Invalid spot price, exposure degraded to zero")
	}

	snapshot := newSnapshot(contracts[0].Ticker, Clock(), spotPrice)
	for _, c := range contracts {
		level := snapshot.level(c.Strike)
		gex := ContractExposure(c.Gamma, c.OpenInterest, spotPrice, c.Class)
		if c.Class == Put {
			level.PutExposure += gex
		} else {
			level.CallExposure += gex
		}
	}

	log.Debug().Str("ticker", snapshot.Ticker).Int("contracts", len(contracts)).
		Int("strikes", snapshot.Len()).Msg("Calculated gamma exposure")
	return snapshot, nil
}

// ContractExposure computes the signed exposure of a single contract.
// Calls are positive, puts negative. Negative gamma is clamped to zero.
func ContractExposure(gamma float64, openInterest int64, spotPrice float64, class OptionClass) float64 {
	if spotPrice <= 0 {
		return 0
	}
	if gamma < 0 {
		log.Warn().Float64("gamma", gamma).Msg("Negative gamma clamped to zero")
		gamma = 0
	}

	gex := gamma * float64(openInterest) * ContractMultiplier * (spotPrice * spotPrice)
	if class == Put {
		gex = -gex
	}
	return gex
}
