package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contract(strike float64, gamma float64, oi int64, class OptionClass) Contract {
	return Contract{
		Ticker:       "SPY",
		Strike:       StrikeFromFloat(strike),
		Expiration:   time.Now(),
		Class:        class,
		Gamma:        gamma,
		OpenInterest: oi,
	}
}

func TestContractExposure(t *testing.T) {
	call := ContractExposure(0.05, 1000, 500.0, Call)
	assert.Equal(t, 1_250_000_000.0, call)

	put := ContractExposure(0.05, 1000, 500.0, Put)
	assert.Equal(t, -1_250_000_000.0, put)
}

func TestContractExposure_InvalidInputs(t *testing.T) {
	assert.Equal(t, 0.0, ContractExposure(0.05, 1000, 0.0, Call), "zero spot")
	assert.Equal(t, 0.0, ContractExposure(0.05, 1000, -10.0, Put), "negative spot")
	assert.Equal(t, 0.0, ContractExposure(-0.05, 1000, 500.0, Call), "negative gamma clamps")
}

func TestCalculateExposure_EmptyInput(t *testing.T) {
	for _, spot := range []float64{500, 0, -1} {
		_, err := CalculateExposure(nil, spot)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
}

func TestCalculateExposure_GroupsByStrike(t *testing.T) {
	contracts := []Contract{
		contract(500.0, 0.05, 1000, Call),
		contract(500.0, 0.04, 1200, Put),
		contract(505.0, 0.03, 800, Call),
	}

	snapshot, err := CalculateExposure(contracts, 502.0)
	require.NoError(t, err)

	assert.Equal(t, "SPY", snapshot.Ticker)
	assert.Equal(t, 502.0, snapshot.SpotPrice)
	assert.Equal(t, 2, snapshot.Len())

	l500, ok := snapshot.Level(StrikeFromFloat(500))
	require.True(t, ok)
	assert.Greater(t, l500.CallExposure, 0.0)
	assert.Less(t, l500.PutExposure, 0.0)
	assert.Equal(t, l500.CallExposure+l500.PutExposure, l500.Total())

	l505, ok := snapshot.Level(StrikeFromFloat(505))
	require.True(t, ok)
	assert.Greater(t, l505.CallExposure, 0.0)
	assert.Equal(t, 0.0, l505.PutExposure)
}

func TestCalculateExposure_SumsAcrossExpirations(t *testing.T) {
	contracts := []Contract{
		contract(500.0, 0.05, 1000, Call),
		contract(500.0, 0.05, 1000, Call),
	}

	snapshot, err := CalculateExposure(contracts, 500.0)
	require.NoError(t, err)

	l, _ := snapshot.Level(StrikeFromFloat(500))
	assert.Equal(t, 2_500_000_000.0, l.CallExposure)
}

func TestCalculateExposure_SignConvention(t *testing.T) {
	contracts := []Contract{
		contract(490, 0.02, 300, Put),
		contract(495, 0.01, 100, Call),
		contract(495, 0.03, 50, Put),
		contract(500, -0.2, 10, Call),
		contract(505, 0.07, 4000, Call),
	}

	snapshot, err := CalculateExposure(contracts, 498.25)
	require.NoError(t, err)

	for _, l := range snapshot.Levels() {
		assert.GreaterOrEqual(t, l.CallExposure, 0.0, "strike %s", l.Strike)
		assert.LessOrEqual(t, l.PutExposure, 0.0, "strike %s", l.Strike)
		assert.Equal(t, l.CallExposure+l.PutExposure, l.Total())
	}
}

func TestCalculateExposure_NonPositiveSpot(t *testing.T) {
	contracts := []Contract{
		contract(500, 0.05, 1000, Call),
		contract(505, 0.04, 900, Put),
	}

	for _, spot := range []float64{0, -25} {
		snapshot, err := CalculateExposure(contracts, spot)
		require.NoError(t, err)
		require.Equal(t, 2, snapshot.Len())
		for _, l := range snapshot.Levels() {
			assert.Equal(t, 0.0, l.Total())
		}
	}
}

func TestCalculateExposure_TimestampIsComputationTime(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	Clock = func() time.Time { return fixed }
	defer func() { Clock = time.Now }()

	c := contract(500, 0.05, 1000, Call)
	c.Expiration = fixed.AddDate(0, 0, 10)

	snapshot, err := CalculateExposure([]Contract{c}, 500)
	require.NoError(t, err)
	assert.Equal(t, fixed, snapshot.Timestamp)
}

func TestFilterStrikes(t *testing.T) {
	var contracts []Contract
	for strike := 480; strike <= 520; strike++ {
		contracts = append(contracts, contract(float64(strike), 0.01, 100, Call))
	}

	snapshot, err := CalculateExposure(contracts, 500.0)
	require.NoError(t, err)
	require.Equal(t, 41, snapshot.Len())

	all := snapshot.FilterStrikes(20)
	assert.Equal(t, 41, all.Len())
	_, ok := all.Level(StrikeFromFloat(480))
	assert.True(t, ok)
	_, ok = all.Level(StrikeFromFloat(520))
	assert.True(t, ok)

	narrow := snapshot.FilterStrikes(5)
	assert.Equal(t, 11, narrow.Len())
	_, ok = narrow.Level(StrikeFromFloat(494))
	assert.False(t, ok)

	assert.Equal(t, 41, snapshot.Len(), "receiver is not mutated")
}

func TestTopStrikes(t *testing.T) {
	contracts := []Contract{
		contract(500.0, 0.10, 1000, Call),
		contract(505.0, 0.05, 500, Call),
		contract(510.0, 0.02, 200, Call),
	}

	snapshot, err := CalculateExposure(contracts, 502.0)
	require.NoError(t, err)

	top := snapshot.TopStrikes(2)
	require.Len(t, top, 2)
	assert.Equal(t, StrikeFromFloat(500), top[0].Strike)
	assert.Equal(t, StrikeFromFloat(505), top[1].Strike)

	assert.Len(t, snapshot.TopStrikes(10), 3)
	assert.Empty(t, snapshot.TopStrikes(0))
}

func TestTopStrikes_TiesKeepFirstSeenOrder(t *testing.T) {
	contracts := []Contract{
		contract(510.0, 0.01, 100, Call),
		contract(490.0, 0.01, 100, Put),
		contract(500.0, 0.01, 100, Call),
	}

	snapshot, err := CalculateExposure(contracts, 500.0)
	require.NoError(t, err)

	top := snapshot.TopStrikes(3)
	require.Len(t, top, 3)
	assert.Equal(t, StrikeFromFloat(510), top[0].Strike)
	assert.Equal(t, StrikeFromFloat(490), top[1].Strike)
	assert.Equal(t, StrikeFromFloat(500), top[2].Strike)
}

func TestPeakAndTrough(t *testing.T) {
	contracts := []Contract{
		contract(495.0, 0.02, 100, Put),
		contract(500.0, 0.10, 1000, Call),
		contract(505.0, 0.001, 10, Call),
	}

	snapshot, err := CalculateExposure(contracts, 500.0)
	require.NoError(t, err)

	peak, ok := snapshot.Peak()
	require.True(t, ok)
	assert.Equal(t, StrikeFromFloat(500), peak.Strike)

	trough, ok := snapshot.Trough()
	require.True(t, ok)
	assert.Equal(t, StrikeFromFloat(505), trough.Strike)
}

func TestLevels_AscendingStrike(t *testing.T) {
	contracts := []Contract{
		contract(510.0, 0.01, 100, Call),
		contract(490.5, 0.01, 100, Put),
		contract(500.0, 0.01, 100, Call),
	}

	snapshot, err := CalculateExposure(contracts, 500.0)
	require.NoError(t, err)

	levels := snapshot.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, "490.5", levels[0].Strike.String())
	assert.Equal(t, "500", levels[1].Strike.String())
	assert.Equal(t, "510", levels[2].Strike.String())
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	contracts := []Contract{
		contract(500.0, 0.05, 1000, Call),
		contract(500.0, 0.04, 1200, Put),
		contract(502.5, 0.03, 800, Call),
	}
	snapshot, err := CalculateExposure(contracts, 501.0)
	require.NoError(t, err)

	b, err := json.Marshal(snapshot)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"total_exposure"`)
	assert.Contains(t, string(b), `"strike":502.5`)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, snapshot.Levels(), decoded.Levels())
	assert.Equal(t, snapshot.SpotPrice, decoded.SpotPrice)
}
