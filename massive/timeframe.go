package massive

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	rmodels "github.com/polygon-io/client-go/rest/models"
)

// ErrUnknownTimeframe is returned for a bar size the aggregates API can't serve
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// Timeframe is a bar size such as 5minute or 1day
type Timeframe struct {
	Label      string
	Multiplier int
	Timespan   rmodels.Timespan
}

var timeframes = map[string]Timeframe{
	"1minute":  {"1minute", 1, rmodels.Minute},
	"3minute":  {"3minute", 3, rmodels.Minute},
	"5minute":  {"5minute", 5, rmodels.Minute},
	"10minute": {"10minute", 10, rmodels.Minute},
	"15minute": {"15minute", 15, rmodels.Minute},
	"30minute": {"30minute", 30, rmodels.Minute},
	"1hour":    {"1hour", 1, rmodels.Hour},
	"4hour":    {"4hour", 4, rmodels.Hour},
	"1day":     {"1day", 1, rmodels.Day},
	"1week":    {"1week", 1, rmodels.Week},
	"1month":   {"1month", 1, rmodels.Month},
}

// ParseTimeframe parses labels like "5minute", "4hour" or "1day"
func ParseTimeframe(label string) (Timeframe, error) {
	tf, ok := timeframes[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return Timeframe{}, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownTimeframe, label,
			strings.Join(Timeframes(), ", "))
	}
	return tf, nil
}

// Timeframes lists the supported labels, shortest bar first
func Timeframes() []string {
	out := make([]string, 0, len(timeframes))
	for label := range timeframes {
		out = append(out, label)
	}
	sort.Slice(out, func(i, j int) bool {
		return timeframes[out[i]].Duration() < timeframes[out[j]].Duration()
	})
	return out
}

// Duration returns the approximate length of one bar
func (t Timeframe) Duration() time.Duration {
	var unit time.Duration
	switch t.Timespan {
	case rmodels.Minute:
		unit = time.Minute
	case rmodels.Hour:
		unit = time.Hour
	case rmodels.Day:
		unit = 24 * time.Hour
	case rmodels.Week:
		unit = 7 * 24 * time.Hour
	case rmodels.Month:
		unit = 30 * 24 * time.Hour
	}
	return time.Duration(t.Multiplier) * unit
}

func (t Timeframe) String() string {
	return t.Label
}
