package analysis

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Snapshot holds the per-strike gamma exposure for one ticker at a point in time.
// Levels keep the order in which their strikes were first seen; Levels() iterates
// them by ascending strike.
type Snapshot struct {
	Ticker    string
	Timestamp time.Time
	SpotPrice float64

	levels map[Strike]*Level
	order  []Strike
}

func newSnapshot(ticker string, ts time.Time, spot float64) *Snapshot {
	return &Snapshot{
		Ticker:    ticker,
		Timestamp: ts,
		SpotPrice: spot,
		levels:    make(map[Strike]*Level),
	}
}

// level returns the level for a strike, creating it at zero exposure when missing
func (s *Snapshot) level(k Strike) *Level {
	if l, ok := s.levels[k]; ok {
		return l
	}
	l := &Level{Strike: k}
	s.levels[k] = l
	s.order = append(s.order, k)
	return l
}

// Len returns the number of distinct strikes
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Level looks up the exposure at a strike
func (s *Snapshot) Level(k Strike) (Level, bool) {
	l, ok := s.levels[k]
	if !ok {
		return Level{}, false
	}
	return *l, true
}

// Levels returns all levels ordered by ascending strike
func (s *Snapshot) Levels() []Level {
	out := s.inOrder()
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// inOrder returns the levels in first-seen order
func (s *Snapshot) inOrder() []Level {
	out := make([]Level, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.levels[k])
	}
	return out
}

// TotalExposure sums the net exposure over every strike
func (s *Snapshot) TotalExposure() float64 {
	var total float64
	for _, l := range s.inOrder() {
		total += l.Total()
	}
	return total
}

// FilterStrikes returns a new snapshot holding only the strikes within window
// price units of the spot price. The receiver is left untouched.
func (s *Snapshot) FilterStrikes(window float64) *Snapshot {
	out := newSnapshot(s.Ticker, s.Timestamp, s.SpotPrice)
	for _, k := range s.order {
		if math.Abs(k.Float()-s.SpotPrice) > window {
			continue
		}
		l := *s.levels[k]
		out.levels[k] = &l
		out.order = append(out.order, k)
	}
	return out
}

// TopStrikes returns the n levels with the largest absolute net exposure,
// largest first. Ties keep first-seen order.
func (s *Snapshot) TopStrikes(n int) []Level {
	out := s.inOrder()
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Total()) > math.Abs(out[j].Total())
	})
	if n < 0 {
		n = 0
	}
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// Peak returns the level with the largest absolute net exposure
func (s *Snapshot) Peak() (Level, bool) {
	top := s.TopStrikes(1)
	if len(top) == 0 {
		return Level{}, false
	}
	return top[0], true
}

// Trough returns the level with the smallest absolute net exposure
func (s *Snapshot) Trough() (Level, bool) {
	var (
		best  Level
		found bool
	)
	for _, l := range s.inOrder() {
		if !found || math.Abs(l.Total()) < math.Abs(best.Total()) {
			best, found = l, true
		}
	}
	return best, found
}

// MarshalJSON encodes the snapshot with its levels by ascending strike
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Ticker    string    `json:"ticker"`
		Timestamp time.Time `json:"timestamp"`
		SpotPrice float64   `json:"spot_price"`
		Levels    []Level   `json:"levels"`
	}{s.Ticker, s.Timestamp, s.SpotPrice, s.Levels()})
}

// UnmarshalJSON restores a snapshot encoded by MarshalJSON
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw struct {
		Ticker    string    `json:"ticker"`
		Timestamp time.Time `json:"timestamp"`
		SpotPrice float64   `json:"spot_price"`
		Levels    []struct {
			Strike       Strike  `json:"strike"`
			CallExposure float64 `json:"call_exposure"`
			PutExposure  float64 `json:"put_exposure"`
		} `json:"levels"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = *newSnapshot(raw.Ticker, raw.Timestamp, raw.SpotPrice)
	for _, l := range raw.Levels {
		lvl := s.level(l.Strike)
		lvl.CallExposure = l.CallExposure
		lvl.PutExposure = l.PutExposure
	}
	return nil
}
