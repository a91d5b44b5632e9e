package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OptionClass is the side of an option contract
type OptionClass string

const (
	Call OptionClass = "CALL"
	Put  OptionClass = "PUT"
)

// ParseOptionClass accepts CALL/PUT as well as the short C/P forms
func ParseOptionClass(s string) (OptionClass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return Call, nil
	case "PUT", "P":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option class: %q", s)
}

// Contract is a normalized option contract ready for exposure aggregation.
// Gamma is never negative and never a vendor sentinel.
type Contract struct {
	// Contract details
	Ticker     string
	Strike     Strike
	Expiration time.Time
	Class      OptionClass

	// Greeks and positioning
	Gamma          float64
	GammaSynthetic bool // true when gamma came from the closed-form model
	OpenInterest   int64
	ImpliedVol     float64
	DaysToExpiry   float64

	// Pricing
	Bid       float64
	Ask       float64
	LastPrice float64 // mark when the vendor reports one, else last trade
}

// Level is the gamma exposure aggregated at one strike.
// Call exposure is non-negative and put exposure is non-positive.
type Level struct {
	Strike       Strike
	CallExposure float64
	PutExposure  float64
}

// Total returns the net exposure at the strike
func (l Level) Total() float64 {
	return l.CallExposure + l.PutExposure
}

// MarshalJSON includes the derived total
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Strike       Strike  `json:"strike"`
		CallExposure float64 `json:"call_exposure"`
		PutExposure  float64 `json:"put_exposure"`
		Total        float64 `json:"total_exposure"`
	}{l.Strike, l.CallExposure, l.PutExposure, l.Total()})
}
