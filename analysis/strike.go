package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// strikeScale is the number of decimal places kept in a Strike key
const strikeScale = 3

// Strike is an exact strike price in thousandths of a price unit.
// "500", "500.0" and "500.000" all map to the same key.
type Strike int64

// ParseStrike parses a vendor strike label such as "657.0" or "12.5"
func ParseStrike(label string) (Strike, error) {
	d, err := decimal.NewFromString(label)
	if err != nil {
		return 0, fmt.Errorf("parsing strike %q: %w", label, err)
	}
	return strikeFromDecimal(d), nil
}

// StrikeFromFloat rounds a float price to the nearest Strike
func StrikeFromFloat(price float64) Strike {
	return strikeFromDecimal(decimal.NewFromFloat(price))
}

func strikeFromDecimal(d decimal.Decimal) Strike {
	return Strike(d.Shift(strikeScale).Round(0).IntPart())
}

// Decimal returns the exact decimal value of the strike
func (s Strike) Decimal() decimal.Decimal {
	return decimal.New(int64(s), -strikeScale)
}

// Float returns the strike as a float64 for arithmetic
func (s Strike) Float() float64 {
	return s.Decimal().InexactFloat64()
}

func (s Strike) String() string {
	return s.Decimal().String()
}

// MarshalJSON encodes the strike as a JSON number
func (s Strike) MarshalJSON() ([]byte, error) {
	return json.Marshal(json.Number(s.String()))
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string
func (s *Strike) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return fmt.Errorf("strike must be a number: %w", err)
		}
		n = json.Number(str)
	}
	parsed, err := ParseStrike(n.String())
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
