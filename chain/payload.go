package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is a raw option chain as returned by the Schwab chains endpoint.
// Contract records stay undecoded until normalization so a single bad record
// can't fail the whole chain.
type Payload struct {
	Symbol          string     `json:"symbol"`
	UnderlyingPrice float64    `json:"underlyingPrice"`
	InterestRate    Optional   `json:"interestRate"` // percent
	Volatility      Optional   `json:"volatility"`   // percent
	Calls           ExpDateMap `json:"callExpDateMap"`
	Puts            ExpDateMap `json:"putExpDateMap"`
}

// ExpDateMap is an expiration label -> strike label -> records mapping that
// keeps the vendor's key order
type ExpDateMap []Expiry

// Expiry holds the strike buckets under one expiration label such as "2026-02-17:2"
type Expiry struct {
	Label     string
	Strikes   []Bucket
	Malformed bool // the strike map was not an object; Strikes is empty
}

// Bucket holds the raw records listed under one strike label
type Bucket struct {
	Label   string
	Records json.RawMessage
}

// Len returns the number of raw records in the map, counting a non-list bucket
// or a malformed expiration as one
func (m ExpDateMap) Len() int {
	n := 0
	for _, exp := range m {
		if exp.Malformed {
			n++
			continue
		}
		for _, b := range exp.Strikes {
			var recs []json.RawMessage
			if err := json.Unmarshal(b.Records, &recs); err != nil {
				n++
				continue
			}
			n += len(recs)
		}
	}
	return n
}

// UnmarshalJSON decodes the nested vendor maps in document order.
// An expiration entry that isn't an object is kept with Malformed set so the
// normalizer can count it; a null entry has no strikes and is skipped.
func (m *ExpDateMap) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*m = nil
		return nil
	}

	var out ExpDateMap
	err := decodeObject(b, func(label string, raw json.RawMessage) error {
		exp := Expiry{Label: label}
		if isNull(raw) {
			return nil
		}
		if err := decodeObject(raw, func(strike string, recs json.RawMessage) error {
			exp.Strikes = append(exp.Strikes, Bucket{Label: strike, Records: recs})
			return nil
		}); err != nil {
			exp.Strikes = nil
			exp.Malformed = true
		}
		out = append(out, exp)
		return nil
	})
	if err != nil {
		return fmt.Errorf("decoding expiration map: %w", err)
	}

	*m = out
	return nil
}

// MarshalJSON encodes the map back into the vendor's nested object shape
func (m ExpDateMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	written := 0
	for _, exp := range m {
		if exp.Malformed {
			continue
		}
		if written > 0 {
			buf.WriteByte(',')
		}
		written++
		writeKey(&buf, exp.Label)
		buf.WriteByte('{')
		for j, bucket := range exp.Strikes {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, bucket.Label)
			if len(bucket.Records) == 0 {
				buf.WriteString("[]")
			} else {
				buf.Write(bucket.Records)
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
}

// decodeObject walks the members of a JSON object in order
func decodeObject(b []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

// Optional is a vendor number that may be missing. Schwab reports unavailable
// greeks as -999.0; any negative value decodes as not reported.
type Optional struct {
	Value float64
	Valid bool
}

// Some returns a reported value
func Some(v float64) Optional {
	return Optional{Value: v, Valid: true}
}

// UnmarshalJSON maps null and negative sentinels to an invalid Optional
func (o *Optional) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v < 0 {
		*o = Optional{}
		return nil
	}
	*o = Some(v)
	return nil
}

// MarshalJSON writes null for a missing value
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Positive returns the value when it was reported and is greater than zero
func (o Optional) Positive() (float64, bool) {
	return o.Value, o.Valid && o.Value > 0
}

// record is one vendor contract record after the decode boundary
type record struct {
	Gamma            Optional        `json:"gamma"`
	OpenInterest     float64         `json:"openInterest"`
	Bid              float64         `json:"bid"`
	Ask              float64         `json:"ask"`
	Last             float64         `json:"last"`
	Mark             float64         `json:"mark"`
	Volatility       Optional        `json:"volatility"`
	ExpirationDate   json.RawMessage `json:"expirationDate"`
	DaysToExpiration Optional        `json:"daysToExpiration"`
}
