package chain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// expirationLayouts are the timestamp shapes seen in expirationDate fields
var expirationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseExpiration parses an ISO-8601 string or epoch milliseconds, reporting
// false when the value is missing or no layout matches. Strings keep the offset
// they were written with, so the result's Date() is the vendor's calendar date;
// values without an offset read as UTC. Epoch values are dated in UTC.
func parseExpiration(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || isNull(raw) {
		return time.Time{}, false
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(millis).UTC(), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// daysFromLabel reads the days-to-expiration suffix of a label like "2026-02-17:2"
func daysFromLabel(label string) (float64, bool) {
	i := strings.LastIndexByte(label, ':')
	if i < 0 {
		return 0, false
	}
	days, err := strconv.ParseFloat(label[i+1:], 64)
	if err != nil || days < 0 {
		return 0, false
	}
	return days, true
}

// ExtractSpotPrice finds the underlying price in a Schwab quotes response.
// The entry keyed by symbol is tried first, then the other entries in document
// order. Within an entry it prefers quote.lastPrice or quote.mark, then
// extended.lastPrice, then a nested lastPrice; after that it falls back to
// top-level lastPrice or mark, then the bid/ask midpoint.
func ExtractSpotPrice(body []byte, symbol string) (float64, bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, false
	}

	var keys []string
	if _, ok := raw[symbol]; ok && symbol != "" {
		keys = append(keys, symbol)
	}
	if err := decodeObject(body, func(key string, _ json.RawMessage) error {
		if key != symbol {
			keys = append(keys, key)
		}
		return nil
	}); err != nil {
		return 0, false
	}

	for _, key := range keys {
		entry, ok := raw[key].(map[string]any)
		if !ok {
			continue
		}
		if price, ok := entryPrice(entry); ok {
			return price, true
		}
	}

	if price := parseFloat(raw["lastPrice"]); price > 0 {
		return price, true
	}
	if price := parseFloat(raw["mark"]); price > 0 {
		return price, true
	}

	bid, hasBid := raw["bid"]
	ask, hasAsk := raw["ask"]
	if hasBid && hasAsk {
		if mid := (parseFloat(bid) + parseFloat(ask)) / 2; mid > 0 {
			return mid, true
		}
	}

	return 0, false
}

func entryPrice(entry map[string]any) (float64, bool) {
	if quote, ok := entry["quote"].(map[string]any); ok {
		price := parseFloat(quote["lastPrice"])
		if price <= 0 {
			price = parseFloat(quote["mark"])
		}
		if price > 0 {
			return price, true
		}
	}

	if extended, ok := entry["extended"].(map[string]any); ok {
		if price := parseFloat(extended["lastPrice"]); price > 0 {
			return price, true
		}
	}

	if price := parseFloat(entry["lastPrice"]); price > 0 {
		return price, true
	}
	return 0, false
}

// parseFloat safely parses a float from an interface{}
func parseFloat(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
