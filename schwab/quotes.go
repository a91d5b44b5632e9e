package schwab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"gexmap/chain"
)

// GetSpotPrice fetches the latest underlying price for a symbol
func (c *Client) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	query := url.Values{}
	query.Set("symbols", symbol)
	query.Set("fields", "quote")

	var raw json.RawMessage
	if err := c.get(ctx, "/marketdata/v1/quotes", query, &raw); err != nil {
		return 0, fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}

	price, ok := chain.ExtractSpotPrice(raw, symbol)
	if !ok {
		return 0, fmt.Errorf("no price in quote response for %s", symbol)
	}
	return price, nil
}
