package schwab

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gexmap/chain"
)

// ChainQuery narrows an option chain request
type ChainQuery struct {
	Symbol      string
	StrikeCount int       // strikes either side of the money, 0 for all
	ToDate      time.Time // last expiration to include, zero for all
}

// GetOptionChain fetches the full call and put chain for a symbol
func (c *Client) GetOptionChain(ctx context.Context, q ChainQuery) (*chain.Payload, error) {
	symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("option chain: empty symbol")
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("contractType", "ALL")
	query.Set("strategy", "SINGLE")
	query.Set("includeUnderlyingQuote", "true")
	if q.StrikeCount > 0 {
		query.Set("strikeCount", strconv.Itoa(q.StrikeCount))
	}
	if !q.ToDate.IsZero() {
		query.Set("toDate", q.ToDate.Format("2006-01-02"))
	}

	var payload chain.Payload
	if err := c.get(ctx, "/marketdata/v1/chains", query, &payload); err != nil {
		return nil, fmt.Errorf("fetching option chain for %s: %w", symbol, err)
	}
	if payload.Symbol == "" {
		payload.Symbol = symbol
	}
	return &payload, nil
}
