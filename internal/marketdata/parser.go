// Package marketdata ingests L2 order book snapshots: a reconnecting
// websocket client for the live feed, a file replay source, and a
// processor that turns raw snapshots into engine updates.
package marketdata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/quantlab-io/tradecost/internal/book"
)

// snapshotMsg is the wire format of one L2 snapshot. Prices and
// quantities arrive as decimal strings.
type snapshotMsg struct {
	Timestamp string     `json:"timestamp"`
	Exchange  string     `json:"exchange"`
	Symbol    string     `json:"symbol"`
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
}

// ParseSnapshot decodes one raw snapshot message into an order book.
// Malformed levels fail the whole message; zero-quantity levels are
// dropped. A missing or unparsable timestamp falls back to receipt time.
func ParseSnapshot(raw []byte) (*book.OrderBook, error) {
	var msg snapshotMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("marketdata: decode snapshot: %w", err)
	}

	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return nil, fmt.Errorf("marketdata: asks: %w", err)
	}
	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return nil, fmt.Errorf("marketdata: bids: %w", err)
	}
	if len(asks) == 0 && len(bids) == 0 {
		return nil, fmt.Errorf("marketdata: empty order book for %q", msg.Symbol)
	}

	ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	return &book.OrderBook{
		Timestamp: ts,
		Exchange:  msg.Exchange,
		Symbol:    msg.Symbol,
		Asks:      asks,
		Bids:      bids,
	}, nil
}

func parseLevels(raw [][]string) ([]book.PriceLevel, error) {
	levels := make([]book.PriceLevel, 0, len(raw))
	for i, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("level %d: want [price, quantity], got %d fields", i, len(entry))
		}
		price, err := strconv.ParseFloat(entry[0], 64)
		if err != nil {
			return nil, fmt.Errorf("level %d: price %q: %w", i, entry[0], err)
		}
		qty, err := strconv.ParseFloat(entry[1], 64)
		if err != nil {
			return nil, fmt.Errorf("level %d: quantity %q: %w", i, entry[1], err)
		}
		if price <= 0 || qty < 0 {
			return nil, fmt.Errorf("level %d: non-positive price %g or negative quantity %g", i, price, qty)
		}
		if qty == 0 {
			continue
		}
		levels = append(levels, book.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
