package book

import (
	"math"
	"time"
)

// PriceLevel represents a single level in an L2 order book
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// BookSide selects one side of the order book
type BookSide int

const (
	BidSide BookSide = iota
	AskSide
)

// OrderBook is a point-in-time snapshot of an L2 order book.
// Asks are sorted ascending and bids descending by price (best level first).
// A snapshot is immutable once constructed; ingestion replaces it wholesale.
type OrderBook struct {
	Timestamp time.Time    `json:"timestamp"`
	Exchange  string       `json:"exchange"`
	Symbol    string       `json:"symbol"`
	Asks      []PriceLevel `json:"asks"`
	Bids      []PriceLevel `json:"bids"`
}

// BestAsk returns the lowest ask price, or +Inf when the ask side is empty
func (ob *OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return math.Inf(1)
	}
	return ob.Asks[0].Price
}

// BestBid returns the highest bid price, or 0 when the bid side is empty
func (ob *OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0.0
	}
	return ob.Bids[0].Price
}

// MidPrice returns the midpoint between best bid and best ask
func (ob *OrderBook) MidPrice() float64 {
	return (ob.BestAsk() + ob.BestBid()) / 2
}

// Spread returns the bid-ask spread
func (ob *OrderBook) Spread() float64 {
	return ob.BestAsk() - ob.BestBid()
}

// SpreadBps returns the spread as basis points of the mid price, or 0 when
// the mid price is not positive
func (ob *OrderBook) SpreadBps() float64 {
	mid := ob.MidPrice()
	if mid <= 0 || math.IsInf(mid, 1) {
		return 0.0
	}
	return ob.Spread() / mid * 10000
}

// DepthAtPrice returns the total quantity available at levels at-or-better
// than the given price on one side of the book
func (ob *OrderBook) DepthAtPrice(price float64, side BookSide) float64 {
	total := 0.0
	if side == AskSide {
		for _, level := range ob.Asks {
			if level.Price <= price {
				total += level.Quantity
			}
		}
		return total
	}
	for _, level := range ob.Bids {
		if level.Price >= price {
			total += level.Quantity
		}
	}
	return total
}

// BidDepth returns the total visible quantity on the bid side
func (ob *OrderBook) BidDepth() float64 {
	total := 0.0
	for _, level := range ob.Bids {
		total += level.Quantity
	}
	return total
}

// AskDepth returns the total visible quantity on the ask side
func (ob *OrderBook) AskDepth() float64 {
	total := 0.0
	for _, level := range ob.Asks {
		total += level.Quantity
	}
	return total
}

// DepthImbalance returns (bidDepth-askDepth)/(bidDepth+askDepth), or 0 when
// both sides are empty. Positive values mean the book is bid-heavy.
func (ob *OrderBook) DepthImbalance() float64 {
	bid := ob.BidDepth()
	ask := ob.AskDepth()
	if bid+ask <= 0 {
		return 0.0
	}
	return (bid - ask) / (bid + ask)
}

// MarketMetrics is the derived summary computed once per order book update
type MarketMetrics struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	MidPrice   float64   `json:"mid_price"`
	Spread     float64   `json:"spread"`
	BidDepth   float64   `json:"bid_depth"`
	AskDepth   float64   `json:"ask_depth"`
	Volatility float64   `json:"volatility"` // annualized, percent
}
