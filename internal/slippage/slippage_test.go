package slippage

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-io/tradecost/internal/book"
)

func deepBook() *book.OrderBook {
	return &book.OrderBook{
		Timestamp: time.Now(),
		Exchange:  "OKX",
		Symbol:    "BTC-USDT",
		Asks: []book.PriceLevel{
			{Price: 100.1, Quantity: 5},
			{Price: 100.2, Quantity: 5},
			{Price: 100.3, Quantity: 10},
		},
		Bids: []book.PriceLevel{
			{Price: 99.9, Quantity: 5},
			{Price: 99.8, Quantity: 5},
			{Price: 99.7, Quantity: 10},
		},
	}
}

func TestTheoreticalImpact_SingleLevelFill(t *testing.T) {
	m := NewModel(0)
	ob := deepBook()

	// A 1-unit buy fills entirely at the best ask: zero slippage.
	assert.InDelta(t, 0.0, m.TheoreticalImpact(ob, 1.0, true), 1e-9)

	// A 7-unit buy crosses into the second level.
	impact := m.TheoreticalImpact(ob, 7.0, true)
	assert.Greater(t, impact, 0.0)

	// avg = (5*100.1 + 2*100.2) / 7 against base 100.1
	expected := ((5*100.1+2*100.2)/7/100.1 - 1) * 100
	assert.InDelta(t, expected, impact, 1e-9)
}

func TestTheoreticalImpact_BeyondVisibleDepth(t *testing.T) {
	m := NewModel(0)
	ob := deepBook()

	// 25 units exceed the 20 visible: remainder pays last price + 0.5%.
	impact := m.TheoreticalImpact(ob, 25.0, true)
	weighted := 5*100.1 + 5*100.2 + 10*100.3 + 5*100.3*1.005
	expected := (weighted/25/100.1 - 1) * 100
	assert.InDelta(t, expected, impact, 1e-9)

	sell := m.TheoreticalImpact(ob, 25.0, false)
	assert.Greater(t, sell, 0.0)
}

func TestTheoreticalImpact_EmptySide(t *testing.T) {
	m := NewModel(0)
	ob := &book.OrderBook{Symbol: "BTC-USDT", Bids: []book.PriceLevel{{Price: 99.9, Quantity: 1}}}

	// An empty ask side prices the whole buy at the worst-case markup
	assert.InDelta(t, worstCaseMarkup*100, m.TheoreticalImpact(ob, 1.0, true), 1e-9)
	assert.Equal(t, 0.0, m.TheoreticalImpact(ob, -1.0, false), "non-positive quantity is a no-op")

	// Same for an empty bid side on a sell
	asksOnly := &book.OrderBook{Symbol: "BTC-USDT", Asks: []book.PriceLevel{{Price: 100.1, Quantity: 1}}}
	assert.InDelta(t, worstCaseMarkup*100, m.TheoreticalImpact(asksOnly, 1.0, false), 1e-9)

	// A book with no reference price at all yields zero
	empty := &book.OrderBook{Symbol: "BTC-USDT"}
	assert.Equal(t, 0.0, m.TheoreticalImpact(empty, 1.0, true))
	assert.Equal(t, 0.0, m.TheoreticalImpact(empty, 1.0, false))
}

func TestPredictLinear_FallsBackToTheoretical(t *testing.T) {
	m := NewModel(0)
	ob := deepBook()

	require.Less(t, m.HistoryLen(), minHistoryLinear)
	assert.Equal(t, m.TheoreticalImpact(ob, 7.0, true), m.PredictLinear(ob, 7.0, true))
}

func TestPredictLinear_WithHistoryIsNonNegative(t *testing.T) {
	m := NewModel(0)
	ob := deepBook()
	for i := 0; i < 15; i++ {
		m.Update(ob, 1.0+float64(i)*0.2, math.NaN())
	}

	require.GreaterOrEqual(t, m.HistoryLen(), minHistoryLinear)
	got := m.PredictLinear(ob, 7.0, true)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestPredictQuantile_SafetyFactorWithThinHistory(t *testing.T) {
	m := NewModel(0)
	ob := deepBook()

	base := m.PredictLinear(ob, 7.0, true)
	require.Greater(t, base, 0.0)

	p95 := m.PredictQuantile(ob, 7.0, true, 0.95)
	assert.InDelta(t, base*1.9, p95, 1e-9, "95th percentile scales by 1.9 with thin history")

	median := m.PredictQuantile(ob, 7.0, true, 0.5)
	assert.InDelta(t, base, median, 1e-9)
}

func TestPredictQuantile_HistoricalBlend(t *testing.T) {
	m := NewModel(0)
	ob := deepBook()
	for i := 0; i < 25; i++ {
		m.Update(ob, 5.0, math.NaN())
	}
	require.GreaterOrEqual(t, m.HistoryLen(), minHistoryQuantile)

	p50 := m.PredictQuantile(ob, 7.0, true, 0.5)
	p99 := m.PredictQuantile(ob, 7.0, true, 0.99)
	assert.GreaterOrEqual(t, p99, p50, "higher quantiles are at least as conservative")
}

func TestUpdate_HistoryBounded(t *testing.T) {
	m := NewModel(20)
	ob := deepBook()
	for i := 0; i < 100; i++ {
		m.Update(ob, 1.0, 0.01)
	}

	assert.Equal(t, 20, m.HistoryLen())
	assert.Len(t, m.observed, 20)
}

func TestZScore_TableAndInterpolation(t *testing.T) {
	assert.Equal(t, 1.645, zScore(0.95))
	assert.Equal(t, 0.0, zScore(0.5))

	// 0.825 sits halfway between 0.75 and 0.9.
	mid := zScore(0.825)
	assert.InDelta(t, (0.674+1.282)/2, mid, 1e-9)

	assert.Equal(t, 2.326, zScore(0.999))
	assert.Equal(t, 0.0, zScore(0.1))
}
