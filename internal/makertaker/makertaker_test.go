package makertaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-io/tradecost/internal/book"
)

func marketState(bidDepth, askDepth, vol float64) (*book.OrderBook, book.MarketMetrics) {
	ob := &book.OrderBook{
		Timestamp: time.Now(),
		Exchange:  "OKX",
		Symbol:    "BTC-USDT",
		Asks:      []book.PriceLevel{{Price: 100.05, Quantity: askDepth}},
		Bids:      []book.PriceLevel{{Price: 99.95, Quantity: bidDepth}},
	}
	return ob, book.MarketMetrics{
		Timestamp:  ob.Timestamp,
		Symbol:     ob.Symbol,
		MidPrice:   ob.MidPrice(),
		Spread:     ob.Spread(),
		BidDepth:   bidDepth,
		AskDepth:   askDepth,
		Volatility: vol,
	}
}

func TestMarketOrdersAreAllTaker(t *testing.T) {
	e := NewEstimator()

	for _, vol := range []float64{0.0, 2.0, 50.0} {
		ob, metrics := marketState(1000, 10, vol)
		est := e.EstimateProportion(ob, metrics, true, false)
		assert.Equal(t, 0.0, est.MakerProportion)
		assert.Equal(t, 1.0, est.TakerProportion)
	}
}

func TestLimitOrderProportionBounds(t *testing.T) {
	e := NewEstimator()

	ob, metrics := marketState(500, 500, 2.0)
	est := e.EstimateProportion(ob, metrics, true, true)

	require.GreaterOrEqual(t, est.MakerProportion, 0.0)
	require.LessOrEqual(t, est.MakerProportion, 1.0)
	assert.InDelta(t, 1.0, est.MakerProportion+est.TakerProportion, 1e-9)
}

func TestVolatilityReducesMakerShare(t *testing.T) {
	e := NewEstimator()

	ob, calm := marketState(500, 500, 1.0)
	_, stormy := marketState(500, 500, 10.0)

	calmEst := e.EstimateProportion(ob, calm, true, true)
	stormyEst := e.EstimateProportion(ob, stormy, true, true)

	assert.Greater(t, calmEst.MakerProportion, stormyEst.MakerProportion)
}

func TestImbalanceDirectionDependsOnSide(t *testing.T) {
	e := NewEstimator()
	ob, metrics := marketState(900, 100, 2.0) // bid-heavy

	buy := e.EstimateProportion(ob, metrics, true, true)
	sell := e.EstimateProportion(ob, metrics, false, true)

	// A bid-heavy book reduces a buy's expected maker share and raises a
	// sell's.
	assert.Less(t, buy.MakerProportion, sell.MakerProportion)
}

func TestHistoryIsBoundedAndDiagnosticOnly(t *testing.T) {
	e := NewEstimator()
	ob, metrics := marketState(500, 500, 2.0)

	first := e.EstimateProportion(ob, metrics, true, true)
	for i := 0; i < 250; i++ {
		e.EstimateProportion(ob, metrics, true, true)
	}
	last := e.EstimateProportion(ob, metrics, true, true)

	assert.Equal(t, historySize, e.HistoryLen())
	assert.Equal(t, first.MakerProportion, last.MakerProportion,
		"history must not feed back into estimates")
}
