package marketdata

import (
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quantlab-io/tradecost/internal/book"
	"github.com/quantlab-io/tradecost/internal/volatility"
)

// Sink receives fully-processed market updates
type Sink interface {
	UpdateMarketData(ob *book.OrderBook, metrics book.MarketMetrics)
	UpdateVolatilityEstimates(est volatility.Estimates)
}

// Processor turns raw snapshot messages into sink updates, feeding each
// mid price into the volatility calculator. Updates beyond the configured
// rate are dropped; snapshots supersede each other, so dropping is safe.
type Processor struct {
	mu      sync.Mutex
	vol     *volatility.Calculator
	sink    Sink
	limiter *rate.Limiter

	processed uint64
	dropped   uint64
}

// NewProcessor creates a processor. A non-positive updatesPerSecond
// disables throttling.
func NewProcessor(sink Sink, vol *volatility.Calculator, updatesPerSecond float64) *Processor {
	var limiter *rate.Limiter
	if updatesPerSecond > 0 {
		burst := int(updatesPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(updatesPerSecond), burst)
	}
	return &Processor{vol: vol, sink: sink, limiter: limiter}
}

// Handle parses one raw message and processes it. Parse failures are
// returned; throttled messages are dropped silently.
func (p *Processor) Handle(raw []byte) error {
	if p.limiter != nil && !p.limiter.Allow() {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return nil
	}

	ob, err := ParseSnapshot(raw)
	if err != nil {
		return err
	}
	p.Process(ob)
	return nil
}

// Process advances the volatility calculator with the snapshot's mid
// price and pushes the book plus derived metrics to the sink.
func (p *Processor) Process(ob *book.OrderBook) {
	p.mu.Lock()

	mid := ob.MidPrice()
	if mid > 0 && !math.IsInf(mid, 1) {
		p.vol.AddPrice(ob.Timestamp, mid)
	}

	metrics := book.MarketMetrics{
		Timestamp:  ob.Timestamp,
		Symbol:     ob.Symbol,
		MidPrice:   mid,
		Spread:     ob.Spread(),
		BidDepth:   ob.BidDepth(),
		AskDepth:   ob.AskDepth(),
		Volatility: p.vol.CurrentVolatility(),
	}
	est := p.vol.Volatility(volatility.MethodAll)
	p.processed++
	count := p.processed
	p.mu.Unlock()

	p.sink.UpdateMarketData(ob, metrics)
	p.sink.UpdateVolatilityEstimates(est)

	if count%1000 == 0 {
		log.Debug().
			Str("symbol", ob.Symbol).
			Uint64("processed", count).
			Float64("mid_price", mid).
			Msg("market data progress")
	}
}

// Counts returns how many updates were processed and dropped
func (p *Processor) Counts() (processed, dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.dropped
}
