package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantlab-io/tradecost/internal/book"
	"github.com/quantlab-io/tradecost/internal/cache"
	"github.com/quantlab-io/tradecost/internal/config"
	"github.com/quantlab-io/tradecost/internal/fees"
	"github.com/quantlab-io/tradecost/internal/impact"
	"github.com/quantlab-io/tradecost/internal/latency"
	"github.com/quantlab-io/tradecost/internal/makertaker"
	"github.com/quantlab-io/tradecost/internal/slippage"
	"github.com/quantlab-io/tradecost/internal/volatility"
)

// DefaultSlippageQuantile is the safety quantile used when a request does
// not name one.
const DefaultSlippageQuantile = 0.9

// Engine runs the full cost pipeline against the latest market snapshot.
// Single trades run synchronously via Simulate; batches run on the fixed
// worker pool in batch.go.
type Engine struct {
	cfg config.SimulatorConfig

	mu            sync.RWMutex
	latestBook    *book.OrderBook
	latestMetrics book.MarketMetrics
	latestVol     volatility.Estimates

	// slippage history and maker/taker history mutate on use
	slipMu   sync.Mutex
	slippage *slippage.Model

	mtMu       sync.Mutex
	makerTaker *makertaker.Estimator

	impactModels map[impact.Kind]*impact.Model
	feeCalc      *fees.Calculator

	paramsCache *cache.LRU
	latencies   *latency.Tracker

	batchMu sync.Mutex
	batchCh chan *batchJob
	batches map[string]*BatchResult
	running map[string]bool
	closed  bool
	wg      sync.WaitGroup
}

// NewEngine builds an engine from the configuration and starts its batch
// dispatcher. Callers own the lifecycle and must Shutdown when done.
func NewEngine(cfg config.Config) *Engine {
	models := make(map[impact.Kind]*impact.Model, 3)
	for _, kind := range []impact.Kind{impact.KindHybrid, impact.KindSquareRoot, impact.KindLinear} {
		m := impact.NewModel()
		m.SetParameters(cfg.ImpactParameters(kind))
		models[kind] = m
	}

	mt := makertaker.NewEstimator()
	mt.SetParameters(cfg.MakerTaker)

	e := &Engine{
		cfg:          cfg.Simulator,
		slippage:     slippage.NewModel(0),
		makerTaker:   mt,
		impactModels: models,
		feeCalc:      fees.NewCalculator(cfg.FeeSchedule()),
		paramsCache:  cache.NewLRU(cfg.Simulator.CacheSize),
		latencies:    latency.NewTracker(cfg.Simulator.LatencyWindow),
		batchCh:      make(chan *batchJob, cfg.Simulator.BatchQueueSize),
		batches:      make(map[string]*BatchResult),
		running:      make(map[string]bool),
	}

	e.wg.Add(1)
	go e.runBatches()

	return e
}

// UpdateMarketData installs a new order book snapshot and its metrics as
// the state every subsequent simulation reads. The slippage model's
// feature history advances with a unit-size observation per tick.
func (e *Engine) UpdateMarketData(ob *book.OrderBook, metrics book.MarketMetrics) {
	e.mu.Lock()
	e.latestBook = ob
	e.latestMetrics = metrics
	e.mu.Unlock()

	e.slipMu.Lock()
	e.slippage.Update(ob, 1.0, math.NaN())
	e.slipMu.Unlock()
}

// UpdateVolatilityEstimates installs the latest multi-window volatility
// breakdown for advanced-mode diagnostics.
func (e *Engine) UpdateVolatilityEstimates(est volatility.Estimates) {
	e.mu.Lock()
	e.latestVol = est
	e.mu.Unlock()
}

func (e *Engine) snapshot() (*book.OrderBook, book.MarketMetrics, volatility.Estimates) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latestBook, e.latestMetrics, e.latestVol
}

// LatencyMetrics returns percentile figures per pipeline stage
func (e *Engine) LatencyMetrics() map[latency.Stage]latency.Metrics {
	return e.latencies.AllMetrics()
}

// CacheStats returns hit/miss counters for the market-parameter cache
func (e *Engine) CacheStats() cache.Stats {
	return e.paramsCache.Stats()
}

// MarketMetrics returns the metrics of the latest snapshot and whether a
// snapshot exists at all.
func (e *Engine) MarketMetrics() (book.MarketMetrics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latestMetrics, e.latestBook != nil
}

func errorResult(req Request, msg string) Result {
	return Result{
		Error:     msg,
		Exchange:  req.Exchange,
		Symbol:    req.Symbol,
		OrderType: string(ParseOrderType(req.OrderType)),
		Side:      string(ParseSide(req.Side)),
		Timestamp: time.Now().UTC(),
	}
}

// Simulate runs the full pipeline for one request. Failures are reported
// through Result.Error rather than a Go error so batch items degrade
// independently.
func (e *Engine) Simulate(req Request) Result {
	start := time.Now()

	ob, metrics, volEst := e.snapshot()
	if ob == nil {
		return errorResult(req, "no market data available for simulation")
	}

	orderType := ParseOrderType(req.OrderType)
	side := ParseSide(req.Side)
	mode := ParseMode(req.Mode)
	tier := fees.ParseTier(req.FeeTier)
	kind := impact.ParseKind(req.ImpactModel)
	isBuy := side == SideBuy
	isLimit := orderType == OrderLimit

	quantile := req.SlippageQuantile
	if quantile <= 0 || quantile >= 1 {
		quantile = DefaultSlippageQuantile
	}

	midPrice := ob.MidPrice()

	quantity := req.Quantity
	if quantity <= 0 && req.QuantityQuote > 0 {
		if midPrice <= 0 || math.IsInf(midPrice, 1) {
			return errorResult(req, "cannot convert quote quantity without a valid mid price")
		}
		quantity = req.QuantityQuote / midPrice
	}
	if quantity <= 0 {
		return errorResult(req, fmt.Sprintf("invalid quantity %.8f", quantity))
	}

	if req.Volatility > 0 {
		metrics.Volatility = req.Volatility
	}

	orderValue := 0.0
	if midPrice > 0 && !math.IsInf(midPrice, 1) {
		orderValue = quantity * midPrice
	}

	// Slippage
	slipTimer := e.latencies.StartTimer(latency.StageSlippage)
	e.slipMu.Lock()
	slippagePct := e.slippage.PredictQuantile(ob, quantity, isBuy, quantile)
	var slipFeatures slippage.Features
	if mode == ModeAdvanced {
		slipFeatures = e.slippage.ExtractFeatures(ob, quantity)
	}
	e.slipMu.Unlock()
	slipTimer.Stop()
	slippageCost := orderValue * slippagePct / 100

	// Market impact, with parameter extraction shared across sibling
	// batch variations through the LRU cache.
	impactTimer := e.latencies.StartTimer(latency.StageImpact)
	model := e.impactModels[kind]
	key := cache.Key(req.Exchange, req.Symbol, ob.Timestamp, quantity, isBuy, metrics.Volatility)
	var params impact.MarketParams
	cacheHit := false
	if cached, ok := e.paramsCache.Get(key); ok {
		params = cached.(impact.MarketParams)
		cacheHit = true
	} else {
		params = model.ExtractMarketParams(ob, metrics)
		e.paramsCache.Set(key, params)
	}
	impactResult := model.Calculate(kind, params, quantity)
	impactTimer.Stop()
	impactCost := orderValue * impactResult.TotalImpactPct / 100

	// Maker/taker split
	mtTimer := e.latencies.StartTimer(latency.StageMakerTaker)
	e.mtMu.Lock()
	mtEstimate := e.makerTaker.EstimateProportion(ob, metrics, isBuy, isLimit)
	e.mtMu.Unlock()
	mtTimer.Stop()

	// Fees
	feeTimer := e.latencies.StartTimer(latency.StageFees)
	feeResult := e.feeCalc.Calculate(orderValue, tier, mtEstimate.MakerProportion)
	feeTimer.Stop()

	netCost := slippageCost + impactCost + feeResult.TotalFee
	netCostPct := 0.0
	if orderValue > 0 {
		netCostPct = netCost / orderValue * 100
	}

	elapsed := time.Since(start)
	e.latencies.Record(latency.StageSimulation, elapsed)

	result := Result{
		Exchange:    req.Exchange,
		Symbol:      req.Symbol,
		OrderType:   string(orderType),
		Side:        string(side),
		FeeTier:     tier.String(),
		ImpactModel: string(kind),
		Timestamp:   time.Now().UTC(),

		Quantity:   quantity,
		MidPrice:   midPrice,
		OrderValue: orderValue,
		SpreadBps:  ob.SpreadBps(),
		Volatility: metrics.Volatility,

		SlippagePct:  slippagePct,
		SlippageCost: slippageCost,

		Impact: impactResult,

		MakerProportion: mtEstimate.MakerProportion,
		TakerProportion: mtEstimate.TakerProportion,
		Fees:            feeResult,

		NetCost:    netCost,
		NetCostPct: netCostPct,

		LatencyMs:    float64(elapsed.Nanoseconds()) / 1e6,
		AvgLatencyMs: e.latencies.Stage(latency.StageSimulation).Average(),
	}

	if mode == ModeAdvanced {
		result.Diagnostics = &Diagnostics{
			SlippageFeatures:    slipFeatures,
			MarketParams:        params,
			ImpactParameters:    model.Parameters(),
			MakerFeatures:       mtEstimate.Features,
			VolatilityEstimates: volEst,
			CacheHit:            cacheHit,
		}
	}

	log.Debug().
		Str("symbol", req.Symbol).
		Str("side", string(side)).
		Float64("quantity", quantity).
		Float64("net_cost_pct", netCostPct).
		Dur("elapsed", elapsed).
		Msg("simulation complete")

	return result
}
