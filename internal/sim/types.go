// Package sim orchestrates the per-trade cost pipeline: slippage, market
// impact, maker/taker split, and fees against the latest order book
// snapshot, plus worker-pool batch simulation.
package sim

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantlab-io/tradecost/internal/fees"
	"github.com/quantlab-io/tradecost/internal/impact"
	"github.com/quantlab-io/tradecost/internal/makertaker"
	"github.com/quantlab-io/tradecost/internal/slippage"
	"github.com/quantlab-io/tradecost/internal/volatility"
)

// OrderType selects market or limit execution
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// ParseOrderType maps a free-form order type to OrderType, defaulting to
// market for anything unrecognized.
func ParseOrderType(s string) OrderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "market", "":
		return OrderMarket
	case "limit":
		return OrderLimit
	default:
		log.Warn().Str("order_type", s).Msg("unknown order type, using market")
		return OrderMarket
	}
}

// Side is the trade direction
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide maps a free-form side to Side, defaulting to buy
func ParseSide(s string) Side {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "":
		return SideBuy
	case "sell":
		return SideSell
	default:
		log.Warn().Str("side", s).Msg("unknown side, using buy")
		return SideBuy
	}
}

// Mode selects the level of detail in the result
type Mode string

const (
	ModeBasic    Mode = "basic"
	ModeAdvanced Mode = "advanced"
)

// ParseMode maps a free-form mode to Mode, defaulting to basic
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "":
		return ModeBasic
	case "advanced", "detailed":
		return ModeAdvanced
	default:
		log.Warn().Str("mode", s).Msg("unknown simulation mode, using basic")
		return ModeBasic
	}
}

// Request describes one simulation. String fields are free-form and
// normalized through the Parse helpers; either Quantity (base units) or
// QuantityQuote (quote units, converted at mid) must be positive.
type Request struct {
	Exchange      string  `json:"exchange"`
	Symbol        string  `json:"symbol"`
	OrderType     string  `json:"order_type"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	QuantityQuote float64 `json:"quantity_quote"`
	// Volatility overrides the live estimate when positive (annualized
	// percentage, e.g. 2.5 for 2.5%).
	Volatility  float64 `json:"volatility"`
	FeeTier     string  `json:"fee_tier"`
	ImpactModel string  `json:"impact_model"`
	Mode        string  `json:"mode"`
	// SlippageQuantile defaults to 0.9 when zero
	SlippageQuantile float64 `json:"slippage_quantile"`
}

// Variation overrides a subset of a base request's fields. Zero values
// inherit from the base.
type Variation Request

func (v Variation) applyTo(base Request) Request {
	out := base
	if v.Exchange != "" {
		out.Exchange = v.Exchange
	}
	if v.Symbol != "" {
		out.Symbol = v.Symbol
	}
	if v.OrderType != "" {
		out.OrderType = v.OrderType
	}
	if v.Side != "" {
		out.Side = v.Side
	}
	if v.Quantity > 0 {
		out.Quantity = v.Quantity
	}
	if v.QuantityQuote > 0 {
		out.QuantityQuote = v.QuantityQuote
	}
	if v.Volatility > 0 {
		out.Volatility = v.Volatility
	}
	if v.FeeTier != "" {
		out.FeeTier = v.FeeTier
	}
	if v.ImpactModel != "" {
		out.ImpactModel = v.ImpactModel
	}
	if v.Mode != "" {
		out.Mode = v.Mode
	}
	if v.SlippageQuantile > 0 {
		out.SlippageQuantile = v.SlippageQuantile
	}
	return out
}

// Diagnostics carries the model internals surfaced in advanced mode
type Diagnostics struct {
	SlippageFeatures    slippage.Features    `json:"slippage_features"`
	MarketParams        impact.MarketParams  `json:"market_params"`
	ImpactParameters    impact.Parameters    `json:"impact_parameters"`
	MakerFeatures       makertaker.Features  `json:"maker_features"`
	VolatilityEstimates volatility.Estimates `json:"volatility_estimates"`
	CacheHit            bool                 `json:"cache_hit"`
}

// Result is one completed simulation. A failed simulation carries the
// failure in Error and zero values everywhere else; callers check Error
// before reading the figures.
type Result struct {
	Error string `json:"error,omitempty"`

	Exchange    string    `json:"exchange,omitempty"`
	Symbol      string    `json:"symbol,omitempty"`
	OrderType   string    `json:"order_type,omitempty"`
	Side        string    `json:"side,omitempty"`
	FeeTier     string    `json:"fee_tier,omitempty"`
	ImpactModel string    `json:"impact_model,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	Quantity   float64 `json:"quantity"`
	MidPrice   float64 `json:"mid_price"`
	OrderValue float64 `json:"order_value"`
	SpreadBps  float64 `json:"spread_bps"`
	Volatility float64 `json:"volatility"`

	SlippagePct  float64 `json:"slippage_pct"`
	SlippageCost float64 `json:"slippage_cost"`

	Impact impact.Result `json:"impact"`

	MakerProportion float64     `json:"maker_proportion"`
	TakerProportion float64     `json:"taker_proportion"`
	Fees            fees.Result `json:"fees"`

	NetCost    float64 `json:"net_cost"`
	NetCostPct float64 `json:"net_cost_pct"`

	LatencyMs    float64 `json:"latency_ms"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// BatchItem pairs a variation with the result of simulating it merged
// over the batch's base request.
type BatchItem struct {
	Variation Variation `json:"variation"`
	Result    Result    `json:"result"`
}

// BatchResult aggregates the completed simulations of one batch in
// submission order.
type BatchResult struct {
	ID           string      `json:"id"`
	Count        int         `json:"count"`
	SubmittedAt  time.Time   `json:"submitted_at"`
	CompletedAt  time.Time   `json:"completed_at"`
	ProcessingMs float64     `json:"processing_ms"`
	Results      []BatchItem `json:"results"`
}
