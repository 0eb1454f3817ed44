// Package makertaker estimates the fraction of an order likely to fill as
// maker versus taker.
package makertaker

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantlab-io/tradecost/internal/book"
)

const historySize = 100

// Parameters tune the limit-order maker model
type Parameters struct {
	BaseMakerProportion       float64 `yaml:"base_maker_proportion" json:"base_maker_proportion"`
	VolatilitySensitivity     float64 `yaml:"volatility_sensitivity" json:"volatility_sensitivity"`
	SpreadSensitivity         float64 `yaml:"spread_sensitivity" json:"spread_sensitivity"`
	DepthImbalanceSensitivity float64 `yaml:"depth_imbalance_sensitivity" json:"depth_imbalance_sensitivity"`
}

// DefaultParameters returns the calibration defaults
func DefaultParameters() Parameters {
	return Parameters{
		BaseMakerProportion:       0.7,
		VolatilitySensitivity:     0.5,
		SpreadSensitivity:         0.3,
		DepthImbalanceSensitivity: 0.2,
	}
}

// Features are the normalized market inputs behind one estimate
type Features struct {
	MidPrice        float64 `json:"mid_price"`
	SpreadPct       float64 `json:"spread_pct"`
	SpreadFactor    float64 `json:"spread_factor"`
	Volatility      float64 `json:"volatility"` // decimal
	VolFactor       float64 `json:"vol_factor"`
	DepthImbalance  float64 `json:"depth_imbalance"`
	ImbalanceFactor float64 `json:"imbalance_factor"`
}

// Estimate is one maker/taker split with its inputs
type Estimate struct {
	MakerProportion float64  `json:"maker_proportion"`
	TakerProportion float64  `json:"taker_proportion"`
	Features        Features `json:"features"`
}

type record struct {
	timestamp time.Time
	isBuy     bool
	isLimit   bool
	estimate  Estimate
}

// Estimator derives maker/taker proportions from order type and market
// features. The rolling history is diagnostic only and never feeds back
// into future estimates.
type Estimator struct {
	params  Parameters
	history []record
}

// NewEstimator creates an estimator with default parameters
func NewEstimator() *Estimator {
	return &Estimator{params: DefaultParameters()}
}

// SetParameters replaces the estimator's parameter set
func (e *Estimator) SetParameters(p Parameters) {
	e.params = p
}

// Parameters returns the current parameter set
func (e *Estimator) Parameters() Parameters {
	return e.params
}

// extractFeatures normalizes spread, volatility, and imbalance into
// bounded factors. Typical spreads are assumed around 5-10 bps and typical
// volatility around 1-5%.
func (e *Estimator) extractFeatures(ob *book.OrderBook, metrics book.MarketMetrics) Features {
	midPrice := ob.MidPrice()

	spreadPct := 0.0
	if midPrice > 0 && !math.IsInf(midPrice, 1) {
		spreadPct = ob.Spread() / midPrice
	}
	spreadFactor := math.Min(1.0, spreadPct*1000)

	vol := metrics.Volatility / 100.0
	volFactor := math.Min(1.0, vol/0.05)

	imbalance := 0.0
	if metrics.BidDepth+metrics.AskDepth > 0 {
		imbalance = (metrics.BidDepth - metrics.AskDepth) / (metrics.BidDepth + metrics.AskDepth)
	}
	imbalanceFactor := math.Max(-1.0, math.Min(1.0, imbalance))

	return Features{
		MidPrice:        midPrice,
		SpreadPct:       spreadPct,
		SpreadFactor:    spreadFactor,
		Volatility:      vol,
		VolFactor:       volFactor,
		DepthImbalance:  imbalance,
		ImbalanceFactor: imbalanceFactor,
	}
}

// EstimateProportion returns the expected maker/taker split. Market orders
// are always 100% taker. For limit orders the base maker proportion is
// adjusted multiplicatively by volatility (down), spread (up), and signed
// depth imbalance (direction depends on the trade side), then clamped to
// [0,1].
func (e *Estimator) EstimateProportion(ob *book.OrderBook, metrics book.MarketMetrics, isBuy, isLimit bool) Estimate {
	if !isLimit {
		return Estimate{MakerProportion: 0.0, TakerProportion: 1.0}
	}

	features := e.extractFeatures(ob, metrics)

	maker := e.params.BaseMakerProportion
	maker *= 1 - e.params.VolatilitySensitivity*features.VolFactor
	maker *= 1 + e.params.SpreadSensitivity*features.SpreadFactor

	// Imbalance toward the order's own side reduces the expected maker
	// share: a bid-heavy book makes a resting buy less likely to fill.
	imbalanceEffect := features.ImbalanceFactor
	if isBuy {
		imbalanceEffect = -imbalanceEffect
	}
	maker *= 1 + e.params.DepthImbalanceSensitivity*imbalanceEffect

	maker = math.Max(0.0, math.Min(1.0, maker))

	est := Estimate{
		MakerProportion: maker,
		TakerProportion: 1.0 - maker,
		Features:        features,
	}

	e.history = append(e.history, record{
		timestamp: ob.Timestamp,
		isBuy:     isBuy,
		isLimit:   isLimit,
		estimate:  est,
	})
	if len(e.history) > historySize {
		e.history = e.history[len(e.history)-historySize:]
	}

	return est
}

// HistoryLen returns the number of retained diagnostic records
func (e *Estimator) HistoryLen() int {
	return len(e.history)
}

// UpdateWithActualProportion logs estimate accuracy against an observed
// fill. Offline diagnostics only; it never adjusts the parameters.
func (e *Estimator) UpdateWithActualProportion(estimated, actual float64) {
	log.Info().
		Float64("estimated", estimated).
		Float64("actual", actual).
		Float64("error", actual-estimated).
		Msg("maker proportion accuracy")
}
