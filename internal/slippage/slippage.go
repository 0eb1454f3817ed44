// Package slippage estimates execution slippage for market orders by
// walking the visible book and via a heuristic regression over historical
// impact observations.
package slippage

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/quantlab-io/tradecost/internal/book"
)

const (
	// DefaultHistorySize bounds the impact/feature history.
	DefaultHistorySize = 100

	// worstCaseMarkup is applied to quantity beyond visible depth.
	worstCaseMarkup = 0.005

	minHistoryLinear   = 10
	minHistoryQuantile = 20

	linearBlendAlpha   = 0.7
	quantileBlendAlpha = 0.6
)

// Features is the per-observation feature vector fed to the heuristic
// linear predictor.
type Features struct {
	SpreadBps       float64 `json:"spread_bps"`
	DepthImbalance  float64 `json:"depth_imbalance"`
	RelativeSizeBid float64 `json:"relative_size_bid"`
	RelativeSizeAsk float64 `json:"relative_size_ask"`
	Quantity        float64 `json:"quantity"`
}

func (f Features) vector() [5]float64 {
	return [5]float64{f.SpreadBps, f.DepthImbalance, f.RelativeSizeBid, f.RelativeSizeAsk, f.Quantity}
}

type impactRecord struct {
	quantity   float64
	buyImpact  float64
	sellImpact float64
}

// Model predicts slippage from order book state plus bounded history.
// Mutated only via Update; callers serialize writes.
type Model struct {
	historySize int

	impacts  []impactRecord
	features [][5]float64
	observed []float64

	// Fixed heuristic weights over normalized features. This is a linear
	// combination, not a trained regression.
	weights [5]float64
}

// NewModel creates a slippage model with the given history capacity;
// non-positive sizes fall back to DefaultHistorySize.
func NewModel(historySize int) *Model {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Model{
		historySize: historySize,
		weights:     [5]float64{0.2, 0.3, 0.4, 0.3, 0.1},
	}
}

// TheoreticalImpact walks the book consuming levels until quantity fills,
// applying a worst-case markup to any remainder beyond visible depth, and
// returns the resulting slippage percentage against the touch price.
// An empty side prices the whole order at the worst-case markup over
// the opposite touch when one exists.
func (m *Model) TheoreticalImpact(ob *book.OrderBook, quantity float64, isBuy bool) float64 {
	if quantity <= 0 {
		return 0.0
	}

	var basePrice float64
	var levels []book.PriceLevel
	if isBuy {
		basePrice = ob.BestAsk()
		levels = ob.Asks
	} else {
		basePrice = ob.BestBid()
		levels = ob.Bids
	}
	if len(levels) == 0 || math.IsInf(basePrice, 1) || basePrice <= 0 {
		// No visible depth on the relevant side: charge the whole order
		// the worst-case markup over the opposite touch. Zero only when
		// no reference price exists at all.
		var fallback float64
		if isBuy {
			fallback = ob.BestBid()
		} else {
			fallback = ob.BestAsk()
		}
		if math.IsInf(fallback, 1) || fallback <= 0 {
			return 0.0
		}
		return worstCaseMarkup * 100
	}

	remaining := quantity
	weighted := 0.0
	for _, level := range levels {
		if remaining <= 0 {
			break
		}
		fill := math.Min(remaining, level.Quantity)
		weighted += fill * level.Price
		remaining -= fill
	}

	if remaining > 0 {
		lastPrice := levels[len(levels)-1].Price
		markup := 1 + worstCaseMarkup
		if !isBuy {
			markup = 1 - worstCaseMarkup
		}
		weighted += remaining * lastPrice * markup
	}

	avgPrice := weighted / quantity
	if isBuy {
		return (avgPrice/basePrice - 1.0) * 100
	}
	return (1.0 - avgPrice/basePrice) * 100
}

// ExtractFeatures derives the regression feature vector for an order
func (m *Model) ExtractFeatures(ob *book.OrderBook, quantity float64) Features {
	bidDepth := ob.BidDepth()
	askDepth := ob.AskDepth()

	relBid := 1.0
	if bidDepth > 0 {
		relBid = quantity / bidDepth
	}
	relAsk := 1.0
	if askDepth > 0 {
		relAsk = quantity / askDepth
	}

	return Features{
		SpreadBps:       ob.SpreadBps(),
		DepthImbalance:  ob.DepthImbalance(),
		RelativeSizeBid: relBid,
		RelativeSizeAsk: relAsk,
		Quantity:        quantity,
	}
}

// Update records theoretical buy/sell impact and features for the given
// order size; observedSlippage may be NaN when no fill was observed.
func (m *Model) Update(ob *book.OrderBook, quantity float64, observedSlippage float64) {
	buyImpact := m.TheoreticalImpact(ob, quantity, true)
	sellImpact := m.TheoreticalImpact(ob, quantity, false)
	features := m.ExtractFeatures(ob, quantity)

	m.impacts = append(m.impacts, impactRecord{
		quantity:   quantity,
		buyImpact:  buyImpact,
		sellImpact: sellImpact,
	})
	m.features = append(m.features, features.vector())
	if !math.IsNaN(observedSlippage) {
		m.observed = append(m.observed, observedSlippage)
	}

	if len(m.impacts) > m.historySize {
		m.impacts = m.impacts[len(m.impacts)-m.historySize:]
	}
	if len(m.features) > m.historySize {
		m.features = m.features[len(m.features)-m.historySize:]
	}
	if len(m.observed) > m.historySize {
		m.observed = m.observed[len(m.observed)-m.historySize:]
	}
}

// HistoryLen returns the number of retained impact observations
func (m *Model) HistoryLen() int {
	return len(m.impacts)
}

// PredictLinear estimates slippage by blending a normalized-feature score
// with the theoretical book walk. With fewer than 10 history points it
// returns the theoretical figure directly. The result is floored at zero.
func (m *Model) PredictLinear(ob *book.OrderBook, quantity float64, isBuy bool) float64 {
	theoretical := m.TheoreticalImpact(ob, quantity, isBuy)
	if len(m.impacts) < minHistoryLinear {
		return theoretical
	}

	features := m.ExtractFeatures(ob, quantity).vector()
	means, stds := m.featureStats()

	score := 0.0
	for i := range features {
		normalized := (features[i] - means[i]) / stds[i]
		score += m.weights[i] * normalized
	}

	predicted := linearBlendAlpha*score + (1-linearBlendAlpha)*theoretical
	return math.Max(0.0, predicted)
}

// PredictQuantile estimates slippage at the given quantile. Under 20
// history points it scales the linear prediction by a quantile-dependent
// safety factor; otherwise it blends a mean+z·stddev estimate over the
// historical impacts with the linear prediction.
func (m *Model) PredictQuantile(ob *book.OrderBook, quantity float64, isBuy bool, quantile float64) float64 {
	base := m.PredictLinear(ob, quantity, isBuy)

	if len(m.impacts) < minHistoryQuantile {
		if quantile > 0.5 {
			safety := 1.0 + (quantile-0.5)*2.0
			return math.Max(0.0, base*safety)
		}
		return math.Max(0.0, base)
	}

	impacts := make([]float64, 0, len(m.impacts))
	for _, rec := range m.impacts {
		if isBuy {
			impacts = append(impacts, rec.buyImpact)
		} else {
			impacts = append(impacts, rec.sellImpact)
		}
	}

	mean, std := meanStd(impacts)
	estimate := mean + zScore(quantile)*std

	predicted := quantileBlendAlpha*estimate + (1-quantileBlendAlpha)*base
	if predicted < 0 {
		log.Debug().Float64("predicted", predicted).Msg("quantile slippage floored at zero")
	}
	return math.Max(0.0, predicted)
}

// featureStats computes per-feature mean and std over the history; zero
// stds are replaced by 1 to avoid dividing by zero.
func (m *Model) featureStats() (means, stds [5]float64) {
	n := float64(len(m.features))
	for _, vec := range m.features {
		for i, v := range vec {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= n
	}
	for _, vec := range m.features {
		for i, v := range vec {
			d := v - means[i]
			stds[i] += d * d
		}
	}
	for i := range stds {
		stds[i] = math.Sqrt(stds[i] / n)
		if stds[i] == 0 {
			stds[i] = 1.0
		}
	}
	return means, stds
}

var zTable = map[float64]float64{
	0.5:  0,
	0.75: 0.674,
	0.9:  1.282,
	0.95: 1.645,
	0.99: 2.326,
}

// zScore maps a quantile to a standard normal z value, interpolating
// linearly between tabulated points.
func zScore(quantile float64) float64 {
	if z, ok := zTable[quantile]; ok {
		return z
	}

	keys := make([]float64, 0, len(zTable))
	for k := range zTable {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	if quantile <= keys[0] {
		return zTable[keys[0]]
	}
	if quantile >= keys[len(keys)-1] {
		return zTable[keys[len(keys)-1]]
	}
	for i := 1; i < len(keys); i++ {
		if quantile < keys[i] {
			lower, upper := keys[i-1], keys[i]
			lowerZ, upperZ := zTable[lower], zTable[upper]
			return lowerZ + (upperZ-lowerZ)*(quantile-lower)/(upper-lower)
		}
	}
	return zTable[keys[len(keys)-1]]
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}
