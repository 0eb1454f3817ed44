// Package impact implements pluggable market impact calculators estimating
// the temporary and permanent price impact of a trade against standing
// liquidity.
package impact

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/quantlab-io/tradecost/internal/book"
)

// Kind selects the impact model variant
type Kind string

const (
	// KindHybrid is the square-root/linear hybrid in the Almgren-Chriss
	// style: sqrt temporary impact plus linear permanent impact.
	KindHybrid Kind = "almgren-chriss"
	// KindSquareRoot scales both components with sqrt(relativeSize).
	KindSquareRoot Kind = "square-root"
	// KindLinear is the simplistic linear baseline kept for comparison.
	KindLinear Kind = "linear"
)

// ParseKind maps a free-form model name to a Kind, falling back to the
// hybrid variant for anything unrecognized.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "almgren-chriss", "almgren_chriss", "hybrid", "":
		return KindHybrid
	case "square-root", "square_root", "sqrt":
		return KindSquareRoot
	case "linear":
		return KindLinear
	default:
		log.Warn().Str("kind", s).Msg("unknown impact model kind, using almgren-chriss")
		return KindHybrid
	}
}

// Parameters holds the tunable constants of one model variant.
// Read-mostly configuration; replaced wholesale via Model.SetParameters.
type Parameters struct {
	TemporaryImpactFactor float64 `yaml:"temporary_impact_factor" json:"temporary_impact_factor"`
	PermanentImpactFactor float64 `yaml:"permanent_impact_factor" json:"permanent_impact_factor"`
	VolatilityScaling     float64 `yaml:"volatility_scaling" json:"volatility_scaling"`
	SpreadCostFactor      float64 `yaml:"spread_cost_factor" json:"spread_cost_factor"`
	MinImpactPct          float64 `yaml:"min_impact_pct" json:"min_impact_pct"`
}

// DefaultParameters returns calibration defaults shared by all variants
func DefaultParameters() Parameters {
	return Parameters{
		TemporaryImpactFactor: 0.1,
		PermanentImpactFactor: 0.02,
		VolatilityScaling:     0.5,
		SpreadCostFactor:      1.0,
		MinImpactPct:          0.0001,
	}
}

// MarketParams are the extracted inputs every variant consumes
type MarketParams struct {
	MidPrice    float64 `json:"mid_price"`
	Volatility  float64 `json:"volatility"`   // annualized, decimal
	MarketDepth float64 `json:"market_depth"` // depth proxy in base units
	SpreadPct   float64 `json:"spread_pct"`   // spread as fraction of mid
	VolumeProxy float64 `json:"volume_proxy"` // depth-derived volume proxy
}

// Result is one impact estimate
type Result struct {
	TemporaryImpactPct float64 `json:"temporary_impact_pct"`
	PermanentImpactPct float64 `json:"permanent_impact_pct"`
	TotalImpactPct     float64 `json:"total_impact_pct"`
	ImpactCost         float64 `json:"impact_cost"` // quote currency
	HalfSpreadCost     float64 `json:"half_spread_cost"`
	RelativeSize       float64 `json:"relative_size"`
	PctOfProxyVolume   float64 `json:"pct_of_proxy_volume"`
}

// Model computes impact estimates for a selectable variant
type Model struct {
	params Parameters
}

// NewModel creates an impact model with default parameters
func NewModel() *Model {
	return &Model{params: DefaultParameters()}
}

// SetParameters replaces the model's parameter set
func (m *Model) SetParameters(p Parameters) {
	m.params = p
}

// Parameters returns the current parameter set
func (m *Model) Parameters() Parameters {
	return m.params
}

// ExtractMarketParams derives the shared model inputs from the book and
// metrics. Zero or negative volatility substitutes a 0.5% default; an empty
// proxy volume substitutes a unit divisor downstream.
func (m *Model) ExtractMarketParams(ob *book.OrderBook, metrics book.MarketMetrics) MarketParams {
	midPrice := ob.MidPrice()

	vol := metrics.Volatility
	if vol <= 0 {
		vol = 0.5
	}
	// Percentage to decimal, then annualize the daily figure.
	annualizedVol := vol / 100.0 * math.Sqrt(365)

	depth := ob.BidDepth() + ob.AskDepth()
	volumeProxy := depth * 100

	marketDepth := volumeProxy
	if annualizedVol > 0 {
		marketDepth = volumeProxy / annualizedVol
	} else {
		marketDepth = volumeProxy / 0.01
	}

	spreadPct := 0.0
	if midPrice > 0 && !math.IsInf(midPrice, 1) {
		spreadPct = ob.Spread() / midPrice
	}

	return MarketParams{
		MidPrice:    midPrice,
		Volatility:  annualizedVol,
		MarketDepth: marketDepth,
		SpreadPct:   spreadPct,
		VolumeProxy: volumeProxy,
	}
}

// Calculate estimates the impact of an order of the given base quantity
// using the selected variant. Total impact is floored at MinImpactPct for
// positive quantities.
func (m *Model) Calculate(kind Kind, params MarketParams, quantity float64) Result {
	relativeSize := 1.0
	if params.MarketDepth > 0 {
		relativeSize = quantity / params.MarketDepth
	}

	pctOfProxy := 1.0
	if params.VolumeProxy > 0 {
		pctOfProxy = quantity / params.VolumeProxy * 100
	}

	vol := params.Volatility
	spreadCost := m.params.SpreadCostFactor * params.SpreadPct / 2

	var temporary, permanent float64
	switch kind {
	case KindSquareRoot:
		sizeComponent := math.Sqrt(relativeSize)
		temporary = spreadCost + m.params.TemporaryImpactFactor*vol*sizeComponent
		permanent = m.params.PermanentImpactFactor * vol * sizeComponent
	case KindLinear:
		temporary = spreadCost + m.params.TemporaryImpactFactor*vol*relativeSize
		permanent = m.params.PermanentImpactFactor * vol * relativeSize
	default:
		// Hybrid: sqrt temporary component with volatility scaling applied
		// to both legs, linear permanent component.
		temporary = params.SpreadPct/2 + m.params.TemporaryImpactFactor*vol*math.Sqrt(relativeSize)
		permanent = m.params.PermanentImpactFactor * vol * relativeSize
		temporary *= 1 + m.params.VolatilityScaling*vol
		permanent *= 1 + m.params.VolatilityScaling*vol/2
	}

	total := temporary + permanent
	if quantity > 0 && total < m.params.MinImpactPct {
		total = m.params.MinImpactPct
	}

	impactCost := 0.0
	halfSpreadCost := 0.0
	if !math.IsInf(params.MidPrice, 1) {
		impactCost = params.MidPrice * quantity * total / 100
		halfSpreadCost = params.MidPrice * quantity * (params.SpreadPct / 2) / 100
	}

	return Result{
		TemporaryImpactPct: temporary,
		PermanentImpactPct: permanent,
		TotalImpactPct:     total,
		ImpactCost:         impactCost,
		HalfSpreadCost:     halfSpreadCost,
		RelativeSize:       relativeSize,
		PctOfProxyVolume:   pctOfProxy,
	}
}
