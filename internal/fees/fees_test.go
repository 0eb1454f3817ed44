package fees

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestCalculate_ZeroOrderValue(t *testing.T) {
	c := NewCalculator(nil)

	for _, value := range []float64{0.0, -1.0, -1e9} {
		res := c.Calculate(value, Tier1, 0.5)
		assert.Equal(t, Result{}, res, "order value %v must short-circuit to zeros", value)
	}
}

func TestCalculate_AllTakerMarketOrder(t *testing.T) {
	c := NewCalculator(nil)

	res := c.Calculate(10000, Tier1, 0.0)
	assert.Equal(t, 0.0, res.MakerFee)
	assert.InDelta(t, 10000*0.00100, res.TakerFee, 1e-9)
	assert.InDelta(t, 0.00100, res.EffectiveFeeRate, 1e-9)
}

func TestCalculate_BlendedProportion(t *testing.T) {
	c := NewCalculator(nil)

	res := c.Calculate(10000, Tier3, 0.6)
	assert.InDelta(t, 10000*0.6*0.00050, res.MakerFee, 1e-9)
	assert.InDelta(t, 10000*0.4*0.00075, res.TakerFee, 1e-9)
	assert.InDelta(t, res.MakerFee+res.TakerFee, res.TotalFee, 1e-9)
}

func TestCalculate_ClampsMakerProportion(t *testing.T) {
	c := NewCalculator(nil)

	allMaker := c.Calculate(1000, Tier1, 5.0)
	assert.Equal(t, 0.0, allMaker.TakerFee)

	allTaker := c.Calculate(1000, Tier1, -3.0)
	assert.Equal(t, 0.0, allTaker.MakerFee)
}

func TestSchedule_RatesMonotonicallyNonIncreasing(t *testing.T) {
	schedule := DefaultSchedule()
	tiers := Tiers()

	for i := 1; i < len(tiers); i++ {
		prev := schedule[tiers[i-1]]
		curr := schedule[tiers[i]]
		assert.LessOrEqual(t, curr.Maker, prev.Maker, "maker rate must not increase from %s to %s", tiers[i-1], tiers[i])
		assert.LessOrEqual(t, curr.Taker, prev.Taker, "taker rate must not increase from %s to %s", tiers[i-1], tiers[i])
	}
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, Tier3, ParseTier("VIP3"))
	assert.Equal(t, Tier5, ParseTier("tier5"))
	assert.Equal(t, Tier1, ParseTier(""))
	assert.Equal(t, Tier1, ParseTier("platinum"), "unknown tiers fall back to TIER1")
}

func TestCalculate_TotalFee_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	c := NewCalculator(nil)

	properties.Property("total fee is bounded by taker rate and never negative", prop.ForAll(
		func(orderValue, makerProportion float64, tierIdx int) bool {
			tier := Tiers()[tierIdx]
			res := c.Calculate(orderValue, tier, makerProportion)
			rates := c.TierRates(tier)
			if orderValue <= 0 {
				return res == Result{}
			}
			return res.TotalFee >= 0 && res.TotalFee <= orderValue*rates.Taker+1e-9
		},
		gen.Float64Range(-1000, 1e9),
		gen.Float64Range(-2, 3),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}
