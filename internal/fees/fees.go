// Package fees implements the tiered maker/taker fee schedule lookup and
// blended-fee computation.
package fees

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// Tier is one volume tier in the fee schedule. Higher tiers pay lower
// rates.
type Tier int

const (
	Tier1 Tier = iota + 1
	Tier2
	Tier3
	Tier4
	Tier5
)

// String returns the tier's display name
func (t Tier) String() string {
	switch t {
	case Tier1:
		return "TIER1"
	case Tier2:
		return "TIER2"
	case Tier3:
		return "TIER3"
	case Tier4:
		return "TIER4"
	case Tier5:
		return "TIER5"
	default:
		return "TIER1"
	}
}

// ParseTier maps a free-form tier name to a Tier, falling back to Tier1
// for anything unrecognized.
func ParseTier(s string) Tier {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TIER1", "VIP1", "1", "":
		return Tier1
	case "TIER2", "VIP2", "2":
		return Tier2
	case "TIER3", "VIP3", "3":
		return Tier3
	case "TIER4", "VIP4", "4":
		return Tier4
	case "TIER5", "VIP5", "5":
		return Tier5
	default:
		log.Warn().Str("tier", s).Msg("unknown fee tier, using TIER1")
		return Tier1
	}
}

// Tiers lists every tier in ascending order
func Tiers() []Tier {
	return []Tier{Tier1, Tier2, Tier3, Tier4, Tier5}
}

// Rates is one tier's maker/taker rate pair, expressed as fractions
type Rates struct {
	Maker float64 `yaml:"maker" json:"maker"`
	Taker float64 `yaml:"taker" json:"taker"`
}

// Schedule maps tiers to rates
type Schedule map[Tier]Rates

// DefaultSchedule returns the OKX-style spot fee table. Rates are strictly
// non-increasing from Tier1 to Tier5.
func DefaultSchedule() Schedule {
	return Schedule{
		Tier1: {Maker: 0.00080, Taker: 0.00100},
		Tier2: {Maker: 0.00065, Taker: 0.00085},
		Tier3: {Maker: 0.00050, Taker: 0.00075},
		Tier4: {Maker: 0.00035, Taker: 0.00060},
		Tier5: {Maker: 0.00025, Taker: 0.00045},
	}
}

// Result is one fee computation
type Result struct {
	MakerFeeRate     float64 `json:"maker_fee_rate"`
	TakerFeeRate     float64 `json:"taker_fee_rate"`
	MakerFee         float64 `json:"maker_fee"`
	TakerFee         float64 `json:"taker_fee"`
	TotalFee         float64 `json:"total_fee"`
	EffectiveFeeRate float64 `json:"effective_fee_rate"`
}

// Calculator performs schedule lookups and blended-fee computation
type Calculator struct {
	schedule Schedule
}

// NewCalculator creates a fee calculator; a nil or empty schedule falls
// back to DefaultSchedule.
func NewCalculator(schedule Schedule) *Calculator {
	if len(schedule) == 0 {
		schedule = DefaultSchedule()
	}
	return &Calculator{schedule: schedule}
}

// TierRates returns the rate pair for a tier, defaulting to Tier1 rates
// when the schedule is missing the entry.
func (c *Calculator) TierRates(tier Tier) Rates {
	if rates, ok := c.schedule[tier]; ok {
		return rates
	}
	return c.schedule[Tier1]
}

// Calculate blends maker and taker fees for the order value. Order values
// at or below zero short-circuit to an all-zero result. The maker
// proportion is clamped to [0,1].
func (c *Calculator) Calculate(orderValue float64, tier Tier, makerProportion float64) Result {
	if orderValue <= 0 {
		return Result{}
	}

	makerProportion = math.Max(0.0, math.Min(1.0, makerProportion))
	takerProportion := 1.0 - makerProportion

	rates := c.TierRates(tier)

	makerFee := orderValue * makerProportion * rates.Maker
	takerFee := orderValue * takerProportion * rates.Taker
	totalFee := makerFee + takerFee

	return Result{
		MakerFeeRate:     rates.Maker,
		TakerFeeRate:     rates.Taker,
		MakerFee:         makerFee,
		TakerFee:         takerFee,
		TotalFee:         totalFee,
		EffectiveFeeRate: totalFee / orderValue,
	}
}
