// Package volatility maintains rolling price history and derives
// multi-window and EWMA volatility estimates from log returns.
package volatility

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultVolatility is returned before any history has accumulated.
	DefaultVolatility = 2.0 // percent, annualized

	// periodsPerYear assumes one observation per minute.
	periodsPerYear = 365 * 24 * 60

	historySlack = 10
)

// Method selects which estimates Estimates includes
type Method string

const (
	MethodStd  Method = "std"
	MethodEWMA Method = "ewma"
	MethodAll  Method = "all"
)

type observation struct {
	ts    time.Time
	price float64
}

// Calculator computes annualized volatility over several window sizes plus
// an EWMA variance estimate. Windows are index distances into the price
// history, not wall-clock durations. Not safe for concurrent writers; the
// single ingestion goroutine owns AddPrice.
type Calculator struct {
	windows    []int
	ewmaLambda float64

	history   []observation // bounded to max window + slack
	returns   map[int][]float64
	estimates map[int]float64 // annualized percent per window

	ewmaVariance float64
}

// NewCalculator creates a calculator for the given window sizes. Empty or
// nil windows fall back to {10, 30, 60, 120}.
func NewCalculator(windows []int, ewmaLambda float64) *Calculator {
	if len(windows) == 0 {
		windows = []int{10, 30, 60, 120}
	}
	if ewmaLambda <= 0 || ewmaLambda >= 1 {
		ewmaLambda = 0.94
	}
	sorted := append([]int(nil), windows...)
	sort.Ints(sorted)

	c := &Calculator{
		windows:    sorted,
		ewmaLambda: ewmaLambda,
		returns:    make(map[int][]float64, len(sorted)),
		estimates:  make(map[int]float64, len(sorted)),
	}
	for _, w := range sorted {
		c.returns[w] = make([]float64, 0, 100)
		c.estimates[w] = 0.0
	}
	return c
}

// AddPrice appends a price observation and recomputes all estimates.
// Non-positive prices are skipped: the log return is undefined for them.
func (c *Calculator) AddPrice(ts time.Time, price float64) {
	if price <= 0 {
		log.Debug().Float64("price", price).Msg("skipping non-positive price observation")
		return
	}

	c.history = append(c.history, observation{ts: ts, price: price})
	maxLen := c.windows[len(c.windows)-1] + historySlack
	if len(c.history) > maxLen {
		c.history = c.history[len(c.history)-maxLen:]
	}

	c.computeReturns()
	c.updateEstimates()
}

// computeReturns appends the latest log return for every window that has
// enough history, and advances the EWMA variance on the shortest window.
func (c *Calculator) computeReturns() {
	if len(c.history) < 2 {
		return
	}
	current := c.history[len(c.history)-1].price

	for _, w := range c.windows {
		if len(c.history) < w+1 {
			continue
		}
		past := c.history[len(c.history)-w-1].price
		if past <= 0 {
			continue
		}
		logReturn := math.Log(current / past)

		buf := append(c.returns[w], logReturn)
		if len(buf) > 100 {
			buf = buf[len(buf)-100:]
		}
		c.returns[w] = buf

		if w == c.windows[0] {
			if c.ewmaVariance == 0.0 {
				// Seed from the sample variance once two returns exist.
				if len(buf) > 1 {
					c.ewmaVariance = populationVariance(buf)
				}
			} else {
				c.ewmaVariance = c.ewmaLambda*c.ewmaVariance +
					(1-c.ewmaLambda)*logReturn*logReturn
			}
		}
	}
}

func (c *Calculator) updateEstimates() {
	for _, w := range c.windows {
		buf := c.returns[w]
		if len(buf) <= 1 {
			continue
		}
		c.estimates[w] = sampleStdDev(buf) * annualizationFactor(w) * 100
	}
}

func annualizationFactor(window int) float64 {
	return math.Sqrt(float64(periodsPerYear) / float64(window))
}

// Estimates carries per-window, EWMA, and blended volatility figures, all
// annualized percentages.
type Estimates struct {
	ByWindow map[int]float64 `json:"by_window,omitempty"`
	EWMA     float64         `json:"ewma"`
	Current  float64         `json:"current"`
	Blended  float64         `json:"blended"`
}

// Volatility returns the estimates selected by method. The blended figure
// is the average of every estimate included in the response.
func (c *Calculator) Volatility(method Method) Estimates {
	est := Estimates{}
	sum := 0.0
	count := 0

	if method == MethodStd || method == MethodAll {
		est.ByWindow = make(map[int]float64, len(c.windows))
		for _, w := range c.windows {
			est.ByWindow[w] = c.estimates[w]
			sum += c.estimates[w]
			count++
		}
	}

	if method == MethodEWMA || method == MethodAll {
		ewmaVol := math.Sqrt(c.ewmaVariance) * annualizationFactor(c.windows[0]) * 100
		est.EWMA = ewmaVol
		est.Current = ewmaVol
		sum += ewmaVol + ewmaVol
		count += 2
	}

	if count > 0 {
		est.Blended = sum / float64(count)
	}
	return est
}

// CurrentVolatility returns the single best scalar estimate, defaulting to
// DefaultVolatility when no EWMA estimate exists yet.
func (c *Calculator) CurrentVolatility() float64 {
	est := c.Volatility(MethodEWMA)
	if est.Current <= 0 {
		return DefaultVolatility
	}
	return est.Current
}

// ObservationCount returns the number of retained price observations
func (c *Calculator) ObservationCount() int {
	return len(c.history)
}

func populationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return variance / float64(len(values))
}

func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)-1))
}
