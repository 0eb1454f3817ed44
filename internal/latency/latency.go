// Package latency provides thread-safe rolling latency histograms with
// percentile queries for the simulation pipeline stages.
package latency

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stage identifies one instrumented pipeline stage
type Stage string

const (
	StageSlippage   Stage = "slippage"
	StageImpact     Stage = "impact"
	StageMakerTaker Stage = "maker_taker"
	StageFees       Stage = "fees"
	StageSimulation Stage = "simulation"
	StageBatch      Stage = "batch"
)

// Histogram tracks latencies in a rolling window with percentile queries
type Histogram struct {
	mu      sync.RWMutex
	buckets []float64 // milliseconds
	maxSize int
	current int
	full    bool
	stage   Stage
}

// NewHistogram creates a histogram with the given rolling window size;
// non-positive sizes fall back to 100.
func NewHistogram(stage Stage, maxSize int) *Histogram {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Histogram{
		buckets: make([]float64, maxSize),
		maxSize: maxSize,
		stage:   stage,
	}
}

// Record adds one latency measurement, overwriting the oldest slot when
// the window is full
func (h *Histogram) Record(duration time.Duration) {
	latencyMs := float64(duration.Nanoseconds()) / 1e6

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buckets[h.current] = latencyMs
	h.current = (h.current + 1) % h.maxSize
	if !h.full && h.current == 0 {
		h.full = true
	}
}

// Percentile calculates the given percentile (0.0-1.0) with linear
// interpolation between samples
func (h *Histogram) Percentile(p float64) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.size()
	if size == 0 {
		return 0.0
	}

	values := make([]float64, size)
	if h.full {
		copy(values, h.buckets)
	} else {
		copy(values, h.buckets[:h.current])
	}
	sort.Float64s(values)

	index := p * float64(size-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return values[lower]
	}
	weight := index - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}

// Average returns the mean of the recorded window
func (h *Histogram) Average() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.size()
	if size == 0 {
		return 0.0
	}
	sum := 0.0
	if h.full {
		for _, v := range h.buckets {
			sum += v
		}
	} else {
		for _, v := range h.buckets[:h.current] {
			sum += v
		}
	}
	return sum / float64(size)
}

// Count returns the number of recorded measurements
func (h *Histogram) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size()
}

func (h *Histogram) size() int {
	if h.full {
		return h.maxSize
	}
	return h.current
}

// Metrics aggregates percentile figures for one stage
type Metrics struct {
	Stage   Stage   `json:"stage"`
	Average float64 `json:"avg_ms"`
	P50     float64 `json:"p50_ms"`
	P95     float64 `json:"p95_ms"`
	P99     float64 `json:"p99_ms"`
	Count   int     `json:"count"`
}

// Metrics returns the current figures for the histogram
func (h *Histogram) Metrics() Metrics {
	return Metrics{
		Stage:   h.stage,
		Average: h.Average(),
		P50:     h.Percentile(0.5),
		P95:     h.Percentile(0.95),
		P99:     h.Percentile(0.99),
		Count:   h.Count(),
	}
}

// Tracker manages histograms for all pipeline stages. It is constructed
// explicitly and passed by reference; there is no package-level instance.
type Tracker struct {
	mu         sync.RWMutex
	histograms map[Stage]*Histogram
	windowSize int
}

// NewTracker creates a tracker whose histograms use the given window size
func NewTracker(windowSize int) *Tracker {
	t := &Tracker{
		histograms: make(map[Stage]*Histogram),
		windowSize: windowSize,
	}
	for _, stage := range []Stage{StageSlippage, StageImpact, StageMakerTaker, StageFees, StageSimulation, StageBatch} {
		t.histograms[stage] = NewHistogram(stage, windowSize)
	}
	return t
}

// Record adds a measurement for the stage, creating the histogram on
// first use for unknown stages
func (t *Tracker) Record(stage Stage, duration time.Duration) {
	t.mu.RLock()
	hist, ok := t.histograms[stage]
	t.mu.RUnlock()

	if !ok {
		t.mu.Lock()
		hist, ok = t.histograms[stage]
		if !ok {
			hist = NewHistogram(stage, t.windowSize)
			t.histograms[stage] = hist
		}
		t.mu.Unlock()
	}

	hist.Record(duration)
}

// Stage returns the histogram for one stage, or nil when none exists
func (t *Tracker) Stage(stage Stage) *Histogram {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.histograms[stage]
}

// AllMetrics returns figures for every tracked stage
func (t *Tracker) AllMetrics() map[Stage]Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := make(map[Stage]Metrics, len(t.histograms))
	for stage, hist := range t.histograms {
		metrics[stage] = hist.Metrics()
	}
	return metrics
}

// Timer measures one operation and records it on Stop
type Timer struct {
	tracker *Tracker
	stage   Stage
	start   time.Time
}

// StartTimer begins a measurement for the stage
func (t *Tracker) StartTimer(stage Stage) *Timer {
	return &Timer{tracker: t, stage: stage, start: time.Now()}
}

// Stop records the elapsed time and returns the duration
func (tm *Timer) Stop() time.Duration {
	duration := time.Since(tm.start)
	tm.tracker.Record(tm.stage, duration)
	return duration
}
