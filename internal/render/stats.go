package render

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
	failed     bool
}

// StatsSnapshot is a point-in-time aggregate of one tool's invocations.
type StatsSnapshot struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	MinMs    int64   `json:"min_ms"`
	MaxMs    int64   `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

// ToolStats tracks recent external tool invocations within a rolling window.
type ToolStats struct {
	mu      sync.Mutex
	samples map[string][]sample
	maxAge  time.Duration
}

func NewToolStats(maxAge time.Duration) *ToolStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &ToolStats{
		samples: make(map[string][]sample),
		maxAge:  maxAge,
	}
}

// Record adds one invocation of tool.
func (s *ToolStats) Record(tool string, d time.Duration, failed bool) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples[tool] = append(s.samples[tool], sample{
		timestamp:  now,
		durationMs: ms,
		failed:     failed,
	})
}

// Snapshot returns per-tool aggregates keyed by tool name.
func (s *ToolStats) Snapshot() map[string]StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	out := make(map[string]StatsSnapshot, len(s.samples))
	for tool, samples := range s.samples {
		values := make([]int64, 0, len(samples))
		var sum int64
		failures := 0
		for _, sm := range samples {
			values = append(values, sm.durationMs)
			sum += sm.durationMs
			if sm.failed {
				failures++
			}
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

		out[tool] = StatsSnapshot{
			Count:    len(values),
			Failures: failures,
			MinMs:    values[0],
			MaxMs:    values[len(values)-1],
			AvgMs:    float64(sum) / float64(len(values)),
			P50Ms:    percentile(values, 50),
			P95Ms:    percentile(values, 95),
		}
	}
	return out
}

// Total returns the number of recorded invocations across all tools.
func (s *ToolStats) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, samples := range s.samples {
		n += len(samples)
	}
	return n
}

func (s *ToolStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	for tool, samples := range s.samples {
		kept := samples[:0]
		for _, sm := range samples {
			if !sm.timestamp.Before(cutoff) {
				kept = append(kept, sm)
			}
		}
		if len(kept) == 0 {
			delete(s.samples, tool)
			continue
		}
		s.samples[tool] = kept
	}
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
