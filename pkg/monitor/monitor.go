// Package monitor accumulates per-invocation latency and error counters plus
// periodic resource samples, and raises best-effort threshold alerts.
package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxSamples         = 120
	defaultMinRequestsForRate = 10
)

// Alert kinds.
const (
	AlertResponseTime = "response_time"
	AlertErrorRate    = "error_rate"
	AlertMemory       = "memory"
)

// Thresholds configure when alerts fire. Zero values disable a check.
type Thresholds struct {
	MaxResponseTime time.Duration
	MaxErrorRate    float64 // fraction of failed requests, 0..1
	MaxMemoryMB     float64
}

// Alert describes one threshold violation.
type Alert struct {
	Kind      string    `json:"kind"`
	ToolID    string    `json:"tool_id,omitempty"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

// AlertFunc receives alerts. Delivery is best effort: it runs on its own
// goroutine and a panic is recovered, so it can never block or fail the
// invocation being monitored.
type AlertFunc func(Alert)

// ResourceSample is one point-in-time resource reading.
type ResourceSample struct {
	MemoryMB   float64   `json:"memory_mb"`
	Goroutines int       `json:"goroutines"`
	At         time.Time `json:"at"`
}

// Snapshot is a read-only view of the running counters.
type Snapshot struct {
	RequestCount      int64         `json:"request_count"`
	ErrorCount        int64         `json:"error_count"`
	TotalResponseTime time.Duration `json:"total_response_time"`
	MaxResponseTime   time.Duration `json:"max_response_time"`
	AvgResponseTime   time.Duration `json:"avg_response_time"`
	ErrorRate         float64       `json:"error_rate"`
}

// Config configures a Monitor.
type Config struct {
	Thresholds Thresholds
	MaxSamples int
	// MinRequestsForRate is how many requests must be seen before the error
	// rate check fires; it keeps a single early failure from alerting.
	MinRequestsForRate int64
	OnAlert            AlertFunc
	Logger             zerolog.Logger
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	requestCount      int64
	errorCount        int64
	totalResponseTime time.Duration
	maxResponseTime   time.Duration

	samples    []ResourceSample
	maxSamples int

	thresholds         Thresholds
	minRequestsForRate int64
	onAlert            AlertFunc
	logger             zerolog.Logger
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = defaultMaxSamples
	}
	if cfg.MinRequestsForRate <= 0 {
		cfg.MinRequestsForRate = defaultMinRequestsForRate
	}
	return &Monitor{
		maxSamples:         cfg.MaxSamples,
		thresholds:         cfg.Thresholds,
		minRequestsForRate: cfg.MinRequestsForRate,
		onAlert:            cfg.OnAlert,
		logger:             cfg.Logger.With().Str("component", "monitor").Logger(),
	}
}

// RecordRequest accumulates one completed invocation and checks the response
// time and error rate thresholds.
func (m *Monitor) RecordRequest(toolID string, duration time.Duration, success bool) {
	m.mu.Lock()
	m.requestCount++
	if !success {
		m.errorCount++
	}
	m.totalResponseTime += duration
	if duration > m.maxResponseTime {
		m.maxResponseTime = duration
	}
	requests := m.requestCount
	errors := m.errorCount
	m.mu.Unlock()

	if m.thresholds.MaxResponseTime > 0 && duration > m.thresholds.MaxResponseTime {
		m.raise(Alert{
			Kind:      AlertResponseTime,
			ToolID:    toolID,
			Value:     float64(duration.Milliseconds()),
			Threshold: float64(m.thresholds.MaxResponseTime.Milliseconds()),
			At:        time.Now(),
		})
	}
	if m.thresholds.MaxErrorRate > 0 && requests >= m.minRequestsForRate {
		rate := float64(errors) / float64(requests)
		if rate > m.thresholds.MaxErrorRate {
			m.raise(Alert{
				Kind:      AlertErrorRate,
				ToolID:    toolID,
				Value:     rate,
				Threshold: m.thresholds.MaxErrorRate,
				At:        time.Now(),
			})
		}
	}
}

// Sample records one resource reading into the bounded ring (oldest dropped
// first) and checks the memory threshold.
func (m *Monitor) Sample() ResourceSample {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	sample := ResourceSample{
		MemoryMB:   float64(stats.Alloc) / (1024 * 1024),
		Goroutines: runtime.NumGoroutine(),
		At:         time.Now(),
	}

	m.mu.Lock()
	m.samples = append(m.samples, sample)
	if len(m.samples) > m.maxSamples {
		m.samples = m.samples[len(m.samples)-m.maxSamples:]
	}
	m.mu.Unlock()

	if m.thresholds.MaxMemoryMB > 0 && sample.MemoryMB > m.thresholds.MaxMemoryMB {
		m.raise(Alert{
			Kind:      AlertMemory,
			Value:     sample.MemoryMB,
			Threshold: m.thresholds.MaxMemoryMB,
			At:        sample.At,
		})
	}
	return sample
}

// Samples returns a copy of the recent resource samples, oldest first.
func (m *Monitor) Samples() []ResourceSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ResourceSample(nil), m.samples...)
}

// Snapshot returns the running counters.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		RequestCount:      m.requestCount,
		ErrorCount:        m.errorCount,
		TotalResponseTime: m.totalResponseTime,
		MaxResponseTime:   m.maxResponseTime,
	}
	if m.requestCount > 0 {
		snap.AvgResponseTime = m.totalResponseTime / time.Duration(m.requestCount)
		snap.ErrorRate = float64(m.errorCount) / float64(m.requestCount)
	}
	return snap
}

func (m *Monitor) raise(alert Alert) {
	m.logger.Warn().
		Str("kind", alert.Kind).
		Str("tool", alert.ToolID).
		Float64("value", alert.Value).
		Float64("threshold", alert.Threshold).
		Msg("Threshold exceeded")

	if m.onAlert == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().Interface("panic", r).Msg("Alert callback panicked")
			}
		}()
		m.onAlert(alert)
	}()
}
