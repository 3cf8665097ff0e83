// Package perfmon aggregates query and sync statistics: a bounded ring
// buffer of samples plus O(1) running aggregates, with advisory anomaly
// detection. It never blocks or fails an operation.
package perfmon

import (
	"sync"
	"time"
)

// Sample is one recorded operation outcome.
type Sample struct {
	Operation   string
	Engine      string
	Elapsed     time.Duration
	ResultCount int
	Err         bool
	At          time.Time
}

// Report is a snapshot combining running aggregates with ring-derived
// averages.
type Report struct {
	TotalOps       int64
	FailedOps      int64
	ErrorRate      float64
	AvgElapsed     time.Duration // over the ring window
	EMAElapsed     time.Duration // exponential moving average, all time
	Throughput     float64       // ops/sec over the ring window
	PeakThroughput float64
	WindowSize     int
	Since          time.Time
}

// Severity grades an anomaly.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String renders the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// Anomaly is one advisory finding from DetectAnomalies.
type Anomaly struct {
	Severity Severity
	Message  string
}

// Fixed anomaly thresholds.
const (
	maxErrorRate      = 0.10
	minThroughputFrac = 0.50
	maxAvgElapsed     = time.Second
)

// emaAlpha weights new samples in the moving average.
const emaAlpha = 0.2

// DefaultMaxHistory bounds the ring buffer when no size is given.
const DefaultMaxHistory = 1024

// Monitor accumulates samples. One mutex guards everything; every critical
// section is O(1), so contention stays negligible next to query work.
type Monitor struct {
	mu sync.Mutex

	ring  []Sample
	next  int
	count int

	totalOps   int64
	failedOps  int64
	emaElapsed float64 // nanoseconds
	peakTput   float64
	since      time.Time
}

// NewMonitor creates a monitor keeping at most maxHistory samples;
// maxHistory <= 0 uses DefaultMaxHistory.
func NewMonitor(maxHistory int) *Monitor {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Monitor{
		ring:  make([]Sample, maxHistory),
		since: time.Now(),
	}
}

// Record appends a sample and updates running aggregates.
func (m *Monitor) Record(s Sample) {
	if s.At.IsZero() {
		s.At = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring[m.next] = s
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}

	m.totalOps++
	if s.Err {
		m.failedOps++
	}
	if m.emaElapsed == 0 {
		m.emaElapsed = float64(s.Elapsed)
	} else {
		m.emaElapsed = emaAlpha*float64(s.Elapsed) + (1-emaAlpha)*m.emaElapsed
	}
	if tput := m.windowThroughputLocked(); tput > m.peakTput {
		m.peakTput = tput
	}
}

// windowThroughputLocked derives ops/sec from the ring window timestamps.
func (m *Monitor) windowThroughputLocked() float64 {
	if m.count < 2 {
		return 0
	}
	oldest := m.oldestLocked().At
	newest := m.newestLocked().At
	span := newest.Sub(oldest).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(m.count-1) / span
}

func (m *Monitor) oldestLocked() Sample {
	if m.count < len(m.ring) {
		return m.ring[0]
	}
	return m.ring[m.next]
}

func (m *Monitor) newestLocked() Sample {
	idx := m.next - 1
	if idx < 0 {
		idx = len(m.ring) - 1
	}
	return m.ring[idx]
}

// GenerateReport produces a snapshot of aggregates and window averages.
func (m *Monitor) GenerateReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		TotalOps:       m.totalOps,
		FailedOps:      m.failedOps,
		EMAElapsed:     time.Duration(m.emaElapsed),
		Throughput:     m.windowThroughputLocked(),
		PeakThroughput: m.peakTput,
		WindowSize:     m.count,
		Since:          m.since,
	}
	if m.totalOps > 0 {
		r.ErrorRate = float64(m.failedOps) / float64(m.totalOps)
	}
	if m.count > 0 {
		var sum time.Duration
		for i := 0; i < m.count; i++ {
			sum += m.ring[i].Elapsed
		}
		r.AvgElapsed = sum / time.Duration(m.count)
	}
	return r
}

// DetectAnomalies evaluates fixed thresholds over the current aggregates.
// Purely advisory: the result never gates an operation.
func (m *Monitor) DetectAnomalies() []Anomaly {
	r := m.GenerateReport()
	var out []Anomaly

	if r.TotalOps > 0 && r.ErrorRate > maxErrorRate {
		sev := SeverityHigh
		if r.ErrorRate > 0.5 {
			sev = SeverityCritical
		}
		out = append(out, Anomaly{
			Severity: sev,
			Message:  "error rate above 10%",
		})
	}
	if r.PeakThroughput > 0 && r.Throughput > 0 &&
		r.Throughput < r.PeakThroughput*minThroughputFrac {
		out = append(out, Anomaly{
			Severity: SeverityMedium,
			Message:  "throughput below 50% of peak",
		})
	}
	if r.AvgElapsed > maxAvgElapsed {
		sev := SeverityLow
		if r.AvgElapsed > 5*time.Second {
			sev = SeverityHigh
		}
		out = append(out, Anomaly{
			Severity: sev,
			Message:  "average processing time above 1s",
		})
	}
	return out
}

// Reset clears all history and aggregates. Explicit operator action only.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring = make([]Sample, len(m.ring))
	m.next, m.count = 0, 0
	m.totalOps, m.failedOps = 0, 0
	m.emaElapsed, m.peakTput = 0, 0
	m.since = time.Now()
}
