// Package profiler - Timing and value statistics gathered while inspecting images.
package profiler

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeStats summarizes the durations recorded for one operation.
type TimeStats struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Mean returns the average duration, or zero when nothing was recorded.
func (s TimeStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// MetricStats summarizes the values recorded for one metric.
type MetricStats struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Mean returns the average value, or zero when nothing was recorded.
func (s MetricStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Profiler collects operation timings and metric values. It is safe for concurrent use.
type Profiler struct {
	mu        sync.Mutex
	startTime time.Time
	now       func() time.Time
	timings   map[string]*TimeStats
	metrics   map[string]*MetricStats
}

// New returns an empty profiler.
func New() *Profiler {
	return &Profiler{
		startTime: time.Now(),
		now:       time.Now,
		timings:   make(map[string]*TimeStats),
		metrics:   make(map[string]*MetricStats),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Call it when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := p.now()
	return func() {
		p.RecordDuration(name, p.now().Sub(start))
	}
}

// RecordDuration adds one duration to the named operation.
func (p *Profiler) RecordDuration(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.timings[name]
	if !ok {
		s = &TimeStats{Min: d, Max: d}
		p.timings[name] = s
	}
	s.Count++
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

// RecordMetric adds one value to the named metric.
func (p *Profiler) RecordMetric(name string, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.metrics[name]
	if !ok {
		s = &MetricStats{Min: v, Max: v}
		p.metrics[name] = s
	}
	s.Count++
	s.Sum += v
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
}

// Timing returns the statistics of one operation.
func (p *Profiler) Timing(name string) (TimeStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.timings[name]
	if !ok {
		return TimeStats{}, false
	}
	return *s, true
}

// Metric returns the statistics of one metric.
func (p *Profiler) Metric(name string) (MetricStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.metrics[name]
	if !ok {
		return MetricStats{}, false
	}
	return *s, true
}

// Log writes one summary line per operation and metric, sorted by name, followed by the memory
// footprint of the process.
func (p *Profiler) Log(log logrus.FieldLogger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, name := range sortedKeys(p.timings) {
		s := p.timings[name]
		log.WithFields(logrus.Fields{
			"operation": name,
			"count":     s.Count,
			"avg":       s.Mean().Truncate(time.Microsecond),
			"min":       s.Min.Truncate(time.Microsecond),
			"max":       s.Max.Truncate(time.Microsecond),
		}).Info("operation timing")
	}
	for _, name := range sortedKeys(p.metrics) {
		s := p.metrics[name]
		log.WithFields(logrus.Fields{
			"metric": name,
			"count":  s.Count,
			"avg":    s.Mean(),
			"min":    s.Min,
			"max":    s.Max,
		}).Info("metric")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	log.WithFields(logrus.Fields{
		"uptime":     p.now().Sub(p.startTime).Truncate(time.Millisecond),
		"heap_alloc": mem.HeapAlloc,
		"sys":        mem.Sys,
		"gc_cycles":  mem.NumGC,
	}).Debug("runtime")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
