// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of recorded values
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// slot returns the atomic cell for name, creating it on first use
func (m *MetricsCollector) slot(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	cell, exists := table[name]
	m.mu.RUnlock()
	if exists {
		return cell
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cell, exists = table[name]; !exists {
		cell = new(int64)
		table[name] = cell
	}
	return cell
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	cell, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(cell)
}

// SetGauge sets a gauge metric
func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

// IncGauge increments a gauge metric
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge decrements a gauge metric
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	cell, exists := m.gauges[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(cell)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, cell := range m.counters {
		counters[name] = atomic.LoadInt64(cell)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, cell := range m.gauges {
		gauges[name] = atomic.LoadInt64(cell)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// Metric names shared by the gateway and the client
const (
	MetricRunsTotal           = "runs_total"
	MetricRunsCompleted       = "runs_completed"
	MetricRunsFailed          = "runs_failed"
	MetricRunsAborted         = "runs_aborted"
	MetricLinesTotal          = "log_lines_total"
	MetricActiveChannels      = "active_channels"
	MetricRunDurationMs       = "run_duration_ms"
	MetricSegmentations       = "segmentations_total"
	MetricHighlightFailures   = "highlight_failures_total"
	MetricSidecarFailures     = "sidecar_failures_total"
	MetricBlocksPerDocument   = "blocks_per_document"
	MetricSegmentRequestTotal = "api_segment_requests_total"
)

// RunMetrics records execution-run level metrics
type RunMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewRunMetrics creates run metrics on top of the global collector
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{
		metrics: GetMetricsCollector(),
		logger:  GetLogger(),
	}
}

// NewRunMetricsWith uses a dedicated collector (tests)
func NewRunMetricsWith(collector *MetricsCollector) *RunMetrics {
	return &RunMetrics{metrics: collector, logger: GetLogger()}
}

// Collector exposes the underlying collector
func (rm *RunMetrics) Collector() *MetricsCollector {
	return rm.metrics
}

// RunStarted counts a submitted run
func (rm *RunMetrics) RunStarted(blockCount int) {
	rm.metrics.IncrementCounter(MetricRunsTotal)
	rm.metrics.RecordHistogram(MetricBlocksPerDocument, int64(blockCount))
}

// RunFinished records the outcome of a run
func (rm *RunMetrics) RunFinished(runID, outcome string, duration time.Duration) {
	switch outcome {
	case "completed":
		rm.metrics.IncrementCounter(MetricRunsCompleted)
	case "failed":
		rm.metrics.IncrementCounter(MetricRunsFailed)
	case "aborted":
		rm.metrics.IncrementCounter(MetricRunsAborted)
	}
	rm.metrics.RecordHistogram(MetricRunDurationMs, duration.Milliseconds())

	rm.logger.Debug("run finished", map[string]interface{}{
		"run_id":   runID,
		"outcome":  outcome,
		"duration": duration.Milliseconds(),
	})
}

// LineEmitted counts one streamed log line
func (rm *RunMetrics) LineEmitted() {
	rm.metrics.IncrementCounter(MetricLinesTotal)
}

// ChannelOpened / ChannelClosed track live execution channels
func (rm *RunMetrics) ChannelOpened() {
	rm.metrics.IncGauge(MetricActiveChannels)
}

func (rm *RunMetrics) ChannelClosed() {
	rm.metrics.DecGauge(MetricActiveChannels)
}

// Segmented counts a segmentation request
func (rm *RunMetrics) Segmented() {
	rm.metrics.IncrementCounter(MetricSegmentations)
}

// HighlightFailed counts a block that fell back to unmarked text
func (rm *RunMetrics) HighlightFailed() {
	rm.metrics.IncrementCounter(MetricHighlightFailures)
}

// SidecarFailed counts a failed status/toggle/version query
func (rm *RunMetrics) SidecarFailed(endpoint string) {
	rm.metrics.IncrementCounter(MetricSidecarFailures)
	rm.metrics.IncrementCounter(MetricSidecarFailures + ":" + endpoint)
}
