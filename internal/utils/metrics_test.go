// internal/utils/metrics_test.go
package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetricsCollectorConcurrentCounters(t *testing.T) {
	collector := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter("hits")
			collector.AddCounter("bytes", 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), collector.GetCounterValue("hits"))
	assert.Equal(t, int64(500), collector.GetCounterValue("bytes"))
	assert.Equal(t, int64(0), collector.GetCounterValue("missing"))
}

func TestMetricsCollectorGaugesAndHistograms(t *testing.T) {
	collector := NewMetricsCollector()

	collector.IncGauge("open")
	collector.IncGauge("open")
	collector.DecGauge("open")
	assert.Equal(t, int64(1), collector.GetGauge("open"))

	collector.RecordHistogram("latency", 30)
	collector.RecordHistogram("latency", 10)
	collector.RecordHistogram("latency", 20)

	snapshot := collector.GetMetrics()
	histograms := snapshot["histograms"].(map[string]map[string]int64)
	assert.Equal(t, int64(3), histograms["latency"]["count"])
	assert.Equal(t, int64(60), histograms["latency"]["sum"])
	assert.Equal(t, int64(10), histograms["latency"]["min"])
	assert.Equal(t, int64(30), histograms["latency"]["max"])
}

func TestRunMetrics(t *testing.T) {
	SetLogger(zap.NewNop())
	collector := NewMetricsCollector()
	metrics := NewRunMetricsWith(collector)

	metrics.RunStarted(3)
	metrics.LineEmitted()
	metrics.LineEmitted()
	metrics.RunFinished("run-1", "aborted", 15*time.Millisecond)
	metrics.SidecarFailed("version")

	assert.Equal(t, int64(1), collector.GetCounterValue(MetricRunsTotal))
	assert.Equal(t, int64(2), collector.GetCounterValue(MetricLinesTotal))
	assert.Equal(t, int64(1), collector.GetCounterValue(MetricRunsAborted))
	assert.Equal(t, int64(0), collector.GetCounterValue(MetricRunsCompleted))
	assert.Equal(t, int64(1), collector.GetCounterValue(MetricSidecarFailures+":version"))
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	logger := GetLogger()
	logger.Warn("辅助端点不可用", map[string]interface{}{"endpoint": "/version", "attempt": 2})
	logger.Infof("运行 %s 完成", "abc")

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "/version", entries[0].ContextMap()["endpoint"])
	assert.Equal(t, "运行 abc 完成", entries[1].Message)

	logger.Enable(false)
	logger.Info("不应记录", nil)
	logger.Enable(true)
	assert.Len(t, recorded.All(), 2)
}
