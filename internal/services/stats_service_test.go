// internal/services/stats_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/storage"
)

func TestStatsServiceRecordsAndPersists(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	stats := NewStatsService(fs)
	stats.SetSaveInterval(time.Hour)

	require.NoError(t, stats.RecordRun(&models.RunRecord{Outcome: models.RunCompleted, Lines: []string{"a", "b"}}, []string{"c", "py"}))
	require.NoError(t, stats.RecordRun(&models.RunRecord{Outcome: models.RunFailed, Lines: []string{"x"}}, []string{"py"}))

	usage := stats.GetUsageStats()
	assert.Equal(t, 2, usage.TotalRuns)
	assert.Equal(t, 2, usage.TodayRuns)
	assert.Equal(t, 3, usage.TotalLines)
	assert.Equal(t, map[string]int{"completed": 1, "failed": 1}, usage.Outcomes)
	assert.Equal(t, map[string]int{"c": 1, "py": 2}, usage.Languages)

	usage.Languages["py"] = 100
	assert.Equal(t, 2, stats.GetUsageStats().Languages["py"], "返回的是副本")

	require.NoError(t, stats.Close())
	reloaded := NewStatsService(fs)
	assert.Equal(t, 2, reloaded.GetUsageStats().TotalRuns, "关闭时写入存储")

	require.NoError(t, reloaded.ResetStats())
	assert.Zero(t, reloaded.GetUsageStats().TotalRuns)
}

func TestExecutionServiceFeedsStats(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	stats := NewStatsService(fs)

	var order, lines []string
	svc := NewExecutionService(recordingExecutor(&order, map[string]bool{"py": true}), nil, models.ModeSequential, nil)
	svc.SetStats(stats)

	_, err = svc.Execute(context.Background(), nestedRunDocument, "", collect(&lines))
	require.NoError(t, err)

	usage := stats.GetUsageStats()
	assert.Equal(t, 1, usage.Outcomes["failed"])
	assert.Equal(t, map[string]int{"c": 1, "py": 1}, usage.Languages, "只统计实际执行过的块")
}
