// internal/services/stats_service.go
package services

import (
	"maps"
	"sync"
	"time"

	"github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/storage"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

const (
	statsDir  = "stats"
	statsFile = "usage_stats.json"
)

// UsageStats 运行使用统计
type UsageStats struct {
	TodayRuns  int            `json:"today_runs"`
	TotalRuns  int            `json:"total_runs"`
	TotalLines int            `json:"total_lines"`
	Outcomes   map[string]int `json:"outcomes"`
	Languages  map[string]int `json:"languages"` // 按语言统计已执行的块
	DailyRuns  map[string]int `json:"daily_runs"`
	LastUpdate time.Time      `json:"last_updated"`
}

func newUsageStats() *UsageStats {
	return &UsageStats{
		Outcomes:   make(map[string]int),
		Languages:  make(map[string]int),
		DailyRuns:  make(map[string]int),
		LastUpdate: time.Now(),
	}
}

// StatsService 统计运行次数、结果和语言分布，批量写入存储
type StatsService struct {
	storage     *storage.FileStorage
	mutex       sync.Mutex
	cachedStats *UsageStats

	// 批量保存控制
	isDirty      bool
	lastSaveTime time.Time
	saveInterval time.Duration

	logger *utils.Logger
}

// NewStatsService 创建统计服务实例
func NewStatsService(fs *storage.FileStorage) *StatsService {
	return &StatsService{
		storage:      fs,
		saveInterval: 30 * time.Second,
		logger:       utils.GetLogger(),
	}
}

// SetSaveInterval 修改批量保存间隔，0 表示每次记录都保存
func (s *StatsService) SetSaveInterval(d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.saveInterval = d
}

// initStatsUnlocked 加载已有统计，不存在或损坏时重新开始
func (s *StatsService) initStatsUnlocked() {
	var loaded UsageStats
	err := s.storage.LoadJSONFile(statsDir, statsFile, &loaded)
	switch {
	case err == nil:
		if loaded.Outcomes == nil {
			loaded.Outcomes = make(map[string]int)
		}
		if loaded.Languages == nil {
			loaded.Languages = make(map[string]int)
		}
		if loaded.DailyRuns == nil {
			loaded.DailyRuns = make(map[string]int)
		}
		s.cachedStats = &loaded
		s.resetTodayIfNeeded(time.Now())
		return
	case !errors.IsNotFoundError(err):
		s.logger.Warn("⚠️ 统计数据损坏，重新开始统计", map[string]interface{}{"error": err})
	}
	s.cachedStats = newUsageStats()
}

// resetTodayIfNeeded 跨天后清零今日计数
func (s *StatsService) resetTodayIfNeeded(now time.Time) {
	if s.cachedStats.LastUpdate.Format("2006-01-02") != now.Format("2006-01-02") {
		s.cachedStats.TodayRuns = 0
	}
}

// RecordRun 记录一次运行；languages 为实际执行过的块的语言
func (s *StatsService) RecordRun(record *models.RunRecord, languages []string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cachedStats == nil {
		s.initStatsUnlocked()
	}

	now := time.Now()
	s.resetTodayIfNeeded(now)

	stats := s.cachedStats
	stats.TodayRuns++
	stats.TotalRuns++
	stats.TotalLines += len(record.Lines)
	stats.Outcomes[string(record.Outcome)]++
	stats.DailyRuns[now.Format("2006-01-02")]++
	for _, lang := range languages {
		stats.Languages[lang]++
	}
	stats.LastUpdate = now
	s.isDirty = true

	if now.Sub(s.lastSaveTime) >= s.saveInterval {
		return s.saveStatsImmediate()
	}
	return nil
}

// GetUsageStats 返回统计数据的深度副本
func (s *StatsService) GetUsageStats() *UsageStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cachedStats == nil {
		s.initStatsUnlocked()
	}
	s.resetTodayIfNeeded(time.Now())

	return &UsageStats{
		TodayRuns:  s.cachedStats.TodayRuns,
		TotalRuns:  s.cachedStats.TotalRuns,
		TotalLines: s.cachedStats.TotalLines,
		Outcomes:   maps.Clone(s.cachedStats.Outcomes),
		Languages:  maps.Clone(s.cachedStats.Languages),
		DailyRuns:  maps.Clone(s.cachedStats.DailyRuns),
		LastUpdate: s.cachedStats.LastUpdate,
	}
}

// saveStatsImmediate 调用方需持有 s.mutex
func (s *StatsService) saveStatsImmediate() error {
	if !s.isDirty {
		return nil
	}
	if err := s.storage.SaveJSONFile(statsDir, statsFile, s.cachedStats); err != nil {
		return err
	}
	s.isDirty = false
	s.lastSaveTime = time.Now()
	return nil
}

// ResetStats 清空统计数据
func (s *StatsService) ResetStats() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cachedStats = newUsageStats()
	s.isDirty = true
	return s.saveStatsImmediate()
}

// Close 保存未写入的数据
func (s *StatsService) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saveStatsImmediate()
}
