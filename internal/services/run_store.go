// internal/services/run_store.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/storage"
)

const runsDir = "runs"

// RunSummary 运行列表中的条目
type RunSummary struct {
	ID         string            `json:"id"`
	Outcome    models.RunOutcome `json:"outcome"`
	BlockCount int               `json:"block_count"`
	LineCount  int               `json:"line_count"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// RunStore 以 JSON 文件保存运行记录
type RunStore struct {
	storage *storage.FileStorage
}

// NewRunStore 创建运行记录存储
func NewRunStore(fs *storage.FileStorage) *RunStore {
	return &RunStore{storage: fs}
}

func runFile(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", errors.NewValidationError(fmt.Sprintf("无效的运行ID: %s", id), err)
	}
	return id + ".json", nil
}

// Save 保存运行记录
func (rs *RunStore) Save(record *models.RunRecord) error {
	filename, err := runFile(record.ID)
	if err != nil {
		return err
	}
	return rs.storage.SaveJSONFile(runsDir, filename, record)
}

// Get 读取运行记录
func (rs *RunStore) Get(id string) (*models.RunRecord, error) {
	filename, err := runFile(id)
	if err != nil {
		return nil, err
	}

	var record models.RunRecord
	if err := rs.storage.LoadJSONFile(runsDir, filename, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// List 最近的运行，limit <= 0 时返回全部
func (rs *RunStore) List(limit int) ([]RunSummary, error) {
	files, err := rs.storage.ListFiles(runsDir, ".json")
	if err != nil {
		return nil, err
	}

	summaries := make([]RunSummary, 0, len(files))
	for _, file := range files {
		if limit > 0 && len(summaries) >= limit {
			break
		}
		record, err := rs.Get(strings.TrimSuffix(file.Name, ".json"))
		if err != nil {
			continue
		}
		summaries = append(summaries, RunSummary{
			ID:         record.ID,
			Outcome:    record.Outcome,
			BlockCount: record.BlockCount,
			LineCount:  len(record.Lines),
			StartedAt:  record.StartedAt,
			FinishedAt: record.FinishedAt,
		})
	}
	return summaries, nil
}
