// internal/services/execution_service.go
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/grammar"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/protocol"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// ExecutionService 网关侧的执行流水线：分段、按树执行、逐行输出日志
type ExecutionService struct {
	executor Executor
	store    *RunStore
	stats    *StatsService
	mode     models.GrammarMode
	debug    func() bool

	metrics *utils.RunMetrics
	logger  *utils.Logger
}

// NewExecutionService 创建执行服务；store 可为 nil，debug 为 nil 时视为开启
func NewExecutionService(executor Executor, store *RunStore, mode models.GrammarMode, debug func() bool) *ExecutionService {
	if debug == nil {
		debug = func() bool { return true }
	}
	return &ExecutionService{
		executor: executor,
		store:    store,
		mode:     mode,
		debug:    debug,
		metrics:  utils.NewRunMetrics(),
		logger:   utils.GetLogger(),
	}
}

// SetStats 设置使用统计，nil 表示不统计
func (s *ExecutionService) SetStats(stats *StatsService) {
	s.stats = stats
}

// Mode 使用的语法模式
func (s *ExecutionService) Mode() models.GrammarMode {
	return s.mode
}

// EmitFunc 把一行发送给客户端；返回错误表示通道已断开
type EmitFunc func(line string) error

// run 单次运行的状态
type run struct {
	record  *models.RunRecord
	emit    EmitFunc
	debug   bool
	emitErr error

	languages []string // 已开始执行的块
}

func (r *run) send(line string) error {
	if r.emitErr != nil {
		return r.emitErr
	}
	r.record.Lines = append(r.record.Lines, line)
	if err := r.emit(line); err != nil {
		r.emitErr = err
		return err
	}
	return nil
}

// Execute 执行一个文档
//
// 无论成功与否最后都会发送完成标记；只有通道断开时才会提前结束并返回 ChannelLoss。
func (s *ExecutionService) Execute(ctx context.Context, document, remoteAddr string, emit EmitFunc) (*models.RunRecord, error) {
	segmentation := grammar.Segment(document, s.mode)
	r := &run{
		record: &models.RunRecord{
			ID:         uuid.NewString(),
			Document:   document,
			Mode:       s.mode,
			Lines:      []string{},
			Outcome:    models.RunPending,
			BlockCount: segmentation.CountBlocks(),
			StartedAt:  time.Now(),
			RemoteAddr: remoteAddr,
		},
		emit:  emit,
		debug: s.debug(),
	}

	s.metrics.RunStarted(r.record.BlockCount)
	s.logger.Info("🚀 开始执行文档", map[string]interface{}{
		"run_id": r.record.ID,
		"blocks": r.record.BlockCount,
		"mode":   string(s.mode),
		"debug":  r.debug,
	})

	s.pipeline(ctx, r, segmentation)

	switch {
	case r.emitErr != nil:
		r.record.Outcome = models.RunAborted
	case r.record.Outcome == models.RunPending:
		r.record.Outcome = models.RunCompleted
	}
	r.record.FinishedAt = time.Now()
	s.finish(r)

	if r.emitErr != nil {
		return r.record, errors.NewChannelLoss("客户端在运行结束前断开", r.emitErr)
	}
	return r.record, nil
}

func (s *ExecutionService) pipeline(ctx context.Context, r *run, segmentation *models.Segmentation) {
	if r.send(protocol.StartLine) != nil {
		return
	}

	if segmentation.CountBlocks() == 0 {
		r.record.Outcome = models.RunFailed
		if r.send(protocol.DocumentError) != nil {
			return
		}
	} else {
		s.executeTree(ctx, r, segmentation.Blocks())
	}

	_ = r.send(protocol.CompletionMarker)
}

// executeTree 子块先于父块执行；任何块失败后停止后续块
func (s *ExecutionService) executeTree(ctx context.Context, r *run, blocks []*models.Block) bool {
	for _, block := range blocks {
		if len(block.Children) > 0 && !s.executeTree(ctx, r, block.Children) {
			return false
		}
		if !s.executeBlock(ctx, r, block) {
			return false
		}
	}
	return true
}

func (s *ExecutionService) executeBlock(ctx context.Context, r *run, block *models.Block) bool {
	lang := block.LanguageID
	r.languages = append(r.languages, lang)
	if r.debug && r.send(protocol.BlockPreparing(lang)) != nil {
		return false
	}

	if source := BlockSource(block); source != "" {
		if err := s.executor.Execute(ctx, lang, source, r.send); err != nil {
			if r.emitErr != nil {
				return false
			}
			r.record.Outcome = models.RunFailed
			s.logger.Warn("❌ 块执行失败", map[string]interface{}{
				"run_id":   r.record.ID,
				"language": lang,
				"line":     block.StartLine,
				"error":    err,
			})
			_ = r.send(protocol.BlockError(lang, err))
			return false
		}
	}

	if r.debug && r.send(protocol.BlockFinished(lang)) != nil {
		return false
	}
	return true
}

func (s *ExecutionService) finish(r *run) {
	record := r.record
	s.metrics.RunFinished(record.ID, string(record.Outcome), record.Duration())

	if s.stats != nil {
		if err := s.stats.RecordRun(record, r.languages); err != nil {
			s.logger.Warn("⚠️ 保存使用统计失败", map[string]interface{}{"run_id": record.ID, "error": err})
		}
	}

	if s.store != nil {
		if err := s.store.Save(record); err != nil {
			s.logger.Error("保存运行记录失败", map[string]interface{}{"run_id": record.ID, "error": err})
		}
	}

	s.logger.Info("🏁 文档执行结束", map[string]interface{}{
		"run_id":   record.ID,
		"outcome":  string(record.Outcome),
		"lines":    len(record.Lines),
		"duration": record.Duration().String(),
	})
}

// BlockSource 块自身源码去掉公共缩进和首尾空行
func BlockSource(block *models.Block) string {
	return strings.Trim(dedent(block.SourceLines), "\n")
}

// dedent 去掉所有非空行共同的前导空白
func dedent(lines []string) string {
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = ""
			continue
		}
		out[i] = strings.TrimRight(strings.TrimPrefix(line, prefix), "\r")
	}
	return strings.Join(out, "\n")
}
