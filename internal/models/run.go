// internal/models/run.go
package models

import "time"

// RunOutcome 一次运行的结束方式
type RunOutcome string

const (
	RunPending   RunOutcome = "pending"
	RunCompleted RunOutcome = "completed"
	RunFailed    RunOutcome = "failed"
	// RunAborted 通道在终止标记之前断开
	RunAborted RunOutcome = "aborted"
)

// RunRecord 网关侧保存的运行记录
type RunRecord struct {
	ID         string      `json:"id"`
	Document   string      `json:"document"`
	Mode       GrammarMode `json:"mode"`
	Lines      []string    `json:"lines"`
	Outcome    RunOutcome  `json:"outcome"`
	BlockCount int         `json:"block_count"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
	RemoteAddr string      `json:"remote_addr,omitempty"`
}

// Duration 运行耗时
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// VersionInfo /version 端点返回的数据
type VersionInfo struct {
	Version         string          `json:"version"`
	BuildDate       string          `json:"build_date,omitempty"`
	Features        map[string]bool `json:"features"`
	Orchestrator    string          `json:"orchestrator"`
	ProtocolVersion string          `json:"protocol_version,omitempty"`
	Status          string          `json:"status,omitempty"`
}

// NestedBlocks 后端是否支持嵌套块，未知时为 false
func (v *VersionInfo) NestedBlocks() bool {
	if v == nil || v.Features == nil {
		return false
	}
	return v.Features["nested_blocks"]
}
