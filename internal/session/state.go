// internal/session/state.go
package session

import (
	"slices"

	"github.com/google/uuid"

	"github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/protocol"
)

// State 会话状态
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// RunResult 一次运行的结果
type RunResult struct {
	ID       string            `json:"id"`
	Document string            `json:"document"`
	Outcome  models.RunOutcome `json:"outcome"`
	Lines    []string          `json:"lines"`
	Err      error             `json:"-"`
}

// Session 执行会话的纯状态机
//
// 所有转换方法都返回新的 Session，不修改接收者；日志只追加。
type Session struct {
	state      State
	logs       []string
	runID      string
	runStart   int
	document   string
	classifier *protocol.Classifier
}

// New 创建处于 Idle 状态的会话
func New() Session {
	return Session{state: StateIdle, classifier: protocol.Default()}
}

// NewWithClassifier 使用自定义标记集
func NewWithClassifier(classifier *protocol.Classifier) Session {
	return Session{state: StateIdle, classifier: classifier}
}

// State 当前状态
func (s Session) State() State {
	return s.state
}

// RunID 当前或最近一次运行的标识
func (s Session) RunID() string {
	return s.runID
}

// Logs 返回日志副本
func (s Session) Logs() []string {
	return append([]string(nil), s.logs...)
}

// Document 当前或最近一次提交的文档
func (s Session) Document() string {
	return s.document
}

// LogCount 日志行数
func (s Session) LogCount() int {
	return len(s.logs)
}

// RunLines 当前或最近一次运行收到的行
func (s Session) RunLines() []string {
	return append([]string(nil), s.logs[s.runStart:]...)
}

// Visible 按诊断标记过滤后的可见行，不影响存储的日志
func (s Session) Visible(verbose bool) []string {
	return s.markers().Filter(s.logs, verbose)
}

// markers 零值会话使用默认分类器
func (s Session) markers() *protocol.Classifier {
	if s.classifier == nil {
		return protocol.Default()
	}
	return s.classifier
}

// Connect Idle -> Connecting，其他状态不变
func (s Session) Connect() (Session, bool) {
	if s.state != StateIdle {
		return s, false
	}
	s.state = StateConnecting
	return s, true
}

// Connected Connecting -> Ready
func (s Session) Connected() (Session, bool) {
	if s.state != StateConnecting {
		return s, false
	}
	s.state = StateReady
	return s, true
}

// Submit Ready -> Running，其他状态下为空操作
//
// 之前的日志保留，本次运行从当前日志末尾开始计数。
func (s Session) Submit(document string) (Session, bool) {
	if s.state != StateReady {
		return s, false
	}
	s.state = StateRunning
	s.runID = uuid.NewString()
	s.runStart = len(s.logs)
	s.document = document
	return s, true
}

// Receive 无条件追加一行；运行中遇到终止标记则回到 Ready
func (s Session) Receive(line string) (Session, *RunResult) {
	s.logs = append(slices.Clip(s.logs), line)

	if s.state != StateRunning {
		return s, nil
	}

	var outcome models.RunOutcome
	switch s.markers().DetectTerminal(line) {
	case protocol.TerminalCompleted:
		outcome = models.RunCompleted
	case protocol.TerminalFailed:
		outcome = models.RunFailed
	default:
		return s, nil
	}

	s.state = StateReady
	return s, &RunResult{ID: s.runID, Document: s.document, Outcome: outcome, Lines: s.RunLines()}
}

// ChannelLost 任何状态 -> Idle；运行中的运行以 aborted 结束
func (s Session) ChannelLost(cause error) (Session, *RunResult) {
	wasRunning := s.state == StateRunning
	s.state = StateIdle
	if !wasRunning {
		return s, nil
	}

	return s, &RunResult{
		ID:       s.runID,
		Document: s.document,
		Outcome:  models.RunAborted,
		Lines:    s.RunLines(),
		Err:      errors.NewProtocolAnomaly("通道在终止标记之前关闭", cause),
	}
}

// Detached 只保留日志的 Idle 副本，用于在新通道上继续同一份日志
//
// 下一次运行的行从现有日志末尾开始计数。
func (s Session) Detached() Session {
	return Session{
		state:      StateIdle,
		logs:       slices.Clip(s.logs),
		runStart:   len(s.logs),
		classifier: s.classifier,
	}
}

// ClearLogs 清空日志，只由用户显式操作触发
func (s Session) ClearLogs() Session {
	s.logs = nil
	s.runStart = 0
	return s
}
