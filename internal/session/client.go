// internal/session/client.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// Channel 有序的双向消息通道
//
// Receive 只会被一个协程调用；Close 之后 Receive 必须返回错误。
type Channel interface {
	Send(ctx context.Context, message string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}

// Dialer 建立新的通道
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc 函数形式的 Dialer
type DialerFunc func(ctx context.Context) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context) (Channel, error) {
	return f(ctx)
}

// EventKind 客户端事件类型
type EventKind string

const (
	EventState       EventKind = "state"
	EventLine        EventKind = "line"
	EventRunFinished EventKind = "run_finished"
)

// Event 状态变化、日志行或运行结束
type Event struct {
	Kind   EventKind
	State  State
	Line   string
	Result *RunResult
	Err    error
}

// EventHandler 事件回调，按发生顺序串行调用；回调内不能再调用 Connect/Submit/Run
type EventHandler func(Event)

type pendingRun struct {
	done    chan *RunResult
	started time.Time
}

// Client 会话的副作用层：持有通道、驱动状态机并分发事件
type Client struct {
	mu      sync.Mutex
	session Session
	dialer  Dialer
	channel Channel
	waiters map[string]pendingRun
	readers sync.WaitGroup

	emitMu  sync.Mutex
	handler EventHandler

	logger  *utils.Logger
	metrics *utils.RunMetrics
}

// Option 客户端选项
type Option func(*Client)

// WithEventHandler 注册事件回调
func WithEventHandler(handler EventHandler) Option {
	return func(c *Client) { c.handler = handler }
}

// WithSession 沿用已有会话的日志（例如换一个客户端重连）
//
// 只保留日志，客户端总是从 Idle 开始，需要重新建立通道。
func WithSession(s Session) Option {
	return func(c *Client) { c.session = s.Detached() }
}

// WithMetrics 使用指定的指标记录器
func WithMetrics(metrics *utils.RunMetrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// NewClient 创建客户端，连接在第一次需要时建立
func NewClient(dialer Dialer, opts ...Option) *Client {
	c := &Client{
		session: New(),
		dialer:  dialer,
		waiters: make(map[string]pendingRun),
		logger:  utils.GetLogger(),
		metrics: utils.NewRunMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot 当前会话状态的副本
func (c *Client) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State 当前状态
func (c *Client) State() State {
	return c.Snapshot().State()
}

// Connect Idle 时建立通道，已连接或正在连接时直接返回
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	next, ok := c.session.Connect()
	if !ok {
		c.mu.Unlock()
		return nil
	}
	c.session = next
	c.mu.Unlock()
	c.emit(Event{Kind: EventState, State: StateConnecting})

	channel, err := c.dialer.Dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.session, _ = c.session.ChannelLost(err)
		c.mu.Unlock()
		c.emit(Event{Kind: EventState, State: StateIdle, Err: err})

		c.logger.Warn("🔌 建立执行通道失败", map[string]interface{}{"error": err})
		return errors.NewChannelLoss("建立执行通道失败", err)
	}

	c.mu.Lock()
	c.session, _ = c.session.Connected()
	c.channel = channel
	c.mu.Unlock()

	c.metrics.ChannelOpened()
	c.readers.Add(1)
	go c.readLoop(channel)

	c.emit(Event{Kind: EventState, State: StateReady})
	c.logger.Info("✅ 执行通道已连接", nil)
	return nil
}

// Submit 仅在 Ready 时发送文档；返回运行标识，不在 Ready 时 ok 为 false
func (c *Client) Submit(ctx context.Context, document string) (string, bool, error) {
	runID, _, ok, err := c.submit(ctx, document)
	return runID, ok, err
}

func (c *Client) submit(ctx context.Context, document string) (string, chan *RunResult, bool, error) {
	c.mu.Lock()
	next, ok := c.session.Submit(document)
	if !ok {
		c.mu.Unlock()
		return "", nil, false, nil
	}
	c.session = next
	runID := next.RunID()
	channel := c.channel
	done := make(chan *RunResult, 1)
	c.waiters[runID] = pendingRun{done: done, started: time.Now()}
	c.mu.Unlock()

	c.metrics.RunStarted(0)
	c.emit(Event{Kind: EventState, State: StateRunning})

	if channel == nil {
		cause := errors.NewChannelLoss("没有可用的执行通道", nil)
		c.lose(nil, cause)
		return runID, done, true, cause
	}
	if err := channel.Send(ctx, document); err != nil {
		c.lose(channel, err)
		return runID, done, true, errors.NewChannelLoss("发送文档失败", err)
	}
	return runID, done, true, nil
}

// Run 按需连接、提交文档并等待运行结束
//
// ctx 取消只停止等待，不会取消后端的运行。
func (c *Client) Run(ctx context.Context, document string) (*RunResult, error) {
	if c.State() == StateIdle {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	_, done, ok, err := c.submit(ctx, document)
	if !ok {
		return nil, errors.NewConflictError("会话未就绪，当前状态: "+c.State().String(), nil)
	}

	select {
	case result := <-done:
		if result.Err != nil {
			return result, result.Err
		}
		return result, nil
	case <-ctx.Done():
		if err != nil {
			return nil, err
		}
		return nil, ctx.Err()
	}
}

// ClearLogs 清空会话日志
func (c *Client) ClearLogs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = c.session.ClearLogs()
}

// Close 关闭通道并等待读协程退出；运行中的运行以 aborted 结束
func (c *Client) Close() error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	var err error
	if channel != nil {
		err = channel.Close()
	}
	c.readers.Wait()
	return err
}

func (c *Client) readLoop(channel Channel) {
	defer c.readers.Done()

	for {
		line, err := channel.Receive(context.Background())
		if err != nil {
			c.lose(channel, err)
			return
		}
		c.receive(line)
	}
}

func (c *Client) receive(line string) {
	c.mu.Lock()
	next, result := c.session.Receive(line)
	c.session = next
	pending := c.takeWaiter(result)
	c.mu.Unlock()

	c.metrics.LineEmitted()
	c.emit(Event{Kind: EventLine, Line: line})
	if result != nil {
		c.finish(result, pending)
	}
}

// lose 处理通道关闭或出错；同一通道只处理一次
func (c *Client) lose(channel Channel, cause error) {
	c.mu.Lock()
	if c.channel != channel {
		c.mu.Unlock()
		return
	}
	c.channel = nil
	next, result := c.session.ChannelLost(cause)
	c.session = next
	pending := c.takeWaiter(result)
	c.mu.Unlock()

	if channel != nil {
		_ = channel.Close()
		c.metrics.ChannelClosed()
	}
	c.logger.Warn("🔌 执行通道已断开", map[string]interface{}{"error": cause})

	c.emit(Event{Kind: EventState, State: StateIdle, Err: errors.NewChannelLoss("执行通道已断开", cause)})
	if result != nil {
		c.logger.Error("❌ 运行在终止标记之前中断", map[string]interface{}{"run_id": result.ID})
		c.finish(result, pending)
	}
}

// takeWaiter 调用方需持有 c.mu
func (c *Client) takeWaiter(result *RunResult) pendingRun {
	if result == nil {
		return pendingRun{}
	}
	pending := c.waiters[result.ID]
	delete(c.waiters, result.ID)
	return pending
}

func (c *Client) finish(result *RunResult, pending pendingRun) {
	var elapsed time.Duration
	if !pending.started.IsZero() {
		elapsed = time.Since(pending.started)
	}
	c.metrics.RunFinished(result.ID, string(result.Outcome), elapsed)
	c.emit(Event{Kind: EventRunFinished, State: c.State(), Result: result, Err: result.Err})
	if pending.done != nil {
		pending.done <- result
	}
}

func (c *Client) emit(event Event) {
	if c.handler == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.handler(event)
}
