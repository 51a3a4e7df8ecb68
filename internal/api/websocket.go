// internal/api/websocket.go
package api

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// newUpgrader 按允许的来源检查 Origin，列表含 * 时不检查
func newUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), r.Host, origins)
		},
	}
}

func originAllowed(origin, host string, origins []string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, host)
}

// ExecutionClient 一个执行通道连接
//
// 所有写操作都经过 send 队列由 writePump 完成，保证日志行按发送顺序到达。
type ExecutionClient struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	lastPing  atomic.Int64
	createdAt time.Time
	runs      atomic.Int64
	running   atomic.Bool
}

func newExecutionClient(conn *websocket.Conn, remoteAddr string) *ExecutionClient {
	ctx, cancel := context.WithCancel(context.Background())
	client := &ExecutionClient{
		id:         uuid.NewString(),
		conn:       conn,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		createdAt:  time.Now(),
	}
	client.UpdatePing()
	return client
}

// ID 连接ID
func (client *ExecutionClient) ID() string {
	return client.id
}

// Close 安全关闭客户端连接，可重复调用
func (client *ExecutionClient) Close() {
	client.closeOnce.Do(func() {
		close(client.done)
		client.cancel()
		if client.conn != nil {
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = client.conn.Close()
		}
	})
}

// IsClosed 检查连接是否已关闭
func (client *ExecutionClient) IsClosed() bool {
	select {
	case <-client.done:
		return true
	default:
		return false
	}
}

// UpdatePing 更新最后活动时间
func (client *ExecutionClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时，运行中的连接不会过期
func (client *ExecutionClient) IsExpired(timeout time.Duration) bool {
	if client.running.Load() {
		return false
	}
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// Emit 把一行日志排入发送队列；连接关闭后返回 ChannelLoss
func (client *ExecutionClient) Emit(line string) error {
	if client.IsClosed() {
		return errors.NewChannelLoss("执行通道已关闭", nil)
	}
	select {
	case client.send <- []byte(line):
		return nil
	case <-client.done:
		return errors.NewChannelLoss("执行通道已关闭", nil)
	}
}

// writePump 顺序写出队列中的行并定期发送 ping
func (client *ExecutionClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				utils.GetLogger().Warn("⚠️ 写入执行通道失败", map[string]interface{}{
					"client_id": client.id,
					"error":     err,
				})
				client.Close()
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				client.Close()
				return
			}
		case <-client.done:
			return
		}
	}
}

// WebSocketManager 管理所有执行通道连接
type WebSocketManager struct {
	clients         map[string]*ExecutionClient
	mutex           sync.RWMutex
	pingTimeout     time.Duration
	cleanupInterval time.Duration

	stop     chan struct{}
	stopped  chan struct{}
	started  atomic.Bool
	startRun sync.Once
	stopRun  sync.Once

	logger  *utils.Logger
	metrics *utils.RunMetrics
}

// NewWebSocketManager 创建管理器，需要调用 Start 启动过期清理
func NewWebSocketManager(metrics *utils.RunMetrics) *WebSocketManager {
	if metrics == nil {
		metrics = utils.NewRunMetrics()
	}
	return &WebSocketManager{
		clients:         make(map[string]*ExecutionClient),
		pingTimeout:     pongWait,
		cleanupInterval: 30 * time.Second,
		stop:            make(chan struct{}),
		stopped:         make(chan struct{}),
		logger:          utils.GetLogger(),
		metrics:         metrics,
	}
}

// Start 启动定期清理
func (manager *WebSocketManager) Start() {
	manager.startRun.Do(func() {
		manager.started.Store(true)
		go manager.run()
	})
}

// run 运行 WebSocket 管理器主循环
func (manager *WebSocketManager) run() {
	defer close(manager.stopped)

	ticker := time.NewTicker(manager.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			manager.cleanupExpiredConnections()
		case <-manager.stop:
			manager.shutdown()
			return
		}
	}
}

// Stop 关闭所有连接并等待主循环退出
func (manager *WebSocketManager) Stop() {
	manager.stopRun.Do(func() {
		close(manager.stop)
		if !manager.started.Load() {
			manager.shutdown()
			return
		}
		select {
		case <-manager.stopped:
		case <-time.After(5 * time.Second):
			manager.logger.Warn("⚠️ 等待 WebSocket 管理器退出超时", nil)
		}
	})
}

// Register 注册新客户端
func (manager *WebSocketManager) Register(client *ExecutionClient) {
	manager.mutex.Lock()
	manager.clients[client.id] = client
	manager.mutex.Unlock()

	manager.metrics.ChannelOpened()
	manager.logger.Info("✅ 执行通道已连接", map[string]interface{}{
		"client_id":   client.id,
		"remote_addr": client.remoteAddr,
	})
}

// Unregister 注销并关闭客户端
func (manager *WebSocketManager) Unregister(client *ExecutionClient) {
	manager.mutex.Lock()
	_, exists := manager.clients[client.id]
	delete(manager.clients, client.id)
	manager.mutex.Unlock()

	client.Close()
	if !exists {
		return
	}

	manager.metrics.ChannelClosed()
	manager.logger.Info("🔌 执行通道已断开", map[string]interface{}{
		"client_id": client.id,
		"runs":      client.runs.Load(),
	})
}

// cleanupExpiredConnections 清理过期和已关闭的连接
func (manager *WebSocketManager) cleanupExpiredConnections() {
	manager.mutex.RLock()
	expired := make([]*ExecutionClient, 0)
	for _, client := range manager.clients {
		if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
			expired = append(expired, client)
		}
	}
	manager.mutex.RUnlock()

	for _, client := range expired {
		manager.Unregister(client)
	}
}

// shutdown 关闭所有连接
func (manager *WebSocketManager) shutdown() {
	manager.mutex.RLock()
	clients := make([]*ExecutionClient, 0, len(manager.clients))
	for _, client := range manager.clients {
		clients = append(clients, client)
	}
	manager.mutex.RUnlock()

	if len(clients) > 0 {
		manager.logger.Info("🛑 正在关闭执行通道", map[string]interface{}{"count": len(clients)})
	}
	for _, client := range clients {
		manager.Unregister(client)
	}
}

// Count 当前连接数
func (manager *WebSocketManager) Count() int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	return len(manager.clients)
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	clients := make([]map[string]interface{}, 0, len(manager.clients))
	activeRuns := 0
	for _, client := range manager.clients {
		running := client.running.Load()
		if running {
			activeRuns++
		}
		clients = append(clients, map[string]interface{}{
			"client_id":    client.id,
			"remote_addr":  client.remoteAddr,
			"connected_at": client.createdAt.Format(time.RFC3339),
			"last_ping":    time.Unix(0, client.lastPing.Load()).Format(time.RFC3339),
			"runs":         client.runs.Load(),
			"running":      running,
		})
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i]["connected_at"].(string) < clients[j]["connected_at"].(string)
	})

	return map[string]interface{}{
		"total_connections": len(manager.clients),
		"active_runs":       activeRuns,
		"clients":           clients,
	}
}
