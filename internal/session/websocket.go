// internal/session/websocket.go
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketChannel 基于 gorilla/websocket 的执行通道
type WebSocketChannel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketChannel 包装已建立的连接
func NewWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	return &WebSocketChannel{conn: conn}
}

// Send 以单条文本消息发送
func (w *WebSocketChannel) Send(ctx context.Context, message string) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, []byte(message))
}

// Receive 读取下一条文本消息
func (w *WebSocketChannel) Receive(ctx context.Context) (string, error) {
	if d, ok := ctx.Deadline(); ok {
		if err := w.conn.SetReadDeadline(d); err != nil {
			return "", err
		}
	}
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

// Close 发送关闭帧后关闭底层连接，可重复调用
func (w *WebSocketChannel) Close() error {
	w.closeOnce.Do(func() {
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

// WebSocketDialer 拨号到网关的 /ws 端点
type WebSocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// NewWebSocketDialer 由后端 HTTP 地址推导 WebSocket 地址
func NewWebSocketDialer(backendURL string) (*WebSocketDialer, error) {
	wsURL, err := WebSocketURL(backendURL)
	if err != nil {
		return nil, err
	}
	return &WebSocketDialer{
		URL: wsURL,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// Dial 建立连接
func (d *WebSocketDialer) Dial(ctx context.Context) (Channel, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return NewWebSocketChannel(conn), nil
}

// WebSocketURL http(s)://host[/base] -> ws(s)://host[/base]/ws
func WebSocketURL(backendURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(backendURL))
	if err != nil {
		return "", fmt.Errorf("invalid backend url %q: %w", backendURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported backend url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("backend url %q has no host", backendURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
