// internal/api/websocket_handlers.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/PolyglotRunner/internal/document"
	"github.com/Corphon/PolyglotRunner/internal/errors"
)

// maxDocumentSize 单条文档消息的上限，与导入上限一致
const maxDocumentSize = document.MaxImportSize

// ExecutionWebSocket GET /ws
//
// 每条文本消息是一个完整文档；同一连接上的文档按到达顺序逐个执行，
// 执行期间的输出逐行以文本消息返回。
func (h *Handler) ExecutionWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("❌ 执行通道升级失败", map[string]interface{}{"error": err})
		return
	}

	client := newExecutionClient(conn, c.ClientIP())
	h.ws.Register(client)
	defer h.ws.Unregister(client)

	go client.writePump()
	h.readPump(client)
}

// readPump 读取文档并执行，连接关闭或执行中断开时返回
func (h *Handler) readPump(client *ExecutionClient) {
	conn := client.conn
	conn.SetReadLimit(maxDocumentSize)
	conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("⚠️ 执行通道异常关闭", map[string]interface{}{
					"client_id": client.id,
					"error":     err,
				})
			}
			return
		}
		client.UpdatePing()

		if messageType != websocket.TextMessage {
			continue
		}

		client.running.Store(true)
		record, err := h.execution.Execute(client.ctx, string(data), client.remoteAddr, client.Emit)
		client.running.Store(false)
		client.runs.Add(1)

		if err != nil {
			if errors.IsChannelLoss(err) {
				h.logger.Warn("⚠️ 客户端在运行结束前断开", map[string]interface{}{
					"client_id": client.id,
					"run_id":    record.ID,
				})
				return
			}
			h.logger.Error("❌ 执行文档失败", map[string]interface{}{"client_id": client.id, "error": err})
		}
	}
}
