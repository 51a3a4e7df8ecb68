// internal/api/handlers.go
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/PolyglotRunner/internal/config"
	"github.com/Corphon/PolyglotRunner/internal/document"
	"github.com/Corphon/PolyglotRunner/internal/grammar"
	"github.com/Corphon/PolyglotRunner/internal/highlight"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/protocol"
	"github.com/Corphon/PolyglotRunner/internal/services"
	"github.com/Corphon/PolyglotRunner/internal/session"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// Orchestrator /version 中报告的编排器名称
const Orchestrator = "polyglot-runner"

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string
	BuildDate string
}

// Handler 处理API请求
type Handler struct {
	execution *services.ExecutionService
	runs      *services.RunStore
	stats     *services.StatsService
	projector *highlight.Projector
	ws        *WebSocketManager
	metrics   *utils.MetricsCollector
	upgrader  *websocket.Upgrader
	languages []string
	build     BuildInfo

	rh     *ResponseHelper
	logger *utils.Logger
}

// NewHandler 创建API处理器
func NewHandler(deps *Dependencies) *Handler {
	projector := deps.Projector
	if projector == nil {
		projector = highlight.NewProjector(highlight.HTMLClasses())
	}
	return &Handler{
		execution: deps.Execution,
		runs:      deps.Runs,
		stats:     deps.Stats,
		projector: projector,
		ws:        deps.WebSocket,
		metrics:   deps.Metrics,
		upgrader:  newUpgrader(deps.CORSOrigins),
		languages: deps.Languages,
		build:     deps.Build,
		rh:        NewResponseHelper(),
		logger:    utils.GetLogger(),
	}
}

// DocumentRequest 分段与高亮请求体
type DocumentRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

// mode 请求中的语法模式，为空时使用执行服务的模式
func (h *Handler) mode(name string) (models.GrammarMode, error) {
	if name == "" {
		return h.execution.Mode(), nil
	}
	return models.ParseGrammarMode(name)
}

// ===============================
// 辅助端点
// ===============================

// GetDebugStatus GET /debug/status
func (h *Handler) GetDebugStatus(c *gin.Context) {
	enabled := config.GetCurrentConfig().DebugMode
	c.JSON(http.StatusOK, session.DebugStatus{DebugMode: enabled, Message: debugMessage(enabled)})
}

// ToggleDebug POST /debug/toggle，请求体缺少 enabled 时取反
func (h *Handler) ToggleDebug(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.rh.BadRequest(c, "无效的请求体", err.Error())
			return
		}
	}

	enabled := !config.GetCurrentConfig().DebugMode
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	if err := config.UpdateDebugMode(enabled); err != nil {
		h.rh.Error(c, http.StatusServiceUnavailable, ErrorConfigNotLoaded, "保存调试模式失败", err.Error())
		return
	}

	h.logger.Info("🔧 调试模式已切换", map[string]interface{}{"debug_mode": enabled})
	c.JSON(http.StatusOK, session.DebugStatus{DebugMode: enabled, Message: debugMessage(enabled)})
}

func debugMessage(enabled bool) string {
	if enabled {
		return "Debug mode enabled"
	}
	return "Debug mode disabled"
}

// GetVersion GET /version
func (h *Handler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, h.versionInfo())
}

func (h *Handler) versionInfo() *models.VersionInfo {
	return &models.VersionInfo{
		Version:   h.build.Version,
		BuildDate: h.build.BuildDate,
		Features: map[string]bool{
			"sequential_execution": true,
			"nested_blocks":        true,
			"debug_mode":           config.GetCurrentConfig().DebugMode,
		},
		Orchestrator:    Orchestrator,
		ProtocolVersion: protocol.ProtocolVersion,
		Status:          "ok",
	}
}

// ===============================
// 文档端点
// ===============================

// SegmentDocument POST /api/segment
func (h *Handler) SegmentDocument(c *gin.Context) {
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorDocumentInvalid, "无效的请求体", err.Error())
		return
	}
	mode, err := h.mode(req.Mode)
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorModeInvalid, err.Error())
		return
	}

	segmentation := grammar.Segment(req.Text, mode)
	h.metrics.IncrementCounter(utils.MetricSegmentRequestTotal)
	h.metrics.IncrementCounter(utils.MetricSegmentations)

	h.rh.Success(c, gin.H{
		"segmentation": segmentation,
		"block_count":  segmentation.CountBlocks(),
		"max_depth":    segmentation.MaxDepth(),
	})
}

// HighlightDocument POST /api/highlight，返回带深度类的 HTML
func (h *Handler) HighlightDocument(c *gin.Context) {
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorDocumentInvalid, "无效的请求体", err.Error())
		return
	}
	mode, err := h.mode(req.Mode)
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorModeInvalid, err.Error())
		return
	}

	markup := h.projector.Project(grammar.Segment(req.Text, mode))
	h.rh.Success(c, gin.H{
		"html":     highlight.RenderHTML(markup),
		"lines":    len(markup.Lines),
		"failures": markup.Failures,
		"stats":    markup.Stats(),
	})
}

// ImportDocument POST /api/import，multipart 字段名为 file
func (h *Handler) ImportDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "缺少上传文件", err.Error())
		return
	}
	mode, err := h.mode(c.PostForm("mode"))
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorModeInvalid, err.Error())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "无法读取上传文件", err.Error())
		return
	}
	defer file.Close()

	text, err := document.Import(file, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorFileInvalid, err.Error())
		return
	}

	segmentation := grammar.Segment(text, mode)
	h.rh.Success(c, gin.H{
		"filename":    fileHeader.Filename,
		"text":        text,
		"size":        len(text),
		"block_count": segmentation.CountBlocks(),
	}, "导入成功")
}

// GetLanguages GET /api/languages
func (h *Handler) GetLanguages(c *gin.Context) {
	languages := h.languages
	if languages == nil {
		languages = []string{}
	}
	h.rh.Success(c, gin.H{"languages": languages})
}

// ===============================
// 运行记录
// ===============================

// ListRuns GET /api/runs?limit=N
func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		h.rh.BadRequest(c, "limit 必须是非负整数")
		return
	}

	summaries, err := h.runs.List(limit)
	if err != nil {
		h.rh.InternalError(c, "读取运行记录失败", err.Error())
		return
	}
	h.rh.Success(c, summaries)
}

// GetRun GET /api/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	record, err := h.runs.Get(c.Param("id"))
	if err != nil {
		h.rh.FromError(c, err, "运行记录")
		return
	}
	h.rh.Success(c, record)
}

// ===============================
// 状态
// ===============================

// GetWebSocketStatus GET /api/ws/status
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.rh.Success(c, h.ws.GetStatus())
}

// GetMetrics GET /api/metrics
func (h *Handler) GetMetrics(c *gin.Context) {
	h.rh.Success(c, h.metrics.GetMetrics())
}

// GetUsageStats GET /api/stats
func (h *Handler) GetUsageStats(c *gin.Context) {
	if h.stats == nil {
		h.rh.NotFound(c, "使用统计")
		return
	}
	h.rh.Success(c, h.stats.GetUsageStats())
}

// HealthCheck GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     h.build.Version,
		"connections": h.ws.Count(),
	})
}
