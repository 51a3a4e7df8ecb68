// internal/api/router.go
package api

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Corphon/PolyglotRunner/internal/di"
	"github.com/Corphon/PolyglotRunner/internal/highlight"
	"github.com/Corphon/PolyglotRunner/internal/services"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// Dependencies 路由需要的服务
type Dependencies struct {
	Execution   *services.ExecutionService
	Runs        *services.RunStore
	Stats       *services.StatsService
	Projector   *highlight.Projector
	WebSocket   *WebSocketManager
	Metrics     *utils.MetricsCollector
	Languages   []string
	CORSOrigins []string
	Build       BuildInfo

	// RateLimit 每个IP每分钟的 /api 请求数，0 表示不限流
	RateLimit int
}

// DependenciesFromContainer 从容器中取出路由需要的服务
func DependenciesFromContainer(container *di.Container) (*Dependencies, error) {
	execution, err := di.Resolve[*services.ExecutionService](container, di.ServiceExecution)
	if err != nil {
		return nil, fmt.Errorf("执行服务未正确初始化: %w", err)
	}
	runs, err := di.Resolve[*services.RunStore](container, di.ServiceRuns)
	if err != nil {
		return nil, fmt.Errorf("运行记录服务未正确初始化: %w", err)
	}
	ws, err := di.Resolve[*WebSocketManager](container, di.ServiceWebSocket)
	if err != nil {
		return nil, fmt.Errorf("WebSocket 管理器未正确初始化: %w", err)
	}
	metrics, err := di.Resolve[*utils.MetricsCollector](container, di.ServiceMetrics)
	if err != nil {
		return nil, fmt.Errorf("指标收集器未正确初始化: %w", err)
	}

	deps := &Dependencies{
		Execution: execution,
		Runs:      runs,
		WebSocket: ws,
		Metrics:   metrics,
	}
	if stats, err := di.Resolve[*services.StatsService](container, di.ServiceStats); err == nil {
		deps.Stats = stats
	}
	if projector, err := di.Resolve[*highlight.Projector](container, di.ServiceProjector); err == nil {
		deps.Projector = projector
	}
	if executor, err := di.Resolve[*services.CommandExecutor](container, di.ServiceExecutor); err == nil {
		deps.Languages = executor.Languages()
	}
	return deps, nil
}

// corsMiddleware 按配置的来源启用跨域，包含 * 时允许所有来源
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// SetupRouter 配置HTTP路由
func SetupRouter(deps *Dependencies) *gin.Engine {
	if deps.Metrics == nil {
		deps.Metrics = utils.GetMetricsCollector()
	}
	handler := NewHandler(deps)

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(), RequestMetrics(deps.Metrics))
	r.Use(corsMiddleware(deps.CORSOrigins))

	// 执行通道
	r.GET("/ws", handler.ExecutionWebSocket)

	// ===============================
	// 辅助端点
	// ===============================
	r.GET("/health", handler.HealthCheck)
	r.GET("/version", handler.GetVersion)
	debugGroup := r.Group("/debug")
	{
		debugGroup.GET("/status", handler.GetDebugStatus)
		debugGroup.POST("/toggle", handler.ToggleDebug)
	}

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	if deps.RateLimit > 0 {
		api.Use(RateLimitByIP(NewRateLimiter(), deps.RateLimit, time.Minute, deps.Metrics))
	}
	{
		api.POST("/segment", handler.SegmentDocument)
		api.POST("/highlight", handler.HighlightDocument)
		api.POST("/import", handler.ImportDocument)
		api.GET("/languages", handler.GetLanguages)

		runsGroup := api.Group("/runs")
		{
			runsGroup.GET("", handler.ListRuns)
			runsGroup.GET("/:id", handler.GetRun)
		}

		api.GET("/ws/status", handler.GetWebSocketStatus)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/stats", handler.GetUsageStats)
	}

	return r
}
