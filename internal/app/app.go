// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/PolyglotRunner/internal/api"
	"github.com/Corphon/PolyglotRunner/internal/config"
	"github.com/Corphon/PolyglotRunner/internal/di"
	"github.com/Corphon/PolyglotRunner/internal/highlight"
	"github.com/Corphon/PolyglotRunner/internal/services"
	"github.com/Corphon/PolyglotRunner/internal/storage"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// shutdownTimeout 优雅关闭的最长等待时间
const shutdownTimeout = 30 * time.Second

// App 网关应用
type App struct {
	config *config.AppConfig
	base   *config.Config
	router *gin.Engine
	server *http.Server
	ws     *api.WebSocketManager
	build  api.BuildInfo

	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp 获取应用单例
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		instance = &App{
			stopChan: make(chan struct{}),
			build:    api.BuildInfo{Version: "dev"},
		}
	}
	return instance
}

// SetBuildInfo 设置 /version 报告的构建信息
func (a *App) SetBuildInfo(build api.BuildInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.build = build
}

// Initialize 加载配置、初始化日志和服务并构建路由
func (a *App) Initialize(base *config.Config) error {
	for _, dir := range []string{base.DataDir, base.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}

	if err := config.InitConfig(base.DataDir); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}

	a.mu.Lock()
	a.base = base
	a.config = config.GetCurrentConfig()
	a.mu.Unlock()

	if err := a.initLogger(base.LogDir); err != nil {
		return err
	}

	container := di.GetContainer()
	if err := InitServices(container, base); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	deps, err := api.DependenciesFromContainer(container)
	if err != nil {
		return err
	}
	deps.CORSOrigins = base.CORSOrigins
	deps.RateLimit = base.RateLimit

	a.mu.Lock()
	deps.Build = a.build
	a.ws = deps.WebSocket
	a.router = api.SetupRouter(deps)
	a.server = &http.Server{
		Addr:              ":" + base.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Unlock()

	utils.GetLogger().Info("✅ 应用初始化完成", map[string]interface{}{
		"port":      base.Port,
		"data_dir":  base.DataDir,
		"mode":      string(a.config.GrammarMode),
		"languages": deps.Languages,
	})
	return nil
}

// initLogger 日志同时写入按日期命名的文件
func (a *App) initLogger(logDir string) error {
	logFile := filepath.Join(logDir, fmt.Sprintf("polyglot_%s.log", time.Now().Format("20060102")))
	if err := utils.InitLogger(logFile); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	if a.IsDebugMode() {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}
	return nil
}

// InitServices 按依赖顺序创建并注册所有服务
func InitServices(container *di.Container, base *config.Config) error {
	container.Register(di.ServiceConfig, base)

	fileStorage, err := storage.NewFileStorage(base.DataDir)
	if err != nil {
		return fmt.Errorf("创建存储失败: %w", err)
	}
	container.Register(di.ServiceStorage, fileStorage)

	metrics := utils.GetMetricsCollector()
	container.Register(di.ServiceMetrics, metrics)

	runs := services.NewRunStore(fileStorage)
	container.Register(di.ServiceRuns, runs)

	stats := services.NewStatsService(fileStorage)
	container.Register(di.ServiceStats, stats)

	executor := services.NewCommandExecutor(base.ExecCommands, base.ExecTimeout)
	container.Register(di.ServiceExecutor, executor)
	if len(executor.Commands) == 0 {
		utils.GetLogger().Warn("⚠️ 未配置任何语言执行器，请设置 "+config.ExecEnvPrefix+"<LANG> 环境变量", nil)
	}

	mode := config.GetCurrentConfig().GrammarMode
	execution := services.NewExecutionService(executor, runs, mode, func() bool {
		return config.GetCurrentConfig().DebugMode
	})
	execution.SetStats(stats)
	container.Register(di.ServiceExecution, execution)

	container.Register(di.ServiceProjector, highlight.NewProjector(highlight.HTMLClasses()))

	ws := api.NewWebSocketManager(utils.NewRunMetricsWith(metrics))
	ws.Start()
	container.Register(di.ServiceWebSocket, ws)

	return nil
}

// Handler 返回 HTTP 处理器，未初始化时为 nil
func (a *App) Handler() http.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.router == nil {
		return nil
	}
	return a.router
}

// Run 启动服务器，直到 ctx 取消或调用 Stop 后优雅关闭
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server == nil {
		return fmt.Errorf("应用未初始化")
	}

	serveErr := make(chan error, 1)
	go func() {
		utils.GetLogger().Info("🌐 服务器启动", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			a.cleanup()
			return fmt.Errorf("启动服务器失败: %w", err)
		}
	case <-ctx.Done():
	case <-a.stopChan:
	}

	utils.GetLogger().Info("🛑 正在关闭服务器...", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 执行通道是被劫持的连接，Shutdown 不会关闭它们
	a.cleanup()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	utils.GetLogger().Info("✅ 服务器优雅关闭完成", nil)
	return nil
}

// Stop 请求 Run 退出
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
	})
}

// cleanup 关闭执行通道，写回统计并刷新日志
func (a *App) cleanup() {
	a.mu.Lock()
	ws := a.ws
	a.mu.Unlock()

	if ws != nil {
		ws.Stop()
	}
	if stats, err := di.Resolve[*services.StatsService](di.GetContainer(), di.ServiceStats); err == nil {
		if err := stats.Close(); err != nil {
			utils.GetLogger().Warn("⚠️ 保存使用统计失败", map[string]interface{}{"error": err})
		}
	}
	if err := config.SaveConfig(); err != nil {
		utils.GetLogger().Warn("⚠️ 保存配置失败", map[string]interface{}{"error": err})
	}
	utils.GetLogger().Sync()
}

// IsDebugMode 当前调试模式
func (a *App) IsDebugMode() bool {
	return config.GetCurrentConfig().DebugMode
}

// GetDIContainer 获取依赖注入容器
func (a *App) GetDIContainer() *di.Container {
	return di.GetContainer()
}

// GetConfig 初始化时的配置快照
func (a *App) GetConfig() *config.AppConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}
