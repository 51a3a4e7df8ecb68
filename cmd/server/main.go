// cmd/server/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Corphon/PolyglotRunner/internal/api"
	"github.com/Corphon/PolyglotRunner/internal/app"
	"github.com/Corphon/PolyglotRunner/internal/config"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

var (
	// 由 -ldflags 注入
	version   = "dev"
	buildDate = ""
)

func main() {
	logger := utils.GetLogger()
	logger.Info("🚀 启动 PolyglotRunner 网关...", map[string]interface{}{"version": version})

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		logger.Fatal("加载配置失败", map[string]interface{}{"error": err})
	}
	logger.Info("✅ 基础配置加载完成", map[string]interface{}{"port": baseConfig.Port})

	// 2. 初始化配置、日志、服务和路由
	application := app.GetApp()
	application.SetBuildInfo(api.BuildInfo{Version: version, BuildDate: buildDate})
	if err := application.Initialize(baseConfig); err != nil {
		logger.Fatal("❌ 初始化应用失败", map[string]interface{}{"error": err})
	}

	logger.Info("🔗 执行通道地址", map[string]interface{}{"url": "ws://localhost:" + baseConfig.Port + "/ws"})

	// 3. 运行直到收到中断信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Error("❌ 服务器异常退出", map[string]interface{}{"error": err})
		os.Exit(1)
	}
}
