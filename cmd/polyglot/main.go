// cmd/polyglot/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

var (
	// 由 -ldflags 注入
	version   = "dev"
	buildDate = ""
)

var (
	// 全局参数
	backendURL string
	modeName   string
	logDebug   bool
	timeout    time.Duration
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "polyglot",
	Short: "多语言文档的分段、高亮与执行客户端",
	Long: `polyglot 处理由 ::lang / ::/lang 分隔的多语言文档。

文档可以在本地分段和高亮，也可以通过执行通道提交给网关，
网关按块的嵌套顺序执行并逐行返回输出。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.GetLogger()
		if logDebug {
			logger.SetLogLevel(utils.DEBUG)
		} else {
			logger.SetLogLevel(utils.WARNING)
		}
		if _, err := models.ParseGrammarMode(modeName); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.GetLogger().Sync()
	},
}

func init() {
	defaultBackend := os.Getenv("BACKEND_URL")
	if defaultBackend == "" {
		defaultBackend = "http://localhost:8000"
	}

	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", defaultBackend, "网关地址")
	rootCmd.PersistentFlags().StringVarP(&modeName, "mode", "m", string(models.ModeSequential), "语法模式: sequential 或 indentation")
	rootCmd.PersistentFlags().BoolVar(&logDebug, "log-debug", false, "输出调试日志")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "单次运行的最长等待时间")

	rootCmd.AddCommand(runCmd, segmentCmd, highlightCmd, watchCmd, debugCmd, versionCmd)
}

// grammarMode 已在 PersistentPreRunE 中校验
func grammarMode() models.GrammarMode {
	mode, _ := models.ParseGrammarMode(modeName)
	return mode
}

func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取文档失败: %w", err)
	}
	return string(data), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
