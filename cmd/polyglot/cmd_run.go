// cmd/polyglot/cmd_run.go
package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/protocol"
	"github.com/Corphon/PolyglotRunner/internal/session"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// probeTimeout 辅助端点探测的等待时间
const probeTimeout = 3 * time.Second

// completionGrace 失败后等待完成标记的时间
const completionGrace = 500 * time.Millisecond

var verbose bool

// runCmd 提交文档并流式输出日志
var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "通过执行通道运行文档",
	Long: `把文档提交给网关执行并逐行打印输出。

未指定 --verbose 时沿用网关的调试模式：关闭时隐藏诊断行。
运行失败或通道中断时以非零状态退出。`,
	Args: cobra.ExactArgs(1),
	RunE: runDocument,
}

func init() {
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "显示诊断行")
}

func runDocument(cmd *cobra.Command, args []string) error {
	text, err := readDocument(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sidecar := session.NewSidecar(backendURL, nil)
	probeCtx, cancelProbe := context.WithTimeout(ctx, probeTimeout)
	probe := sidecar.Probe(probeCtx)
	cancelProbe()
	if probe.Version != nil && !probe.Version.NestedBlocks() {
		utils.GetLogger().Warn("⚠️ 网关未声明支持嵌套块", map[string]interface{}{"version": probe.Version.Version})
	}

	showDiagnostics := sidecar.DebugEnabled()
	if cmd.Flags().Changed("verbose") {
		showDiagnostics = verbose
	}

	dialer, err := session.NewWebSocketDialer(backendURL)
	if err != nil {
		return err
	}
	return executeDocument(ctx, cmd.OutOrStdout(), dialer, text, showDiagnostics)
}

// executeDocument 运行文档并把可见的行写到 out
func executeDocument(ctx context.Context, out io.Writer, dialer session.Dialer, text string, showDiagnostics bool) error {
	classifier := protocol.Default()
	completed := make(chan struct{}, 1)

	client := session.NewClient(dialer, session.WithEventHandler(func(event session.Event) {
		if event.Kind != session.EventLine {
			return
		}
		if classifier.IsVisible(event.Line, showDiagnostics) {
			fmt.Fprintln(out, event.Line)
		}
		if classifier.DetectTerminal(event.Line) == protocol.TerminalCompleted {
			select {
			case completed <- struct{}{}:
			default:
			}
		}
	}))
	defer client.Close()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := client.Run(runCtx, text)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case models.RunFailed:
		select {
		case <-completed:
		case <-time.After(completionGrace):
		}
		return fmt.Errorf("运行失败")
	case models.RunAborted:
		return fmt.Errorf("运行中断")
	}
	return nil
}
