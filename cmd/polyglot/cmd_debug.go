// cmd/polyglot/cmd_debug.go
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Corphon/PolyglotRunner/internal/session"
)

// debugCmd 查询或切换网关的调试模式
var debugCmd = &cobra.Command{
	Use:       "debug [status|on|off|toggle]",
	Short:     "查询或切换网关调试模式",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"status", "on", "off", "toggle"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "status"
		if len(args) == 1 {
			action = args[0]
		}
		return debugAction(cmd.Context(), cmd.OutOrStdout(), session.NewSidecar(backendURL, nil), action)
	},
}

// versionCmd 客户端与网关版本
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示客户端与网关版本",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd.Context(), cmd.OutOrStdout(), session.NewSidecar(backendURL, nil))
	},
}

func debugAction(ctx context.Context, out io.Writer, sidecar *session.Sidecar, action string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		enabled bool
		err     error
	)
	switch action {
	case "status":
		enabled, err = sidecar.FetchDebugStatus(ctx)
	case "on":
		enabled, err = sidecar.SetDebug(ctx, true)
	case "off":
		enabled, err = sidecar.SetDebug(ctx, false)
	case "toggle":
		if _, err = sidecar.FetchDebugStatus(ctx); err == nil {
			enabled, err = sidecar.ToggleDebug(ctx)
		}
	default:
		return fmt.Errorf("未知的操作: %s", action)
	}
	if err != nil {
		return err
	}

	state := "off"
	if enabled {
		state = "on"
	}
	_, err = fmt.Fprintf(out, "debug mode: %s\n", state)
	return err
}

func printVersion(ctx context.Context, out io.Writer, sidecar *session.Sidecar) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintf(out, "polyglot %s", version)
	if buildDate != "" {
		fmt.Fprintf(out, " (%s)", buildDate)
	}
	fmt.Fprintln(out)

	info, err := sidecar.FetchVersion(ctx)
	if err != nil {
		fmt.Fprintf(out, "gateway: unavailable (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "gateway: %s %s, protocol %s, nested blocks %t\n",
		info.Orchestrator, info.Version, info.ProtocolVersion, info.NestedBlocks())
	return nil
}
