// cmd/polyglot/cmd_document.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Corphon/PolyglotRunner/internal/document"
	"github.com/Corphon/PolyglotRunner/internal/grammar"
	"github.com/Corphon/PolyglotRunner/internal/highlight"
	"github.com/Corphon/PolyglotRunner/internal/models"
)

var (
	segmentFormat  string
	highlightHTML  bool
	highlightStyle string
	lineNumbers    bool
	watchRender    bool
)

// segmentCmd 本地分段
var segmentCmd = &cobra.Command{
	Use:   "segment FILE",
	Short: "输出文档的分段结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readDocument(args[0])
		if err != nil {
			return err
		}
		return writeSegmentation(cmd.OutOrStdout(), grammar.Segment(text, grammarMode()), segmentFormat)
	},
}

// highlightCmd 本地高亮
var highlightCmd = &cobra.Command{
	Use:   "highlight FILE",
	Short: "按嵌套深度高亮文档",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readDocument(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), renderDocument(text, grammarMode()))
		return err
	},
}

// watchCmd 文件变更后重新分段
var watchCmd = &cobra.Command{
	Use:   "watch FILE",
	Short: "监视文档并在保存后输出分段摘要",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		watcher, err := document.NewWatcher(args[0], grammarMode(), func(snapshot document.Snapshot) {
			fmt.Fprintln(out, snapshotSummary(snapshot))
			if watchRender {
				fmt.Fprintln(out, renderDocument(snapshot.Text, snapshot.Segmentation.Mode))
			}
		})
		if err != nil {
			return err
		}
		return watcher.Run(cmd.Context())
	},
}

func init() {
	segmentCmd.Flags().StringVarP(&segmentFormat, "format", "f", "tree", "输出格式: tree、json 或 yaml")

	highlightCmd.Flags().BoolVar(&highlightHTML, "html", false, "输出带深度类的 HTML")
	highlightCmd.Flags().StringVar(&highlightStyle, "style", "monokai", "终端配色方案")
	highlightCmd.Flags().BoolVarP(&lineNumbers, "line-numbers", "n", false, "显示行号")

	watchCmd.Flags().BoolVar(&watchRender, "render", false, "每次变更后输出高亮结果")
}

// writeSegmentation 按格式输出分段结果
func writeSegmentation(out io.Writer, segmentation *models.Segmentation, format string) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(segmentation)
	case "yaml", "yml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(segmentation)
	case "tree":
		_, err := io.WriteString(out, segmentationTree(segmentation))
		return err
	default:
		return fmt.Errorf("未知的输出格式: %s", format)
	}
}

// segmentationTree 每个节点一行，块按深度缩进并着色
func segmentationTree(segmentation *models.Segmentation) string {
	var b strings.Builder
	for _, node := range segmentation.Nodes {
		switch node.Kind {
		case models.NodePlainText:
			fmt.Fprintf(&b, "text   L%d-%d\n", node.Text.StartLine+1, node.Text.EndLine()+1)
		case models.NodeBlock:
			node.Block.Walk(func(block *models.Block) {
				style := lipgloss.NewStyle().Foreground(lipgloss.Color(grammar.PaletteFor(block.Depth).Color))
				closing := "implicit"
				if block.ExplicitlyClosed() {
					closing = fmt.Sprintf("closed L%d", block.CloseLine+1)
				}
				fmt.Fprintf(&b, "%s%s L%d-%d (%d lines, %s)\n",
					strings.Repeat("  ", block.Depth),
					style.Render("::"+block.LanguageID),
					block.StartLine+1, block.EndLine+1, len(block.SourceLines), closing)
			})
		}
	}
	return b.String()
}

func renderDocument(text string, mode models.GrammarMode) string {
	segmentation := grammar.Segment(text, mode)
	if highlightHTML {
		return highlight.RenderHTML(highlight.NewProjector(highlight.HTMLClasses()).Project(segmentation))
	}
	markup := highlight.NewProjector(highlight.Terminal(highlightStyle)).Project(segmentation)
	return highlight.RenderTerminal(markup, highlight.TerminalOptions{Gutter: true, LineNumbers: lineNumbers})
}

func snapshotSummary(snapshot document.Snapshot) string {
	seg := snapshot.Segmentation
	return fmt.Sprintf("📄 %s v%d: %d lines, %d blocks, max depth %d",
		snapshot.Path, snapshot.Version, seg.LineCount, seg.CountBlocks(), seg.MaxDepth())
}
