// internal/highlight/terminal.go
package highlight

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/Corphon/PolyglotRunner/internal/grammar"
)

// Terminal 输出 256 色 ANSI 转义序列的高亮能力
func Terminal(styleName string) Func {
	style := styles.Get(styleName)
	return func(text, languageID string) (string, error) {
		tokens, err := tokenise(text, languageID)
		if err != nil {
			return "", err
		}

		var sb strings.Builder
		if err := formatters.TTY256.Format(&sb, style, chroma.Literator(tokens...)); err != nil {
			return "", err
		}
		return sb.String(), nil
	}
}

// TerminalOptions 终端渲染选项
type TerminalOptions struct {
	Gutter      bool // 块内行前加按深度着色的竖线
	LineNumbers bool
}

// RenderTerminal 按深度调色板为分隔符行和块边栏着色
func RenderTerminal(m *Markup, opts TerminalOptions) string {
	out := make([]string, len(m.Lines))
	for i, line := range m.Lines {
		var prefix string
		if opts.LineNumbers {
			prefix = lipgloss.NewStyle().Faint(true).Width(5).Render(strconv.Itoa(line.Number+1)) + " "
		}

		if line.Depth < 0 {
			out[i] = prefix + line.Text
			continue
		}

		color := lipgloss.Color(grammar.DepthPalette[line.ColorIndex].Color)
		if opts.Gutter {
			bar := strings.Repeat("│", line.Depth+1)
			prefix += lipgloss.NewStyle().Foreground(color).Render(bar) + " "
		}

		switch line.Kind {
		case LineOpenTag, LineCloseTag:
			out[i] = prefix + lipgloss.NewStyle().Foreground(color).Bold(true).Render(line.Text)
		default:
			out[i] = prefix + line.Text
		}
	}
	return strings.Join(out, "\n")
}
