// internal/highlight/render.go
package highlight

import (
	"fmt"
	"html"
	"strings"
)

// RenderHTML 将投影结果渲染为 HTML，每个输入行对应一个输出行
//
// 未标记的文本会被转义；分隔符行带 poly-tag 与深度类，并附带 data-lang / data-depth。
func RenderHTML(m *Markup) string {
	out := make([]string, len(m.Lines))
	for i, line := range m.Lines {
		text := line.Text
		if !line.Marked {
			text = html.EscapeString(text)
		}

		switch line.Kind {
		case LineOpenTag, LineCloseTag:
			out[i] = fmt.Sprintf(`<span class="%s" data-lang="%s" data-depth="%d">%s</span>`,
				line.Class, html.EscapeString(line.LanguageID), line.Depth, text)
		case LineSource:
			out[i] = fmt.Sprintf(`<span class="%s" data-lang="%s">%s</span>`,
				line.Class, html.EscapeString(line.LanguageID), text)
		default:
			out[i] = text
		}
	}
	return strings.Join(out, "\n")
}
