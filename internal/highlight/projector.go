// internal/highlight/projector.go
package highlight

import (
	"fmt"

	"github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/grammar"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// Func 高亮能力：给定源码和语言标识，返回标记后的文本
//
// 返回的文本必须与输入行数相同，否则视为失败。
type Func func(text, languageID string) (string, error)

// Identity 原样返回输入
func Identity(text, _ string) (string, error) {
	return text, nil
}

// LineKind 输出行的类别
type LineKind string

const (
	LinePlain    LineKind = "plain"
	LineOpenTag  LineKind = "open_tag"
	LineCloseTag LineKind = "close_tag"
	LineSource   LineKind = "source"
)

// Line 投影后的一行
type Line struct {
	Number     int      `json:"number"`
	Text       string   `json:"text"`
	Kind       LineKind `json:"kind"`
	LanguageID string   `json:"language_id,omitempty"`
	Depth      int      `json:"depth"` // 纯文本行为 -1
	ColorIndex int      `json:"color_index"`
	Class      string   `json:"class,omitempty"`
	Marked     bool     `json:"marked"` // Text 是否为高亮能力产出的标记文本
}

// Failure 某个块的高亮失败记录
type Failure struct {
	LanguageID string `json:"language_id"`
	StartLine  int    `json:"start_line"`
	Err        error  `json:"-"`
	Message    string `json:"message"`
}

// Markup 投影结果，行数与行序和输入文档完全一致
type Markup struct {
	Lines    []Line    `json:"lines"`
	Failures []Failure `json:"failures,omitempty"`
}

// String 按 \n 拼接所有行
func (m *Markup) String() string {
	texts := make([]string, len(m.Lines))
	for i, line := range m.Lines {
		texts[i] = line.Text
	}
	return grammar.JoinLines(texts)
}

// TagClass 分隔符行的标记类，携带深度
func TagClass(depth int) string {
	return "poly-tag " + grammar.PaletteFor(depth).Class
}

// BlockClass 块内源码行的类
func BlockClass(depth int) string {
	return "poly-block " + grammar.PaletteFor(depth).Class
}

// Projector 带失败计数的投影器
type Projector struct {
	Highlight Func
	metrics   *utils.RunMetrics
	logger    *utils.Logger
}

// NewProjector 创建投影器，highlight 为 nil 时使用 Identity
func NewProjector(highlight Func) *Projector {
	if highlight == nil {
		highlight = Identity
	}
	return &Projector{
		Highlight: highlight,
		metrics:   utils.NewRunMetrics(),
		logger:    utils.GetLogger(),
	}
}

// Project 使用默认日志投影，不计入指标
func Project(result *models.Segmentation, highlight Func) *Markup {
	if highlight == nil {
		highlight = Identity
	}
	p := &Projector{Highlight: highlight, logger: utils.GetLogger()}
	return p.Project(result)
}

// Project 遍历分段结果，逐块调用高亮能力并重新组装
func (p *Projector) Project(result *models.Segmentation) *Markup {
	markup := &Markup{Lines: make([]Line, result.LineCount)}
	for i := range markup.Lines {
		markup.Lines[i] = Line{Number: i, Kind: LinePlain, Depth: -1}
	}

	for _, node := range result.Nodes {
		switch node.Kind {
		case models.NodePlainText:
			for i, text := range node.Text.Lines {
				markup.Lines[node.Text.StartLine+i].Text = text
			}
		case models.NodeBlock:
			node.Block.Walk(func(block *models.Block) {
				p.projectBlock(markup, block)
			})
		}
	}

	return markup
}

func (p *Projector) projectBlock(markup *Markup, block *models.Block) {
	colorIndex := grammar.ColorIndex(block.Depth)

	markup.Lines[block.StartLine] = Line{
		Number:     block.StartLine,
		Text:       block.OpenTag,
		Kind:       LineOpenTag,
		LanguageID: block.LanguageID,
		Depth:      block.Depth,
		ColorIndex: colorIndex,
		Class:      TagClass(block.Depth),
	}
	if block.ExplicitlyClosed() {
		markup.Lines[block.CloseLine] = Line{
			Number:     block.CloseLine,
			Text:       block.CloseTag,
			Kind:       LineCloseTag,
			LanguageID: block.LanguageID,
			Depth:      block.Depth,
			ColorIndex: colorIndex,
			Class:      TagClass(block.Depth),
		}
	}

	if len(block.SourceLines) == 0 {
		return
	}

	texts, err := p.highlightBlock(block)
	marked := err == nil
	if err != nil {
		texts = block.SourceLines
		appErr := errors.NewHighlightFailure(block.LanguageID, err)
		markup.Failures = append(markup.Failures, Failure{
			LanguageID: block.LanguageID,
			StartLine:  block.StartLine,
			Err:        appErr,
			Message:    appErr.Error(),
		})
		p.logger.Warn("⚠️ 高亮失败，块回退为原始文本", map[string]interface{}{
			"language":   block.LanguageID,
			"start_line": block.StartLine,
			"error":      err,
		})
		if p.metrics != nil {
			p.metrics.HighlightFailed()
		}
	}

	for i, n := range block.LineNumbers {
		markup.Lines[n] = Line{
			Number:     n,
			Text:       texts[i],
			Kind:       LineSource,
			LanguageID: block.LanguageID,
			Depth:      block.Depth,
			ColorIndex: colorIndex,
			Class:      BlockClass(block.Depth),
			Marked:     marked,
		}
	}
}

// highlightBlock 调用能力并校验行数，能力内部的 panic 也按失败处理
func (p *Projector) highlightBlock(block *models.Block) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("highlighter panic: %v", r)
		}
	}()

	out, err := p.Highlight(block.Source(), block.LanguageID)
	if err != nil {
		return nil, err
	}

	lines = grammar.SplitLines(out)
	if len(lines) != len(block.SourceLines) {
		return nil, fmt.Errorf("line count changed: want %d, got %d", len(block.SourceLines), len(lines))
	}
	return lines, nil
}

// Stats 投影结果的摘要
func (m *Markup) Stats() string {
	counts := map[LineKind]int{}
	for _, line := range m.Lines {
		counts[line.Kind]++
	}
	return fmt.Sprintf("lines=%d plain=%d tags=%d source=%d failures=%d",
		len(m.Lines), counts[LinePlain], counts[LineOpenTag]+counts[LineCloseTag],
		counts[LineSource], len(m.Failures))
}
