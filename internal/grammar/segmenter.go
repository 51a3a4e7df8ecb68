// internal/grammar/segmenter.go
package grammar

import (
	"strings"

	"github.com/Corphon/PolyglotRunner/internal/models"
)

// Segment 将文档切分为纯文本段和语言块
//
// 这是一个纯函数，对任何输入都不会失败：不匹配的关闭标签按源码处理，
// 未关闭的块在文档末尾强制关闭。
func Segment(text string, mode models.GrammarMode) *models.Segmentation {
	g := ForMode(mode)
	lines := SplitLines(text)

	s := &segmenter{
		grammar: g,
		result: &models.Segmentation{
			Mode:      g.Mode(),
			LineCount: len(lines),
			Nodes:     []models.Node{},
		},
	}

	for n, line := range lines {
		s.consume(n, line)
	}
	s.closeAll(len(lines) - 1)

	return s.result
}

// SplitLines 按 \n 拆分，与 JoinLines 互逆
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// JoinLines 按 \n 合并
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// Segmenter 绑定了语法模式的分段器
type Segmenter struct {
	Mode models.GrammarMode
}

// NewSegmenter 创建分段器
func NewSegmenter(mode models.GrammarMode) *Segmenter {
	return &Segmenter{Mode: mode}
}

// Segment 使用绑定的模式分段
func (s *Segmenter) Segment(text string) *models.Segmentation {
	return Segment(text, s.Mode)
}

type segmenter struct {
	grammar Grammar
	result  *models.Segmentation
	stack   []*models.Block
	text    *models.PlainTextRun // 当前正在收集的纯文本段
}

func (s *segmenter) top() *models.Block {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

func (s *segmenter) consume(n int, line string) {
	tag, ok := s.grammar.ParseTag(line)
	if !ok {
		s.appendLine(n, line)
		return
	}

	switch tag.Kind {
	case models.TagOpen:
		s.open(n, line, tag)

	case models.TagSelfContainedStart:
		// 缩进相同视为兄弟块：关闭所有缩进 >= 当前标签的块
		for top := s.top(); top != nil && top.Indent >= tag.Indent; top = s.top() {
			s.pop(n - 1)
		}
		s.open(n, line, tag)

	case models.TagClose:
		top := s.top()
		if top == nil || top.LanguageID != tag.LanguageID {
			s.appendLine(n, line)
			return
		}
		top.CloseLine = n
		top.CloseTag = line
		s.pop(n)
	}
}

func (s *segmenter) open(n int, line string, tag models.Tag) {
	s.text = nil

	block := &models.Block{
		LanguageID:  tag.LanguageID,
		Depth:       len(s.stack),
		Indent:      tag.Indent,
		StartLine:   n,
		EndLine:     n,
		CloseLine:   -1,
		OpenTag:     line,
		SourceLines: []string{},
		LineNumbers: []int{},
		Children:    []*models.Block{},
	}

	if parent := s.top(); parent != nil {
		parent.Children = append(parent.Children, block)
	} else {
		s.result.Nodes = append(s.result.Nodes, models.Node{Kind: models.NodeBlock, Block: block})
	}
	s.stack = append(s.stack, block)
}

func (s *segmenter) pop(endLine int) {
	top := s.top()
	if endLine < top.StartLine {
		endLine = top.StartLine
	}
	top.EndLine = endLine
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *segmenter) closeAll(lastLine int) {
	for len(s.stack) > 0 {
		s.pop(lastLine)
	}
}

func (s *segmenter) appendLine(n int, line string) {
	if top := s.top(); top != nil {
		top.SourceLines = append(top.SourceLines, line)
		top.LineNumbers = append(top.LineNumbers, n)
		return
	}

	if s.text == nil {
		s.text = &models.PlainTextRun{StartLine: n, Lines: []string{}}
		s.result.Nodes = append(s.result.Nodes, models.Node{Kind: models.NodePlainText, Text: s.text})
	}
	s.text.Lines = append(s.text.Lines, line)
}
