// internal/models/block.go
package models

import (
	"fmt"
	"strings"
)

// GrammarMode 分块语法变体
type GrammarMode string

const (
	// ModeSequential 显式成对标签 ::lang / ::/lang，通过栈实现递归嵌套
	ModeSequential GrammarMode = "sequential"
	// ModeIndentationNested 按标签缩进推导嵌套，不需要关闭标签
	ModeIndentationNested GrammarMode = "indentation"
)

// ParseGrammarMode 解析语法模式名称，未知名称返回错误
func ParseGrammarMode(name string) (GrammarMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sequential", "seq", "explicit":
		return ModeSequential, nil
	case "indentation", "indent", "nested":
		return ModeIndentationNested, nil
	default:
		return "", fmt.Errorf("未知的语法模式: %s", name)
	}
}

// TagKind 标签种类
type TagKind int

const (
	TagOpen TagKind = iota
	TagClose
	// TagSelfContainedStart 缩进模式下的起始标签，关闭由后续标签隐含
	TagSelfContainedStart
)

func (k TagKind) String() string {
	switch k {
	case TagOpen:
		return "open"
	case TagClose:
		return "close"
	case TagSelfContainedStart:
		return "start"
	default:
		return "unknown"
	}
}

// Tag 一行分隔符
type Tag struct {
	LanguageID string  `json:"language_id" yaml:"language_id"`
	Kind       TagKind `json:"kind" yaml:"kind"`
	Indent     int     `json:"indent" yaml:"indent"`
}

// Block 带语言标记的代码区域
//
// SourceLines 只包含块自身拥有的行，不含分隔符行，也不含子块的行。
// LineNumbers 与 SourceLines 一一对应，记录每行在文档中的行号（从0开始）。
type Block struct {
	LanguageID  string   `json:"language_id" yaml:"language_id"`
	Depth       int      `json:"depth" yaml:"depth"`
	Indent      int      `json:"indent" yaml:"indent"`
	StartLine   int      `json:"start_line" yaml:"start_line"`
	EndLine     int      `json:"end_line" yaml:"end_line"`
	CloseLine   int      `json:"close_line" yaml:"close_line"` // 显式关闭标签所在行，-1 表示隐式关闭
	OpenTag     string   `json:"open_tag" yaml:"open_tag"`
	CloseTag    string   `json:"close_tag,omitempty" yaml:"close_tag,omitempty"`
	SourceLines []string `json:"source_lines" yaml:"source_lines"`
	LineNumbers []int    `json:"line_numbers" yaml:"line_numbers"`
	Children    []*Block `json:"children" yaml:"children"`
}

// Source 返回块自身的源码文本
func (b *Block) Source() string {
	return strings.Join(b.SourceLines, "\n")
}

// ExplicitlyClosed 是否由匹配的关闭标签结束
func (b *Block) ExplicitlyClosed() bool {
	return b.CloseLine >= 0
}

// Walk 深度优先遍历块及其所有子块
func (b *Block) Walk(fn func(*Block)) {
	fn(b)
	for _, child := range b.Children {
		child.Walk(fn)
	}
}

// PlainTextRun 不属于任何块的连续文本
type PlainTextRun struct {
	StartLine int      `json:"start_line" yaml:"start_line"`
	Lines     []string `json:"lines" yaml:"lines"`
}

// EndLine 最后一行的行号
func (r *PlainTextRun) EndLine() int {
	return r.StartLine + len(r.Lines) - 1
}

// NodeKind 顶层节点类型
type NodeKind string

const (
	NodePlainText NodeKind = "text"
	NodeBlock     NodeKind = "block"
)

// Node 分段结果中的顶层节点，Text 与 Block 二选一
type Node struct {
	Kind  NodeKind      `json:"kind" yaml:"kind"`
	Text  *PlainTextRun `json:"text,omitempty" yaml:"text,omitempty"`
	Block *Block        `json:"block,omitempty" yaml:"block,omitempty"`
}

// Segmentation 一次分段的完整结果
type Segmentation struct {
	Mode      GrammarMode `json:"mode" yaml:"mode"`
	LineCount int         `json:"line_count" yaml:"line_count"`
	Nodes     []Node      `json:"nodes" yaml:"nodes"`
}

// Blocks 返回所有顶层块
func (s *Segmentation) Blocks() []*Block {
	blocks := make([]*Block, 0, len(s.Nodes))
	for _, node := range s.Nodes {
		if node.Kind == NodeBlock {
			blocks = append(blocks, node.Block)
		}
	}
	return blocks
}

// CountBlocks 统计所有层级的块数量
func (s *Segmentation) CountBlocks() int {
	count := 0
	for _, block := range s.Blocks() {
		block.Walk(func(*Block) { count++ })
	}
	return count
}

// MaxDepth 最大嵌套深度，没有块时返回 -1
func (s *Segmentation) MaxDepth() int {
	maxDepth := -1
	for _, block := range s.Blocks() {
		block.Walk(func(b *Block) {
			if b.Depth > maxDepth {
				maxDepth = b.Depth
			}
		})
	}
	return maxDepth
}
