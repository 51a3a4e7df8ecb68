// internal/protocol/classifier.go
package protocol

import "strings"

// Terminal 一行日志对运行状态的影响
type Terminal int

const (
	NotTerminal Terminal = iota
	TerminalCompleted
	TerminalFailed
)

func (t Terminal) String() string {
	switch t {
	case TerminalCompleted:
		return "completed"
	case TerminalFailed:
		return "failed"
	default:
		return "none"
	}
}

// Classifier 按标记集对日志行分类，纯函数且可并发使用
type Classifier struct {
	markers MarkerSet
}

// NewClassifier 使用给定标记集创建分类器
func NewClassifier(markers MarkerSet) *Classifier {
	markers.Diagnostics = append([]string(nil), markers.Diagnostics...)
	return &Classifier{markers: markers}
}

var defaultClassifier = NewClassifier(V1)

// Default 使用当前标记集的分类器
func Default() *Classifier {
	return defaultClassifier
}

// Markers 返回分类器使用的标记集
func (c *Classifier) Markers() MarkerSet {
	return c.markers
}

// IsDiagnostic 行中是否包含任意诊断标记（区分大小写的子串匹配）
func (c *Classifier) IsDiagnostic(line string) bool {
	for _, marker := range c.markers.Diagnostics {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// IsVisible verbose 时总是可见，否则诊断行隐藏
func (c *Classifier) IsVisible(line string, verbose bool) bool {
	return verbose || !c.IsDiagnostic(line)
}

// Filter 返回可见行组成的新切片，不修改输入，保持原有顺序
func (c *Classifier) Filter(lines []string, verbose bool) []string {
	visible := make([]string, 0, len(lines))
	for _, line := range lines {
		if c.IsVisible(line, verbose) {
			visible = append(visible, line)
		}
	}
	return visible
}

// DetectTerminal 检查新到达的行是否为终止标记，错误标记优先
func (c *Classifier) DetectTerminal(line string) Terminal {
	switch {
	case strings.Contains(line, c.markers.Error):
		return TerminalFailed
	case strings.Contains(line, c.markers.Completion):
		return TerminalCompleted
	default:
		return NotTerminal
	}
}

// IsVisible 使用默认分类器
func IsVisible(line string, verbose bool) bool {
	return defaultClassifier.IsVisible(line, verbose)
}

// Filter 使用默认分类器
func Filter(lines []string, verbose bool) []string {
	return defaultClassifier.Filter(lines, verbose)
}

// DetectTerminal 使用默认分类器
func DetectTerminal(line string) Terminal {
	return defaultClassifier.DetectTerminal(line)
}
