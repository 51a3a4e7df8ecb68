// internal/grammar/grammar.go
package grammar

import (
	"regexp"

	"github.com/Corphon/PolyglotRunner/internal/models"
)

// 分隔符语法，\w 只匹配 ASCII 单词字符
var (
	openTagPattern  = regexp.MustCompile(`^\s*::(\w+)\s*$`)
	closeTagPattern = regexp.MustCompile(`^\s*::/(\w+)\s*$`)
)

// TabWidth 计算缩进列时一个制表符占用的列数
const TabWidth = 4

// Grammar 一种分块语法变体
type Grammar interface {
	Mode() models.GrammarMode
	// ParseTag 判断一行是否为分隔符
	ParseTag(line string) (models.Tag, bool)
}

// ForMode 按模式返回语法，未知模式回退到显式成对语法
func ForMode(mode models.GrammarMode) Grammar {
	if mode == models.ModeIndentationNested {
		return indentationGrammar{}
	}
	return sequentialGrammar{}
}

type sequentialGrammar struct{}

func (sequentialGrammar) Mode() models.GrammarMode { return models.ModeSequential }

func (sequentialGrammar) ParseTag(line string) (models.Tag, bool) {
	if m := openTagPattern.FindStringSubmatch(line); m != nil {
		return models.Tag{LanguageID: m[1], Kind: models.TagOpen, Indent: IndentColumn(line)}, true
	}
	if m := closeTagPattern.FindStringSubmatch(line); m != nil {
		return models.Tag{LanguageID: m[1], Kind: models.TagClose, Indent: IndentColumn(line)}, true
	}
	return models.Tag{}, false
}

// indentationGrammar 不识别关闭标签，::/lang 行按普通源码处理
type indentationGrammar struct{}

func (indentationGrammar) Mode() models.GrammarMode { return models.ModeIndentationNested }

func (indentationGrammar) ParseTag(line string) (models.Tag, bool) {
	if m := openTagPattern.FindStringSubmatch(line); m != nil {
		return models.Tag{LanguageID: m[1], Kind: models.TagSelfContainedStart, Indent: IndentColumn(line)}, true
	}
	return models.Tag{}, false
}

// IndentColumn 计算行首空白占用的列数
func IndentColumn(line string) int {
	column := 0
	for _, r := range line {
		switch r {
		case ' ':
			column++
		case '\t':
			column += TabWidth
		default:
			return column
		}
	}
	return column
}
