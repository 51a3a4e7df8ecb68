// internal/highlight/chroma.go
package highlight

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// languageAliases 文档中常见的短语言标识到 chroma 词法器名称
var languageAliases = map[string]string{
	"py":     "python",
	"js":     "javascript",
	"ts":     "typescript",
	"sh":     "bash",
	"cpp":    "c++",
	"cs":     "c#",
	"rb":     "ruby",
	"rs":     "rust",
	"kt":     "kotlin",
	"golang": "go",
}

// LexerFor 返回语言对应的词法器，未知语言使用通用回退词法器
func LexerFor(languageID string) chroma.Lexer {
	name := strings.ToLower(languageID)
	if alias, ok := languageAliases[name]; ok {
		name = alias
	}

	lexer := lexers.Get(name)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

// tokenise 不做换行归一化；词法器自行补上的结尾换行会被去掉，保证 token 拼接后与输入一致
func tokenise(text, languageID string) ([]chroma.Token, error) {
	iterator, err := LexerFor(languageID).Tokenise(&chroma.TokeniseOptions{State: "root"}, text)
	if err != nil {
		return nil, err
	}
	tokens := iterator.Tokens()

	if strings.HasSuffix(text, "\n") {
		return tokens, nil
	}
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].Value == "" {
			continue
		}
		if strings.HasSuffix(tokens[i].Value, "\n") {
			tokens[i].Value = strings.TrimSuffix(tokens[i].Value, "\n")
		}
		break
	}
	return tokens, nil
}

// tokenClass 取 token 类型的短类名，没有时向上找类别
func tokenClass(tokenType chroma.TokenType) string {
	if class, ok := chroma.StandardTypes[tokenType]; ok && class != "" {
		return class
	}
	if class, ok := chroma.StandardTypes[tokenType.SubCategory()]; ok && class != "" {
		return class
	}
	if class, ok := chroma.StandardTypes[tokenType.Category()]; ok {
		return class
	}
	return ""
}

// HTMLClasses 基于 chroma 的高亮能力，输出带 chroma 短类名的 span
//
// token 内部的换行会被拆开，span 不会跨行。
func HTMLClasses() Func {
	return func(text, languageID string) (string, error) {
		tokens, err := tokenise(text, languageID)
		if err != nil {
			return "", err
		}

		var sb strings.Builder
		for _, token := range tokens {
			class := tokenClass(token.Type)
			for i, piece := range strings.Split(token.Value, "\n") {
				if i > 0 {
					sb.WriteByte('\n')
				}
				if piece == "" {
					continue
				}
				if class == "" {
					sb.WriteString(html.EscapeString(piece))
					continue
				}
				sb.WriteString(`<span class="`)
				sb.WriteString(class)
				sb.WriteString(`">`)
				sb.WriteString(html.EscapeString(piece))
				sb.WriteString(`</span>`)
			}
		}
		return sb.String(), nil
	}
}
