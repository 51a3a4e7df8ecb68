// internal/document/import.go
package document

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/Corphon/PolyglotRunner/internal/errors"
)

// MaxImportSize 导入文件的大小上限
const MaxImportSize = 4 << 20

// AllowedExtensions 允许导入的扩展名
var AllowedExtensions = []string{".poly", ".txt"}

// AllowedImport 文件名或 MIME 类型是否在允许列表中
//
// 扩展名为 .poly/.txt，或 MIME 为空/text/plain 时允许。
func AllowedImport(filename, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}

	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return mediaType == "text/plain"
}

// Import 检查允许列表后原样读取内容，不做任何解析
func Import(r io.Reader, filename, mimeType string) (string, error) {
	if !AllowedImport(filename, mimeType) {
		return "", errors.NewValidationError(
			fmt.Sprintf("不支持的文件类型: %s (%s)，请选择 .poly 或文本文件", filename, mimeType), nil)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxImportSize+1))
	if err != nil {
		return "", errors.NewProcessingError("读取导入文件失败", err)
	}
	if len(data) > MaxImportSize {
		return "", errors.NewValidationError(fmt.Sprintf("文件超过 %d 字节上限", MaxImportSize), nil)
	}
	return string(data), nil
}

// ImportInto 导入并替换文档文本
func ImportInto(doc *Document, r io.Reader, filename, mimeType string) error {
	text, err := Import(r, filename, mimeType)
	if err != nil {
		return err
	}
	doc.Replace(text)
	return nil
}
