// internal/document/document.go
package document

import (
	"sync"

	"github.com/Corphon/PolyglotRunner/internal/grammar"
	"github.com/Corphon/PolyglotRunner/internal/models"
)

// Document 当前编辑中的多语言文档
//
// 分段结果按版本缓存；每次 Replace 都会整体丢弃旧结果。
type Document struct {
	mu      sync.RWMutex
	text    string
	version uint64
	mode    models.GrammarMode

	cached        *models.Segmentation
	cachedVersion uint64
}

// New 创建文档
func New(text string, mode models.GrammarMode) *Document {
	return &Document{text: text, version: 1, mode: mode}
}

// Text 当前文本
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Version 每次修改递增
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Mode 当前语法模式
func (d *Document) Mode() models.GrammarMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// SetMode 切换语法模式，分段结果随之失效
func (d *Document) SetMode(mode models.GrammarMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != mode {
		d.mode = mode
		d.version++
	}
}

// Replace 原样替换文本（导入或编辑），返回新版本号
func (d *Document) Replace(text string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
	d.version++
	return d.version
}

// Segmentation 最新文本的分段结果
func (d *Document) Segmentation() *models.Segmentation {
	d.mu.RLock()
	if d.cached != nil && d.cachedVersion == d.version {
		cached := d.cached
		d.mu.RUnlock()
		return cached
	}
	text, mode, version := d.text, d.mode, d.version
	d.mu.RUnlock()

	result := grammar.Segment(text, mode)

	d.mu.Lock()
	defer d.mu.Unlock()
	// 期间文本又被修改时不覆盖更新的缓存
	if version == d.version {
		d.cached = result
		d.cachedVersion = version
	}
	return result
}
