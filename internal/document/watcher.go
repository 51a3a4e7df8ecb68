// internal/document/watcher.go
package document

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// DefaultDebounce 连续保存合并为一次重新分段
const DefaultDebounce = 200 * time.Millisecond

// Snapshot 文件某一版本的分段结果
type Snapshot struct {
	Path         string
	Version      uint64
	Text         string
	Segmentation *models.Segmentation
}

// Watcher 监视文档文件，变更后重新分段
type Watcher struct {
	path     string
	doc      *Document
	debounce time.Duration
	onChange func(Snapshot)
	logger   *utils.Logger
}

// NewWatcher 创建监视器；onChange 在监视协程中串行调用
func NewWatcher(path string, mode models.GrammarMode, onChange func(Snapshot)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     abs,
		doc:      New("", mode),
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   utils.GetLogger(),
	}, nil
}

// SetDebounce 调整合并窗口
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run 先加载一次，然后阻塞监视直到 ctx 取消
//
// 监视所在目录而不是文件本身，编辑器以重命名方式保存时也能收到事件。
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	if err := w.reload(); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("⚠️ 文件监视出错", map[string]interface{}{"path": w.path, "error": err})

		case <-timer.C:
			if err := w.reload(); err != nil {
				// 重命名保存的中间状态可能短暂读不到文件
				w.logger.Warn("⚠️ 重新加载文档失败", map[string]interface{}{"path": w.path, "error": err})
			}
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	text := string(data)
	if text == w.doc.Text() && w.doc.Version() > 1 {
		return nil
	}
	version := w.doc.Replace(text)

	if w.onChange != nil {
		w.onChange(Snapshot{
			Path:         w.path,
			Version:      version,
			Text:         text,
			Segmentation: w.doc.Segmentation(),
		})
	}
	return nil
}
