// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/PolyglotRunner/internal/errors"
)

// FileStorage 基于目录的 JSON 文件存储
type FileStorage struct {
	BaseDir string

	fileLocks sync.Map // path -> *sync.RWMutex

	cache      map[string]cacheEntry
	cacheMutex sync.RWMutex
	cacheSize  int
}

type cacheEntry struct {
	data     []byte
	storedAt time.Time
}

// FileInfo 列表中的一个文件
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// NewFileStorage 创建存储并确保根目录存在
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &FileStorage{
		BaseDir:   baseDir,
		cache:     make(map[string]cacheEntry),
		cacheSize: 64,
	}, nil
}

func (fs *FileStorage) lockFor(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// resolve 拒绝逃出根目录的路径
func (fs *FileStorage) resolve(dirPath, filename string) (string, error) {
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", errors.NewValidationError(fmt.Sprintf("非法文件名: %q", filename), nil)
	}
	full := filepath.Join(fs.BaseDir, dirPath, filename)
	rel, err := filepath.Rel(fs.BaseDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.NewValidationError(fmt.Sprintf("非法路径: %s/%s", dirPath, filename), err)
	}
	return full, nil
}

// SaveFile 先写临时文件再重命名，读者不会看到写了一半的内容
func (fs *FileStorage) SaveFile(dirPath, filename string, content []byte) error {
	fullPath, err := fs.resolve(dirPath, filename)
	if err != nil {
		return err
	}

	lock := fs.lockFor(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("保存文件失败: %w", err)
	}

	fs.storeCache(fullPath, content)
	return nil
}

// SaveJSONFile 序列化后保存
func (fs *FileStorage) SaveJSONFile(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	return fs.SaveFile(dirPath, filename, content)
}

// LoadFile 读取文件，不存在时返回 NotFound
func (fs *FileStorage) LoadFile(dirPath, filename string) ([]byte, error) {
	fullPath, err := fs.resolve(dirPath, filename)
	if err != nil {
		return nil, err
	}

	if data, ok := fs.cached(fullPath); ok {
		return data, nil
	}

	lock := fs.lockFor(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError(fmt.Sprintf("文件不存在: %s", filename), err)
	}
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	fs.storeCache(fullPath, content)
	return content, nil
}

// LoadJSONFile 读取并反序列化
func (fs *FileStorage) LoadJSONFile(dirPath, filename string, v interface{}) error {
	content, err := fs.LoadFile(dirPath, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

// FileExists 文件是否存在
func (fs *FileStorage) FileExists(dirPath, filename string) bool {
	fullPath, err := fs.resolve(dirPath, filename)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// DeleteFile 删除文件
func (fs *FileStorage) DeleteFile(dirPath, filename string) error {
	fullPath, err := fs.resolve(dirPath, filename)
	if err != nil {
		return err
	}

	lock := fs.lockFor(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError(fmt.Sprintf("文件不存在: %s", filename), err)
		}
		return fmt.Errorf("删除文件失败: %w", err)
	}

	fs.cacheMutex.Lock()
	delete(fs.cache, fullPath)
	fs.cacheMutex.Unlock()
	return nil
}

// ListFiles 列出目录下指定扩展名的文件，按修改时间倒序；目录不存在时返回空列表
func (fs *FileStorage) ListFiles(dirPath, ext string) ([]FileInfo, error) {
	entries, err := os.ReadDir(filepath.Join(fs.BaseDir, dirPath))
	if os.IsNotExist(err) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || (ext != "" && filepath.Ext(entry.Name()) != ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name > files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

func (fs *FileStorage) cached(fullPath string) ([]byte, bool) {
	fs.cacheMutex.RLock()
	defer fs.cacheMutex.RUnlock()
	entry, ok := fs.cache[fullPath]
	return entry.data, ok
}

// storeCache 超过容量时淘汰最旧的条目
func (fs *FileStorage) storeCache(fullPath string, data []byte) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	fs.cache[fullPath] = cacheEntry{data: data, storedAt: time.Now()}
	if len(fs.cache) <= fs.cacheSize {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, entry := range fs.cache {
		if oldestKey == "" || entry.storedAt.Before(oldest) {
			oldestKey, oldest = key, entry.storedAt
		}
	}
	delete(fs.cache, oldestKey)
}
