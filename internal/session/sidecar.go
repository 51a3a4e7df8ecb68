// internal/session/sidecar.go
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

// 辅助端点路径
const (
	PathDebugStatus = "/debug/status"
	PathDebugToggle = "/debug/toggle"
	PathVersion     = "/version"
)

// DefaultDebugEnabled 未从后端获取到状态时的调试模式
const DefaultDebugEnabled = true

// DebugStatus /debug/status 与 /debug/toggle 的响应
type DebugStatus struct {
	DebugMode bool   `json:"debug_mode"`
	Message   string `json:"message,omitempty"`
}

// DebugToggle /debug/toggle 的请求体
type DebugToggle struct {
	Enabled bool `json:"enabled"`
}

// Sidecar 调试状态与版本查询客户端
//
// 所有查询都是尽力而为：失败返回 SidecarUnavailable，本地值保持最后一次已知值或默认值。
type Sidecar struct {
	baseURL string
	client  *http.Client

	mu      sync.RWMutex
	debug   bool
	version *models.VersionInfo

	logger  *utils.Logger
	metrics *utils.RunMetrics
}

// NewSidecar 创建辅助端点客户端
func NewSidecar(baseURL string, client *http.Client) *Sidecar {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Sidecar{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		debug:   DefaultDebugEnabled,
		logger:  utils.GetLogger(),
		metrics: utils.NewRunMetrics(),
	}
}

// DebugEnabled 本地的调试模式标志
func (s *Sidecar) DebugEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debug
}

// Version 最后一次成功获取的版本信息，可能为 nil
func (s *Sidecar) Version() *models.VersionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// NestedBlocks 后端是否声明支持嵌套块，未知时为 false
func (s *Sidecar) NestedBlocks() bool {
	return s.Version().NestedBlocks()
}

// FetchDebugStatus 查询后端调试模式；失败时返回本地值
func (s *Sidecar) FetchDebugStatus(ctx context.Context) (bool, error) {
	var status DebugStatus
	if err := s.do(ctx, http.MethodGet, PathDebugStatus, nil, &status); err != nil {
		return s.DebugEnabled(), err
	}

	s.mu.Lock()
	s.debug = status.DebugMode
	s.mu.Unlock()
	return status.DebugMode, nil
}

// SetDebug 设置调试模式；本地值总是更新，后端失败只返回 SidecarUnavailable
func (s *Sidecar) SetDebug(ctx context.Context, enabled bool) (bool, error) {
	s.mu.Lock()
	s.debug = enabled
	s.mu.Unlock()
	return s.postDebug(ctx, enabled)
}

// ToggleDebug 翻转本地调试模式并尝试同步到后端
func (s *Sidecar) ToggleDebug(ctx context.Context) (bool, error) {
	s.mu.Lock()
	s.debug = !s.debug
	enabled := s.debug
	s.mu.Unlock()
	return s.postDebug(ctx, enabled)
}

// postDebug 把本地已经确定的值发送给后端
func (s *Sidecar) postDebug(ctx context.Context, enabled bool) (bool, error) {
	var status DebugStatus
	if err := s.do(ctx, http.MethodPost, PathDebugToggle, DebugToggle{Enabled: enabled}, &status); err != nil {
		return enabled, err
	}
	return enabled, nil
}

// FetchVersion 查询后端版本与特性；失败时返回最后已知值（可能为 nil）
func (s *Sidecar) FetchVersion(ctx context.Context) (*models.VersionInfo, error) {
	var info models.VersionInfo
	if err := s.do(ctx, http.MethodGet, PathVersion, nil, &info); err != nil {
		return s.Version(), err
	}

	s.mu.Lock()
	s.version = &info
	s.mu.Unlock()
	return &info, nil
}

// ProbeResult 并发探测的结果
type ProbeResult struct {
	DebugEnabled bool
	Version      *models.VersionInfo
	DebugErr     error
	VersionErr   error
}

// Probe 并发查询调试状态与版本，任何一项失败都不影响另一项
func (s *Sidecar) Probe(ctx context.Context) ProbeResult {
	var result ProbeResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result.DebugEnabled, result.DebugErr = s.FetchDebugStatus(gctx)
		return nil
	})
	g.Go(func() error {
		result.Version, result.VersionErr = s.FetchVersion(gctx)
		return nil
	})
	_ = g.Wait()

	return result
}

// do 发送请求并解码 JSON 响应，所有失败都包装为 SidecarUnavailable
func (s *Sidecar) do(ctx context.Context, method, path string, body, out interface{}) error {
	err := s.request(ctx, method, path, body, out)
	if err == nil {
		return nil
	}

	s.metrics.SidecarFailed(path)
	s.logger.Warn("⚠️ 辅助端点不可用，使用本地值", map[string]interface{}{
		"endpoint": path,
		"error":    err,
	})
	return errors.NewSidecarUnavailable(path, err)
}

func (s *Sidecar) request(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
