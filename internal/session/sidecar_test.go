// internal/session/sidecar_test.go
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/models"
)

// unreachable 没有服务监听的地址
const unreachable = "http://127.0.0.1:1"

type fakeBackend struct {
	mu      sync.Mutex
	debug   bool
	toggles []bool
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	backend := &fakeBackend{debug: false}
	mux := http.NewServeMux()
	mux.HandleFunc(PathDebugStatus, func(w http.ResponseWriter, r *http.Request) {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		_ = json.NewEncoder(w).Encode(DebugStatus{DebugMode: backend.debug})
	})
	mux.HandleFunc(PathDebugToggle, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req DebugToggle
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		backend.mu.Lock()
		backend.debug = req.Enabled
		backend.toggles = append(backend.toggles, req.Enabled)
		backend.mu.Unlock()
		_ = json.NewEncoder(w).Encode(DebugStatus{DebugMode: req.Enabled, Message: "ok"})
	})
	mux.HandleFunc(PathVersion, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.VersionInfo{
			Version:      "test",
			Features:     map[string]bool{"nested_blocks": true},
			Orchestrator: "gateway",
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return backend, server
}

func TestSidecarFetchDebugStatus(t *testing.T) {
	_, server := newFakeBackend(t)
	sidecar := NewSidecar(server.URL, server.Client())

	assert.Equal(t, DefaultDebugEnabled, sidecar.DebugEnabled())
	enabled, err := sidecar.FetchDebugStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.False(t, sidecar.DebugEnabled())
}

func TestSidecarToggleSyncsBackend(t *testing.T) {
	backend, server := newFakeBackend(t)
	sidecar := NewSidecar(server.URL, server.Client())

	enabled, err := sidecar.ToggleDebug(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled, "默认开启，翻转后关闭")

	enabled, err = sidecar.ToggleDebug(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []bool{false, true}, backend.toggles)
}

func TestSidecarToggleUnreachableStillFlipsLocally(t *testing.T) {
	sidecar := NewSidecar(unreachable, nil)
	require.True(t, sidecar.DebugEnabled())

	var (
		enabled bool
		err     error
	)
	require.NotPanics(t, func() {
		enabled, err = sidecar.ToggleDebug(context.Background())
	})
	assert.False(t, enabled)
	assert.False(t, sidecar.DebugEnabled(), "本地标志仍然翻转")
	assert.True(t, apperrors.IsSidecarUnavailable(err))

	enabled, _ = sidecar.ToggleDebug(context.Background())
	assert.True(t, enabled)
}

func TestSidecarConcurrentTogglesAlternate(t *testing.T) {
	backend, server := newFakeBackend(t)
	sidecar := NewSidecar(server.URL, server.Client())

	const toggles = 10
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sidecar.ToggleDebug(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, DefaultDebugEnabled, sidecar.DebugEnabled(), "偶数次翻转回到初始值")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.toggles, toggles)
	offs := 0
	for _, enabled := range backend.toggles {
		if !enabled {
			offs++
		}
	}
	assert.Equal(t, toggles/2, offs, "每次翻转都基于上一次的值")
}

func TestSidecarStatusFailureKeepsLastKnown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sidecar := NewSidecar(server.URL, server.Client())
	enabled, err := sidecar.FetchDebugStatus(context.Background())
	assert.True(t, apperrors.IsSidecarUnavailable(err))
	assert.Equal(t, DefaultDebugEnabled, enabled)

	info, err := sidecar.FetchVersion(context.Background())
	assert.Error(t, err)
	assert.Nil(t, info)
	assert.False(t, sidecar.NestedBlocks(), "未知时视为不支持嵌套")
}

func TestSidecarProbe(t *testing.T) {
	_, server := newFakeBackend(t)
	sidecar := NewSidecar(server.URL, server.Client())

	result := sidecar.Probe(context.Background())
	require.NoError(t, result.DebugErr)
	require.NoError(t, result.VersionErr)
	assert.False(t, result.DebugEnabled)
	require.NotNil(t, result.Version)
	assert.Equal(t, "gateway", result.Version.Orchestrator)
	assert.True(t, sidecar.NestedBlocks())

	offline := NewSidecar(unreachable, nil).Probe(context.Background())
	assert.True(t, apperrors.IsSidecarUnavailable(offline.DebugErr))
	assert.True(t, apperrors.IsSidecarUnavailable(offline.VersionErr))
	assert.Equal(t, DefaultDebugEnabled, offline.DebugEnabled)
	assert.Nil(t, offline.Version)
}
