// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/PolyglotRunner/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "BACKEND_URL", "GRAMMAR_MODE", "EXEC_TIMEOUT", "DEBUG_MODE", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, models.ModeSequential, cfg.GrammarMode)
	assert.Equal(t, 30*time.Second, cfg.ExecTimeout)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRAMMAR_MODE", "indent")
	t.Setenv("EXEC_TIMEOUT", "2s")
	t.Setenv("DEBUG_MODE", "0")
	t.Setenv("BACKEND_URL", "https://runner.example.com/")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("POLY_EXEC_PY", "python3 -")
	t.Setenv("POLY_EXEC_C", "  ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, models.ModeIndentationNested, cfg.GrammarMode)
	assert.Equal(t, 2*time.Second, cfg.ExecTimeout)
	assert.False(t, cfg.DebugMode)
	assert.Equal(t, "https://runner.example.com", cfg.BackendURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"python3", "-"}, cfg.ExecCommands["py"])
	assert.NotContains(t, cfg.ExecCommands, "c", "空命令被忽略")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("GRAMMAR_MODE", "zigzag")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("GRAMMAR_MODE", "")
	t.Setenv("EXEC_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestDebugModePersists(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEBUG_MODE", "true")
	t.Setenv("GRAMMAR_MODE", "")
	t.Setenv("EXEC_TIMEOUT", "")

	require.NoError(t, InitConfig(dir))
	assert.True(t, GetCurrentConfig().DebugMode)

	require.NoError(t, UpdateDebugMode(false))
	assert.False(t, GetCurrentConfig().DebugMode)
	_, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	// 重新初始化时保存的值优先
	require.NoError(t, InitConfig(dir))
	assert.False(t, GetCurrentConfig().DebugMode)

	copyCfg := GetCurrentConfig()
	copyCfg.DebugMode = true
	assert.False(t, GetCurrentConfig().DebugMode, "返回的是副本")
}
