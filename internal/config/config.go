// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/Corphon/PolyglotRunner/internal/models"
)

// ExecEnvPrefix 语言执行器命令的环境变量前缀，例如 POLY_EXEC_PY="python3 -"
const ExecEnvPrefix = "POLY_EXEC_"

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 运行期可修改并持久化到 config.json 的配置
type AppConfig struct {
	Port           string             `json:"port"`
	DataDir        string             `json:"data_dir"`
	LogDir         string             `json:"log_dir"`
	DebugMode      bool               `json:"debug_mode"`
	GrammarMode    models.GrammarMode `json:"grammar_mode"`
	HighlightStyle string             `json:"highlight_style"`
}

// Config 从环境变量加载的配置
type Config struct {
	Port           string
	BackendURL     string
	DataDir        string
	LogDir         string
	DebugMode      bool
	GrammarMode    models.GrammarMode
	HighlightStyle string
	ExecTimeout    time.Duration
	ExecCommands   map[string][]string // 语言标识(小写) -> 命令行
	CORSOrigins    []string
	RateLimit      int // 每个IP每分钟的 /api 请求数，0 表示不限流
}

// Load 从 .env 与环境变量加载配置
func Load() (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	mode, err := models.ParseGrammarMode(getEnv("GRAMMAR_MODE", string(models.ModeSequential)))
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(getEnv("EXEC_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("EXEC_TIMEOUT 无效: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("EXEC_TIMEOUT 必须大于 0")
	}

	rateLimit, err := strconv.Atoi(getEnv("API_RATE_LIMIT", "120"))
	if err != nil || rateLimit < 0 {
		return nil, fmt.Errorf("API_RATE_LIMIT 无效: %s", os.Getenv("API_RATE_LIMIT"))
	}

	return &Config{
		Port:           getEnv("PORT", "8000"),
		BackendURL:     strings.TrimSuffix(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
		DataDir:        getEnv("DATA_DIR", "data"),
		LogDir:         getEnv("LOG_DIR", "logs"),
		DebugMode:      getEnvBool("DEBUG_MODE", true),
		GrammarMode:    mode,
		HighlightStyle: getEnv("HIGHLIGHT_STYLE", "monokai"),
		ExecTimeout:    timeout,
		ExecCommands:   execCommands(os.Environ()),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
		RateLimit:      rateLimit,
	}, nil
}

// Languages 已配置执行器的语言，按字母排序
func (c *Config) Languages() []string {
	languages := make([]string, 0, len(c.ExecCommands))
	for lang := range c.ExecCommands {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes" || value == "on"
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// execCommands 收集 POLY_EXEC_<LANG> 变量
func execCommands(environ []string) map[string][]string {
	commands := make(map[string][]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, ExecEnvPrefix) {
			continue
		}
		lang := strings.ToLower(strings.TrimPrefix(key, ExecEnvPrefix))
		fields := strings.Fields(value)
		if lang == "" || len(fields) == 0 {
			continue
		}
		commands[lang] = fields
	}
	return commands
}

// InitConfig 初始化配置管理器；config.json 中保存的调试模式优先于环境变量
func InitConfig(dataDir string) error {
	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(dataDir, "config.json")
	currentConfig = &AppConfig{
		Port:           baseConfig.Port,
		DataDir:        dataDir,
		LogDir:         baseConfig.LogDir,
		DebugMode:      baseConfig.DebugMode,
		GrammarMode:    baseConfig.GrammarMode,
		HighlightStyle: baseConfig.HighlightStyle,
	}

	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if json.Unmarshal(data, &saved) == nil {
			currentConfig.DebugMode = saved.DebugMode
			if saved.HighlightStyle != "" {
				currentConfig.HighlightStyle = saved.HighlightStyle
			}
		}
	}

	return saveLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, err := Load()
		if err != nil {
			return &AppConfig{Port: "8000", DataDir: "data", LogDir: "logs", DebugMode: true,
				GrammarMode: models.ModeSequential, HighlightStyle: "monokai"}
		}
		return &AppConfig{
			Port:           baseConfig.Port,
			DataDir:        baseConfig.DataDir,
			LogDir:         baseConfig.LogDir,
			DebugMode:      baseConfig.DebugMode,
			GrammarMode:    baseConfig.GrammarMode,
			HighlightStyle: baseConfig.HighlightStyle,
		}
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateDebugMode 更新并保存调试模式
func UpdateDebugMode(enabled bool) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	currentConfig.DebugMode = enabled
	return saveLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	return os.WriteFile(configFile, data, 0644)
}
