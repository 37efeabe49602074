package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"route-gateway/internal/trie"
)

const (
	// EnvConfigPath は設定ファイルのパスを上書きする環境変数
	EnvConfigPath = "GATEWAY_CONFIG"
	// EnvLogLevel はログレベルを上書きする環境変数
	EnvLogLevel = "GATEWAY_LOG_LEVEL"
)

// ルートの取得元
const (
	SourceFile  = "file"
	SourceRedis = "redis"
)

// Config はAPI Gatewayの設定全体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Routing RoutingConfig `yaml:"routing"`
	Redis   RedisConfig   `yaml:"redis,omitempty"`
	Admin   AdminConfig   `yaml:"admin,omitempty"`
}

// ServerConfig はHTTPサーバの設定
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig はログの設定
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RoutingConfig はルーティングの設定
type RoutingConfig struct {
	// Source はルート定義の取得元（file または redis）
	Source string `yaml:"source"`
	// ConfigFile はルーティング設定ファイルのパス（source: file）
	ConfigFile string `yaml:"config_file"`
	// EnableHotReload はルーティング設定ファイルの変更を監視して再読み込みするか
	EnableHotReload bool `yaml:"enable_hot_reload"`
	// RedisKey はルート定義を格納するハッシュのキー（source: redis）
	RedisKey string `yaml:"redis_key,omitempty"`

	// ServletPath はリクエストパスから取り除くベースパス
	ServletPath string `yaml:"servlet_path,omitempty"`
	// Prefix は全てのルートに付与するプレフィックス
	Prefix string `yaml:"prefix,omitempty"`
	// StripPrefix は転送時にプレフィックスを取り除くか
	StripPrefix bool `yaml:"strip_prefix"`
	// Retryable はルートで指定が無い場合のリトライ可否
	Retryable bool `yaml:"retryable"`

	Trie trie.Config `yaml:"trie"`
}

// RedisConfig はRedisの設定
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// KeyPrefix はルート定義のハッシュキーに付与するプレフィックス
	KeyPrefix string `yaml:"key_prefix"`
}

// AdminConfig は管理用エンドポイントの設定
type AdminConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PathPrefix string `yaml:"path_prefix,omitempty"`
	// PublicKeyFiles はJWT検証用の公開鍵ファイルのパス (kid → ファイルパス)
	PublicKeyFiles map[string]string `yaml:"public_key_files,omitempty"`
}

// Route はルーティング設定の1つのルート
type Route struct {
	ID          string             `yaml:"id,omitempty"`
	Path        string             `yaml:"path"`
	Methods     []string           `yaml:"methods,omitempty"`
	Backend     BackendConfig      `yaml:"backend"`
	StripPrefix *bool              `yaml:"strip_prefix,omitempty"`
	Retryable   *bool              `yaml:"retryable,omitempty"`
	Middleware  []MiddlewareConfig `yaml:"middleware,omitempty"`
	Priority    int                `yaml:"priority,omitempty"`
}

// BackendConfig はバックエンドの設定
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MiddlewareConfig はミドルウェアの設定
type MiddlewareConfig struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config,omitempty"`
}

// RoutingFileConfig はルーティング設定ファイルの構造
type RoutingFileConfig struct {
	Routes []Route `yaml:"routes"`
}

// ConfigPath は環境変数が設定されていればそのパスを、なければ defaultPath を返す
func ConfigPath(defaultPath string) string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return defaultPath
}

// LoadConfig は設定ファイルを読み込む
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadRoutingConfig はルーティング設定ファイルを読み込む
func LoadRoutingConfig(path string) (*RoutingFileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing config file: %w", err)
	}

	return ParseRoutingConfig(data)
}

// ParseRoutingConfig はルーティング設定をパースする
func ParseRoutingConfig(data []byte) (*RoutingFileConfig, error) {
	var cfg RoutingFileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal routing config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Routing.Source == "" {
		c.Routing.Source = SourceFile
	}
	if c.Routing.RedisKey == "" {
		c.Routing.RedisKey = "routes"
	}
	if c.Admin.PathPrefix == "" {
		c.Admin.PathPrefix = "/admin"
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	switch c.Routing.Source {
	case SourceFile, "":
		if c.Routing.ConfigFile == "" {
			return fmt.Errorf("routing config_file is required")
		}
	case SourceRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("redis host is required for routing source %q", SourceRedis)
		}
		if c.Routing.EnableHotReload {
			return fmt.Errorf("enable_hot_reload is only supported for routing source %q", SourceFile)
		}
	default:
		return fmt.Errorf("invalid routing source: %s", c.Routing.Source)
	}

	if err := c.Routing.Trie.Validate(); err != nil {
		return fmt.Errorf("invalid routing trie: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Redis設定のバリデーション（オプション）
	if c.Redis.Host != "" {
		if c.Redis.DB < 0 {
			return fmt.Errorf("redis db must be non-negative")
		}
		if c.Redis.PoolSize < 0 {
			return fmt.Errorf("redis pool_size must be non-negative")
		}
		if c.Redis.DialTimeout < 0 {
			return fmt.Errorf("redis dial_timeout must be non-negative")
		}
		if c.Redis.ReadTimeout < 0 {
			return fmt.Errorf("redis read_timeout must be non-negative")
		}
		if c.Redis.WriteTimeout < 0 {
			return fmt.Errorf("redis write_timeout must be non-negative")
		}
	}

	if c.Admin.Enabled && len(c.Admin.PublicKeyFiles) == 0 {
		return fmt.Errorf("admin public_key_files is required when admin is enabled")
	}

	return nil
}

// Address はサーバのアドレスを返す
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
