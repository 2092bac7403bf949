package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "config.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Cache    CacheConfig    `yaml:"cache"`
	Publish  PublishConfig  `yaml:"publish"`
	Log      LogConfig      `yaml:"log"`
	Cron     CronConfig     `yaml:"cron"`
	Engines  []EngineSeed   `yaml:"engines"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release

	// 退出时等待进行中的同步的时间，超时后取消
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql
	Path   string `yaml:"path"`   // sqlite 文件
	DSN    string `yaml:"dsn"`    // mysql
}

type SyncConfig struct {
	Workers         int           `yaml:"workers"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	ArticleTimeout  time.Duration `yaml:"article_timeout"`
	MaxEntries      int           `yaml:"max_entries"` // 单次抓取最多处理的条目数
	MaxFeedBytes    int64         `yaml:"max_feed_bytes"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	SecretKey       string        `yaml:"secret_key"`
	UserAgent       string        `yaml:"user_agent"`

	// 摘要分段的最小尺寸，用于推算最多能分成几段
	SummaryMinChunk  int  `yaml:"summary_min_chunk"`
	RecursiveSummary bool `yaml:"recursive_summary"`
}

type CacheConfig struct {
	Backend    string `yaml:"backend"` // sql, redis
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	HotEntries int    `yaml:"hot_entries"`
}

type PublishConfig struct {
	Dir      string `yaml:"dir"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`

	// 兼容 S3 协议的自建存储
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`

	// 输出 feed 中的站点地址
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// CronConfig 覆盖各刷新间隔的 cron 表达式，key 为 5min/15min/30min/hourly/daily/weekly
type CronConfig struct {
	Schedules map[string]string `yaml:"schedules"`
}

// EngineSeed 启动时按名称写入的引擎配置
type EngineSeed struct {
	Name     string         `yaml:"name"`
	Kind     string         `yaml:"kind"`
	Settings map[string]any `yaml:"settings"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "3000",
			Mode:            "debug",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "data/feeds.db",
		},
		Sync: SyncConfig{
			Workers:          4,
			FetchTimeout:     30 * time.Second,
			ProviderTimeout:  120 * time.Second,
			ArticleTimeout:   20 * time.Second,
			MaxEntries:       1000,
			MaxFeedBytes:     10 << 20,
			MaxRetries:       3,
			RetryBaseDelay:   500 * time.Millisecond,
			UserAgent:        "feed-translator/1.0",
			SummaryMinChunk:  500,
			RecursiveSummary: true,
		},
		Cache: CacheConfig{
			Backend:    "sql",
			RedisAddr:  "127.0.0.1:6379",
			HotEntries: 4096,
		},
		Publish: PublishConfig{
			Dir: "data/feeds",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 加载配置文件；文件不存在时使用默认配置。返回值 found 表示是否读到了文件
func Load(configPath string) (*Config, bool, error) {
	cfg := Default()
	found := false

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, false, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, false, fmt.Errorf("parse %s: %w", configPath, err)
		}
		found = true
	}

	// 环境变量覆盖配置
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		cfg.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if secret := os.Getenv("SECRET_KEY"); secret != "" {
		cfg.Sync.SecretKey = secret
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Publish.Dir = dir
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.RedisAddr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if workers := os.Getenv("SYNC_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return nil, false, fmt.Errorf("SYNC_WORKERS: %w", err)
		}
		cfg.Sync.Workers = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, found, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Cache.Backend {
	case "sql", "redis":
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive")
	}
	if c.Sync.MaxEntries <= 0 {
		return fmt.Errorf("sync.max_entries must be positive")
	}
	if c.Sync.MaxFeedBytes <= 0 {
		return fmt.Errorf("sync.max_feed_bytes must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Sync.MaxRetries <= 0 {
		return fmt.Errorf("sync.max_retries must be positive")
	}
	for _, e := range c.Engines {
		if e.Name == "" || e.Kind == "" {
			return fmt.Errorf("engine seed requires name and kind")
		}
	}
	return nil
}

// GetServerAddress 获取服务器监听地址
func (c *Config) GetServerAddress() string {
	// 如果端口是纯数字,加上冒号前缀
	if _, err := strconv.Atoi(c.Server.Port); err == nil {
		return ":" + c.Server.Port
	}
	return c.Server.Port
}
