// Package config 负责从 .env 与环境变量加载运行配置
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 运行配置（启动时加载一次）
type Config struct {
	Addr    string
	Backend string

	// DynamoDB
	TableName      string
	AWSRegion      string
	AWSAccessKey   string
	AWSSecretKey   string
	DynamoEndpoint string

	// SQL
	SQLitePath string
	MySQLDSN   string

	RedisURL string

	SegmentCount    int
	RunTimeout      time.Duration
	ScanRPS         float64
	PricingFile     string
	SnapshotTTL     time.Duration
	StreamPerMinute int
	DemoMode        bool
}

// Load 读取 .env（找到第一个即停止）后从环境变量构建配置
func Load() (*Config, error) {
	for _, path := range envPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		Addr:            getEnvString("COSTDASH_ADDR", DefaultAddr),
		Backend:         strings.ToLower(getEnvString("COSTDASH_BACKEND", BackendDynamoDB)),
		TableName:       os.Getenv("DYNAMODB_TABLE_NAME"),
		AWSRegion:       getEnvString("AWS_REGION", "us-east-1"),
		AWSAccessKey:    os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:    os.Getenv("AWS_SECRET_ACCESS_KEY"),
		DynamoEndpoint:  os.Getenv("DYNAMODB_ENDPOINT"),
		SQLitePath:      getEnvString("COSTDASH_SQLITE_PATH", filepath.Join("data", "costdash.db")),
		MySQLDSN:        os.Getenv("COSTDASH_MYSQL_DSN"),
		RedisURL:        os.Getenv("COSTDASH_REDIS_URL"),
		SegmentCount:    getEnvInt("COSTDASH_SEGMENTS", DefaultSegmentCount),
		RunTimeout:      getEnvDuration("COSTDASH_RUN_TIMEOUT", DefaultRunTimeout),
		ScanRPS:         getEnvFloat("COSTDASH_SCAN_RPS", DefaultScanRPS),
		PricingFile:     os.Getenv("COSTDASH_PRICING_FILE"),
		SnapshotTTL:     getEnvDuration("COSTDASH_SNAPSHOT_TTL", DefaultSnapshotTTL),
		StreamPerMinute: getEnvInt("COSTDASH_STREAM_LIMIT", DefaultStreamPerMinute),
		DemoMode:        getEnvBool("DEMO_MODE", false),
	}

	// 未配置表名时退化为演示模式
	if cfg.Backend == BackendDynamoDB && cfg.TableName == "" {
		cfg.DemoMode = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendSQLite {
		if err := ensureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return cfg, nil
}

// Validate 校验配置一致性
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDynamoDB, BackendSQLite, BackendMemory:
	case BackendMySQL:
		if c.MySQLDSN == "" && !c.DemoMode {
			return fmt.Errorf("COSTDASH_MYSQL_DSN is required for backend %q", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SegmentCount <= 0 || c.SegmentCount > MaxSegmentCount {
		return fmt.Errorf("COSTDASH_SEGMENTS must be in [1, %d], got %d", MaxSegmentCount, c.SegmentCount)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("COSTDASH_RUN_TIMEOUT must be positive")
	}
	return nil
}

func envPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(cwd, ".env.local"),
			filepath.Join(cwd, ".env"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "costdash", ".env"))
	}
	return paths
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration 支持 "30s"/"5m" 以及纯数字秒
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
