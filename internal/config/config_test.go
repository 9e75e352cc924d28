package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate 切到空目录并清空相关环境变量，避免读到开发机上的 .env
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, key := range []string{
		"COSTDASH_ADDR", "COSTDASH_BACKEND", "DYNAMODB_TABLE_NAME", "AWS_REGION",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "DYNAMODB_ENDPOINT",
		"COSTDASH_SQLITE_PATH", "COSTDASH_MYSQL_DSN", "COSTDASH_REDIS_URL",
		"COSTDASH_SEGMENTS", "COSTDASH_RUN_TIMEOUT", "COSTDASH_SCAN_RPS",
		"COSTDASH_PRICING_FILE", "COSTDASH_SNAPSHOT_TTL", "COSTDASH_STREAM_LIMIT", "DEMO_MODE",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, BackendDynamoDB, cfg.Backend)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, DefaultSegmentCount, cfg.SegmentCount)
	assert.Equal(t, DefaultRunTimeout, cfg.RunTimeout)
	// 没有表名时退化为演示模式
	assert.True(t, cfg.DemoMode)
}

func TestLoad_FromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("COSTDASH_BACKEND", "DynamoDB")
	t.Setenv("DYNAMODB_TABLE_NAME", "usage")
	t.Setenv("COSTDASH_SEGMENTS", "8")
	t.Setenv("COSTDASH_RUN_TIMEOUT", "90")
	t.Setenv("COSTDASH_SNAPSHOT_TTL", "2m")
	t.Setenv("COSTDASH_SCAN_RPS", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendDynamoDB, cfg.Backend)
	assert.False(t, cfg.DemoMode)
	assert.Equal(t, 8, cfg.SegmentCount)
	assert.Equal(t, 90*time.Second, cfg.RunTimeout)
	assert.Equal(t, 2*time.Minute, cfg.SnapshotTTL)
	assert.Equal(t, float64(DefaultScanRPS), cfg.ScanRPS, "负数回退为默认值")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("COSTDASH_BACKEND=memory\nCOSTDASH_SEGMENTS=3\n"), 0o600))

	// t.Setenv 置空的变量不会被 godotenv 覆盖，这里显式取消
	os.Unsetenv("COSTDASH_BACKEND")
	os.Unsetenv("COSTDASH_SEGMENTS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 3, cfg.SegmentCount)
}

func TestLoad_SQLiteCreatesDir(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "db", "costdash.db")
	t.Setenv("COSTDASH_BACKEND", "sqlite")
	t.Setenv("COSTDASH_SQLITE_PATH", path)

	_, err := Load()
	require.NoError(t, err)
	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Backend: BackendMemory, SegmentCount: 4, RunTimeout: time.Minute}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "postgres" }, wantErr: "unknown backend"},
		{name: "mysql without dsn", mutate: func(c *Config) { c.Backend = BackendMySQL }, wantErr: "COSTDASH_MYSQL_DSN"},
		{name: "mysql demo", mutate: func(c *Config) { c.Backend = BackendMySQL; c.DemoMode = true }},
		{name: "zero segments", mutate: func(c *Config) { c.SegmentCount = 0 }, wantErr: "COSTDASH_SEGMENTS"},
		{name: "too many segments", mutate: func(c *Config) { c.SegmentCount = MaxSegmentCount + 1 }, wantErr: "COSTDASH_SEGMENTS"},
		{name: "no timeout", mutate: func(c *Config) { c.RunTimeout = 0 }, wantErr: "COSTDASH_RUN_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
