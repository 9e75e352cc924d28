package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"costdash/internal/config"
	sqlstore "costdash/internal/storage/sql"
)

// OpenSQLite 打开（必要时创建）SQLite数据库并执行迁移
func OpenSQLite(ctx context.Context, dbPath string) (*sqlstore.SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_fk=1&_pragma=journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite数据库失败: %w", err)
	}

	// 单连接模式，避免并发写入问题
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(ctx, db, DialectSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("SQLite迁移失败: %w", err)
	}

	log.Printf("[INFO] SQLite存储已初始化: %s", dbPath)
	return sqlstore.NewSQLStore(db, false), nil
}

// OpenMySQL 连接MySQL并执行迁移
func OpenMySQL(ctx context.Context, dsn string) (*sqlstore.SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn: %w", ErrNotConfigured)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开MySQL连接失败: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("MySQL连接失败: %w", err)
	}

	if err := migrate(ctx, db, DialectMySQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("MySQL迁移失败: %w", err)
	}

	log.Print("[INFO] MySQL存储已初始化")
	return sqlstore.NewSQLStore(db, true), nil
}

// OpenSQL 按配置打开SQL后端（导入工具使用）
func OpenSQL(ctx context.Context, cfg *config.Config) (*sqlstore.SQLStore, error) {
	switch cfg.Backend {
	case config.BackendMySQL:
		return OpenMySQL(ctx, cfg.MySQLDSN)
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("backend %q is not a SQL backend", cfg.Backend)
	}
}

// Open 按配置创建扫描用存储，外层统一包装限速与熔断
func Open(ctx context.Context, cfg *config.Config) (*GuardedStore, error) {
	var inner SegmentStore
	switch cfg.Backend {
	case config.BackendDynamoDB:
		d, err := NewDynamoStore(ctx, DynamoOptions{
			Table:     cfg.TableName,
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			Endpoint:  cfg.DynamoEndpoint,
		})
		if err != nil {
			return nil, err
		}
		inner = d
	case config.BackendSQLite, config.BackendMySQL:
		s, err := OpenSQL(ctx, cfg)
		if err != nil {
			return nil, err
		}
		inner = s
	case config.BackendMemory:
		inner = NewMemoryStore(DefaultMemoryPageSize)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	log.Printf("[INFO] 存储后端: %s (分段数=%d, 限速=%.0f次/秒)", cfg.Backend, cfg.SegmentCount, cfg.ScanRPS)
	return NewGuardedStore(inner, DefaultGuardOptions(cfg.ScanRPS)), nil
}
