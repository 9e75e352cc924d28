package sql

import (
	"context"
	"database/sql"
	"errors"
)

// SQLStore SQLite/MySQL 共用的存储实现
// 方言差异只体现在 upsert 语法上，其余SQL两种方言通用
type SQLStore struct {
	db      *sql.DB
	isMySQL bool
}

// NewSQLStore 包装已迁移完成的连接
func NewSQLStore(db *sql.DB, isMySQL bool) *SQLStore {
	return &SQLStore{db: db, isMySQL: isMySQL}
}

// DB 暴露底层连接（导入工具与测试使用）
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) IsMySQL() bool { return s.isMySQL }

func (s *SQLStore) Validate() error {
	if s.db == nil {
		return errors.New("sql store: nil database")
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
