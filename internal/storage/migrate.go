package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"costdash/internal/storage/schema"
)

// Dialect 数据库方言
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectMySQL
)

func (d Dialect) String() string {
	if d == DialectMySQL {
		return "mysql"
	}
	return "sqlite"
}

// columnAddition 增量迁移：表已存在时补齐后加字段
type columnAddition struct {
	table     string
	column    string
	mysqlDDL  string
	sqliteDDL string
}

var columnAdditions = []columnAddition{
	{
		table:     "usage_records",
		column:    "search_type",
		mysqlDDL:  "ALTER TABLE usage_records ADD COLUMN search_type VARCHAR(64) NOT NULL DEFAULT '' COMMENT '搜索类型(tipo_busqueda冗余列)'",
		sqliteDDL: "ALTER TABLE usage_records ADD COLUMN search_type TEXT NOT NULL DEFAULT ''",
	},
}

// migrate 统一迁移逻辑
func migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	tables := []func() *schema.TableBuilder{
		schema.DefineUsageRecordsTable,
		schema.DefineImportBatchesTable,
	}

	for _, defineTable := range tables {
		tb := defineTable()

		if _, err := db.ExecContext(ctx, buildDDL(tb, dialect)); err != nil {
			return fmt.Errorf("create %s table: %w", tb.Name(), err)
		}

		for _, add := range columnAdditions {
			if add.table != tb.Name() {
				continue
			}
			if err := ensureColumn(ctx, db, dialect, add); err != nil {
				return fmt.Errorf("migrate %s.%s: %w", add.table, add.column, err)
			}
		}

		for _, idx := range buildIndexes(tb, dialect) {
			if err := createIndex(ctx, db, idx, dialect); err != nil {
				return err
			}
		}
	}

	return nil
}

func ensureColumn(ctx context.Context, db *sql.DB, dialect Dialect, add columnAddition) error {
	exists, err := columnExists(ctx, db, dialect, add.table, add.column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	ddl := add.sqliteDDL
	if dialect == DialectMySQL {
		ddl = add.mysqlDDL
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("add %s column: %w", add.column, err)
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, dialect Dialect, table, column string) (bool, error) {
	if dialect == DialectMySQL {
		var count int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA=DATABASE() AND TABLE_NAME=? AND COLUMN_NAME=?",
			table, column,
		).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("check column existence: %w", err)
		}
		return count > 0, nil
	}

	// SQLite 用 PRAGMA table_info 检查字段是否存在
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("check table info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scan column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func buildDDL(tb *schema.TableBuilder, dialect Dialect) string {
	if dialect == DialectMySQL {
		return tb.BuildMySQL()
	}
	return tb.BuildSQLite()
}

func buildIndexes(tb *schema.TableBuilder, dialect Dialect) []schema.IndexDef {
	if dialect == DialectMySQL {
		return tb.GetIndexesMySQL()
	}
	return tb.GetIndexesSQLite()
}

func createIndex(ctx context.Context, db *sql.DB, idx schema.IndexDef, dialect Dialect) error {
	_, err := db.ExecContext(ctx, idx.SQL)
	if err == nil {
		return nil
	}

	// MySQL 5.6不支持IF NOT EXISTS，忽略重复索引错误
	if dialect == DialectMySQL && strings.Contains(err.Error(), "Duplicate key name") {
		return nil
	}

	return fmt.Errorf("create index %s: %w", idx.Name, err)
}
