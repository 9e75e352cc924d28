package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// TableBuilder 以MySQL语法定义表结构，按方言生成DDL
type TableBuilder struct {
	name    string
	columns []string
	indexes []IndexDef
}

// IndexDef 索引定义
type IndexDef struct {
	Name    string
	Columns string
	SQL     string
}

func NewTable(name string) *TableBuilder {
	return &TableBuilder{name: name}
}

func (t *TableBuilder) Name() string { return t.name }

// Column 追加列定义（MySQL语法）
func (t *TableBuilder) Column(def string) *TableBuilder {
	t.columns = append(t.columns, def)
	return t
}

// Index 追加普通索引
func (t *TableBuilder) Index(name, columns string) *TableBuilder {
	t.indexes = append(t.indexes, IndexDef{Name: name, Columns: columns})
	return t
}

// BuildMySQL 生成MySQL建表语句
func (t *TableBuilder) BuildMySQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		t.name, strings.Join(t.columns, ",\n\t"))
}

// BuildSQLite 生成SQLite建表语句
func (t *TableBuilder) BuildSQLite() string {
	cols := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		cols = append(cols, toSQLiteColumn(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, strings.Join(cols, ",\n\t"))
}

// GetIndexesMySQL MySQL 5.6 不支持 IF NOT EXISTS，重复索引错误由调用方忽略
func (t *TableBuilder) GetIndexesMySQL() []IndexDef {
	out := make([]IndexDef, 0, len(t.indexes))
	for _, idx := range t.indexes {
		idx.SQL = fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.Name, t.name, idx.Columns)
		out = append(out, idx)
	}
	return out
}

func (t *TableBuilder) GetIndexesSQLite() []IndexDef {
	out := make([]IndexDef, 0, len(t.indexes))
	for _, idx := range t.indexes {
		idx.SQL = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.Name, t.name, idx.Columns)
		out = append(out, idx)
	}
	return out
}

var (
	reVarchar   = regexp.MustCompile(`(?i)\bVARCHAR\(\d+\)`)
	reIntTypes  = regexp.MustCompile(`(?i)\b(BIGINT|TINYINT|INT)\b`)
	reTextTypes = regexp.MustCompile(`(?i)\b(MEDIUMTEXT|LONGTEXT)\b`)
	reUniqueKey = regexp.MustCompile(`(?i)^UNIQUE KEY \w+ `)
)

// toSQLiteColumn 将MySQL列定义转换为SQLite等价写法
func toSQLiteColumn(def string) string {
	def = strings.Replace(def, "INT PRIMARY KEY AUTO_INCREMENT", "INTEGER PRIMARY KEY AUTOINCREMENT", 1)
	def = reUniqueKey.ReplaceAllString(def, "UNIQUE ")
	def = reVarchar.ReplaceAllString(def, "TEXT")
	def = reTextTypes.ReplaceAllString(def, "TEXT")
	def = reIntTypes.ReplaceAllString(def, "INTEGER")
	def = strings.ReplaceAll(def, "DOUBLE", "REAL")
	return def
}
