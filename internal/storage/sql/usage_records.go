package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"costdash/internal/model"
)

// ScanPageSize 每页最多返回的记录数
const ScanPageSize = 1000

// insertChunkSize 单条INSERT携带的最大行数（SQLite变量上限999，每行8个参数）
const insertChunkSize = 100

// ScanSegment 以 bucket % N 划分分段，按 record_key 键集分页
// 游标为上一页最后一条的 record_key
func (s *SQLStore) ScanSegment(ctx context.Context, req model.ScanRequest) (*model.ScanPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT record_key, doc
		FROM usage_records
		WHERE bucket % ? = ? AND record_key > ?`
	args := []any{req.TotalSegments, req.Segment, req.Cursor}
	if req.Since != "" {
		query += " AND ts > ?"
		args = append(args, req.Since)
	}
	query += " ORDER BY record_key LIMIT ?"
	args = append(args, ScanPageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segment %d/%d: %w", req.Segment, req.TotalSegments, err)
	}
	defer rows.Close()

	page := &model.ScanPage{Items: make([]model.StoredRecord, 0, 64)}
	var lastKey string
	for rows.Next() {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		var rec model.StoredRecord
		if err := sonic.UnmarshalString(doc, &rec); err != nil {
			return nil, fmt.Errorf("decode usage record %s: %w", key, err)
		}
		page.Items = append(page.Items, rec)
		lastKey = key
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 满页时可能还有后续数据
	if len(page.Items) == ScanPageSize {
		page.NextCursor = lastKey
	}
	return page, nil
}

// SaveRecords 批量写入原始记录，按身份键覆盖（重复导入幂等）
// 返回写入的行数
func (s *SQLStore) SaveRecords(ctx context.Context, records []model.StoredRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // 失败时自动回滚

	now := time.Now().Unix()
	written := 0
	for start := 0; start < len(records); start += insertChunkSize {
		end := min(start+insertChunkSize, len(records))
		chunk := records[start:end]

		args := make([]any, 0, len(chunk)*8)
		for i := range chunk {
			rec := &chunk[i]
			doc, err := sonic.MarshalString(rec)
			if err != nil {
				return written, fmt.Errorf("encode usage record: %w", err)
			}
			key := rec.Identity()
			args = append(args,
				key, model.Bucket(key), rec.Timestamp, strings.TrimSpace(rec.Model),
				rec.Entity(), rec.SearchType, doc, now,
			)
		}

		if _, err := tx.ExecContext(ctx, s.upsertSQL(len(chunk)), args...); err != nil {
			return written, fmt.Errorf("upsert usage records: %w", err)
		}
		written += len(chunk)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit usage records: %w", err)
	}
	return written, nil
}

func (s *SQLStore) upsertSQL(rows int) string {
	var b strings.Builder
	if s.isMySQL {
		b.WriteString("INSERT INTO usage_records (record_key, bucket, ts, model, entity, search_type, doc, created_at) VALUES ")
	} else {
		b.WriteString("INSERT OR REPLACE INTO usage_records (record_key, bucket, ts, model, entity, search_type, doc, created_at) VALUES ")
	}
	for i := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
	}
	if s.isMySQL {
		b.WriteString(" ON DUPLICATE KEY UPDATE bucket=VALUES(bucket), ts=VALUES(ts), model=VALUES(model), entity=VALUES(entity), search_type=VALUES(search_type), doc=VALUES(doc)")
	}
	return b.String()
}

// CountRecords 记录总数
func (s *SQLStore) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM usage_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count usage records: %w", err)
	}
	return n, nil
}

// RecordImportBatch 记录一次导入（审计用）
func (s *SQLStore) RecordImportBatch(ctx context.Context, source string, count int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO import_batches (source, record_count, created_at) VALUES (?, ?, ?)",
		source, count, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record import batch: %w", err)
	}
	return nil
}
