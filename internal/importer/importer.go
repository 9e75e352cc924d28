// Package importer 将导出的记录文件（JSON数组或JSON Lines）批量写入SQL后端
package importer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"costdash/internal/model"
)

const (
	DefaultBatchSize   = 500
	DefaultConcurrency = 4
	maxLineBytes       = 16 << 20
)

// RecordSaver 批量写入接口
type RecordSaver interface {
	SaveRecords(ctx context.Context, records []model.StoredRecord) (int, error)
}

// Decode 读取JSON数组或JSON Lines（空行跳过）
func Decode(r io.Reader) ([]model.StoredRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if first == '[' {
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		var records []model.StoredRecord
		if err := sonic.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode json array: %w", err)
		}
		return records, nil
	}

	var records []model.StoredRecord
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec model.StoredRecord
		if err := sonic.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return records, nil
}

// peekNonSpace 跳过前导空白并返回第一个有效字节（不消费）
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		case 0xEF:
			// UTF-8 BOM
			if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
				_, _ = br.Discard(3)
				continue
			}
			return b[0], nil
		default:
			return b[0], nil
		}
	}
}

// Options 导入参数
type Options struct {
	BatchSize   int
	Concurrency int
}

// Import 分批写入，同时进行的批次数受信号量限制；任一批次失败即停止派发
// 返回成功写入的条数
func Import(ctx context.Context, saver RecordSaver, records []model.StoredRecord, opts Options) (int, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)
	var written atomic.Int64

	for start := 0; start < len(records); start += batchSize {
		batch := records[start:min(start+batchSize, len(records))]
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			n, err := saver.SaveRecords(gctx, batch)
			written.Add(int64(n))
			if err != nil {
				return fmt.Errorf("batch at %d: %w", start, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(written.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(written.Load()), err
	}
	log.Printf("[INFO] 导入完成: %d 条记录", written.Load())
	return int(written.Load()), nil
}
