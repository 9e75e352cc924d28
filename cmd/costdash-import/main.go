// costdash-import 将导出的用量记录（JSON数组或JSON Lines）写入SQL后端
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"costdash/internal/config"
	"costdash/internal/importer"
	"costdash/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func run() error {
	file := flag.String("file", "-", "input file (JSON array or JSON lines), - for stdin")
	batch := flag.Int("batch", importer.DefaultBatchSize, "records per transaction")
	concurrency := flag.Int("concurrency", importer.DefaultConcurrency, "parallel batches")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	source := "stdin"
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
		source = filepath.Base(*file)
	}

	records, err := importer.Decode(in)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		log.Printf("[WARN] 输入为空，未写入任何记录")
		return nil
	}

	store, err := storage.OpenSQL(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	start := time.Now()
	written, err := importer.Import(ctx, store, records, importer.Options{
		BatchSize:   *batch,
		Concurrency: *concurrency,
	})
	if err != nil {
		return fmt.Errorf("import (%d written): %w", written, err)
	}
	if err := store.RecordImportBatch(ctx, source, written); err != nil {
		log.Printf("[WARN] %v", err)
	}

	total, err := store.CountRecords(ctx)
	if err != nil {
		return err
	}
	log.Printf("[INFO] %s: 写入 %d 条，耗时 %v，库内共 %d 条", source, written, time.Since(start).Round(time.Millisecond), total)
	return nil
}
