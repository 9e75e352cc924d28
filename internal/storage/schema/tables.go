package schema

// DefineUsageRecordsTable 定义usage_records表结构
// 设计说明：
//   - record_key 为记录身份（显式id或推导身份），重复导入幂等
//   - bucket = crc32(record_key) % 1024，分段 i/N 扫描 bucket % N == i
//   - ts 保存原始ISO字符串，按字典序比较（与DynamoDB字符串比较一致）
//   - doc 保存原始文档JSON（两种历史usage结构原样保留，扫描时再规范化）
func DefineUsageRecordsTable() *TableBuilder {
	return NewTable("usage_records").
		Column("record_key VARCHAR(191) NOT NULL PRIMARY KEY").
		Column("bucket INT NOT NULL").
		Column("ts VARCHAR(64) NOT NULL DEFAULT ''").
		Column("model VARCHAR(191) NOT NULL DEFAULT ''").
		Column("entity VARCHAR(191) NOT NULL DEFAULT ''").
		Column("doc MEDIUMTEXT NOT NULL").
		Column("created_at BIGINT NOT NULL").
		Index("idx_usage_records_bucket", "bucket, record_key").
		Index("idx_usage_records_ts", "ts").
		Index("idx_usage_records_model", "model")
}

// DefineImportBatchesTable 定义import_batches表结构（导入审计）
func DefineImportBatchesTable() *TableBuilder {
	return NewTable("import_batches").
		Column("id INT PRIMARY KEY AUTO_INCREMENT").
		Column("source VARCHAR(512) NOT NULL DEFAULT ''"). // 导入文件路径
		Column("record_count INT NOT NULL DEFAULT 0").
		Column("created_at BIGINT NOT NULL").
		Index("idx_import_batches_created", "created_at")
}
