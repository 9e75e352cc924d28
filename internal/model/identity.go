package model

import (
	"encoding/hex"
	"hash/crc32"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// BucketCount 记录分桶数；分段 i/N 取 bucket % N == i 的记录
const BucketCount = 1024

// DeriveIdentity 推导记录的稳定身份（纯函数）
// 优先级：显式id -> 实体名+时间戳 -> 时间戳+模型+实体的哈希
// 各层带前缀，避免不同层级的键互相碰撞
func DeriveIdentity(id, entity, timestamp, modelName string) string {
	if id != "" {
		return "id:" + id
	}
	if entity != "" && timestamp != "" {
		return "et:" + entity + "|" + timestamp
	}
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(timestamp))
	h.Write([]byte{0})
	h.Write([]byte(modelName))
	h.Write([]byte{0})
	h.Write([]byte(entity))
	return "h:" + hex.EncodeToString(h.Sum(nil))
}

// Identity 规范化记录的身份
func (r *UsageRecord) Identity() string {
	return DeriveIdentity(r.ID, r.Entity(), r.Timestamp, r.Model)
}

// Identity 原始记录的身份（与规范化后一致）
func (r *StoredRecord) Identity() string {
	return DeriveIdentity(r.ID, r.Entity(), r.Timestamp, strings.TrimSpace(r.Model))
}

// Bucket 身份对应的固定分桶
func Bucket(identity string) int {
	return int(crc32.ChecksumIEEE([]byte(identity)) % BucketCount)
}

// SegmentOf 身份在 total 个分段中的归属
func SegmentOf(identity string, total int) int {
	if total <= 0 {
		return 0
	}
	return Bucket(identity) % total
}
