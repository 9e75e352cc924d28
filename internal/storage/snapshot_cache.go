package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"costdash/internal/metrics"
	"costdash/internal/model"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
)

// Snapshot 一次完整扫描的结果快照
type Snapshot struct {
	Records     []model.UsageRecord   `json:"records"`
	Stats       *model.DashboardStats `json:"stats"`
	CompletedAt time.Time             `json:"completedAt"`
}

const (
	snapshotKeyPrefix = "costdash:snapshot:"
	snapshotMaxBytes  = 256 << 20
)

// SnapshotCache 两级快照缓存：进程内 ristretto（L1）+ 可选 redis（L2）
type SnapshotCache struct {
	local *ristretto.Cache[string, []byte]
	redis *redis.Client
	ttl   time.Duration
}

// NewSnapshotCache redisClient 可为 nil（仅使用L1）
func NewSnapshotCache(redisClient *redis.Client, ttl time.Duration) (*SnapshotCache, error) {
	local, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1000,
		MaxCost:     snapshotMaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	return &SnapshotCache{local: local, redis: redisClient, ttl: ttl}, nil
}

// Get 先查L1，未命中再查L2并回填L1
func (c *SnapshotCache) Get(ctx context.Context, key string) (*Snapshot, bool) {
	if raw, ok := c.local.Get(key); ok {
		if snap, err := decodeSnapshot(raw); err == nil {
			metrics.SnapshotCache.WithLabelValues("memory", "hit").Inc()
			return snap, true
		}
	}
	metrics.SnapshotCache.WithLabelValues("memory", "miss").Inc()

	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, snapshotKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[WARN] 读取redis快照失败: %v", err)
		}
		metrics.SnapshotCache.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		log.Printf("[WARN] redis快照损坏，已忽略: %v", err)
		return nil, false
	}
	metrics.SnapshotCache.WithLabelValues("redis", "hit").Inc()
	if ttl, err := c.redis.TTL(ctx, snapshotKeyPrefix+key).Result(); err == nil && ttl > 0 {
		c.local.SetWithTTL(key, raw, int64(len(raw)), ttl)
	}
	return snap, true
}

// Set 写入两级缓存；写失败只记录日志
func (c *SnapshotCache) Set(ctx context.Context, key string, snap *Snapshot) {
	raw, err := sonic.Marshal(snap)
	if err != nil {
		log.Printf("[WARN] 序列化快照失败: %v", err)
		return
	}
	c.local.SetWithTTL(key, raw, int64(len(raw)), c.ttl)
	c.local.Wait()
	if c.redis != nil {
		if err := c.redis.Set(ctx, snapshotKeyPrefix+key, raw, c.ttl).Err(); err != nil {
			log.Printf("[WARN] 写入redis快照失败: %v", err)
		}
	}
}

// Invalidate 删除快照
func (c *SnapshotCache) Invalidate(ctx context.Context, key string) {
	c.local.Del(key)
	if c.redis != nil {
		_ = c.redis.Del(ctx, snapshotKeyPrefix+key).Err()
	}
}

func (c *SnapshotCache) Close() {
	c.local.Close()
}

func decodeSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// NewRedisClient 解析URL并在2秒内完成连通性检查
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
