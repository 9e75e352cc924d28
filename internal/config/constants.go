package config

import "time"

// 扫描相关默认值
const (
	DefaultSegmentCount    = 20              // 并行扫描分段数
	DefaultRunTimeout      = 5 * time.Minute // 卡死运行的强制重置时间
	DefaultScanRPS         = 50              // 存储分页调用限速（0=不限速）
	DefaultSnapshotTTL     = 60 * time.Second
	DefaultStreamPerMinute = 30 // 单客户端每分钟流式请求数（仅redis可用时生效）

	// MaxSegmentCount DynamoDB TotalSegments 上限
	MaxSegmentCount = 1000000
)

// HTTP服务相关
const (
	DefaultAddr            = ":8080"
	SSEHeartbeatInterval   = 15 * time.Second
	ShutdownTimeout        = 10 * time.Second
	HealthPingTimeout      = 100 * time.Millisecond
	TokenizerLoadTimeout   = 10 * time.Second // 启动时等待tiktoken编码表的上限
	DemoStepCount          = 20
	DemoStepDelay          = 150 * time.Millisecond
	DuplicateLogFirstN     = 5  // 每次运行只打印前N条重复记录
	DuplicateLogSampleRate = 50 // 之后每N条采样一次
)

// 存储后端
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendMemory   = "memory"
)
