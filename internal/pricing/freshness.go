package pricing

import (
	"log"
	"time"
)

// Metadata 价格表元信息
type Metadata struct {
	LastUpdate                string `json:"lastUpdate"`
	Source                    string `json:"source"`
	RecommendedCheckFrequency string `json:"recommendedCheckFrequency"`
}

// CurrentMetadata 内置价格表的维护信息
var CurrentMetadata = Metadata{
	LastUpdate:                "2025-11-26",
	Source:                    "https://openai.com/api/pricing/",
	RecommendedCheckFrequency: "monthly",
}

// MaxPriceAgeDays 超过该天数视为价格可能过期
const MaxPriceAgeDays = 30

// Freshness 新鲜度检查结果
type Freshness struct {
	Metadata
	DaysSinceUpdate int  `json:"daysSinceUpdate"`
	Outdated        bool `json:"outdated"`
}

// DaysSinceUpdate 距上次更新的整天数（向下取整）
func (m Metadata) DaysSinceUpdate(now time.Time) int {
	last, err := time.Parse(time.DateOnly, m.LastUpdate)
	if err != nil {
		return 0
	}
	return int(now.Sub(last).Hours() / 24)
}

// Check 计算新鲜度（无副作用）
func (m Metadata) Check(now time.Time) Freshness {
	days := m.DaysSinceUpdate(now)
	return Freshness{Metadata: m, DaysSinceUpdate: days, Outdated: days > MaxPriceAgeDays}
}

// CheckFreshness 检查并记录日志；过期时输出告警
func CheckFreshness(now time.Time) Freshness {
	f := CurrentMetadata.Check(now)
	if f.Outdated {
		log.Printf("[WARN] 价格表可能已过期：最后更新 %s（%d 天前），请核对 %s",
			f.LastUpdate, f.DaysSinceUpdate, f.Source)
	} else {
		log.Printf("[INFO] 价格表最近一次核对于 %d 天前", f.DaysSinceUpdate)
	}
	return f
}
