package stats

import (
	"time"

	"costdash/internal/model"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999", // 无时区后缀按UTC处理
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp 解析记录的ISO-8601时间戳
func ParseTimestamp(ts string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// DayKey 记录所属日期（UTC，YYYY-MM-DD）
func DayKey(ts string) (string, bool) {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

// FilterByDateRange 按时间闭区间过滤；零值边界表示不限制
// 时间戳无法解析的记录在设置了任一边界时被排除
func FilterByDateRange(records []model.UsageRecord, start, end time.Time) []model.UsageRecord {
	if start.IsZero() && end.IsZero() {
		return records
	}
	out := make([]model.UsageRecord, 0, len(records))
	for _, rec := range records {
		t, ok := ParseTimestamp(rec.Timestamp)
		if !ok {
			continue
		}
		if !start.IsZero() && t.Before(start) {
			continue
		}
		if !end.IsZero() && t.After(end) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ParseRangeBound 解析查询参数中的边界；纯日期的结束边界扩展到当天末尾
func ParseRangeBound(value string, isEnd bool) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	if d, err := time.Parse(time.DateOnly, value); err == nil {
		if isEnd {
			return d.Add(24*time.Hour - time.Nanosecond), true
		}
		return d, true
	}
	return ParseTimestamp(value)
}
