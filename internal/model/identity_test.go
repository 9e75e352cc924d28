package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIdentity(t *testing.T) {
	tests := []struct {
		name   string
		rec    UsageRecord
		prefix string
	}{
		{"显式id优先", UsageRecord{ID: "1", CandidateName: "a", Timestamp: "t"}, "id:1"},
		{"实体加时间戳", UsageRecord{CandidateName: "Evelyn", Timestamp: "2025-11-13T14:33:36Z"}, "et:Evelyn|2025-11-13T14:33:36Z"},
		{"实体回退到nombre", UsageRecord{Name: "evelyn", Timestamp: "x"}, "et:evelyn|x"},
		{"缺少实体时哈希", UsageRecord{Model: "gpt-4o", Timestamp: "2025-11-13T14:33:36Z"}, "h:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rec.Identity()
			assert.True(t, strings.HasPrefix(got, tt.prefix), "got %s", got)
		})
	}
}

func TestDeriveIdentityIsStable(t *testing.T) {
	a := DeriveIdentity("", "", "2025-01-01T00:00:00Z", "gpt-4o")
	b := DeriveIdentity("", "", "2025-01-01T00:00:00Z", "gpt-4o")
	c := DeriveIdentity("", "", "2025-01-01T00:00:00Z", "gpt-4o-mini")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("h:")+32)

	// 字段边界不能被拼接歧义混淆
	assert.NotEqual(t,
		DeriveIdentity("", "", "ab", "c"),
		DeriveIdentity("", "", "a", "bc"))
}

func TestStoredAndNormalizedIdentityMatch(t *testing.T) {
	stored := StoredRecord{Model: " gpt-4o", Name: "kast", Timestamp: "2025-11-13T15:20:15Z"}
	rec := stored.Normalize()
	assert.Equal(t, stored.Identity(), rec.Identity())

	anonymous := StoredRecord{Model: " gpt-4o ", Timestamp: "2025-11-13T15:20:15Z"}
	normalized := anonymous.Normalize()
	assert.Equal(t, anonymous.Identity(), normalized.Identity(), "哈希层使用去空白后的模型名")
}

func TestSegmentOf(t *testing.T) {
	id := DeriveIdentity("abc", "", "", "")
	seg := SegmentOf(id, 20)
	assert.GreaterOrEqual(t, seg, 0)
	assert.Less(t, seg, 20)
	assert.Equal(t, Bucket(id)%20, seg)
	assert.Equal(t, 0, SegmentOf(id, 0))
}
