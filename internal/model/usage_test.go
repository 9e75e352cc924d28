package model

import (
	"math"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestRawUsageNormalize(t *testing.T) {
	tests := []struct {
		name  string
		usage RawUsage
		want  TokenUsage
	}{
		{
			name: "新结构",
			usage: RawUsage{
				InputTokens:         f(32579),
				InputTokensDetails:  &RawTokenDetails{CachedTokens: f(100)},
				OutputTokens:        f(227),
				OutputTokensDetails: &RawTokenDetails{ReasoningTokens: f(12)},
				TotalTokens:         f(32806),
			},
			want: TokenUsage{
				InputTokens:         32579,
				InputTokensDetails:  CachedDetail{CachedTokens: 100},
				OutputTokens:        227,
				OutputTokensDetails: ReasonDetail{ReasoningTokens: 12},
				TotalTokens:         32806,
			},
		},
		{
			name:  "旧结构且缺少total",
			usage: RawUsage{PromptTokens: f(200), CompletionTokens: f(100)},
			want:  TokenUsage{InputTokens: 200, OutputTokens: 100, TotalTokens: 300},
		},
		{
			name:  "新结构优先于旧结构",
			usage: RawUsage{InputTokens: f(1), PromptTokens: f(999), OutputTokens: f(2)},
			want:  TokenUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3},
		},
		{
			name:  "NaN与负数按0处理",
			usage: RawUsage{InputTokens: f(math.NaN()), OutputTokens: f(-5)},
			want:  TokenUsage{},
		},
		{
			name: "旧结构明细",
			usage: RawUsage{
				PromptTokens:            f(10),
				CompletionTokens:        f(20),
				PromptTokensDetails:     &RawTokenDetails{CachedTokens: f(4)},
				CompletionTokensDetails: &RawTokenDetails{ReasoningTokens: f(8)},
			},
			want: TokenUsage{
				InputTokens:         10,
				InputTokensDetails:  CachedDetail{CachedTokens: 4},
				OutputTokens:        20,
				OutputTokensDetails: ReasonDetail{ReasoningTokens: 8},
				TotalTokens:         30,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.usage.Normalize())
		})
	}
}

func TestStoredRecordDecodeAndNormalize(t *testing.T) {
	raw := `{
		"id": "abc",
		"modelo_ai": " gpt-4o ",
		"nombre": "jose antonio kast",
		"nombre_candidato": "",
		"timestamp": "2025-11-13T15:20:15.123456Z",
		"tipo_busqueda": "trayectoria_politica",
		"ultimoCargo": null,
		"respuesta_busqueda": {"periodo": null},
		"usage": {"prompt_tokens": 100, "completion_tokens": 50}
	}`

	var stored StoredRecord
	require.NoError(t, sonic.UnmarshalString(raw, &stored))
	require.True(t, stored.HasUsage())

	rec := stored.Normalize()
	assert.Equal(t, "gpt-4o", rec.Model)
	assert.Equal(t, "jose antonio kast", rec.Entity(), "nombre_candidato为空时回退到nombre")
	assert.Nil(t, rec.LastPosition)
	assert.Equal(t, int64(150), rec.Usage.TotalTokens)

	out, err := sonic.MarshalString(rec)
	require.NoError(t, err)
	assert.Contains(t, out, `"input_tokens":100`)
	assert.NotContains(t, out, "prompt_tokens", "输出只保留规范结构")
}

func TestStoredRecordWithoutUsage(t *testing.T) {
	stored := StoredRecord{ID: "x", Model: "gpt-4"}
	assert.False(t, stored.HasUsage())
	assert.Equal(t, TokenUsage{}, stored.Normalize().Usage)

	stored.Usage = &RawUsage{}
	assert.False(t, stored.HasUsage(), "空usage对象视为缺失")
}

func TestTokenUsageEstimatedField(t *testing.T) {
	rec := UsageRecord{ID: "x", Usage: TokenUsage{InputTokens: 3, TotalTokens: 3, Estimated: true}}
	raw, err := sonic.MarshalString(&rec)
	require.NoError(t, err)
	assert.Contains(t, raw, `"usage":{"input_tokens":3,`)
	assert.Contains(t, raw, `"estimated":true`)

	rec.Usage.Estimated = false
	raw, err = sonic.MarshalString(&rec)
	require.NoError(t, err)
	assert.NotContains(t, raw, "estimated")
}
