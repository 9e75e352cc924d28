// Package testutil 提供测试用的记录构造器与可编排的分段存储
package testutil

import (
	"fmt"

	"costdash/internal/model"
)

// F 返回浮点指针（构造原始usage用）
func F(v float64) *float64 { return &v }

// Stored 新结构usage的原始记录
func Stored(id, modelName, entity, ts string, input, output float64) model.StoredRecord {
	return model.StoredRecord{
		ID:            id,
		Model:         modelName,
		CandidateName: entity,
		Timestamp:     ts,
		SearchType:    "trayectoria_politica",
		Usage: &model.RawUsage{
			InputTokens:  F(input),
			OutputTokens: F(output),
		},
	}
}

// StoredLegacy 旧结构usage（prompt/completion）的原始记录
func StoredLegacy(id, modelName, entity, ts string, prompt, completion float64) model.StoredRecord {
	return model.StoredRecord{
		ID:            id,
		Model:         modelName,
		CandidateName: entity,
		Timestamp:     ts,
		SearchType:    "perfil_basico",
		Usage: &model.RawUsage{
			PromptTokens:     F(prompt),
			CompletionTokens: F(completion),
		},
	}
}

// Record 规范化记录
func Record(id, modelName, entity, ts string, input, output int64) model.UsageRecord {
	return model.UsageRecord{
		ID:            id,
		Model:         modelName,
		CandidateName: entity,
		Timestamp:     ts,
		SearchType:    "trayectoria_politica",
		Usage: model.TokenUsage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
	}
}

// Batch 生成 n 条编号连续的原始记录，id 前缀为 prefix
func Batch(prefix string, n int) []model.StoredRecord {
	models := []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-5.1"}
	entities := []string{"Evelyn Matthei", "José Antonio Kast", "Jeannette Jara", "Johannes Kaiser"}
	out := make([]model.StoredRecord, n)
	for i := range out {
		out[i] = Stored(
			fmt.Sprintf("%s-%04d", prefix, i),
			models[i%len(models)],
			entities[i%len(entities)],
			fmt.Sprintf("2025-11-%02dT%02d:00:00Z", i%28+1, i%24),
			float64(1000+i*10),
			float64(200+i),
		)
	}
	return out
}
