package model

import (
	"math"
	"strings"
)

// StoredRecord 存储中的原始记录形态（字段名沿用存储表的历史命名）
// 只在入库/扫描入口出现，进入聚合前必须经过 Normalize
type StoredRecord struct {
	ID             string    `json:"id" dynamodbav:"id"`
	Model          string    `json:"modelo_ai" dynamodbav:"modelo_ai"`
	Name           string    `json:"nombre" dynamodbav:"nombre"`
	CandidateName  string    `json:"nombre_candidato" dynamodbav:"nombre_candidato"`
	Prompt         string    `json:"promt_utilizado" dynamodbav:"promt_utilizado"`
	Timestamp      string    `json:"timestamp" dynamodbav:"timestamp"`
	PoliticalType  string    `json:"tipoPolitico" dynamodbav:"tipoPolitico"`
	SearchType     string    `json:"tipo_busqueda" dynamodbav:"tipo_busqueda"`
	LastPosition   *string   `json:"ultimoCargo" dynamodbav:"ultimoCargo"`
	InputPrompt    any       `json:"input_promt,omitempty" dynamodbav:"input_promt,omitempty"`               // string 或对象
	SearchResponse any       `json:"respuesta_busqueda,omitempty" dynamodbav:"respuesta_busqueda,omitempty"` // string 或对象
	Usage          *RawUsage `json:"usage,omitempty" dynamodbav:"usage,omitempty"`
}

// RawUsage 兼容两种历史用量结构：
//   - 新：input_tokens / output_tokens
//   - 旧：prompt_tokens / completion_tokens
//
// 数值用指针区分"缺失"与"0"
type RawUsage struct {
	InputTokens         *float64         `json:"input_tokens,omitempty" dynamodbav:"input_tokens,omitempty"`
	InputTokensDetails  *RawTokenDetails `json:"input_tokens_details,omitempty" dynamodbav:"input_tokens_details,omitempty"`
	OutputTokens        *float64         `json:"output_tokens,omitempty" dynamodbav:"output_tokens,omitempty"`
	OutputTokensDetails *RawTokenDetails `json:"output_tokens_details,omitempty" dynamodbav:"output_tokens_details,omitempty"`
	TotalTokens         *float64         `json:"total_tokens,omitempty" dynamodbav:"total_tokens,omitempty"`

	PromptTokens            *float64         `json:"prompt_tokens,omitempty" dynamodbav:"prompt_tokens,omitempty"`
	CompletionTokens        *float64         `json:"completion_tokens,omitempty" dynamodbav:"completion_tokens,omitempty"`
	PromptTokensDetails     *RawTokenDetails `json:"prompt_tokens_details,omitempty" dynamodbav:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *RawTokenDetails `json:"completion_tokens_details,omitempty" dynamodbav:"completion_tokens_details,omitempty"`
}

type RawTokenDetails struct {
	CachedTokens    *float64 `json:"cached_tokens,omitempty" dynamodbav:"cached_tokens,omitempty"`
	ReasoningTokens *float64 `json:"reasoning_tokens,omitempty" dynamodbav:"reasoning_tokens,omitempty"`
}

// UsageRecord 规范化后的一次API调用记录（读出后不可变）
type UsageRecord struct {
	ID             string     `json:"id"`
	Model          string     `json:"modelo_ai"`
	Name           string     `json:"nombre"`
	CandidateName  string     `json:"nombre_candidato"`
	Prompt         string     `json:"promt_utilizado"`
	Timestamp      string     `json:"timestamp"` // ISO-8601
	PoliticalType  string     `json:"tipoPolitico"`
	SearchType     string     `json:"tipo_busqueda"`
	LastPosition   *string    `json:"ultimoCargo"`
	InputPrompt    any        `json:"input_promt,omitempty"`
	SearchResponse any        `json:"respuesta_busqueda,omitempty"`
	Usage          TokenUsage `json:"usage"`
}

// TokenUsage 统一的用量结构
type TokenUsage struct {
	InputTokens         int64        `json:"input_tokens"`
	InputTokensDetails  CachedDetail `json:"input_tokens_details"`
	OutputTokens        int64        `json:"output_tokens"`
	OutputTokensDetails ReasonDetail `json:"output_tokens_details"`
	TotalTokens         int64        `json:"total_tokens"`
	Estimated           bool         `json:"estimated,omitempty"` // 原记录缺少usage，由文本估算
}

type CachedDetail struct {
	CachedTokens int64 `json:"cached_tokens"`
}

type ReasonDetail struct {
	ReasoningTokens int64 `json:"reasoning_tokens"`
}

// Entity 记录归属的实体名：优先 nombre_candidato，其次 nombre
func (r *UsageRecord) Entity() string {
	if r.CandidateName != "" {
		return r.CandidateName
	}
	return r.Name
}

// Entity 与 UsageRecord.Entity 相同的回退规则
func (r *StoredRecord) Entity() string {
	if r.CandidateName != "" {
		return r.CandidateName
	}
	return r.Name
}

// HasUsage 原始记录是否携带任何用量字段
func (r *StoredRecord) HasUsage() bool {
	u := r.Usage
	if u == nil {
		return false
	}
	return u.InputTokens != nil || u.OutputTokens != nil || u.TotalTokens != nil ||
		u.PromptTokens != nil || u.CompletionTokens != nil
}

// Normalize 将原始记录转换为规范形态
// total 缺失时 total = input + output；null/NaN/负数一律按0处理
func (r *StoredRecord) Normalize() UsageRecord {
	out := UsageRecord{
		ID:             r.ID,
		Model:          strings.TrimSpace(r.Model),
		Name:           r.Name,
		CandidateName:  r.CandidateName,
		Prompt:         r.Prompt,
		Timestamp:      r.Timestamp,
		PoliticalType:  r.PoliticalType,
		SearchType:     r.SearchType,
		LastPosition:   r.LastPosition,
		InputPrompt:    r.InputPrompt,
		SearchResponse: r.SearchResponse,
	}
	if r.Usage != nil {
		out.Usage = r.Usage.Normalize()
	}
	return out
}

// Normalize 合并新旧两种用量结构
func (u *RawUsage) Normalize() TokenUsage {
	input := firstCount(u.InputTokens, u.PromptTokens)
	output := firstCount(u.OutputTokens, u.CompletionTokens)

	total := input + output
	if u.TotalTokens != nil {
		total = SafeCount(*u.TotalTokens)
	}

	var cached, reasoning int64
	if d := firstDetails(u.InputTokensDetails, u.PromptTokensDetails); d != nil && d.CachedTokens != nil {
		cached = SafeCount(*d.CachedTokens)
	}
	if d := firstDetails(u.OutputTokensDetails, u.CompletionTokensDetails); d != nil && d.ReasoningTokens != nil {
		reasoning = SafeCount(*d.ReasoningTokens)
	}

	return TokenUsage{
		InputTokens:         input,
		InputTokensDetails:  CachedDetail{CachedTokens: cached},
		OutputTokens:        output,
		OutputTokensDetails: ReasonDetail{ReasoningTokens: reasoning},
		TotalTokens:         total,
	}
}

// SafeCount 把任意浮点计数收敛为非负整数（NaN/Inf/负数 -> 0）
func SafeCount(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return int64(v)
}

func firstCount(values ...*float64) int64 {
	for _, v := range values {
		if v != nil {
			return SafeCount(*v)
		}
	}
	return 0
}

func firstDetails(values ...*RawTokenDetails) *RawTokenDetails {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
