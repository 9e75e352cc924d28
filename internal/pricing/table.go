package pricing

// Rate 每百万Token的美元费率
type Rate struct {
	Input  float64 `json:"inputRate" mapstructure:"input" yaml:"input"`
	Output float64 `json:"outputRate" mapstructure:"output" yaml:"output"`
}

// DefaultModel 未匹配时使用的默认档位
const DefaultModel = "gpt-4"

// undefinedModelKey 空模型名的告警去重键
const undefinedModelKey = "undefined-model"

// defaultRates OpenAI 官方价格（USD / 1M tokens）
var defaultRates = map[string]Rate{
	// GPT-4o
	"gpt-4o":                 {2.50, 10.0},
	"gpt-4o-mini":            {0.15, 0.60},
	"gpt-4o-2024-11-20":      {2.50, 10.0},
	"gpt-4o-2024-08-06":      {2.50, 10.0},
	"gpt-4o-2024-05-13":      {5.0, 15.0},
	"gpt-4o-mini-2024-07-18": {0.15, 0.60},

	// GPT-4 Turbo
	"gpt-4-turbo":            {10.0, 30.0},
	"gpt-4-turbo-preview":    {10.0, 30.0},
	"gpt-4-turbo-2024-04-09": {10.0, 30.0},
	"gpt-4-1106-preview":     {10.0, 30.0},
	"gpt-4-0125-preview":     {10.0, 30.0},

	// GPT-4.1 / GPT-5.1
	"gpt-4.1":            {3.0, 12.0},
	"gpt-4.1-2025-04-14": {3.0, 12.0},
	"gpt-5.1-2025-11-13": {2.5, 10.0},

	// GPT-4 legacy
	"gpt-4":          {30.0, 60.0},
	"gpt-4-32k":      {60.0, 120.0},
	"gpt-4-0613":     {30.0, 60.0},
	"gpt-4-32k-0613": {60.0, 120.0},

	// GPT-3.5
	"gpt-3.5-turbo":          {0.50, 1.50},
	"gpt-3.5-turbo-0125":     {0.50, 1.50},
	"gpt-3.5-turbo-1106":     {1.0, 2.0},
	"gpt-3.5-turbo-16k":      {3.0, 4.0},
	"gpt-3.5-turbo-instruct": {1.50, 2.0},

	// o1 推理模型
	"o1-preview":            {15.0, 60.0},
	"o1-preview-2024-09-12": {15.0, 60.0},
	"o1-mini":               {3.0, 12.0},
	"o1-mini-2024-09-12":    {3.0, 12.0},
}

// DefaultRates 返回默认价格表的副本
func DefaultRates() map[string]Rate {
	out := make(map[string]Rate, len(defaultRates))
	for k, v := range defaultRates {
		out[k] = v
	}
	return out
}
