// Package pricing 负责模型费率解析与单条调用的成本计算
package pricing

import (
	"log"
	"sort"
	"strings"
	"sync"

	"costdash/internal/model"
	"costdash/internal/money"
)

// MatchKind 费率命中方式
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchPrefix  MatchKind = "prefix"
	MatchDefault MatchKind = "default"
)

// Resolver 费率解析器（进程内单例，通过引用传递）
// 回退告警按模型去重，去重集合是实例字段
type Resolver struct {
	mu           sync.RWMutex
	rates        map[string]Rate
	prefixes     []string // 小写键，按长度降序，保证最长前缀优先
	lowerToKey   map[string]string
	defaultModel string

	warnMu sync.Mutex
	warned map[string]struct{}
}

// NewResolver 使用默认价格表
func NewResolver() *Resolver {
	return NewResolverWithRates(DefaultRates(), DefaultModel)
}

// NewResolverWithRates 使用自定义价格表；defaultModel 必须存在于表中，否则回退到内置默认档位
func NewResolverWithRates(rates map[string]Rate, defaultModel string) *Resolver {
	r := &Resolver{warned: make(map[string]struct{})}
	r.install(rates, defaultModel)
	return r
}

func (r *Resolver) install(rates map[string]Rate, defaultModel string) {
	table := make(map[string]Rate, len(rates))
	lowerToKey := make(map[string]string, len(rates))
	prefixes := make([]string, 0, len(rates))
	for name, rate := range rates {
		table[name] = rate
		lower := strings.ToLower(name)
		if _, dup := lowerToKey[lower]; !dup {
			prefixes = append(prefixes, lower)
		}
		lowerToKey[lower] = name
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	if _, ok := table[defaultModel]; !ok {
		defaultModel = DefaultModel
		if _, ok := table[DefaultModel]; !ok {
			table[DefaultModel] = defaultRates[DefaultModel]
		}
	}

	r.mu.Lock()
	r.rates = table
	r.prefixes = prefixes
	r.lowerToKey = lowerToKey
	r.defaultModel = defaultModel
	r.mu.Unlock()
}

// Lookup 纯查询：精确匹配 -> 最长前缀（忽略大小写）-> 默认档位
// 返回命中的表键；不产生日志
func (r *Resolver) Lookup(modelName string) (Rate, MatchKind, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if modelName != "" {
		if rate, ok := r.rates[modelName]; ok {
			return rate, MatchExact, modelName
		}
		lower := strings.ToLower(modelName)
		for _, prefix := range r.prefixes {
			if strings.HasPrefix(lower, prefix) {
				key := r.lowerToKey[prefix]
				return r.rates[key], MatchPrefix, key
			}
		}
	}
	return r.rates[r.defaultModel], MatchDefault, r.defaultModel
}

// Resolve 解析费率；回退到默认档位时每个模型只告警一次
func (r *Resolver) Resolve(modelName string) Rate {
	rate, kind, key := r.Lookup(modelName)
	if kind == MatchDefault {
		if modelName == "" {
			r.warnOnce(undefinedModelKey, "[WARN] 记录未指定模型，使用 %s 默认价格", key)
		} else {
			r.warnOnce(modelName, "[WARN] 未找到模型 %s 的价格，使用 %s 默认价格", modelName, key)
		}
	}
	return rate
}

// ModelPricing 仅在精确或前缀命中时返回费率
func (r *Resolver) ModelPricing(modelName string) (Rate, bool) {
	if modelName == "" {
		return Rate{}, false
	}
	rate, kind, _ := r.Lookup(modelName)
	if kind == MatchDefault {
		return Rate{}, false
	}
	return rate, true
}

// Calculate 计算单条调用成本
// NaN/Inf/负数计数按0处理，任何输入都不会失败
func (r *Resolver) Calculate(modelName string, inputTokens, outputTokens float64) model.CostBreakdown {
	in, out := r.CalculateAmounts(modelName, model.SafeCount(inputTokens), model.SafeCount(outputTokens))
	return model.CostBreakdown{
		InputCost:  in.Float64(),
		OutputCost: out.Float64(),
		TotalCost:  in.Add(out).Float64(),
	}
}

// CalculateAmounts 与 Calculate 相同，但返回定点金额供聚合使用
func (r *Resolver) CalculateAmounts(modelName string, inputTokens, outputTokens int64) (money.Amount, money.Amount) {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	rate := r.Resolve(modelName)
	return money.PerMillion(inputTokens, rate.Input), money.PerMillion(outputTokens, rate.Output)
}

// CalculateRecord 计算规范化记录的总成本
func (r *Resolver) CalculateRecord(rec *model.UsageRecord) money.Amount {
	in, out := r.CalculateAmounts(rec.Model, rec.Usage.InputTokens, rec.Usage.OutputTokens)
	return in.Add(out)
}

// Rates 返回当前价格表副本
func (r *Resolver) Rates() map[string]Rate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Rate, len(r.rates))
	for k, v := range r.rates {
		out[k] = v
	}
	return out
}

// DefaultModel 当前默认档位
func (r *Resolver) DefaultModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultModel
}

func (r *Resolver) warnOnce(key, format string, args ...any) {
	r.warnMu.Lock()
	_, seen := r.warned[key]
	if !seen {
		r.warned[key] = struct{}{}
	}
	r.warnMu.Unlock()
	if !seen {
		log.Printf(format, args...)
	}
}

// warnedCount 测试用
func (r *Resolver) warnedCount() int {
	r.warnMu.Lock()
	defer r.warnMu.Unlock()
	return len(r.warned)
}
