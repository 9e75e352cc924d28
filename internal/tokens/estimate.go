// Package tokens 为缺少用量结构的历史记录估算token数
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	tiktoken "github.com/pkoukk/tiktoken-go"

	"costdash/internal/model"
)

// 编码表名称
const (
	fallbackEncoding = "cl100k_base"
	o200kEncoding    = "o200k_base"
)

// Counter 计数函数：返回 text 在 modelName 编码下的token数
type Counter func(text, modelName string) int

var errEmptyEncoding = errors.New("empty encoding")

// loadEncoding 加载编码表（首次使用时会下载BPE文件）
var loadEncoding = tiktoken.GetEncoding

var (
	encMu    sync.RWMutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

// Preload 启动时加载编码表，最多等待 timeout
// 扫描路径只读取已加载的编码表，未就绪时一律使用字符估算，不会发起网络请求
// 超时后加载在后台继续，完成后自动生效
func Preload(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	names := []string{o200kEncoding, fallbackEncoding}
	load := loadEncoding
	done := make(chan error, 1)
	go func() {
		var firstErr error
		for _, name := range names {
			enc, err := load(name)
			if err == nil && enc == nil {
				err = errEmptyEncoding
			}
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("load %s: %w", name, err)
				}
				continue
			}
			encMu.Lock()
			encCache[name] = enc
			encMu.Unlock()
		}
		done <- firstErr
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("[WARN] tiktoken编码表部分不可用，改用字符估算: %v", err)
			return err
		}
		log.Printf("[INFO] tiktoken编码表已加载: %s", strings.Join(names, ", "))
		return nil
	case <-ctx.Done():
		log.Printf("[WARN] tiktoken编码表 %v 内未加载完成，暂用字符估算", timeout)
		return ctx.Err()
	}
}

// CountTokens 使用已加载的 tiktoken 编码计数，未加载时回退到纯算法估算
func CountTokens(text, modelName string) (n int) {
	if text == "" {
		return 0
	}
	enc := encodingFor(modelName)
	if enc == nil {
		return EstimateText(text)
	}
	// 防止 tiktoken 库 panic
	defer func() {
		if r := recover(); r != nil {
			n = EstimateText(text)
		}
	}()
	return len(enc.Encode(text, nil, nil))
}

// encodingFor 只查缓存，不加载
func encodingFor(modelName string) *tiktoken.Tiktoken {
	encMu.RLock()
	defer encMu.RUnlock()
	if enc, ok := encCache[encodingName(modelName)]; ok {
		return enc
	}
	return encCache[fallbackEncoding]
}

// encodingName gpt-4o / gpt-4.1 / gpt-5 / o系列使用 o200k_base，其余 cl100k_base
func encodingName(modelName string) string {
	key := strings.ToLower(strings.TrimSpace(modelName))
	for _, prefix := range []string{"gpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(key, prefix) {
			return o200kEncoding
		}
	}
	return fallbackEncoding
}

// EstimateText 纯算法估算：英文约4字符/token，CJK约1.5字符/token，混合时线性插值
func EstimateText(text string) int {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}

	sampleSize := min(len(runes), 500)
	cjk := 0
	for i := range sampleSize {
		if r := runes[i]; r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		}
	}
	ratio := float64(cjk) / float64(sampleSize)
	charsPerToken := 4.0 - (4.0-1.5)*ratio

	return max(int(float64(len(runes))/charsPerToken), 1)
}

// Estimator 为无用量记录补全估算值
type Estimator struct {
	count Counter
}

func NewEstimator() *Estimator {
	return &Estimator{count: CountTokens}
}

// NewEstimatorWithCounter 测试或离线场景注入计数函数
func NewEstimatorWithCounter(count Counter) *Estimator {
	return &Estimator{count: count}
}

// Apply 原始记录完全缺少usage且有文本时填充估算值，返回是否估算
// 输入 = 提示词 + input_promt；输出 = respuesta_busqueda
func (e *Estimator) Apply(stored *model.StoredRecord, rec *model.UsageRecord) bool {
	if e == nil || stored.HasUsage() {
		return false
	}

	input := joinNonEmpty(stored.Prompt, stringify(stored.InputPrompt))
	output := stringify(stored.SearchResponse)
	if input == "" && output == "" {
		return false
	}

	in := int64(e.count(input, rec.Model))
	out := int64(e.count(output, rec.Model))
	rec.Usage = model.TokenUsage{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		Estimated:    true,
	}
	return true
}

// stringify 字符串原样返回，对象序列化为JSON
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		s, err := sonic.MarshalString(val)
		if err != nil {
			return ""
		}
		return s
	}
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
