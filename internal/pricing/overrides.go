package pricing

import (
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// overrideFile YAML覆盖文件结构：
//
//	default: gpt-4
//	models:
//	  gpt-4.1-mini: {input: 0.40, output: 1.60}
type overrideFile struct {
	Default string          `mapstructure:"default"`
	Models  map[string]Rate `mapstructure:"models"`
}

// LoadAndWatch 读取覆盖文件合并到默认价格表，并在文件变更时热更新
func (r *Resolver) LoadAndWatch(path string) error {
	// 模型名包含"."，不能使用viper默认的键分隔符
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read pricing overrides %s: %w", path, err)
	}
	if err := r.applyOverrides(v); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := r.applyOverrides(v); err != nil {
			log.Printf("[WARN] 价格覆盖文件重载失败: %v", err)
			return
		}
		log.Printf("[INFO] 价格覆盖文件已重载: %s", e.Name)
	})
	v.WatchConfig()
	return nil
}

func (r *Resolver) applyOverrides(v *viper.Viper) error {
	var file overrideFile
	if err := v.Unmarshal(&file); err != nil {
		return fmt.Errorf("decode pricing overrides: %w", err)
	}
	r.ApplyOverrides(file.Models, file.Default)
	log.Printf("[INFO] 已加载 %d 条价格覆盖", len(file.Models))
	return nil
}

// ApplyOverrides 以默认价格表为底合并覆盖项；负费率被忽略
// 覆盖会重置告警去重集合，让新增模型的回退重新可见
func (r *Resolver) ApplyOverrides(overrides map[string]Rate, defaultModel string) {
	merged := DefaultRates()
	for name, rate := range overrides {
		if name == "" || rate.Input < 0 || rate.Output < 0 {
			log.Printf("[WARN] 忽略无效价格覆盖: %q %+v", name, rate)
			continue
		}
		merged[name] = rate
	}
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	r.install(merged, defaultModel)

	r.warnMu.Lock()
	r.warned = make(map[string]struct{})
	r.warnMu.Unlock()
}
