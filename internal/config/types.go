package config

import (
	"encoding/json"

	"rptsafe/pkg/safety"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
// 指针字段区分“未设置”与零值（例如 budget=0 是合法的严格模式）。
type Config struct {
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	// BatchSize: 每批最多报告数。
	BatchSize int `json:"batch_size"`
	// Budget: 允许丢弃的元素个数，仅 0 或 1。
	Budget *int `json:"budget,omitempty"`
	// Policy: 两方向步长区间；未设置时为 [1,3] / [-3,-1]。
	Policy *safety.Policy `json:"policy,omitempty"`
	// Verdicts: 写出逐报告边车；Summary: 写出 summary.json。
	Verdicts *bool   `json:"verdicts,omitempty"`
	Summary  *bool   `json:"summary,omitempty"`
	Logging  Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录；轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader     string `json:"reader"`
	Tokenizer  string `json:"tokenizer"`
	Batcher    string `json:"batcher"`
	Classifier string `json:"classifier"`
	Aggregator string `json:"aggregator"`
	Writer     string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader     json.RawMessage `json:"reader,omitempty"`
	Tokenizer  json.RawMessage `json:"tokenizer,omitempty"`
	Batcher    json.RawMessage `json:"batcher,omitempty"`
	Classifier json.RawMessage `json:"classifier,omitempty"`
	Aggregator json.RawMessage `json:"aggregator,omitempty"`
	Writer     json.RawMessage `json:"writer,omitempty"`
}

// EffectiveBudget 返回生效预算（未设置时为 1）。
func (c Config) EffectiveBudget() int {
	if c.Budget == nil {
		return int(safety.Damped)
	}
	return *c.Budget
}

// EffectivePolicy 返回生效策略（未设置时为规范策略）。
func (c Config) EffectivePolicy() safety.Policy {
	if c.Policy == nil {
		return safety.CanonicalPolicy()
	}
	return *c.Policy
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
