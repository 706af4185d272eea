package config

import (
	"errors"
	"fmt"
	"strings"

	"rptsafe/internal/pipeline"
	"rptsafe/pkg/registry"
	"rptsafe/pkg/safety"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.BatchSize < 1 {
		return errors.New("config: batch_size must be >= 1")
	}
	if _, err := safety.ParseBudget(cfg.EffectiveBudget()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.EffectivePolicy().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q unknown", cfg.Logging.Level)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Tokenizer, d.Tokenizer); registry.Tokenizer[name] == nil {
		return fmt.Errorf("config: tokenizer %q not registered", name)
	}
	if name := effName(cfg.Components.Batcher, d.Batcher); registry.Batcher[name] == nil {
		return fmt.Errorf("config: batcher %q not registered", name)
	}
	if name := effName(cfg.Components.Classifier, d.Classifier); registry.Classifier[name] == nil {
		return fmt.Errorf("config: classifier %q not registered", name)
	}
	if name := effName(cfg.Components.Aggregator, d.Aggregator); registry.Aggregator[name] == nil {
		return fmt.Errorf("config: aggregator %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	budget, _ := safety.ParseBudget(cfg.EffectiveBudget())
	policy := cfg.EffectivePolicy()

	// 有效名称
	d := Defaults().Components
	rn := effName(cfg.Components.Reader, d.Reader)
	tn := effName(cfg.Components.Tokenizer, d.Tokenizer)
	bn := effName(cfg.Components.Batcher, d.Batcher)
	cn := effName(cfg.Components.Classifier, d.Classifier)
	an := effName(cfg.Components.Aggregator, d.Aggregator)
	wn := effName(cfg.Components.Writer, d.Writer)

	// 构造实例
	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: reader %s: %w", rn, err)
	}
	tk, err := registry.Tokenizer[tn](cfg.Options.Tokenizer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: tokenizer %s: %w", tn, err)
	}
	b, err := registry.Batcher[bn](cfg.Options.Batcher)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: batcher %s: %w", bn, err)
	}
	c, err := registry.Classifier[cn](policy, budget, cfg.Options.Classifier)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: classifier %s: %w", cn, err)
	}
	agg, err := registry.Aggregator[an](cfg.Options.Aggregator)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: aggregator %s: %w", an, err)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: writer %s: %w", wn, err)
	}

	comp := pipeline.Components{
		Reader:     r,
		Tokenizer:  tk,
		Batcher:    b,
		Classifier: c,
		Aggregator: agg,
		Writer:     w,
	}
	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.BatchSize,
		Budget:      budget,
		Verdicts:    boolOr(cfg.Verdicts, false),
		Summary:     boolOr(cfg.Summary, false),
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
