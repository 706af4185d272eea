package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"rptsafe/pkg/safety"
)

// EnvPrefix 为全部环境变量覆盖的前缀。
const EnvPrefix = "RPTSAFE_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency: 4,
		BatchSize:   256,
		Logging:     Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:     "fs",
			Tokenizer:  "decimal",
			Batcher:    "chunk",
			Classifier: "automaton",
			Aggregator: "sum",
			Writer:     "none",
		},
	}
}

// Load 按扩展名选择解析器：.yaml/.yml 走 YAML，其余按 JSON。
func Load(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	r, closeFn, err := source(path, raw)
	if err != nil {
		return cfg, err
	}
	defer closeFn()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadYAML 解析 YAML 配置。
// 先解码为通用树再转为 JSON 走严格解码，使 options 子树与 JSON 配置同构，未知字段同样失败。
func LoadYAML(path string, raw []byte) (Config, error) {
	r, closeFn, err := source(path, raw)
	if err != nil {
		return Config{}, err
	}
	defer closeFn()
	var tree map[string]any
	if err := yaml.NewDecoder(r).Decode(&tree); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, errors.New("config: empty yaml document")
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return Config{}, fmt.Errorf("config: yaml to json: %w", err)
	}
	return LoadJSON("", b)
}

func source(path string, raw []byte) (io.Reader, func(), error) {
	switch {
	case len(raw) > 0:
		return bytes.NewReader(raw), func() {}, nil
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return nil, nil, errors.New("no config source provided")
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。指针字段非 nil 即覆盖。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.BatchSize != 0 {
		out.BatchSize = over.BatchSize
	}
	if over.Budget != nil {
		v := *over.Budget
		out.Budget = &v
	}
	if over.Policy != nil {
		p := *over.Policy
		out.Policy = &p
	}
	if over.Verdicts != nil {
		v := *over.Verdicts
		out.Verdicts = &v
	}
	if over.Summary != nil {
		v := *over.Summary
		out.Summary = &v
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}

	// 组件名（空不覆盖）
	mergeName(&out.Components.Reader, over.Components.Reader)
	mergeName(&out.Components.Tokenizer, over.Components.Tokenizer)
	mergeName(&out.Components.Batcher, over.Components.Batcher)
	mergeName(&out.Components.Classifier, over.Components.Classifier)
	mergeName(&out.Components.Aggregator, over.Components.Aggregator)
	mergeName(&out.Components.Writer, over.Components.Writer)

	// Options（完整替换对应键）
	mergeRaw(&out.Options.Reader, over.Options.Reader)
	mergeRaw(&out.Options.Tokenizer, over.Options.Tokenizer)
	mergeRaw(&out.Options.Batcher, over.Options.Batcher)
	mergeRaw(&out.Options.Classifier, over.Options.Classifier)
	mergeRaw(&out.Options.Aggregator, over.Options.Aggregator)
	mergeRaw(&out.Options.Writer, over.Options.Writer)
	return out
}

func mergeName(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func mergeRaw(dst *json.RawMessage, v json.RawMessage) {
	if len(v) > 0 {
		*dst = cloneRaw(v)
	}
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 前缀 RPTSAFE_；集合之外的键忽略；已识别但值非法的键返回错误。
// 支持：INPUTS, CONCURRENCY, BATCH_SIZE, BUDGET, VERDICTS, SUMMARY, LOG_LEVEL, LOG_DIR,
// POLICY_INCREASING / POLICY_DECREASING（"min,max"），COMPONENTS_*，OPTIONS_*_JSON。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) || len(key) == len(EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		if strings.TrimSpace(val) == "" {
			// 空值视为未设置，避免 .env 模板中的空键清空配置
			continue
		}
		if err := applyEnv(&over, nk, val); err != nil {
			return Config{}, fmt.Errorf("config: env %s: %w", key, err)
		}
	}
	return over, nil
}

func applyEnv(over *Config, nk, val string) error {
	switch nk {
	case "INPUTS":
		over.Inputs = splitComma(val)
	case "CONCURRENCY":
		return atoiInto(&over.Concurrency, val)
	case "BATCH_SIZE":
		return atoiInto(&over.BatchSize, val)
	case "BUDGET":
		var n int
		if err := atoiInto(&n, val); err != nil {
			return err
		}
		over.Budget = &n
	case "VERDICTS", "SUMMARY":
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		if nk == "VERDICTS" {
			over.Verdicts = &b
		} else {
			over.Summary = &b
		}
	case "LOG_LEVEL":
		over.Logging.Level = strings.TrimSpace(val)
	case "LOG_DIR":
		over.Logging.Dir = strings.TrimSpace(val)
	case "POLICY_INCREASING", "POLICY_DECREASING":
		r, err := ParseRange(val)
		if err != nil {
			return err
		}
		if over.Policy == nil {
			p := safety.CanonicalPolicy()
			over.Policy = &p
		}
		if nk == "POLICY_INCREASING" {
			over.Policy.Increasing = r
		} else {
			over.Policy.Decreasing = r
		}
	case "COMPONENTS_READER":
		over.Components.Reader = strings.TrimSpace(val)
	case "COMPONENTS_TOKENIZER":
		over.Components.Tokenizer = strings.TrimSpace(val)
	case "COMPONENTS_BATCHER":
		over.Components.Batcher = strings.TrimSpace(val)
	case "COMPONENTS_CLASSIFIER":
		over.Components.Classifier = strings.TrimSpace(val)
	case "COMPONENTS_AGGREGATOR":
		over.Components.Aggregator = strings.TrimSpace(val)
	case "COMPONENTS_WRITER":
		over.Components.Writer = strings.TrimSpace(val)
	case "OPTIONS_READER_JSON", "OPTIONS_TOKENIZER_JSON", "OPTIONS_BATCHER_JSON",
		"OPTIONS_CLASSIFIER_JSON", "OPTIONS_AGGREGATOR_JSON", "OPTIONS_WRITER_JSON":
		raw := json.RawMessage(val)
		if !json.Valid(raw) {
			return errors.New("invalid json")
		}
		switch nk {
		case "OPTIONS_READER_JSON":
			over.Options.Reader = raw
		case "OPTIONS_TOKENIZER_JSON":
			over.Options.Tokenizer = raw
		case "OPTIONS_BATCHER_JSON":
			over.Options.Batcher = raw
		case "OPTIONS_CLASSIFIER_JSON":
			over.Options.Classifier = raw
		case "OPTIONS_AGGREGATOR_JSON":
			over.Options.Aggregator = raw
		default:
			over.Options.Writer = raw
		}
	}
	return nil
}

// ParseRange 解析 "min,max" 形式的闭区间。
func ParseRange(s string) (safety.Range, error) {
	lo, hi, ok := strings.Cut(s, ",")
	if !ok {
		return safety.Range{}, fmt.Errorf("range %q: want min,max", s)
	}
	mn, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return safety.Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	mx, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return safety.Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	return safety.Range{Min: mn, Max: mx}, nil
}

// WithOutputDir 返回切换为 fs Writer 并设置 output_dir 的覆盖。
// 已有 writer 选项中的其他键保留。
func WithOutputDir(cfg Config, dir string) (Config, error) {
	opts := map[string]any{}
	if cfg.Components.Writer == "fs" && len(cfg.Options.Writer) > 0 {
		if err := json.Unmarshal(cfg.Options.Writer, &opts); err != nil {
			return cfg, fmt.Errorf("config: writer options: %w", err)
		}
	}
	opts["output_dir"] = dir
	b, err := json.Marshal(opts)
	if err != nil {
		return cfg, err
	}
	cfg.Components.Writer = "fs"
	cfg.Options.Writer = b
	return cfg, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoiInto(dst *int, s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}
