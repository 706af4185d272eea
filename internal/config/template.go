package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 默认输入为 STDIN（"-"），Writer 输出到 ./out 目录并写出边车与汇总；
// 选项包含全部键，值为中性默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	budget := d.EffectiveBudget()
	policy := d.EffectivePolicy()
	on := true
	cfg := Config{
		Inputs:      []string{"-"},
		Concurrency: d.Concurrency,
		BatchSize:   d.BatchSize,
		Budget:      &budget,
		Policy:      &policy,
		Verdicts:    &on,
		Summary:     &on,
		Logging:     d.Logging,
		Components:  d.Components,
	}
	cfg.Components.Writer = "fs"
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "allow_exts": [".txt"]
}`)
	cfg.Options.Tokenizer = json.RawMessage(`{
  "max_digits": 18,
  "min_levels": 2,
  "skip_blank_lines": false
}`)
	cfg.Options.Batcher = json.RawMessage(`{
  "max_bytes": 0
}`)
	// 分类器与聚合器当前无配置项，保持空对象
	cfg.Options.Classifier = json.RawMessage(`{}`)
	cfg.Options.Aggregator = json.RawMessage(`{}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "layout": "mirror",
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}

// DotEnvTemplate 为 init-config 生成的 .env 模板；空值视为未设置。
const DotEnvTemplate = `# rptsafe 环境变量覆盖（优先级高于 config.json，低于命令行参数）
RPTSAFE_BUDGET=
RPTSAFE_CONCURRENCY=
RPTSAFE_BATCH_SIZE=
RPTSAFE_LOG_LEVEL=
RPTSAFE_LOG_DIR=
# 形如 1,3 与 -3,-1
RPTSAFE_POLICY_INCREASING=
RPTSAFE_POLICY_DECREASING=
RPTSAFE_COMPONENTS_CLASSIFIER=
`
