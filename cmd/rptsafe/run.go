package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "rptsafe/internal/config"
	"rptsafe/internal/diag"
	"rptsafe/internal/pipeline"
)

// resolveConfig 按优先级合并：默认 → 配置文件/RPTSAFE_CONFIG_JSON → ENV → CLI，然后校验。
func (a *app) resolveConfig(cmd *cobra.Command, roots []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	// 配置来源（ENV: RPTSAFE_CONFIG_JSON 优先于文件）
	path := a.flagConfig
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	var (
		base cfgpkg.Config
		err  error
		have bool
	)
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		base, err = cfgpkg.LoadJSON("", []byte(s))
		have = true
	} else if path != "" {
		base, err = cfgpkg.Load(path)
		have = true
	}
	if err != nil {
		fprintf(a.stderr, "配置解析失败: %v\n", err)
		return cfg, configFail(err)
	}
	if have {
		cfg = cfgpkg.Merge(cfg, base)
	}

	// ENV 覆盖（有限集合）
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(a.stderr, "环境变量解析失败: %v\n", err)
		return cfg, configFail(err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖；预算允许显式 0，故以 Changed 判断
	var overCLI cfgpkg.Config
	if cmd.Flags().Changed("budget") {
		b := a.flagBudget
		overCLI.Budget = &b
	}
	if a.flagConcurrency > 0 {
		overCLI.Concurrency = a.flagConcurrency
	}
	overCLI.Components.Classifier = a.flagClassifier
	if len(roots) > 0 {
		overCLI.Inputs = roots
	}
	cfg = cfgpkg.Merge(cfg, overCLI)
	if dir := strings.TrimSpace(a.flagOutputDir); dir != "" {
		if cfg, err = cfgpkg.WithOutputDir(cfg, dir); err != nil {
			fprintf(a.stderr, "配置解析失败: %v\n", err)
			return cfg, configFail(err)
		}
		// 显式指定输出目录即表示需要工件
		if cfg.Verdicts == nil {
			on := true
			cfg.Verdicts = &on
		}
		if cfg.Summary == nil {
			on := true
			cfg.Summary = &on
		}
	}
	// 未给出任何输入时读取 STDIN
	if len(cfg.Inputs) == 0 {
		cfg.Inputs = []string{"-"}
	}

	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(a.stderr, "配置校验失败: %v\n", err)
		// 打印有效配置，便于诊断
		_ = dumpConfig(a, cfg)
		return cfg, configFail(err)
	}
	return cfg, nil
}

// prepare 解析配置、建立日志并装配组件。失败均视为配置错误。
func (a *app) prepare(cmd *cobra.Command, roots []string) (cfgpkg.Config, pipeline.Components, pipeline.Settings, *diag.Logger, error) {
	start := time.Now()
	cfg, err := a.resolveConfig(cmd, roots)
	if err != nil {
		a.bootLog(err, start)
		return cfg, pipeline.Components{}, pipeline.Settings{}, nil, err
	}
	logger := diag.NewLogger(a.corrID, cfg.Logging.Level, cfg.Logging.Dir)

	// 预检：若使用文件系统 Writer，检查输出目录的可写性
	if err := preflightCheckOutputDir(cfg); err != nil {
		fprintf(a.stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		_ = logger.Close()
		return cfg, pipeline.Components{}, pipeline.Settings{}, nil, configFail(err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(a.stderr, "装配失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		_ = logger.Close()
		return cfg, pipeline.Components{}, pipeline.Settings{}, nil, configFail(err)
	}

	logger.DebugStart("config", "effective", "", "", map[string]string{
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"concurrency":  strconv.Itoa(cfg.Concurrency),
		"batch_size":   strconv.Itoa(cfg.BatchSize),
		"budget":       strconv.Itoa(cfg.EffectiveBudget()),
		"policy":       fmt.Sprintf("%s/%s", cfg.EffectivePolicy().Increasing, cfg.EffectivePolicy().Decreasing),
		"reader":       cfg.Components.Reader,
		"tokenizer":    cfg.Components.Tokenizer,
		"batcher":      cfg.Components.Batcher,
		"classifier":   cfg.Components.Classifier,
		"aggregator":   cfg.Components.Aggregator,
		"writer":       cfg.Components.Writer,
	})
	return cfg, comp, set, logger, nil
}

// bootLog 在配置未就绪时以默认日志设置记录首错。
func (a *app) bootLog(err error, start time.Time) {
	d := cfgpkg.Defaults()
	logger := diag.NewLogger(a.corrID, d.Logging.Level, d.Logging.Dir)
	logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
	_ = logger.Close()
}

// runOnce 为根命令：执行一次流水线并输出计数。
func (a *app) runOnce(cmd *cobra.Command, roots []string) error {
	cfg, comp, set, logger, err := a.prepare(cmd, roots)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(a.stderr, a.flagStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	if term != nil {
		term.RunStart(cfg.Concurrency, cfg.Components.Classifier, cfg.EffectiveBudget())
	}

	start := time.Now()
	_, err = a.round(cmd.Context(), comp, set, logger)
	if term != nil {
		term.RunFinish(err == nil, time.Since(start))
	}
	a.dumpMetrics(logger)
	if err != nil {
		return runtimeFail(err)
	}
	return nil
}

// round 执行一次流水线，记录日志/指标并输出结果。
func (a *app) round(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Summary, error) {
	start := time.Now()
	t := logger.Start("pipeline", "run")
	sum, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		// 分类到最接近的错误码（运行期错误）
		code := string(diag.Classify(err))
		logger.Error("pipeline", code, "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(a.stderr, "运行失败: %v\n", err)
		}
		return sum, err
	}
	t.Finish("run", int64(sum.Safe))
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	return sum, a.printSummary(sum)
}

func (a *app) printSummary(sum pipeline.Summary) error {
	if !a.flagJSON {
		_, err := fmt.Fprintln(a.stdout, sum.Safe)
		return err
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func (a *app) dumpMetrics(logger *diag.Logger) {
	if a.flagMetricsFile == "" {
		return
	}
	if err := diag.WriteMetrics(a.flagMetricsFile); err != nil {
		fprintf(a.stderr, "提示：指标写出失败（已跳过）：%v\n", err)
		logger.Warn("metrics", string(diag.Classify(err)), "write metrics failed", map[string]string{"path": a.flagMetricsFile})
	}
}

func dumpConfig(a *app, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	fprintf(a.stderr, "有效配置:\n%s\n", b)
	return nil
}

// writerOutputDir 返回 fs writer 的 output_dir；其他 writer 返回空。
func writerOutputDir(cfg cfgpkg.Config) string {
	name := cfg.Components.Writer
	if strings.TrimSpace(name) == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if strings.TrimSpace(name) != "fs" {
		return ""
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	return strings.TrimSpace(wopts.OutputDir)
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 目录已存在：尝试创建并删除临时文件；不存在：在父目录尝试创建并删除临时目录。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	dir := writerOutputDir(cfg)
	if dir == "" {
		// 未指定时无法可靠检查，让装配阶段按实现自行报错
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	// 目录不存在：检查最近的已存在祖先可写性
	parent := filepath.Dir(dir)
	for {
		pst, err := os.Stat(parent)
		if err == nil {
			if !pst.IsDir() {
				return fmt.Errorf("父路径不是目录: %s", parent)
			}
			break
		}
		if !os.IsNotExist(err) {
			return err
		}
		next := filepath.Dir(parent)
		if next == parent {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		parent = next
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
