package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rptsafe/internal/pipeline"
)

var pipelineRun = pipeline.Run

// version 由 -ldflags "-X main.version=..." 注入。
var version = "dev"

// 退出码：0 成功；1 运行期失败；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// exitError 携带退出码；消息在出错点已输出到 stderr。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configFail(err error) error  { return &exitError{code: exitConfig, err: err} }
func runtimeFail(err error) error { return &exitError{code: exitRuntime, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run 解析命令行并执行；返回进程退出码。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = godotenv.Load()

	a := &app{corrID: uuid.NewString(), stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		// 旗标解析等 cobra 层错误
		fprintf(stderr, "参数错误: %v\n", err)
		return exitConfig
	}
	return exitOK
}

// app 持有一次进程调用的旗标与输出端。
type app struct {
	corrID string
	stdout io.Writer
	stderr io.Writer

	flagConfig      string
	flagBudget      int
	flagConcurrency int
	flagClassifier  string
	flagStatus      bool
	flagJSON        bool
	flagMetricsFile string
	flagOutputDir   string
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rptsafe [roots...]",
		Short: "统计数值报告中满足单调步长约束（可容忍丢弃一个值）的报告个数",
		Long: `rptsafe 读取每行一份的数值报告（空白分隔的非负十进制整数），
判定其是否在步长区间内单调（可配置允许丢弃至多一个元素），输出安全报告计数。

roots 可为文件、目录（按字典序递归）或 "-"（STDIN，不能与其他根混用）；缺省为 STDIN。`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd, args)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.flagConfig, "config", "", "配置文件路径（JSON 或 YAML）；缺省读取 ./config.json（若存在）")
	pf.IntVar(&a.flagBudget, "budget", 1, "可丢弃元素个数（0 或 1；覆盖配置）")
	pf.IntVar(&a.flagConcurrency, "concurrency", 0, "并发度（覆盖配置）")
	pf.StringVar(&a.flagClassifier, "classifier", "", "分类器实现：automaton | naive（覆盖配置）")
	pf.BoolVar(&a.flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.BoolVar(&a.flagJSON, "json", false, "以 JSON 汇总代替纯计数输出")
	pf.StringVar(&a.flagMetricsFile, "metrics-file", "", "运行结束后写出 Prometheus 文本格式指标")
	pf.StringVar(&a.flagOutputDir, "output-dir", "", "写出逐报告判定与 summary.json 的目录（启用 fs writer）")

	root.AddCommand(a.initConfigCmd(), a.watchCmd(), a.versionCmd())
	return root
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "输出版本号",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fprintf(a.stdout, "rptsafe %s\n", version)
			return nil
		},
	}
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
