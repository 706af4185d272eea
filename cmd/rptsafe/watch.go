package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"rptsafe/internal/watch"
)

func (a *app) watchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "输入变化时重新统计并输出计数，直至中断",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd, args, debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "最后一次变化后的静默时长")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, roots []string, debounce time.Duration) error {
	cfg, comp, set, logger, err := a.prepare(cmd, roots)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	var ignore []string
	if dir := writerOutputDir(cfg); dir != "" {
		ignore = append(ignore, dir)
	}
	if dir := cfg.Logging.Dir; dir != "" {
		ignore = append(ignore, dir)
	}
	w, err := watch.New(cfg.Inputs, func(ctx context.Context) error {
		_, err := a.round(ctx, comp, set, logger)
		a.dumpMetrics(logger)
		return err
	}, watch.Options{Debounce: debounce, Ignore: ignore, Logger: logger})
	if err != nil {
		fprintf(a.stderr, "监视启动失败: %v\n", err)
		return configFail(err)
	}
	if err := w.Run(cmd.Context()); err != nil {
		fprintf(a.stderr, "监视失败: %v\n", err)
		return runtimeFail(err)
	}
	return nil
}
