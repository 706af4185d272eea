package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "rptsafe/internal/config"
)

func (a *app) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在指定目录生成默认 config.json 与 .env 模板（已存在则不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return a.initConfig(dir)
		},
	}
}

func (a *app) initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fprintf(a.stderr, "生成默认配置失败: %v\n", err)
		return configFail(err)
	}
	cfgPath := filepath.Join(dir, "config.json")
	if err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig()); err != nil {
		fprintf(a.stderr, "生成默认配置失败: %v\n", err)
		return configFail(err)
	}
	// .env 模板失败不影响退出码
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	fprintf(a.stdout, "%s\n", cfgPath)
	return nil
}

// writeConfig 以 O_EXCL 创建，拒绝覆盖已存在文件。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeDotEnv 生成 .env 模板；文件已存在时跳过。
func writeDotEnv(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	if _, err := f.WriteString(cfgpkg.DotEnvTemplate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
