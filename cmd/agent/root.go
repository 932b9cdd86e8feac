/*
 * @author: Sun977
 * @date: 2026.01.21
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"clownetagent/internal/config"
	"clownetagent/internal/pkg/logger"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clownet-agent",
	Short: "ClawNet 中继节点 Agent",
	Long: `clownet-agent 通过 websocket 连接 ClawNet 中继，
接收远程指令(Shell执行、Brain委派、房间与私信消息)并上报主机状态。

示例:
  1.启动服务模式
	clownet-agent server --relay wss://relay.example.com/agent --token mysecret
  2.以审计角色启动
	clownet-agent server --role warden
  3.查看 Brain 活跃会话
	clownet-agent sessions
`,
	SilenceUsage: true,
	// PersistentPreRun: 全局初始化逻辑，确保所有子命令都能使用日志
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.NewEnvLoader().Load(); err != nil {
			pterm.Warning.Printfln("Failed to load .env: %v", err)
		}
		initCLILogger(cmd)
	},
}

func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] Agent crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局 Flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")
}

// cliOverrides 全局 Flag 对应的配置覆盖项
func cliOverrides(cmd *cobra.Command) map[string]interface{} {
	overrides := make(map[string]interface{})
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		overrides["log.level"] = logLevel
	}
	return overrides
}

// initCLILogger 初始化 CLI 模式下的日志，server 子命令启动后由配置文件接管
func initCLILogger(cmd *cobra.Command) {
	level := "warn"
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		level = logLevel
	}

	switch level {
	case "debug":
		pterm.EnableDebugMessages()
	case "info":
		pterm.DisableDebugMessages()
	default:
		pterm.DisableDebugMessages()
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	}

	if _, err := logger.InitLogger(&config.LogConfig{
		Level:  level,
		Format: "text",
		Output: "stdout",
	}); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
	}
}
