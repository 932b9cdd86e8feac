/*
 * @author: Sun977
 * @date: 2026.01.21
 * @description: Server 模式子命令，连接中继并执行远程指令
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"clownetagent/internal/app/agent"
	"clownetagent/internal/config"
)

var (
	relayURL   string
	relayToken string
	agentID    string
	agentRole  string
	healthPort int
	dumpConfig string
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 Agent 服务模式",
	Long: `以守护进程方式启动 Agent，连接中继并监听指令下发。

可以通过命令行参数指定中继地址和认证 Token，也可以通过配置文件或环境变量指定。
命令行参数优先级最高。

示例:
  clownet-agent server --relay ws://127.0.0.1:3000/agent --token mysecret --role worker`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&relayURL, "relay", "", "中继地址 (ws:// 或 wss://)")
	serverCmd.Flags().StringVar(&relayToken, "token", "", "中继认证 Token")
	serverCmd.Flags().StringVar(&agentID, "id", "", "Agent ID (默认 node-<hostname>-<uuid>)")
	serverCmd.Flags().StringVar(&agentRole, "role", "", "Agent 角色 (worker, warden)")
	serverCmd.Flags().IntVar(&healthPort, "health-port", 0, "本地健康检查端口")
	serverCmd.Flags().StringVar(&dumpConfig, "dump-config", "", "将生效配置写出到指定文件后退出")
}

// serverOverrides 收集 server 子命令的覆盖项
func serverOverrides(cmd *cobra.Command) map[string]interface{} {
	overrides := cliOverrides(cmd)
	flags := cmd.Flags()
	if flags.Changed("relay") {
		overrides["relay.url"] = relayURL
	}
	if flags.Changed("token") {
		overrides["relay.token"] = relayToken
	}
	if flags.Changed("id") {
		overrides["agent.id"] = agentID
	}
	if flags.Changed("role") {
		overrides["agent.role"] = agentRole
	}
	if flags.Changed("health-port") {
		overrides["server.port"] = healthPort
	}
	return overrides
}

// runServer 启动 Agent 并等待退出信号
func runServer(cmd *cobra.Command) error {
	opts := agent.Options{
		ConfigPath: cfgFile,
		Overrides:  serverOverrides(cmd),
	}

	app, err := agent.NewApp(opts)
	if err != nil {
		return fmt.Errorf("failed to create agent app: %w", err)
	}

	if dumpConfig != "" {
		if err := config.SaveConfig(app.GetConfig(), dumpConfig); err != nil {
			return fmt.Errorf("failed to dump config: %w", err)
		}
		pterm.Success.Printfln("Effective config written to %s", dumpConfig)
		return nil
	}

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start agent app: %w", err)
	}

	// 等待中断信号以优雅地关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	pterm.Info.Println("Shutting down ClawNet agent...")

	// 给进行中的指令5秒钟的时间收尾
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.Stop(ctx); err != nil {
		return fmt.Errorf("agent forced to shutdown: %w", err)
	}
	return nil
}
