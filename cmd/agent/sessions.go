package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"clownetagent/internal/config"
	"clownetagent/internal/executor/brain"
	"clownetagent/internal/executor/system"
	modelComm "clownetagent/internal/model/client"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "查看 Brain CLI 的活跃会话",
	Long:  "调用 Brain CLI 的会话查询子命令，以表格形式输出活跃会话，与状态上报中的 sessions 字段一致。",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewConfigLoader(cfgFile, config.EnvPrefix)
		for key, value := range cliOverrides(cmd) {
			loader.WithOverride(key, value)
		}
		cfg, err := loader.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		client := brain.NewClient(brain.Options{
			Bin:             cfg.Brain.Bin,
			SessionID:       cfg.Brain.SessionID,
			AgentCommand:    cfg.Brain.AgentCommand,
			SessionsCommand: cfg.Brain.SessionsCommand,
			StatusTimeout:   cfg.Brain.StatusTimeout,
		}, system.NewProcessRunner())

		sessions, err := client.ListActiveSessions(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list sessions from %s: %w", client.Path(), err)
		}
		if len(sessions) == 0 {
			pterm.Info.Println("No active sessions")
			return nil
		}
		return renderSessions(sessions)
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

// renderSessions 会话字段由 CLI 决定，取所有字段的并集作为表头
func renderSessions(sessions []modelComm.BrainSession) error {
	keySet := make(map[string]struct{})
	for _, s := range sessions {
		for k := range s {
			keySet[k] = struct{}{}
		}
	}
	headers := make([]string, 0, len(keySet))
	for k := range keySet {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	tableData := pterm.TableData{headers}
	for _, s := range sessions {
		row := make([]string, len(headers))
		for i, k := range headers {
			row[i] = cellText(s[k])
		}
		tableData = append(tableData, row)
	}

	return pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithData(tableData).
		Render()
}

func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}
