package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"clownetagent/internal/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Long:  "显示 clownet-agent 的版本信息，包括版本号、构建时间、Git 提交和 Go 版本。",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetInfo()
		pterm.DefaultSection.Println("ClawNet Agent " + info.Version)
		_ = pterm.DefaultTable.WithData(pterm.TableData{
			{"Build Time", info.BuildTime},
			{"Git Commit", info.GitCommit},
			{"Go Version", info.GoVersion},
			{"Platform", info.Platform},
		}).Render()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
