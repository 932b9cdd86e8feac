// ### 发布流程
// 1. **更新版本号**：修改 `internal/pkg/version/version.go`
// 2. **构建**：通过 -ldflags 注入 BuildTime 与 GitCommit
// 3. **推送代码和 Tag**：推送到远程仓库

package version

import "runtime"

var (
	Version   = "1.4.0" // 版本号 -- 发布时候更新版本号
	BuildTime string
	GitCommit string
	GoVersion = runtime.Version()
)

// Info 版本信息
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetVersion() string {
	return Version
}

// GetInfo 完整版本信息，version 命令与 /version 接口共用
func GetInfo() Info {
	return Info{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: GoVersion,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetUserAgent 连接中继时的 User-Agent
func GetUserAgent() string {
	return "ClawNet-Agent/" + Version + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
