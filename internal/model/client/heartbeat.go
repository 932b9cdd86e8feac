/**
 * 心跳相关模型
 * @author: sun977
 * @date: 2025.10.21
 * @description: 周期上报 report 与 warden 心跳标记 traffic_log 的载荷
 * @func: 每次发送都重新采集，不缓存
 */
package client

// ==================== 心跳相关 ====================

// ReportPayload 状态上报 {specs, metadata, sessions}
type ReportPayload struct {
	Specs    *Specs          `json:"specs"`
	Metadata *ReportMetadata `json:"metadata"`
	Sessions []BrainSession  `json:"sessions"`
}

// Specs 主机规格与实时指标
type Specs struct {
	Hostname      string   `json:"hostname"`
	OS            string   `json:"os"`
	Platform      string   `json:"platform"`
	Arch          string   `json:"arch"`
	CPUModel      string   `json:"cpu_model,omitempty"`
	CPUCores      int      `json:"cpu_cores"`
	CPUPercent    float64  `json:"cpu_percent"`
	RAMPercent    float64  `json:"ram_percent"`
	RAMTotal      uint64   `json:"ram_total"`
	DiskPercent   float64  `json:"disk_percent"`
	NetSent       int64    `json:"net_sent"`
	NetRecv       int64    `json:"net_recv"`
	UptimeSeconds uint64   `json:"uptime_seconds"`
	LatencyMS     *float64 `json:"latency_ms,omitempty"`
	SampledAt     int64    `json:"sampled_at"` // 采样时间（毫秒）
}

// ReportMetadata 进程元信息
type ReportMetadata struct {
	PID       int    `json:"pid"`
	BrainPath string `json:"brain_path"`
	Version   string `json:"version"`
	Role      string `json:"role"`
}

// BrainSession Brain CLI 的活跃会话，字段由 CLI 决定，原样透传
type BrainSession map[string]interface{}

// TrafficLogPayload warden 心跳标记
type TrafficLogPayload struct {
	Type      string `json:"type"`
	AgentID   string `json:"agentId"`
	Timestamp int64  `json:"timestamp"`
}

// TrafficTypeWardenHeartbeat warden心跳标记类型
const TrafficTypeWardenHeartbeat = "warden_heartbeat"
