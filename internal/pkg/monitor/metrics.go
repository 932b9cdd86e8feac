package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"clownetagent/internal/pkg/logger"
)

// HostInfo 主机静态信息
type HostInfo struct {
	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	Arch            string
	CPUModel        string
	CPUCores        int
	MemoryTotal     uint64
	DiskTotal       uint64
}

// SystemMetrics 系统实时指标
type SystemMetrics struct {
	CPUUsage         float64
	MemoryUsage      float64
	DiskUsage        float64
	NetworkBytesSent int64
	NetworkBytesRecv int64
	UptimeSeconds    uint64
	SampledAt        time.Time
}

// Collector 指标采集器，上报服务通过该接口获取数据，测试中可替换
type Collector interface {
	SystemMetrics(ctx context.Context) (*SystemMetrics, error)
	HostInfo(ctx context.Context) (*HostInfo, error)
}

// gopsutilCollector 基于 gopsutil 的采集器
type gopsutilCollector struct {
	diskPath    string
	cpuInterval time.Duration
}

// NewCollector 创建采集器
// diskPath 为空时使用根目录
func NewCollector(diskPath string) Collector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &gopsutilCollector{
		diskPath:    diskPath,
		cpuInterval: 100 * time.Millisecond,
	}
}

// SystemMetrics 获取系统指标，单项失败只记录警告，不影响其它指标
func (c *gopsutilCollector) SystemMetrics(ctx context.Context) (*SystemMetrics, error) {
	metrics := &SystemMetrics{SampledAt: time.Now()}

	// 1. CPU 使用率，短时间采样
	cpuPercent, err := cpu.PercentWithContext(ctx, c.cpuInterval, false)
	if err != nil {
		logger.LogSystemEvent("Monitor", "SystemMetrics", "Failed to get CPU usage: "+err.Error(), logger.WarnLevel, nil)
	} else if len(cpuPercent) > 0 {
		metrics.CPUUsage = cpuPercent[0]
	}

	// 2. 内存使用率
	vMem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		logger.LogSystemEvent("Monitor", "SystemMetrics", "Failed to get Memory usage: "+err.Error(), logger.WarnLevel, nil)
	} else {
		metrics.MemoryUsage = vMem.UsedPercent
	}

	// 3. 磁盘使用率
	dUsage, err := c.diskUsage(ctx)
	if err != nil {
		logger.LogSystemEvent("Monitor", "SystemMetrics", "Failed to get Disk usage: "+err.Error(), logger.WarnLevel, nil)
	} else {
		metrics.DiskUsage = dUsage.UsedPercent
	}

	// 4. 网络流量，所有网卡合计
	netIO, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		logger.LogSystemEvent("Monitor", "SystemMetrics", "Failed to get Network stats: "+err.Error(), logger.WarnLevel, nil)
	} else if len(netIO) > 0 {
		metrics.NetworkBytesSent = int64(netIO[0].BytesSent)
		metrics.NetworkBytesRecv = int64(netIO[0].BytesRecv)
	}

	// 5. 运行时长
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		logger.LogSystemEvent("Monitor", "SystemMetrics", "Failed to get uptime: "+err.Error(), logger.WarnLevel, nil)
	} else {
		metrics.UptimeSeconds = uptime
	}

	return metrics, nil
}

// HostInfo 获取主机静态信息
func (c *gopsutilCollector) HostInfo(ctx context.Context) (*HostInfo, error) {
	info := &HostInfo{}

	hInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.LogSystemEvent("Monitor", "HostInfo", "Failed to get host info: "+err.Error(), logger.WarnLevel, nil)
	} else {
		info.Hostname = hInfo.Hostname
		info.OS = hInfo.OS
		info.Platform = hInfo.Platform
		info.PlatformVersion = hInfo.PlatformVersion
		info.KernelVersion = hInfo.KernelVersion
		info.Arch = hInfo.KernelArch
	}

	if info.OS == "" {
		info.OS = runtime.GOOS
	}
	if info.Arch == "" {
		info.Arch = runtime.GOARCH
	}

	cpuInfo, err := cpu.InfoWithContext(ctx)
	if err != nil {
		logger.LogSystemEvent("Monitor", "HostInfo", "Failed to get CPU info: "+err.Error(), logger.WarnLevel, nil)
	} else if len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}
	// 逻辑核数，与运行时看到的并发能力一致
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil && cores > 0 {
		info.CPUCores = cores
	} else {
		info.CPUCores = runtime.NumCPU()
	}

	vMem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		logger.LogSystemEvent("Monitor", "HostInfo", "Failed to get Memory info: "+err.Error(), logger.WarnLevel, nil)
	} else {
		info.MemoryTotal = vMem.Total
	}

	dUsage, err := c.diskUsage(ctx)
	if err != nil {
		logger.LogSystemEvent("Monitor", "HostInfo", "Failed to get Disk info: "+err.Error(), logger.WarnLevel, nil)
	} else {
		info.DiskTotal = dUsage.Total
	}

	return info, nil
}

// diskUsage 磁盘用量，"/" 在 Windows 上失败时回退到 C:
func (c *gopsutilCollector) diskUsage(ctx context.Context) (*disk.UsageStat, error) {
	dUsage, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil && runtime.GOOS == "windows" {
		dUsage, err = disk.UsageWithContext(ctx, "C:")
	}
	return dUsage, err
}
