// 自定义日志格式化器
package logger

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// FormatTimestamp 格式化时间戳为统一的毫秒精度格式
// 返回格式："2006-01-02 15:04:05.000"
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000")
}

// LogType 日志类型枚举
type LogType string

const (
	// SystemLog 系统日志 - 记录组件运行状态（连接、上报、配置）
	SystemLog LogType = "system"
	// TaskLog 任务日志 - 记录指令执行生命周期
	TaskLog LogType = "task"
	// RelayLog 中继日志 - 记录收发的中继事件
	RelayLog LogType = "relay"
	// AccessLog 访问日志 - 记录本地健康检查HTTP请求
	AccessLog LogType = "access"
)

// 中继事件方向
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// LogLevel 日志级别类型，封装logrus.Level避免业务层直接依赖logrus
type LogLevel int

const (
	// DebugLevel 调试级别
	DebugLevel LogLevel = iota
	// InfoLevel 信息级别
	InfoLevel
	// WarnLevel 警告级别
	WarnLevel
	// ErrorLevel 错误级别
	ErrorLevel
)

// toLogrusLevel 将封装的LogLevel转换为logrus.Level
func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// mergeFields 合并额外字段
func mergeFields(fields logrus.Fields, extraFields map[string]interface{}) logrus.Fields {
	for k, v := range extraFields {
		fields[k] = v
	}
	return fields
}

// LogSystemEvent 记录系统事件日志
// 用于记录连接建立、断开、重连、上报、配置重载等组件级事件
func LogSystemEvent(component, event, message string, level LogLevel, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
	}, extraFields)

	LoggerInstance.logger.WithFields(fields).Log(toLogrusLevel(level), fmt.Sprintf("%s - %s: %s", component, event, message))
}

// LogTaskOperation 记录任务执行日志
// status: running / success / fail
func LogTaskOperation(taskID, kind, status, message string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":    TaskLog,
		"task_id": taskID,
		"kind":    kind,
		"status":  status,
	}, extraFields)

	entry := LoggerInstance.logger.WithFields(fields)
	switch status {
	case "fail":
		entry.Warn(fmt.Sprintf("Task %s failed: %s", kind, message))
	case "running":
		entry.Debug(fmt.Sprintf("Task %s running: %s", kind, message))
	default:
		entry.Info(fmt.Sprintf("Task %s %s: %s", kind, status, message))
	}
}

// LogRelayEvent 记录中继事件日志
func LogRelayEvent(direction, event string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":      RelayLog,
		"direction": direction,
		"event":     event,
	}, extraFields)

	LoggerInstance.logger.WithFields(fields).Debug(fmt.Sprintf("Relay %s event: %s", direction, event))
}

// LogAccessRequest 记录本地HTTP访问日志
func LogAccessRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	if LoggerInstance == nil {
		return
	}

	LoggerInstance.logger.WithFields(logrus.Fields{
		"type":          AccessLog,
		"method":        method,
		"path":          path,
		"status_code":   statusCode,
		"response_time": latency.Milliseconds(),
		"client_ip":     clientIP,
	}).Debug(fmt.Sprintf("%s %s - %d", method, path, statusCode))
}
