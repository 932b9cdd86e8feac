/**
 * 日志中间件
 * @author: sun977
 * @date: 2025.10.21
 * @description: 记录本地健康检查服务的HTTP访问日志
 */
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"clownetagent/internal/pkg/logger"
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	// 跳过日志的路径
	SkipPaths []string `json:"skip_paths"`

	// 慢请求阈值
	SlowRequestThreshold time.Duration `json:"slow_request_threshold"`
}

// LoggingMiddleware 日志中间件
type LoggingMiddleware struct {
	config *LoggingConfig
}

// NewLoggingMiddleware 创建日志中间件
func NewLoggingMiddleware(config *LoggingConfig) *LoggingMiddleware {
	if config == nil {
		config = &LoggingConfig{
			SkipPaths:            []string{"/ping"},
			SlowRequestThreshold: 2 * time.Second,
		}
	}
	return &LoggingMiddleware{config: config}
}

// Handler 日志处理器
func (m *LoggingMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if m.shouldSkipLogging(path) {
			return
		}

		latency := time.Since(startTime)
		logger.LogAccessRequest(c.Request.Method, path, c.Writer.Status(), latency, c.ClientIP())

		if m.config.SlowRequestThreshold > 0 && latency > m.config.SlowRequestThreshold {
			logger.WithFields(map[string]interface{}{
				"path":    path,
				"latency": latency.String(),
			}).Warn("slow request")
		}
	}
}

// shouldSkipLogging 检查是否跳过日志
func (m *LoggingMiddleware) shouldSkipLogging(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
