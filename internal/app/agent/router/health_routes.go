/**
 * 路由:健康检查路由
 * @author: sun977
 * @date: 2025.10.21
 * @description: 健康检查、存活检查、版本信息，不需要认证
 */
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clownetagent/internal/pkg/logger"
	"clownetagent/internal/pkg/version"
)

// setupHealthRoutes 设置健康检查路由
func (r *Router) setupHealthRoutes() {
	r.engine.GET("/health", r.handleHealth)
	r.engine.GET("/ping", r.handlePing)
	r.engine.GET("/version", r.handleVersion)
}

// handleHealth 健康检查处理器，未连接中继时返回 503
func (r *Router) handleHealth(c *gin.Context) {
	report := r.status.Health()

	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// handlePing Ping处理器
func (r *Router) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": logger.FormatTimestamp(time.Now()),
	})
}

// handleVersion 版本信息处理器
func (r *Router) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetInfo())
}
