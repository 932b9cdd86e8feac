/**
 * Agent端路由注册
 * @author: sun977
 * @date: 2025.10.21
 * @description: 本地健康检查服务的路由，统一管理中间件与路由
 */
package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"clownetagent/internal/app/agent/middleware"
	"clownetagent/internal/service/audit"
	"clownetagent/internal/service/client"
	"clownetagent/internal/service/task"
)

// RouterConfig 路由配置
type RouterConfig struct {
	// 运行模式 debug/release/test
	Mode string `json:"mode"`

	// API版本
	APIVersion string `json:"api_version"`

	// 路由前缀
	Prefix string `json:"prefix"`

	// 中间件配置
	MiddlewareConfig *MiddlewareConfig `json:"middleware_config"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	// 认证中间件配置
	Auth *middleware.AuthConfig `json:"auth"`

	// 日志中间件配置
	Logging *middleware.LoggingConfig `json:"logging"`
}

// HealthReport 健康状态
type HealthReport struct {
	Status       string                 `json:"status"` // healthy / degraded
	AgentID      string                 `json:"agent_id"`
	Role         string                 `json:"role"`
	Hostname     string                 `json:"hostname"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	Connection   client.SessionSnapshot `json:"connection"`
	Tasks        task.TaskStats         `json:"tasks"`
	Audit        audit.AuditStats       `json:"audit"`
	LastReportAt *time.Time             `json:"last_report_at,omitempty"`
}

// Healthy 已连接中继视为健康
func (h HealthReport) Healthy() bool {
	return h.Connection.State == client.StateConnected
}

// StatusProvider 路由所需的运行状态
type StatusProvider interface {
	Health() HealthReport
	ListTasks() []task.TaskRecord
	GetTask(id string) (task.TaskRecord, bool)
}

// Router Agent路由器
type Router struct {
	engine *gin.Engine
	config *RouterConfig
	status StatusProvider

	// 中间件
	authMiddleware    *middleware.AuthMiddleware
	loggingMiddleware *middleware.LoggingMiddleware
}

// NewRouter 创建新的路由器
func NewRouter(config *RouterConfig, status StatusProvider) *Router {
	if config == nil {
		config = &RouterConfig{}
	}
	if config.APIVersion == "" {
		config.APIVersion = "v1"
	}
	if config.Prefix == "" {
		config.Prefix = "/api"
	}
	if config.MiddlewareConfig == nil {
		config.MiddlewareConfig = &MiddlewareConfig{}
	}

	// 设置Gin模式
	switch config.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(config.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := &Router{
		engine: gin.New(),
		config: config,
		status: status,
	}

	router.initMiddleware()
	router.registerRoutes()
	return router
}

// GetEngine 获取gin引擎
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// initMiddleware 初始化中间件
func (r *Router) initMiddleware() {
	r.authMiddleware = middleware.NewAuthMiddleware(r.config.MiddlewareConfig.Auth)
	r.loggingMiddleware = middleware.NewLoggingMiddleware(r.config.MiddlewareConfig.Logging)
}

// registerRoutes 注册路由
func (r *Router) registerRoutes() {
	// 全局中间件
	r.engine.Use(gin.Recovery())
	r.engine.Use(r.loggingMiddleware.Handler())

	// 健康检查路由（不需要认证）
	r.setupHealthRoutes()

	// API路由组
	apiGroup := r.engine.Group(r.config.Prefix + "/" + r.config.APIVersion)
	r.setupTaskRoutes(apiGroup)
}
