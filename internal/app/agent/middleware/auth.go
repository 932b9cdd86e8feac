/**
 * 认证中间件
 * @author: sun977
 * @date: 2025.10.21
 * @description: 任务查询接口的 API Key 校验，健康检查接口不需要认证
 */
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clownetagent/internal/pkg/logger"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// API Key，为空时不校验
	APIKey       string `json:"api_key"`
	APIKeyHeader string `json:"api_key_header"`

	// 跳过认证的路径
	SkipPaths []string `json:"skip_paths"`
}

// AuthMiddleware 认证中间件
type AuthMiddleware struct {
	config *AuthConfig
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	if config == nil {
		config = &AuthConfig{}
	}
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = "X-API-Key"
	}
	return &AuthMiddleware{config: config}
}

// Handler 认证处理器
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.config.APIKey == "" || m.shouldSkipAuth(c.Request.URL.Path) {
			c.Next()
			return
		}

		ok, reason := m.validateAPIKey(c)
		if !ok {
			logger.WithFields(map[string]interface{}{
				"path":      c.Request.URL.Path,
				"client_ip": c.ClientIP(),
			}).Warn("Authentication failed: " + reason)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": reason,
			})
			return
		}
		c.Next()
	}
}

// shouldSkipAuth 检查是否应该跳过认证
func (m *AuthMiddleware) shouldSkipAuth(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// validateAPIKey 验证API Key，Header 缺失时也接受 Bearer Token
func (m *AuthMiddleware) validateAPIKey(c *gin.Context) (bool, string) {
	apiKey := c.GetHeader(m.config.APIKeyHeader)
	if apiKey == "" {
		apiKey = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if apiKey == "" {
		return false, "missing api key"
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.config.APIKey)) != 1 {
		return false, "invalid api key"
	}
	return true, ""
}
