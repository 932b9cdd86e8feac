/**
 * 认证相关模型
 * @author: sun977
 * @date: 2025.10.21
 * @description: 连接握手的认证帧与应答帧
 * @func: 每次(重)连接都以同一个 agent_id 重新认证
 */
package client

import "fmt"

// ==================== 认证相关 ====================

// AuthRequest 握手认证帧
type AuthRequest struct {
	Token    string `json:"token"`               // 共享密钥
	AgentID  string `json:"agent_id"`            // Agent ID
	Role     string `json:"role"`                // worker / warden
	Hostname string `json:"hostname,omitempty"`  // 主机名
	Version  string `json:"version,omitempty"`   // Agent版本
	TenantID string `json:"tenant_id,omitempty"` // 租户ID（可选）
}

// Validate 校验认证帧
func (r *AuthRequest) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if r.Role == "" {
		return fmt.Errorf("role is required")
	}
	return nil
}

// AuthAck 中继认证成功应答
type AuthAck struct {
	AgentID string `json:"agent_id"`
}

// AuthFailure 中继认证失败应答
type AuthFailure struct {
	Reason string `json:"reason"`
}
