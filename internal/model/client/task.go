/**
 * 任务相关模型
 * @author: sun977
 * @date: 2025.10.21
 * @description: 任务状态与结果的出站载荷
 * @func: 同一任务ID最多一次 RUNNING 更新，随后恰好一次终态结果
 */
package client

// ==================== 任务相关 ====================

// TaskUpdatePayload 任务状态更新（RUNNING）
type TaskUpdatePayload struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	AgentID string `json:"agentId"`
	Result  string `json:"result"`
}

// TaskResultPayload 任务终态结果（SUCCESS / FAIL）
type TaskResultPayload struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	AgentID string `json:"agentId"`
	Output  string `json:"output"`
}
