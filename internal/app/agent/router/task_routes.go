/**
 * 路由:任务查询路由
 * @author: sun977
 * @date: 2025.10.21
 * @description: 查询最近执行的指令，配置了 API Key 时需要认证
 */
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// setupTaskRoutes 设置任务查询路由
func (r *Router) setupTaskRoutes(apiGroup *gin.RouterGroup) {
	taskGroup := apiGroup.Group("/tasks")
	taskGroup.Use(r.authMiddleware.Handler())
	{
		taskGroup.GET("", r.handleListTasks)   // 最近的任务
		taskGroup.GET("/:id", r.handleGetTask) // 任务详情
	}
}

// handleListTasks 任务列表
func (r *Router) handleListTasks(c *gin.Context) {
	tasks := r.status.ListTasks()
	c.JSON(http.StatusOK, gin.H{
		"total": len(tasks),
		"tasks": tasks,
	})
}

// handleGetTask 任务详情
func (r *Router) handleGetTask(c *gin.Context) {
	record, ok := r.status.GetTask(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "task not found",
		})
		return
	}
	c.JSON(http.StatusOK, record)
}
