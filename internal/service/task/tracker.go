/**
 * 任务记录
 * @author: sun977
 * @date: 2025.10.21
 * @description: 最近执行的指令及其状态，供健康检查接口查询
 * @func: 只保留最近 limit 条记录，计数器覆盖进程整个生命周期
 */
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"clownetagent/internal/core/model"
)

// TaskRecord 任务记录
type TaskRecord struct {
	ID         string           `json:"id"`
	Local      bool             `json:"local"` // 无中继任务ID，本地生成
	Kind       string           `json:"kind"`
	Summary    string           `json:"summary"`
	ReplyTo    string           `json:"reply_to,omitempty"`
	Status     model.TaskStatus `json:"status"`
	ExitCode   int              `json:"exit_code"`
	Output     string           `json:"output,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Duration   string           `json:"duration,omitempty"`
}

// TaskStats 任务计数
type TaskStats struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Tracker 任务记录表
type Tracker struct {
	mu      sync.RWMutex
	limit   int
	records map[string]*TaskRecord
	order   []string // 按开始时间排列
	stats   TaskStats
}

// NewTracker 创建任务记录表
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = 100
	}
	return &Tracker{
		limit:   limit,
		records: make(map[string]*TaskRecord),
	}
}

// Start 记录一条开始执行的指令，返回记录ID
func (t *Tracker) Start(instr model.Instruction) string {
	id := instr.TaskID
	local := false
	if id == "" {
		id = "local-" + uuid.NewString()[:8]
		local = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.records[id]; !exists {
		t.order = append(t.order, id)
	}
	t.records[id] = &TaskRecord{
		ID:        id,
		Local:     local,
		Kind:      string(instr.Kind),
		Summary:   instr.String(),
		ReplyTo:   instr.ReplyTo,
		Status:    model.TaskStatusRunning,
		StartedAt: time.Now(),
	}
	t.stats.Running++
	t.evictLocked()
	return id
}

// Finish 记录终态
func (t *Tracker) Finish(id string, result *model.TaskResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Running--
	if result.Status == model.TaskStatusFail {
		t.stats.Failed++
	} else {
		t.stats.Completed++
	}

	record, ok := t.records[id]
	if !ok {
		return
	}
	record.Status = result.Status
	record.ExitCode = result.ExitCode
	record.Output = result.HumanReply
	record.FinishedAt = time.Now()
	record.Duration = result.Duration.String()
}

// Get 查询单条记录
func (t *Tracker) Get(id string) (TaskRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	record, ok := t.records[id]
	if !ok {
		return TaskRecord{}, false
	}
	return *record, true
}

// List 最近的记录，新的在前
func (t *Tracker) List() []TaskRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := make([]TaskRecord, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		list = append(list, *t.records[t.order[i]])
	}
	return list
}

// Stats 任务计数
func (t *Tracker) Stats() TaskStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// evictLocked 超出容量时淘汰最早的已结束记录，运行中的记录保留
func (t *Tracker) evictLocked() {
	for len(t.order) > t.limit {
		evicted := false
		for i, id := range t.order {
			if t.records[id].Status.IsTerminal() {
				delete(t.records, id)
				t.order = append(t.order[:i], t.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}
