/**
 * 入站事件分发
 * @author: sun977
 * @date: 2025.10.21
 * @description: 事件名到处理函数的分发表，单个处理函数出错或 panic 不影响连接
 */
package client

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/logger"
)

// HandlerFunc 入站事件处理函数
type HandlerFunc func(ctx context.Context, env *modelComm.Envelope) error

// ObserverFunc 观察所有入站事件，不参与处理结果
type ObserverFunc func(env *modelComm.Envelope)

// Dispatcher 事件分发表
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  map[string]HandlerFunc
	observers []ObserverFunc
}

// NewDispatcher 创建分发表
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Handle 注册事件处理函数，同名事件后注册的覆盖先注册的
func (d *Dispatcher) Handle(event string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = fn
}

// Observe 注册观察者
func (d *Dispatcher) Observe(fn ObserverFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// Events 已注册的事件名
func (d *Dispatcher) Events() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	events := make([]string, 0, len(d.handlers))
	for event := range d.handlers {
		events = append(events, event)
	}
	return events
}

// Dispatch 分发一个入站事件
func (d *Dispatcher) Dispatch(ctx context.Context, env *modelComm.Envelope) (err error) {
	d.mu.RLock()
	handler, ok := d.handlers[env.Event]
	observers := d.observers
	d.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %q panicked: %v", env.Event, r)
			logger.WithFields(map[string]interface{}{
				"path":  "client.Dispatcher.Dispatch",
				"event": env.Event,
				"stack": string(debug.Stack()),
			}).Error(err)
		}
	}()

	for _, observe := range observers {
		observe(env)
	}

	if !ok {
		return fmt.Errorf("%w: %s", modelComm.ErrUnknownEvent, env.Event)
	}
	return handler(ctx, env)
}
