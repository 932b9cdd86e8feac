/**
 * 重连退避策略
 * @author: sun977
 * @date: 2025.10.21
 * @description: 指数退避：初始间隔起步，每次失败翻倍，封顶最大间隔，成功后复位
 */
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Policy 指数退避
// 并发安全，连接管理器与健康检查接口会同时读取
type Policy struct {
	base   time.Duration
	max    time.Duration
	jitter float64

	mu       sync.Mutex
	attempts int
	rand     func() float64
}

// New 创建退避策略
// jitter 取值 [0,1]，为0时序列严格为 base, 2*base, 4*base ... max
func New(base, max time.Duration, jitter float64) *Policy {
	if base <= 0 {
		base = 5 * time.Second
	}
	if max < base {
		max = base
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return &Policy{
		base:   base,
		max:    max,
		jitter: jitter,
		rand:   rand.Float64,
	}
}

// Next 记录一次失败并返回本次应等待的间隔
func (p *Policy) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	return p.applyJitter(p.delayFor(p.attempts))
}

// Peek 返回下一次失败将等待的间隔（不含抖动），不改变状态
func (p *Policy) Peek() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delayFor(p.attempts + 1)
}

// Reset 连接成功后复位
func (p *Policy) Reset() {
	p.mu.Lock()
	p.attempts = 0
	p.mu.Unlock()
}

// Attempts 连续失败次数
func (p *Policy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// delayFor 第n次失败的间隔: base * 2^(n-1)，封顶max
func (p *Policy) delayFor(attempt int) time.Duration {
	delay := p.base
	for i := 1; i < attempt; i++ {
		delay *= 2
		// 翻倍到封顶后停止，避免长时间运行后溢出
		if delay >= p.max {
			return p.max
		}
	}
	if delay > p.max {
		return p.max
	}
	return delay
}

func (p *Policy) applyJitter(delay time.Duration) time.Duration {
	if p.jitter == 0 {
		return delay
	}
	// delay * (1 ± jitter)
	factor := 1 + p.jitter*(2*p.rand()-1)
	jittered := time.Duration(float64(delay) * factor)
	if jittered < 0 {
		return 0
	}
	return jittered
}
