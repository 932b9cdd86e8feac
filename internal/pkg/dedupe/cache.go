/**
 * 指令去重缓存
 * @author: sun977
 * @date: 2025.10.21
 * @description: 带TTL与容量上限的去重缓存，记住最近处理过的指令ID，防止中继重放导致重复执行
 */
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry 缓存条目
type cacheEntry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache 去重缓存，并发安全
// 链表维护插入顺序（最旧在前），容量满时 O(1) 淘汰最旧条目
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New 创建去重缓存，ttl<=0 表示永不过期（只按容量淘汰）
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 200
	}
	return &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// CheckAndMark 原子地检查并标记
// 返回 true 表示重复（已处理过），false 表示首次出现且已记录
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.seen[key]; ok {
		if !c.expired(entry, now) {
			return true
		}
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	c.seen[key] = &cacheEntry{
		markedAt: now,
		element:  c.order.PushBack(key),
	}
	return false
}

// Len 当前条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) expired(entry *cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.markedAt) >= c.ttl
}

// evictOldest 淘汰最旧条目，调用方需持有锁
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}
