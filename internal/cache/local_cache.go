package cache

import (
	"sync"
	"time"
)

// LocalCache 本地内存缓存
//
// 特点：
// - 支持 TTL 过期
// - 定期清理过期条目（Close 后停止）
// - 容量限制：满时先清理过期条目，仍满则淘汰最早过期的条目
type LocalCache struct {
	mu      sync.Mutex
	data    map[string]cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数（0 表示不限制）
//   - ttl: 默认过期时间
func NewLocalCache(maxSize int, ttl time.Duration) *LocalCache {
	c := newLocalCache(maxSize, ttl, time.Now)

	// 启动定期清理
	go c.cleanupLoop(time.Minute)

	return c
}

func newLocalCache(maxSize int, ttl time.Duration, now func() time.Time) *LocalCache {
	return &LocalCache{
		data:    make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Get 获取缓存值
func (c *LocalCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false
	}

	// 检查是否过期
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false
	}

	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store(key, value, ttl)
}

// Add 仅在 key 不存在或已过期时写入
//
// 返回 true 表示写入成功，false 表示有效条目已存在。
func (c *LocalCache) Add(key string, value any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.data[key]; ok && !c.now().After(entry.expiresAt) {
		return false
	}
	c.store(key, value, ttl)
	return true
}

// Delete 删除缓存值
func (c *LocalCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
}

// Len 返回条目数（包括尚未清理的过期条目）
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.data)
}

// Clear 清空所有缓存
func (c *LocalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]cacheEntry)
}

// Close 停止定期清理
func (c *LocalCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// store 调用方需持有锁
func (c *LocalCache) store(key string, value any, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	if _, exists := c.data[key]; !exists && c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evict()
	}

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// evict 清理过期条目，仍然满时淘汰最早过期的条目
func (c *LocalCache) evict() {
	c.removeExpired()
	if len(c.data) < c.maxSize {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, entry := range c.data {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey = key
			oldest = entry.expiresAt
		}
	}
	delete(c.data, oldestKey)
}

func (c *LocalCache) removeExpired() {
	now := c.now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.removeExpired()
			c.mu.Unlock()
		}
	}
}
