package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(maxSize int, ttl time.Duration) (*LocalCache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newLocalCache(maxSize, ttl, clk.now), clk
}

func TestLocalCache(t *testing.T) {
	t.Run("读写与过期", func(t *testing.T) {
		c, clk := newTestCache(0, time.Minute)

		c.Set("a", 1, 0)
		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)

		clk.advance(time.Minute + time.Second)
		_, ok = c.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("自定义 TTL", func(t *testing.T) {
		c, clk := newTestCache(0, time.Minute)

		c.Set("a", 1, time.Hour)
		clk.advance(30 * time.Minute)
		_, ok := c.Get("a")
		assert.True(t, ok)
	})

	t.Run("Add 仅在不存在时写入", func(t *testing.T) {
		c, clk := newTestCache(0, time.Minute)

		assert.True(t, c.Add("k", true, 0))
		assert.False(t, c.Add("k", true, 0))

		clk.advance(2 * time.Minute)
		assert.True(t, c.Add("k", true, 0))
	})

	t.Run("容量满时淘汰最早过期的条目", func(t *testing.T) {
		c, clk := newTestCache(2, time.Minute)

		c.Set("first", 1, 0)
		clk.advance(time.Second)
		c.Set("second", 2, 0)
		clk.advance(time.Second)
		c.Set("third", 3, 0)

		assert.Equal(t, 2, c.Len())
		_, ok := c.Get("first")
		assert.False(t, ok)
		_, ok = c.Get("third")
		assert.True(t, ok)
	})

	t.Run("覆盖已有条目不触发淘汰", func(t *testing.T) {
		c, _ := newTestCache(2, time.Minute)

		c.Set("a", 1, 0)
		c.Set("b", 2, 0)
		c.Set("a", 3, 0)

		v, _ := c.Get("a")
		assert.Equal(t, 3, v)
		_, ok := c.Get("b")
		assert.True(t, ok)
	})

	t.Run("删除与清空", func(t *testing.T) {
		c, _ := newTestCache(0, time.Minute)

		c.Set("a", 1, 0)
		c.Set("b", 2, 0)
		c.Delete("a")
		assert.Equal(t, 1, c.Len())

		c.Clear()
		assert.Equal(t, 0, c.Len())
	})
}

func TestNewLocalCacheClose(t *testing.T) {
	c := NewLocalCache(10, time.Minute)
	c.Set("a", 1, 0)

	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
}
