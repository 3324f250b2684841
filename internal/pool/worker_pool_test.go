package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool(t *testing.T) {
	t.Run("执行全部任务", func(t *testing.T) {
		p := NewWorkerPool(4, 16, nil)
		p.Start(context.Background())

		var count atomic.Int64
		for i := 0; i < 100; i++ {
			p.Submit(func() { count.Add(1) })
		}
		p.Stop()

		assert.Equal(t, int64(100), count.Load())
	})

	t.Run("panic 交给回调且 worker 继续运行", func(t *testing.T) {
		var mu sync.Mutex
		var recovered []any
		p := NewWorkerPool(1, 4, func(value any) {
			mu.Lock()
			defer mu.Unlock()
			recovered = append(recovered, value)
		})
		p.Start(context.Background())

		var ran atomic.Bool
		p.Submit(func() { panic("task failed") })
		p.Submit(func() { ran.Store(true) })
		p.Stop()

		assert.Equal(t, []any{"task failed"}, recovered)
		assert.True(t, ran.Load())
	})

	t.Run("panic 无回调时被吞掉", func(t *testing.T) {
		p := NewWorkerPool(1, 1, nil)
		p.Start(context.Background())
		p.Submit(func() { panic("ignored") })
		assert.NotPanics(t, p.Stop)
	})

	t.Run("队列满时 TrySubmit 返回 false", func(t *testing.T) {
		p := NewWorkerPool(1, 1, nil)

		assert.True(t, p.TrySubmit(func() {}))
		assert.False(t, p.TrySubmit(func() {}))

		p.Start(context.Background())
		p.Stop()
	})

	t.Run("ctx 结束后 Submit 不再阻塞", func(t *testing.T) {
		p := NewWorkerPool(2, 0, nil)
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)

		cancel()
		<-p.quit
		p.wg.Wait()

		var ran atomic.Bool
		assert.False(t, p.Submit(func() { ran.Store(true) }))
		assert.False(t, ran.Load())
		assert.NotPanics(t, p.Stop)
	})

	t.Run("非法参数被修正", func(t *testing.T) {
		p := NewWorkerPool(0, -1, nil)
		assert.Equal(t, 1, p.maxWorkers)
		assert.Equal(t, 0, cap(p.taskQueue))
	})
}
