package pool

import (
	"context"
	"sync"
)

// PanicHandler 接收任务中恢复的 panic 值
type PanicHandler func(value any)

// WorkerPool 协程池
//
// 用于限制并发协程数量，避免创建过多协程导致资源耗尽
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	onPanic    PanicHandler
	quit       chan struct{} // Start 的 ctx 结束后关闭
	wg         sync.WaitGroup
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数（小于 1 时按 1 处理）
//   - queueSize: 任务队列大小
//   - onPanic: 任务 panic 时的回调，可以为 nil
func NewWorkerPool(maxWorkers, queueSize int, onPanic PanicHandler) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		onPanic:    onPanic,
		quit:       make(chan struct{}),
	}
}

// Start 启动协程池，只能调用一次
//
// ctx 结束后 worker 退出，队列中尚未执行的任务被丢弃。
func (p *WorkerPool) Start(ctx context.Context) {
	context.AfterFunc(ctx, func() {
		close(p.quit)
	})
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit 提交任务
//
// 如果队列已满，会阻塞直到有空位；Start 的 ctx 结束后返回 false。
// 不能在 Stop 之后调用。
func (p *WorkerPool) Submit(task func()) bool {
	select {
	case <-p.quit:
		return false
	default:
	}

	select {
	case p.taskQueue <- task:
		return true
	case <-p.quit:
		return false
	}
}

// TrySubmit 尝试提交任务
//
// 如果队列已满，立即返回 false
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 停止接收任务并等待 worker 退出
//
// ctx 未结束时队列中的任务全部执行完才返回；ctx 已结束时剩余任务不会执行。
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run 执行单个任务，panic 交给 onPanic 而不终止 worker
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	task()
}
