package workpool

import (
	"context"
	"sync"
	"time"
)

// SyncPool solves every job inside Submit.
type SyncPool struct{}

// SyncPoolFactory creates SyncPools.
func SyncPoolFactory(context.Context) (Pool, error) {
	return SyncPool{}, nil
}

// Submit solves the job before returning its handle.
func (SyncPool) Submit(job Job) *Handle {
	h := newHandle(job.Index)
	h.resolve(runJob(job, 0))

	return h
}

// Await returns the result of the job.
func (SyncPool) Await(
	ctx context.Context,
	h *Handle,
	timeout time.Duration,
) (Result, error) {
	return await(ctx, h, timeout)
}

// Size is always 1.
func (SyncPool) Size() int {
	return 1
}

// Close does nothing.
func (SyncPool) Close() error {
	return nil
}

// GoroutinePool runs jobs on a fixed number of goroutines.
type GoroutinePool struct {
	size      int
	queue     *jobQueue
	closeOnce sync.Once
}

// NewGoroutinePool starts a pool with the given number of workers. A
// non-positive size uses HostConcurrency.
func NewGoroutinePool(size int) *GoroutinePool {
	if size <= 0 {
		size = HostConcurrency()
	}

	p := &GoroutinePool{
		size:  size,
		queue: newJobQueue(),
	}

	for i := 0; i < size; i++ {
		go p.work(i)
	}

	return p
}

// NewGoroutinePoolFactory returns a Factory of GoroutinePools of the given
// size.
func NewGoroutinePoolFactory(size int) Factory {
	return func(context.Context) (Pool, error) {
		return NewGoroutinePool(size), nil
	}
}

func (p *GoroutinePool) work(id int) {
	for {
		item, ok := p.queue.pop()
		if !ok {
			return
		}

		item.handle.resolve(runJob(item.job, id))
	}
}

// Submit queues the job.
func (p *GoroutinePool) Submit(job Job) *Handle {
	return p.queue.push(job)
}

// Await waits for the result of the job.
func (p *GoroutinePool) Await(
	ctx context.Context,
	h *Handle,
	timeout time.Duration,
) (Result, error) {
	return await(ctx, h, timeout)
}

// Size returns the number of workers.
func (p *GoroutinePool) Size() int {
	return p.size
}

// Close stops idle workers. A worker busy with a job exits when the job
// returns; Close does not wait for it.
func (p *GoroutinePool) Close() error {
	p.closeOnce.Do(p.queue.close)
	return nil
}

var (
	_ Pool = SyncPool{}
	_ Pool = (*GoroutinePool)(nil)
)
