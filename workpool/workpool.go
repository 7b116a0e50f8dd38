// Package workpool runs solve jobs on a set of workers and hands results
// back by handle.
//
// Three pools are provided. A SyncPool solves each job as it is submitted, a
// GoroutinePool uses in-process workers, and a ProcessPool ships every job
// to a worker process that shares nothing with the caller.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/wavefreq/discretization"
	"github.com/sarchlab/wavefreq/sparse"
)

var (
	// ErrTimeout is returned when a result is not ready within the await
	// timeout.
	ErrTimeout = errors.New("workpool: timed out waiting for result")

	// ErrJobFailed wraps the error a job returned or the panic it raised.
	ErrJobFailed = errors.New("workpool: job failed")

	// ErrClosed is the failure of jobs still queued when the pool closed.
	ErrClosed = errors.New("workpool: pool closed")
)

// Subproblem is the part of a discretization a worker needs.
type Subproblem interface {
	Solve(rhs *sparse.Dense) (*sparse.Dense, error)
	Config() discretization.Config
}

// A Job asks a worker to solve one subproblem against one right-hand side.
type Job struct {
	Index      int
	Subproblem Subproblem
	RHS        *sparse.Dense
}

// Result is the outcome of a Job.
type Result struct {
	Index     int
	Wavefield *sparse.Dense
	Elapsed   time.Duration
	Worker    int
	Err       error
}

// Handle refers to a submitted job.
type Handle struct {
	index  int
	once   sync.Once
	done   chan struct{}
	result Result
}

func newHandle(index int) *Handle {
	return &Handle{
		index: index,
		done:  make(chan struct{}),
	}
}

// Index returns the index of the job the handle refers to.
func (h *Handle) Index() int {
	return h.index
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) resolve(r Result) {
	h.once.Do(func() {
		h.result = r
		close(h.done)
	})
}

// Pool accepts jobs and returns their results.
type Pool interface {
	// Submit queues a job. It never blocks on the job itself.
	Submit(job Job) *Handle

	// Await waits for the result behind the handle. A non-positive timeout
	// waits until ctx is done.
	Await(ctx context.Context, h *Handle, timeout time.Duration) (Result, error)

	// Size is the number of workers.
	Size() int

	// Close releases all workers. Jobs that have not started fail with
	// ErrClosed.
	Close() error
}

// Factory creates a pool. Dispatchers call it once per dispatch.
type Factory func(ctx context.Context) (Pool, error)

func await(ctx context.Context, h *Handle, timeout time.Duration) (Result, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}

	select {
	case <-h.done:
	case <-expire:
		return Result{Index: h.index},
			fmt.Errorf("%w: job %d after %s", ErrTimeout, h.index, timeout)
	case <-ctx.Done():
		return Result{Index: h.index}, ctx.Err()
	}

	r := h.result
	if r.Err != nil {
		return r, fmt.Errorf("%w: job %d: %w", ErrJobFailed, r.Index, r.Err)
	}

	return r, nil
}

func runJob(job Job, worker int) (res Result) {
	start := time.Now()
	res.Index = job.Index
	res.Worker = worker

	defer func() {
		if r := recover(); r != nil {
			res.Wavefield = nil
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Elapsed = time.Since(start)
	}()

	res.Wavefield, res.Err = job.Subproblem.Solve(job.RHS)

	return res
}
