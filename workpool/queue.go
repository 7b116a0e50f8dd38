package workpool

import "sync"

type queuedJob struct {
	job    Job
	handle *Handle
}

// jobQueue is an unbounded FIFO shared by the workers of a pool.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []queuedJob
	closed bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)

	return q
}

func (q *jobQueue) push(job Job) *Handle {
	h := newHandle(job.Index)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		h.resolve(Result{Index: job.Index, Err: ErrClosed})
		return h
	}

	q.items = append(q.items, queuedJob{job: job, handle: h})
	q.cond.Signal()

	return h
}

// pop blocks until a job is available. It returns false once the queue is
// closed.
func (q *jobQueue) pop() (queuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.closed {
		return queuedJob{}, false
	}

	item := q.items[0]
	q.items[0] = queuedJob{}
	q.items = q.items[1:]

	return item, true
}

// close wakes every waiting worker and fails the jobs still queued.
func (q *jobQueue) close() {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, item := range pending {
		item.handle.resolve(Result{Index: item.job.Index, Err: ErrClosed})
	}
}
