package tracing

import (
	"sync"
	"time"

	"github.com/sarchlab/wavefreq/subproblem"
)

// TotalTimeTracer adds up the solve time of the jobs that pass its filter.
// Overlapping jobs are counted in full.
type TotalTimeTracer struct {
	filter JobFilter

	lock      sync.Mutex
	totalTime time.Duration
	jobs      int
}

// NewTotalTimeTracer creates a TotalTimeTracer. A nil filter accepts every
// job.
func NewTotalTimeTracer(filter JobFilter) *TotalTimeTracer {
	if filter == nil {
		filter = AllJobs
	}

	return &TotalTimeTracer{filter: filter}
}

// TotalTime returns the accumulated solve time.
func (t *TotalTimeTracer) TotalTime() time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime
}

// Jobs returns the number of jobs counted.
func (t *TotalTimeTracer) Jobs() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.jobs
}

// StartJob does nothing.
func (t *TotalTimeTracer) StartJob(subproblem.JobInfo) {}

// EndJob adds the elapsed time of the job.
func (t *TotalTimeTracer) EndJob(job subproblem.JobInfo) {
	if !t.filter(job) {
		return
	}

	t.lock.Lock()
	t.totalTime += job.Elapsed
	t.jobs++
	t.lock.Unlock()
}
