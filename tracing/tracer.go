// Package tracing collects per-job traces from dispatchers.
package tracing

import "github.com/sarchlab/wavefreq/subproblem"

// A Tracer is told about every job of a dispatch.
type Tracer interface {
	StartJob(job subproblem.JobInfo)
	EndJob(job subproblem.JobInfo)
}

// A DispatchTracer is also told when dispatches start and end.
type DispatchTracer interface {
	Tracer
	StartDispatch(d subproblem.DispatchInfo)
	EndDispatch(d subproblem.DispatchInfo)
}

// JobFilter selects the jobs a tracer is interested in.
type JobFilter func(job subproblem.JobInfo) bool

// AllJobs accepts every job.
func AllJobs(subproblem.JobInfo) bool {
	return true
}

// FailedJobs accepts jobs that ended with an error.
func FailedJobs(job subproblem.JobInfo) bool {
	return job.Err != nil
}
