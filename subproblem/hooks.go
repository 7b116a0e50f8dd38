package subproblem

import (
	"time"

	"github.com/sarchlab/wavefreq/hooking"
)

// Hook positions of a Dispatcher.
var (
	// HookPosDispatchStart fires when a dispatch begins. Item is a
	// DispatchInfo.
	HookPosDispatchStart = &hooking.HookPos{Name: "DispatchStart"}

	// HookPosDispatchEnd fires when a dispatch ends for any reason. Item is a
	// DispatchInfo.
	HookPosDispatchEnd = &hooking.HookPos{Name: "DispatchEnd"}

	// HookPosJobStart fires right before a job is solved or submitted to a
	// pool. Item is a JobInfo.
	HookPosJobStart = &hooking.HookPos{Name: "JobStart"}

	// HookPosJobEnd fires when the result of a job is retrieved. Item is a
	// JobInfo.
	HookPosJobEnd = &hooking.HookPos{Name: "JobEnd"}
)

// Mode names how a dispatch runs its jobs.
type Mode string

// Dispatch modes.
const (
	Sequential Mode = "sequential"
	Parallel   Mode = "parallel"
)

// DispatchInfo describes one dispatch.
type DispatchInfo struct {
	ID    string
	Mode  Mode
	Total int

	// Completed and Err are set at HookPosDispatchEnd.
	Completed int
	Err       error
}

// JobInfo describes one job of a dispatch.
type JobInfo struct {
	DispatchID string
	Index      int
	Freq       complex128
	Mode       Mode

	// Elapsed, Worker and Err are set at HookPosJobEnd.
	Elapsed time.Duration
	Worker  int
	Err     error
}
