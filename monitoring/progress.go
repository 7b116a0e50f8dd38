package monitoring

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sarchlab/wavefreq/hooking"
	"github.com/sarchlab/wavefreq/subproblem"
)

// A ProgressBar tracks the jobs of one dispatch.
type ProgressBar struct {
	sync.Mutex
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
	Failed     uint64    `json:"failed"`
}

func newProgressBar(name string, total uint64) *ProgressBar {
	return &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}
}

// IncrementInProgress adds to the number of running jobs.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// MoveInProgressToFinished marks running jobs as finished.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

// MoveInProgressToFailed marks running jobs as failed.
func (b *ProgressBar) MoveInProgressToFailed(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Failed += amount
}

type progressSnapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
	Failed     uint64    `json:"failed"`
}

func (b *ProgressBar) snapshot() progressSnapshot {
	b.Lock()
	defer b.Unlock()

	return progressSnapshot{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
		Failed:     b.Failed,
	}
}

// progressHook keeps one progress bar per running dispatch.
type progressHook struct {
	monitor *Monitor
	name    string

	mu   sync.Mutex
	bars map[string]*ProgressBar
}

func (h *progressHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case subproblem.HookPosDispatchStart:
		d := ctx.Item.(subproblem.DispatchInfo)
		bar := h.monitor.CreateProgressBar(h.name+" "+string(d.Mode), uint64(d.Total))

		h.mu.Lock()
		h.bars[d.ID] = bar
		h.mu.Unlock()
	case subproblem.HookPosJobStart:
		if bar := h.bar(ctx.Item.(subproblem.JobInfo).DispatchID); bar != nil {
			bar.IncrementInProgress(1)
		}
	case subproblem.HookPosJobEnd:
		job := ctx.Item.(subproblem.JobInfo)
		if bar := h.bar(job.DispatchID); bar != nil {
			if job.Err != nil {
				bar.MoveInProgressToFailed(1)
			} else {
				bar.MoveInProgressToFinished(1)
			}
		}
	case subproblem.HookPosDispatchEnd:
		d := ctx.Item.(subproblem.DispatchInfo)

		h.mu.Lock()
		bar := h.bars[d.ID]
		delete(h.bars, d.ID)
		h.mu.Unlock()

		if bar != nil {
			h.monitor.CompleteProgressBar(bar)
		}
	}
}

func (h *progressHook) bar(dispatchID string) *ProgressBar {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.bars[dispatchID]
}
