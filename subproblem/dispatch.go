package subproblem

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"
	"github.com/sarchlab/wavefreq/hooking"
	"github.com/sarchlab/wavefreq/sparse"
	"github.com/sarchlab/wavefreq/workpool"
)

// DefaultTimeout bounds the wait for each parallel result.
const DefaultTimeout = 60 * time.Second

// ErrConsumed is yielded when a result sequence is iterated a second time.
var ErrConsumed = errors.New("subproblem: result sequence already consumed")

// Dispatcher solves a list of subproblems and yields the scaled wavefields in
// subproblem order.
type Dispatcher struct {
	*hooking.HookableBase

	parallel bool
	factory  workpool.Factory
	timeout  time.Duration
	scale    complex128
	logger   *log.Logger
}

// Mode returns the mode the dispatcher runs in. Parallel mode requires a pool
// factory.
func (d *Dispatcher) Mode() Mode {
	if d.parallel && d.factory != nil {
		return Parallel
	}

	return Sequential
}

// Scale returns the factor applied to every wavefield.
func (d *Dispatcher) Scale() complex128 {
	return d.scale
}

// Timeout returns the per-result timeout of parallel dispatches.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Dispatch checks rhs against subs and returns the sequence of wavefields.
// No job runs before the sequence is iterated, and the sequence can be
// iterated only once.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	subs []workpool.Subproblem,
	rhs RHS,
) (iter.Seq2[*sparse.Dense, error], error) {
	if err := rhs.check(len(subs)); err != nil {
		return nil, err
	}

	run := d.sequential
	if d.Mode() == Parallel {
		run = d.parallelRun
	}

	var consumed atomic.Bool

	return func(yield func(*sparse.Dense, error) bool) {
		if consumed.Swap(true) {
			yield(nil, ErrConsumed)
			return
		}

		info := DispatchInfo{
			ID:    xid.New().String(),
			Mode:  d.Mode(),
			Total: len(subs),
		}
		d.InvokeHook(hooking.HookCtx{Domain: d, Pos: HookPosDispatchStart, Item: info})
		d.logger.Debug("dispatch started",
			"id", info.ID, "mode", info.Mode, "subproblems", info.Total)

		counting := func(u *sparse.Dense, err error) bool {
			if err != nil {
				info.Err = err
			} else {
				info.Completed++
			}

			return yield(u, err)
		}

		defer func() {
			d.InvokeHook(hooking.HookCtx{Domain: d, Pos: HookPosDispatchEnd, Item: info})
			if info.Err != nil {
				d.logger.Error("dispatch failed",
					"id", info.ID, "completed", info.Completed, "err", info.Err)
				return
			}
			d.logger.Debug("dispatch finished",
				"id", info.ID, "completed", info.Completed)
		}()

		run(ctx, info, subs, rhs, counting)
	}, nil
}

func (d *Dispatcher) sequential(
	ctx context.Context,
	info DispatchInfo,
	subs []workpool.Subproblem,
	rhs RHS,
	yield func(*sparse.Dense, error) bool,
) {
	for i, sp := range subs {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		job := d.jobInfo(info, i, sp)
		d.InvokeHook(hooking.HookCtx{Domain: d, Pos: HookPosJobStart, Item: job})

		start := time.Now()
		u, err := sp.Solve(rhs.At(i))
		job.Elapsed = time.Since(start)

		if err != nil {
			err = d.jobFailed(i, err)
			job.Err = err
			d.InvokeHook(hooking.HookCtx{Domain: d, Pos: HookPosJobEnd, Item: job})
			yield(nil, err)

			return
		}

		d.InvokeHook(hooking.HookCtx{Domain: d, Pos: HookPosJobEnd, Item: job})

		if !yield(u.Scale(d.scale), nil) {
			return
		}
	}
}

func (d *Dispatcher) parallelRun(
	ctx context.Context,
	info DispatchInfo,
	subs []workpool.Subproblem,
	rhs RHS,
	yield func(*sparse.Dense, error) bool,
) {
	pool, err := d.factory(ctx)
	if err != nil {
		yield(nil, err)
		return
	}

	defer func() {
		if err := pool.Close(); err != nil {
			d.logger.Warn("closing worker pool", "id", info.ID, "err", err)
		}
	}()

	handles := make([]*workpool.Handle, len(subs))
	for i, sp := range subs {
		d.InvokeHook(hooking.HookCtx{
			Domain: d,
			Pos:    HookPosJobStart,
			Item:   d.jobInfo(info, i, sp),
		})
		handles[i] = pool.Submit(workpool.Job{Index: i, Subproblem: sp, RHS: rhs.At(i)})
	}

	for i, h := range handles {
		res, err := pool.Await(ctx, h, d.timeout)

		job := d.jobInfo(info, i, subs[i])
		job.Elapsed = res.Elapsed
		job.Worker = res.Worker
		job.Err = err
		d.InvokeHook(hooking.HookCtx{Domain: d, Pos: HookPosJobEnd, Item: job})

		if err != nil {
			yield(nil, err)
			return
		}

		if !yield(res.Wavefield.Scale(d.scale), nil) {
			return
		}
	}
}

func (d *Dispatcher) jobInfo(info DispatchInfo, i int, sp workpool.Subproblem) JobInfo {
	return JobInfo{
		DispatchID: info.ID,
		Index:      i,
		Freq:       sp.Config().Freq,
		Mode:       info.Mode,
	}
}

func (d *Dispatcher) jobFailed(i int, err error) error {
	return fmt.Errorf("%w: job %d: %w", workpool.ErrJobFailed, i, err)
}
