package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/wavefreq/hooking"
	"github.com/sarchlab/wavefreq/subproblem"
)

// CollectTrace attaches the tracer to a dispatcher.
func CollectTrace(domain hooking.Hookable, tracer Tracer) {
	for _, hook := range domain.Hooks() {
		if h, ok := hook.(*traceHook); ok && h.t == tracer {
			panic(fmt.Sprintf("tracer %s already attached", reflect.TypeOf(tracer)))
		}
	}

	domain.AcceptHook(&traceHook{t: tracer})
}

type traceHook struct {
	t Tracer
}

func (h *traceHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case subproblem.HookPosJobStart:
		h.t.StartJob(ctx.Item.(subproblem.JobInfo))
	case subproblem.HookPosJobEnd:
		h.t.EndJob(ctx.Item.(subproblem.JobInfo))
	case subproblem.HookPosDispatchStart:
		if dt, ok := h.t.(DispatchTracer); ok {
			dt.StartDispatch(ctx.Item.(subproblem.DispatchInfo))
		}
	case subproblem.HookPosDispatchEnd:
		if dt, ok := h.t.(DispatchTracer); ok {
			dt.EndDispatch(ctx.Item.(subproblem.DispatchInfo))
		}
	}
}
