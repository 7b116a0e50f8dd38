// Package hooking lets observers attach to the stages of a dispatch without
// the dispatcher knowing who is listening.
package hooking

import "reflect"

// HookPos names a stage at which hooks fire.
type HookPos struct {
	Name string
}

// HookCtx describes the site a hook fires from.
type HookCtx struct {
	// Domain is the object that invoked the hook.
	Domain Hookable

	// Pos is the stage the domain is at.
	Pos *HookPos

	// Item is the subject of the stage, for example a job.
	Item any

	// Detail is optional extra data.
	Detail any
}

// Hookable is an object that hooks can attach to.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
	InvokeHook(ctx HookCtx)
}

// A Hook is called every time its domain reaches a hook position.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase implements Hookable for embedding.
//
// Hooks must be attached while the domain is being configured. Attaching a
// hook while the domain is invoking hooks is a data race.
type HookableBase struct {
	hooks []Hook
}

// NewHookableBase creates a HookableBase with no hooks.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// AcceptHook attaches a hook. Attaching the same hook twice panics. Hooks of
// uncomparable types, such as HookFunc, are never considered duplicates.
func (h *HookableBase) AcceptHook(hook Hook) {
	if reflect.TypeOf(hook).Comparable() {
		for _, existing := range h.hooks {
			if reflect.TypeOf(existing) == reflect.TypeOf(hook) && existing == hook {
				panic("hooking: duplicated hook")
			}
		}
	}

	h.hooks = append(h.hooks, hook)
}

// NumHooks returns the number of attached hooks.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// Hooks returns the attached hooks.
func (h *HookableBase) Hooks() []Hook {
	return h.hooks
}

// InvokeHook calls every attached hook in attachment order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
