// Package trace provides the process-wide tracing hook for tickfsm engines.
//
// A single text callback receives events from every machine in the process.
// The hook is registered once, before any machine is started, and must not
// be swapped while a machine is running. When no hook is registered the
// engine's trace call sites reduce to one atomic load.
package trace

import (
	"fmt"
	"log/slog"

	"go.uber.org/atomic"
)

// Category selects which classes of engine events a hook receives.
type Category uint32

const (
	// CategoryLifecycle covers machine start and stop.
	CategoryLifecycle Category = 1 << iota
	// CategoryTransitions covers state entry, exit, normal transitions,
	// and error transitions.
	CategoryTransitions
	// CategoryMessages covers mailbox push, poll, delivery, and production.
	CategoryMessages
	// CategoryExecute covers the per-tick execute invocation.
	CategoryExecute

	// CategoryAll enables every event category.
	CategoryAll = CategoryLifecycle | CategoryTransitions | CategoryMessages | CategoryExecute
)

// Hook receives a single formatted trace event.
type Hook func(event string)

type registration struct {
	hook Hook
	mask Category
}

var current atomic.Pointer[registration]

// SetHook registers hook as the process-wide trace sink for the given
// categories. Call it once before starting any machine.
func SetHook(hook Hook, categories Category) {
	if hook == nil {
		ClearHook()

		return
	}

	current.Store(&registration{hook: hook, mask: categories})
}

// ClearHook removes the registered hook.
func ClearHook() {
	current.Store(nil)
}

// Enabled reports whether a hook is registered for the category.
func Enabled(c Category) bool {
	reg := current.Load()

	return reg != nil && reg.mask&c != 0
}

// Emit forwards an event to the registered hook, if any is interested in
// the category.
func Emit(c Category, event string) {
	reg := current.Load()
	if reg == nil || reg.mask&c == 0 {
		return
	}

	reg.hook(event)
}

// Eventf formats a trace event as "machine: action - detail", or
// "machine: action" when detail is empty.
func Eventf(machine, action, detail string) string {
	if detail == "" {
		return fmt.Sprintf("%s: %s", machine, action)
	}

	return fmt.Sprintf("%s: %s - %s", machine, action, detail)
}

// NewSlogHook returns a hook that forwards events to a slog logger at
// info level.
func NewSlogHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}

	return func(event string) {
		logger.Info("machine trace", "event", event)
	}
}
