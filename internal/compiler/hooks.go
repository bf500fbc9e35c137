package compiler

import (
	"fmt"
)

// Hook is a named extension point. Handlers run synchronously in the order they were tapped;
// the first error stops the hook and is returned to the compiler.
type Hook[T any] struct {
	name string
	taps []tap[T]
}

type tap[T any] struct {
	name string
	fn   func(T) error
}

func newHook[T any](name string) *Hook[T] {
	return &Hook[T]{name: name}
}

// Tap registers fn under the plugin name. The name is used in logs and error messages.
func (h *Hook[T]) Tap(name string, fn func(T) error) {
	h.taps = append(h.taps, tap[T]{name: name, fn: fn})
}

// Taps lists the registered handler names in call order.
func (h *Hook[T]) Taps() []string {
	names := make([]string, len(h.taps))
	for i, t := range h.taps {
		names[i] = t.name
	}
	return names
}

// Name returns the hook name.
func (h *Hook[T]) Name() string {
	return h.name
}

func (h *Hook[T]) call(arg T, trace func(hook, tap string)) error {
	for _, t := range h.taps {
		if trace != nil {
			trace(h.name, t.name)
		}
		if err := t.fn(arg); err != nil {
			return fmt.Errorf("%s: %s: %w", h.name, t.name, err)
		}
	}
	return nil
}

// Hooks are the lifecycle points a plugin can tap.
type Hooks struct {
	// BeforeRun fires before bundling, once per build.
	BeforeRun *Hook[*Compilation]
	// ProcessAssets fires after bundling; plugins add generated or copied assets here.
	ProcessAssets *Hook[*Compilation]
	// Emit fires after all assets exist and before anything is written to disk.
	Emit *Hook[*Compilation]
	// Done fires after a successful write.
	Done *Hook[*Stats]
}

func newHooks() Hooks {
	return Hooks{
		BeforeRun:     newHook[*Compilation]("beforeRun"),
		ProcessAssets: newHook[*Compilation]("processAssets"),
		Emit:          newHook[*Compilation]("emit"),
		Done:          newHook[*Stats]("done"),
	}
}
