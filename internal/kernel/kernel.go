package kernel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// TaskResult is the outcome of executing code in a kernel.
type TaskResult struct {
	Outputs  []any
	Messages []string
	Ok       bool
}

// Task is an asynchronous kernel execution. Interrupter, when non-nil,
// requests cancellation of the underlying execution; the task then
// completes with whatever partial result the kernel produces.
type Task struct {
	ID          string
	Interrupter chan<- struct{}
	result      <-chan TaskResult
}

// TaskInfo wraps a started task and provides access to its result.
type TaskInfo struct {
	Task *Task
}

// Result waits for the task to finish or the context to be done.
func (ti *TaskInfo) Result(ctx context.Context) (TaskResult, error) {
	select {
	case result, ok := <-ti.Task.result:
		if !ok {
			return TaskResult{}, fmt.Errorf("kernel task %s closed without a result", ti.Task.ID)
		}
		return result, nil
	case <-ctx.Done():
		return TaskResult{}, ctx.Err()
	}
}

// Kernel executes code for a particular language. Execution is started
// with ExecBegin and runs until completion or interruption.
type Kernel interface {
	// Languages returns the language names this kernel accepts.
	Languages() []string

	// ExecBegin starts executing code, returning a task whose result can
	// be awaited. When fork is true the kernel runs the code in a fork of
	// its state so side effects do not leak back; kernels without fork
	// support run in place. Returning a nil TaskInfo means the execution
	// completed synchronously with no observable effect.
	ExecBegin(ctx context.Context, code string, fork bool) (*TaskInfo, error)
}

// Space is a set of kernels addressable by language or selector.
// Guarded by a read-write lock: the executor takes a read lock while
// selecting a kernel and starting tasks.
type Space struct {
	mu      sync.RWMutex
	kernels []Kernel
}

// NewSpace creates a kernel space with the given kernels.
func NewSpace(kernels ...Kernel) *Space {
	return &Space{kernels: kernels}
}

// Add registers another kernel.
func (s *Space) Add(k Kernel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kernels = append(s.kernels, k)
}

// ExecBegin selects a kernel matching the selector (a language name; empty
// selects the first kernel) and starts executing the code in it.
func (s *Space) ExecBegin(ctx context.Context, code, selector string, fork bool) (*TaskInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.kernels) == 0 {
		return nil, fmt.Errorf("no kernels available")
	}
	selector = strings.ToLower(strings.TrimSpace(selector))
	if selector == "" {
		return s.kernels[0].ExecBegin(ctx, code, fork)
	}
	for _, k := range s.kernels {
		for _, lang := range k.Languages() {
			if strings.ToLower(lang) == selector {
				return k.ExecBegin(ctx, code, fork)
			}
		}
	}
	return nil, fmt.Errorf("no kernel for language %q", selector)
}

// NewTask wires up a task with a result channel and optional interrupter.
// Helper for kernel implementations.
func NewTask(interruptible bool) (*Task, chan<- TaskResult, <-chan struct{}) {
	results := make(chan TaskResult, 1)
	task := &Task{
		ID:     ulid.Make().String(),
		result: results,
	}
	var interrupts chan struct{}
	if interruptible {
		interrupts = make(chan struct{}, 1)
		task.Interrupter = interrupts
	}
	return task, results, interrupts
}
