package kernel

import "context"

// EchoKernel evaluates nothing: it returns the code itself as the single
// output. Used as the default kernel when no language runtime is attached.
type EchoKernel struct{}

func (k *EchoKernel) Languages() []string { return []string{"echo", "text"} }

func (k *EchoKernel) ExecBegin(ctx context.Context, code string, fork bool) (*TaskInfo, error) {
	task, results, _ := NewTask(false)
	results <- TaskResult{Outputs: []any{code}, Ok: true}
	close(results)
	return &TaskInfo{Task: task}, nil
}
