package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoKernel_ReturnsCodeAsOutput(t *testing.T) {
	space := NewSpace(&EchoKernel{})
	info, err := space.ExecBegin(context.Background(), "print(1)", "", false)
	require.NoError(t, err)

	result, err := info.Result(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Equal(t, []any{"print(1)"}, result.Outputs)
}

func TestSpace_SelectorMatchesLanguage(t *testing.T) {
	space := NewSpace(&EchoKernel{})
	_, err := space.ExecBegin(context.Background(), "x", "echo", false)
	require.NoError(t, err)
	_, err = space.ExecBegin(context.Background(), "x", "TEXT", false)
	require.NoError(t, err)
	_, err = space.ExecBegin(context.Background(), "x", "python", false)
	require.Error(t, err)
}

func TestSpace_NoKernels(t *testing.T) {
	space := NewSpace()
	_, err := space.ExecBegin(context.Background(), "x", "", false)
	require.Error(t, err)
}

func TestTaskResult_ContextCancellation(t *testing.T) {
	task, _, _ := NewTask(false)
	info := &TaskInfo{Task: task}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := info.Result(ctx)
	require.Error(t, err)
}

func TestNewTask_InterruptibleHasInterrupter(t *testing.T) {
	task, _, interrupts := NewTask(true)
	assert.NotNil(t, task.Interrupter)
	assert.NotNil(t, interrupts)
	assert.NotEmpty(t, task.ID)

	plain, _, none := NewTask(false)
	assert.Nil(t, plain.Interrupter)
	assert.Nil(t, none)
}
