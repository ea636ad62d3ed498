package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffAndApply_RoundTrip(t *testing.T) {
	before := &Node{Kind: KindCodeChunk, ID: "cc-1", Code: "x = 1"}
	after := before.Clone()
	after.Code = "x = 2"
	after.Outputs = []any{"2"}
	after.ExecuteCount = 1
	status := StatusSucceeded
	after.ExecuteStatus = &status

	patch := Diff(before, after)
	assert.Equal(t, "cc-1", patch.Target)
	assert.False(t, patch.IsEmpty())

	applied := before.Clone()
	Apply(applied, patch)
	assert.Equal(t, after.Code, applied.Code)
	assert.Equal(t, after.Outputs, applied.Outputs)
	assert.Equal(t, after.ExecuteCount, applied.ExecuteCount)
	assert.Equal(t, StatusSucceeded, *applied.ExecuteStatus)
}

func TestDiff_IdenticalNodesIsEmpty(t *testing.T) {
	node := &Node{Kind: KindCodeChunk, ID: "cc-1", Code: "x"}
	assert.True(t, Diff(node, node.Clone()).IsEmpty())
}

func TestStatusPatch_SetAndClear(t *testing.T) {
	node := &Node{Kind: KindCodeChunk, ID: "cc-1"}
	status := StatusRunning
	Apply(node, StatusPatch("cc-1", &status))
	assert.Equal(t, StatusRunning, *node.ExecuteStatus)

	Apply(node, StatusPatch("cc-1", nil))
	assert.Nil(t, node.ExecuteStatus)
}

func TestGetExecuteStatus_ParameterAlwaysSucceeds(t *testing.T) {
	param := &Node{Kind: KindParameter, ID: "pa-1"}
	s := param.GetExecuteStatus()
	assert.NotNil(t, s)
	assert.Equal(t, StatusSucceeded, *s)
	assert.False(t, param.HasExecuteStatus())

	chunk := &Node{Kind: KindCodeChunk, ID: "cc-1"}
	assert.Nil(t, chunk.GetExecuteStatus())
	assert.True(t, chunk.HasExecuteStatus())
}

func TestNewNodeID_KindPrefixes(t *testing.T) {
	assert.Regexp(t, `^cc-[0-9a-f]{8}$`, NewNodeID(KindCodeChunk))
	assert.Regexp(t, `^pa-[0-9a-f]{8}$`, NewNodeID(KindParameter))
	assert.NotEqual(t, NewNodeID(KindSpan), NewNodeID(KindSpan))
}

func TestClone_Deep(t *testing.T) {
	status := StatusFailed
	node := &Node{Kind: KindCodeChunk, ID: "cc-1", Errors: []string{"e"}, ExecuteStatus: &status}
	clone := node.Clone()
	clone.Errors[0] = "changed"
	other := StatusSucceeded
	clone.ExecuteStatus = &other
	assert.Equal(t, "e", node.Errors[0])
	assert.Equal(t, StatusFailed, *node.ExecuteStatus)
}
