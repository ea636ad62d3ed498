package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamond() *Graph {
	// a -> b, a -> c, b -> d, c -> d
	g := New("doc.md")
	a := CodeResource("doc.md", "a", "test")
	b := CodeResource("doc.md", "b", "test")
	c := CodeResource("doc.md", "c", "test")
	d := CodeResource("doc.md", "d", "test")
	g.AddResource(a, "code-a")
	g.AddResource(b, "code-b")
	g.AddResource(c, "code-c")
	g.AddResource(d, "code-d")
	g.AddTriple(b, RelationUse, a)
	g.AddTriple(c, RelationUse, a)
	g.AddTriple(d, RelationUse, b)
	g.AddTriple(d, RelationUse, c)
	return g
}

func TestDirection_Polarity(t *testing.T) {
	assert.Equal(t, From, Direction(RelationAssign))
	assert.Equal(t, From, Direction(RelationWrite))
	assert.Equal(t, From, Direction(RelationDeclare))
	assert.Equal(t, To, Direction(RelationUse))
	assert.Equal(t, To, Direction(RelationRead))
	assert.Equal(t, To, Direction(RelationImport))
}

func TestResourceID_Stable(t *testing.T) {
	r := CodeResource("doc.md", "cc-1", "python")
	assert.Equal(t, "code://doc.md#cc-1", r.ID())
	assert.Equal(t, "file://doc.md", FileResource("doc.md").ID())
}

func TestToposort_DepthAndDependencies(t *testing.T) {
	g := diamond()
	entries, err := g.Toposort()
	require.NoError(t, err)
	require.Len(t, entries, 4)

	byID := map[string]ResourceDependencies{}
	position := map[string]int{}
	for i, e := range entries {
		byID[e.ID] = e
		position[e.ID] = i
	}

	aID := CodeResource("doc.md", "a", "test").ID()
	dID := CodeResource("doc.md", "d", "test").ID()

	assert.Equal(t, 0, byID[aID].Depth)
	assert.Equal(t, 2, byID[dID].Depth)
	assert.Len(t, byID[dID].Dependencies, 3)
	assert.Contains(t, byID[dID].Dependencies, aID)

	// Dependencies come before dependents.
	for _, e := range entries {
		for _, dep := range e.Dependencies {
			assert.Less(t, position[dep], position[e.ID], "%s before %s", dep, e.ID)
		}
	}
}

func TestToposort_CycleError(t *testing.T) {
	g := New("doc.md")
	a := CodeResource("doc.md", "a", "test")
	b := CodeResource("doc.md", "b", "test")
	g.AddResource(a, "")
	g.AddResource(b, "")
	g.AddTriple(a, RelationUse, b)
	g.AddTriple(b, RelationUse, a)
	_, err := g.Toposort()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestUpdate_DigestsDeterministic(t *testing.T) {
	g1 := diamond()
	require.NoError(t, g1.Update(nil))
	g2 := diamond()
	require.NoError(t, g2.Update(nil))

	for _, r := range g1.Resources() {
		i1 := g1.ResourceInfo(r)
		i2 := g2.ResourceInfo(r)
		require.NotNil(t, i1)
		require.NotNil(t, i2)
		assert.NotEmpty(t, i1.CompileDigest)
		assert.Equal(t, i1.CompileDigest, i2.CompileDigest, r.ID())
		assert.Equal(t, i1.LinkDigest, i2.LinkDigest, r.ID())
	}

	// Depth-0 resources have link digest equal to compile digest.
	a := CodeResource("doc.md", "a", "test")
	ia := g1.ResourceInfo(a)
	assert.Equal(t, 0, ia.Depth)
	assert.Equal(t, ia.CompileDigest, ia.LinkDigest)

	// Downstream link digests differ from their compile digests.
	d := CodeResource("doc.md", "d", "test")
	id := g1.ResourceInfo(d)
	assert.Equal(t, 2, id.Depth)
	assert.NotEqual(t, id.CompileDigest, id.LinkDigest)
}

func TestUpdate_ChangePropagatesDownstream(t *testing.T) {
	g := diamond()
	require.NoError(t, g.Update(nil))
	d := CodeResource("doc.md", "d", "test")
	before := g.ResourceInfo(d).LinkDigest

	// Changing a's content changes the link digest of everything
	// downstream.
	a := CodeResource("doc.md", "a", "test")
	g.AddResource(a, "code-a-changed")
	g.ResourceInfo(a).CompileDigest = ""
	require.NoError(t, g.Update(nil))

	assert.NotEqual(t, before, g.ResourceInfo(d).LinkDigest)
}

func TestResourceInfo_DidExecuteAndStaleness(t *testing.T) {
	g := diamond()
	require.NoError(t, g.Update(nil))
	a := CodeResource("doc.md", "a", "test")
	info := g.ResourceInfo(a)

	assert.True(t, info.StaleExecution())
	info.DidExecute(false)
	assert.False(t, info.StaleExecution())
	assert.Equal(t, info.LinkDigest, info.ExecuteDigest)

	info.DidExecute(true)
	assert.True(t, info.StaleExecution(), "failed executions are stale")
}

func TestNewPlan_StageInvariant(t *testing.T) {
	g := diamond()
	plan, err := g.NewPlan(nil)
	require.NoError(t, err)
	require.Len(t, plan.Stages, 3)
	assert.Equal(t, 4, plan.TaskCount())

	// Every dependency of a stage-k task lies in an earlier stage.
	stageOf := map[string]int{}
	for i, stage := range plan.Stages {
		for _, task := range stage.Tasks {
			stageOf[task.ResourceInfo.Resource.ID()] = i
		}
	}
	for i, stage := range plan.Stages {
		for _, task := range stage.Tasks {
			for _, dep := range task.ResourceInfo.Dependencies {
				depStage, ok := stageOf[dep.ID()]
				if !ok {
					continue
				}
				assert.Less(t, depStage, i)
			}
		}
	}
}

func TestNewPlan_IncludeFilter(t *testing.T) {
	g := diamond()
	b := CodeResource("doc.md", "b", "test")
	plan, err := g.NewPlan(func(r Resource) bool { return r != b })
	require.NoError(t, err)
	assert.Equal(t, 3, plan.TaskCount())
}
