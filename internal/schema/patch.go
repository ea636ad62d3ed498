package schema

import "reflect"

// PatchOp is a single replace operation within a Patch. Path names the node
// field being replaced; Value is its new value.
type PatchOp struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Patch is a minimal diff between two values of a node, targeting the node
// with the given id. A patch is immutable once constructed.
type Patch struct {
	Target string    `json:"target"`
	Ops    []PatchOp `json:"ops"`
}

// IsEmpty reports whether the patch carries no operations.
func (p Patch) IsEmpty() bool { return len(p.Ops) == 0 }

// Diff computes a field-level patch transforming before into after.
func Diff(before, after *Node) Patch {
	patch := Patch{Target: before.ID}
	if before.Code != after.Code {
		patch.Ops = append(patch.Ops, PatchOp{Path: "code", Value: after.Code})
	}
	if !reflect.DeepEqual(before.Outputs, after.Outputs) {
		patch.Ops = append(patch.Ops, PatchOp{Path: "outputs", Value: after.Outputs})
	}
	if !reflect.DeepEqual(before.Errors, after.Errors) {
		patch.Ops = append(patch.Ops, PatchOp{Path: "errors", Value: after.Errors})
	}
	if !equalStatus(before.ExecuteStatus, after.ExecuteStatus) {
		patch.Ops = append(patch.Ops, PatchOp{Path: "executeStatus", Value: after.ExecuteStatus})
	}
	if before.ExecuteCount != after.ExecuteCount {
		patch.Ops = append(patch.Ops, PatchOp{Path: "executeCount", Value: after.ExecuteCount})
	}
	if !reflect.DeepEqual(before.Value, after.Value) {
		patch.Ops = append(patch.Ops, PatchOp{Path: "value", Value: after.Value})
	}
	return patch
}

// Apply applies the patch operations to the node in place.
func Apply(node *Node, patch Patch) {
	for _, op := range patch.Ops {
		switch op.Path {
		case "code":
			if v, ok := op.Value.(string); ok {
				node.Code = v
			}
		case "outputs":
			if op.Value == nil {
				node.Outputs = nil
			} else if v, ok := op.Value.([]any); ok {
				node.Outputs = v
			}
		case "errors":
			if op.Value == nil {
				node.Errors = nil
			} else if v, ok := op.Value.([]string); ok {
				node.Errors = v
			}
		case "executeStatus":
			switch v := op.Value.(type) {
			case nil:
				node.ExecuteStatus = nil
			case *ExecuteStatus:
				node.ExecuteStatus = v
			case ExecuteStatus:
				s := v
				node.ExecuteStatus = &s
			}
		case "executeCount":
			if v, ok := op.Value.(int); ok {
				node.ExecuteCount = v
			}
		case "value":
			node.Value = op.Value
		}
	}
}

// StatusPatch builds a patch that sets only the execution status of a node.
func StatusPatch(nodeID string, status *ExecuteStatus) Patch {
	return Patch{
		Target: nodeID,
		Ops:    []PatchOp{{Path: "executeStatus", Value: status}},
	}
}

func equalStatus(a, b *ExecuteStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
