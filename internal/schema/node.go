package schema

import (
	"strings"

	"github.com/google/uuid"
)

// NodeKind identifies the type of an executable document node.
type NodeKind string

const (
	KindCodeChunk      NodeKind = "CodeChunk"
	KindCodeExpression NodeKind = "CodeExpression"
	KindParameter      NodeKind = "Parameter"
	KindDivision       NodeKind = "Division"
	KindSpan           NodeKind = "Span"
	KindButton         NodeKind = "Button"
)

// ExecuteStatus is the lifecycle flag of an executable node.
type ExecuteStatus string

const (
	StatusScheduled                 ExecuteStatus = "Scheduled"
	StatusScheduledPreviouslyFailed ExecuteStatus = "ScheduledPreviouslyFailed"
	StatusRunning                   ExecuteStatus = "Running"
	StatusRunningPreviouslyFailed   ExecuteStatus = "RunningPreviouslyFailed"
	StatusSucceeded                 ExecuteStatus = "Succeeded"
	StatusFailed                    ExecuteStatus = "Failed"
	StatusCancelled                 ExecuteStatus = "Cancelled"
)

// Node is an addressable unit in a document. Of the kinds listed above,
// CodeChunk, CodeExpression, Division and Span carry an execution status;
// for Parameter and Button execution is assumed to always succeed.
type Node struct {
	Kind NodeKind `json:"kind"`
	ID   string   `json:"id"`

	ProgrammingLanguage string `json:"programmingLanguage,omitempty"`
	Code                string `json:"code,omitempty"`

	Outputs []any    `json:"outputs,omitempty"`
	Errors  []string `json:"errors,omitempty"`

	ExecuteStatus *ExecuteStatus `json:"executeStatus,omitempty"`
	ExecuteCount  int            `json:"executeCount,omitempty"`

	// Value holds the current value of a Parameter node.
	Value any `json:"value,omitempty"`
}

// HasExecuteStatus reports whether this node kind tracks an execution status.
func (n *Node) HasExecuteStatus() bool {
	switch n.Kind {
	case KindCodeChunk, KindCodeExpression, KindDivision, KindSpan:
		return true
	default:
		return false
	}
}

// GetExecuteStatus returns the node's current execution status. Parameters
// and buttons report Succeeded.
func (n *Node) GetExecuteStatus() *ExecuteStatus {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindParameter, KindButton:
		s := StatusSucceeded
		return &s
	}
	if !n.HasExecuteStatus() {
		return nil
	}
	return n.ExecuteStatus
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.ExecuteStatus != nil {
		s := *n.ExecuteStatus
		out.ExecuteStatus = &s
	}
	out.Outputs = append([]any(nil), n.Outputs...)
	out.Errors = append([]string(nil), n.Errors...)
	return &out
}

// NewNodeID generates a stable identifier for a node of the given kind,
// e.g. "cc-6fa459ea" for a CodeChunk.
func NewNodeID(kind NodeKind) string {
	prefix := "no"
	switch kind {
	case KindCodeChunk:
		prefix = "cc"
	case KindCodeExpression:
		prefix = "ce"
	case KindParameter:
		prefix = "pa"
	case KindDivision:
		prefix = "di"
	case KindSpan:
		prefix = "sp"
	case KindButton:
		prefix = "bu"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + id[:8]
}
