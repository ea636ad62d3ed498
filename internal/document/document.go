package document

import (
	"fmt"
	"sync"

	"github.com/stencila/stencila/internal/graph"
	"github.com/stencila/stencila/internal/schema"
)

// Root is the document's node tree: the single shared mutable state of a
// document. Readers (the executor's snapshot pass) take a read lock;
// mutation happens only through the patch applicator (single writer).
type Root struct {
	mu    sync.RWMutex
	path  string
	nodes map[string]*schema.Node
	order []string
}

// NewRoot creates a root for the document at path.
func NewRoot(path string) *Root {
	return &Root{path: path, nodes: map[string]*schema.Node{}}
}

// Path returns the document path.
func (r *Root) Path() string { return r.path }

// AddNode inserts a node into the tree.
func (r *Root) AddNode(node *schema.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[node.ID]; !ok {
		r.order = append(r.order, node.ID)
	}
	r.nodes[node.ID] = node
}

// Node returns a copy of the node with the given id, nil if absent.
func (r *Root) Node(id string) *schema.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[id].Clone()
}

// NodeIDs returns all node ids in document order.
func (r *Root) NodeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Apply applies a patch to its target node. Unknown targets are ignored:
// a patch may outlive the node it targeted.
func (r *Root) Apply(patch schema.Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[patch.Target]
	if !ok {
		return
	}
	schema.Apply(node, patch)
}

// resourceToNode resolves a plan resource to a snapshot of its node.
func resourceToNode(resource graph.Resource, root *Root) (*schema.Node, string, error) {
	node := root.Node(resource.Name)
	if node == nil {
		return nil, "", fmt.Errorf("node `%s` not found in `%s`", resource.Name, root.Path())
	}
	return node, node.ID, nil
}
