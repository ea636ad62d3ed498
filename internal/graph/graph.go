package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// ResourceInfo is the per-resource aggregate of dependency and digest
// metadata maintained by Update.
type ResourceInfo struct {
	Resource Resource

	// Dependencies is the transitive set of upstream resources, in the
	// order they were discovered walking the topological order.
	Dependencies []Resource

	// Depth is 0 for resources with no dependencies, otherwise
	// 1 + max(depth of direct dependencies).
	Depth int

	// CompileDigest is a digest of the resource's own content.
	CompileDigest string

	// LinkDigest is the cumulative digest over the dependency chain:
	// SHA-256 of the concatenated upstream link digests followed by this
	// resource's compile digest. Equal to CompileDigest at depth 0.
	LinkDigest string

	// ExecuteDigest is the link digest captured when the resource was
	// last executed, empty if never executed.
	ExecuteDigest string

	// ExecuteFailed records whether the last execution failed, nil if
	// never executed.
	ExecuteFailed *bool
}

// DidExecute records the outcome of an execution: the execute digest is
// advanced to the current link digest and the failure flag set.
func (ri *ResourceInfo) DidExecute(failed bool) {
	ri.ExecuteDigest = ri.LinkDigest
	ri.ExecuteFailed = &failed
}

// StaleExecution reports whether the resource needs re-execution: it has
// never executed, the last execution failed, or the dependency chain has
// changed since.
func (ri *ResourceInfo) StaleExecution() bool {
	if ri.ExecuteDigest == "" {
		return true
	}
	if ri.ExecuteFailed != nil && *ri.ExecuteFailed {
		return true
	}
	return ri.ExecuteDigest != ri.LinkDigest
}

type edge struct {
	from, to int
	relation Relation
}

// Graph is a directed acyclic dependency graph over resources. Resources
// are stored in an arena indexed by insertion order with a secondary map
// from resource to index, so edges stay valid across mutations.
type Graph struct {
	// Path of the document or project this graph belongs to.
	Path string

	nodes []Resource
	index map[Resource]int
	edges []edge

	resources map[Resource]*ResourceInfo
	contents  map[Resource]string
}

// New creates an empty graph for the given document path.
func New(path string) *Graph {
	return &Graph{
		Path:      path,
		index:     map[Resource]int{},
		resources: map[Resource]*ResourceInfo{},
		contents:  map[Resource]string{},
	}
}

// AddResource adds a resource with the content used for its compile digest.
// Adding an existing resource updates its content.
func (g *Graph) AddResource(resource Resource, content string) int {
	idx, ok := g.index[resource]
	if !ok {
		idx = len(g.nodes)
		g.nodes = append(g.nodes, resource)
		g.index[resource] = idx
	}
	g.contents[resource] = content
	if _, ok := g.resources[resource]; !ok {
		g.resources[resource] = &ResourceInfo{Resource: resource}
	}
	return idx
}

// AddTriple records a (subject, relation, object) triple, orienting the
// edge according to the relation's polarity.
func (g *Graph) AddTriple(subject Resource, relation Relation, object Resource) {
	si := g.AddResource(subject, g.contents[subject])
	oi := g.AddResource(object, g.contents[object])

	var from, to int
	switch Direction(relation) {
	case From:
		from, to = si, oi
	default:
		from, to = oi, si
	}
	for _, e := range g.edges {
		if e.from == from && e.to == to && e.relation == relation {
			return
		}
	}
	g.edges = append(g.edges, edge{from: from, to: to, relation: relation})
}

// ResourceInfo returns the info for a resource, nil if not in the graph.
func (g *Graph) ResourceInfo(resource Resource) *ResourceInfo {
	return g.resources[resource]
}

// Resources returns all resources in insertion order.
func (g *Graph) Resources() []Resource {
	return append([]Resource(nil), g.nodes...)
}

func (g *Graph) incoming(idx int) []int {
	var in []int
	for _, e := range g.edges {
		if e.to == idx {
			in = append(in, e.from)
		}
	}
	return in
}

func (g *Graph) outgoing(idx int) []int {
	var out []int
	for _, e := range g.edges {
		if e.from == idx {
			out = append(out, e.to)
		}
	}
	return out
}

// ResourceDependencies is an entry in a topological sort: a resource id,
// its transitive dependency ids, and its depth.
type ResourceDependencies struct {
	ID           string
	Dependencies []string
	Depth        int
}

// Toposort returns the resources in a stable topological order with
// transitive dependencies and depth filled in. Returns an error if the
// graph contains a cycle.
func (g *Graph) Toposort() ([]ResourceDependencies, error) {
	order, err := g.topoOrder()
	if err != nil {
		return nil, err
	}

	entries := make([]ResourceDependencies, len(g.nodes))
	for i, r := range g.nodes {
		entries[i] = ResourceDependencies{ID: r.ID()}
	}
	for _, idx := range order {
		var dependencies []string
		depth := 0
		for _, in := range g.incoming(idx) {
			dep := &entries[in]
			for _, other := range dep.Dependencies {
				if !containsString(dependencies, other) {
					dependencies = append(dependencies, other)
				}
			}
			if !containsString(dependencies, dep.ID) {
				dependencies = append(dependencies, dep.ID)
			}
			if dep.Depth+1 > depth {
				depth = dep.Depth + 1
			}
		}
		entries[idx].Dependencies = dependencies
		entries[idx].Depth = depth
	}

	// Order by depth, keeping dependencies before dependents.
	sort.SliceStable(entries, func(a, b int) bool {
		if containsString(entries[b].Dependencies, entries[a].ID) {
			return true
		}
		if containsString(entries[a].Dependencies, entries[b].ID) {
			return false
		}
		return entries[a].Depth < entries[b].Depth
	})

	return entries, nil
}

// topoOrder returns node indices in topological order (Kahn's algorithm,
// ties broken by insertion order so the result is deterministic).
func (g *Graph) topoOrder() ([]int, error) {
	indegree := make([]int, len(g.nodes))
	for _, e := range g.edges {
		indegree[e.to]++
	}
	var queue []int
	for i := range g.nodes {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	var order []int
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		order = append(order, idx)
		for _, out := range g.outgoing(idx) {
			indegree[out]--
			if indegree[out] == 0 {
				queue = append(queue, out)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("dependency graph for %s contains a cycle", g.Path)
	}
	return order, nil
}

// Update recomputes dependencies, depth and digests for all resources
// downstream of start (or all resources when start is nil), walking the
// graph in topological order so upstream info is already current.
func (g *Graph) Update(start *Resource) error {
	order, err := g.topoOrder()
	if err != nil {
		return err
	}

	started := start == nil
	for _, idx := range order {
		resource := g.nodes[idx]
		if !started {
			started = *start == resource
		}
		if !started {
			continue
		}

		var dependencies []Resource
		depth := 0
		linkHasher := sha256.New()
		for _, in := range g.incoming(idx) {
			dependency := g.nodes[in]
			info := g.resources[dependency]
			if info == nil {
				return fmt.Errorf("no info for dependency %s", dependency.ID())
			}
			for _, other := range info.Dependencies {
				if !containsResource(dependencies, other) {
					dependencies = append(dependencies, other)
				}
			}
			if !containsResource(dependencies, dependency) {
				dependencies = append(dependencies, dependency)
			}
			if info.Depth+1 > depth {
				depth = info.Depth + 1
			}
			if info.LinkDigest == "" {
				return fmt.Errorf("dependency %s has no link digest", dependency.ID())
			}
			linkHasher.Write([]byte(info.LinkDigest))
		}

		info := g.resources[resource]
		if info == nil {
			return fmt.Errorf("no info for resource %s", resource.ID())
		}

		compileDigest := info.CompileDigest
		if compileDigest == "" {
			compileDigest = CompileDigest(g.contents[resource])
		}

		linkDigest := compileDigest
		if depth > 0 {
			linkHasher.Write([]byte(compileDigest))
			linkDigest = hex.EncodeToString(linkHasher.Sum(nil))
		}

		info.Dependencies = dependencies
		info.Depth = depth
		info.CompileDigest = compileDigest
		info.LinkDigest = linkDigest
	}

	return nil
}

// CompileDigest digests the content of a single resource.
func CompileDigest(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsResource(list []Resource, r Resource) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}
