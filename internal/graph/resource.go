package graph

import "strings"

// ResourceKind discriminates the kinds of resources tracked in the graph.
type ResourceKind string

const (
	KindNode   ResourceKind = "Node"
	KindSymbol ResourceKind = "Symbol"
	KindFile   ResourceKind = "File"
	KindCode   ResourceKind = "Code"
	KindSource ResourceKind = "Source"
	KindModule ResourceKind = "Module"
	KindURL    ResourceKind = "Url"
)

// Resource is a handle identifying a node, symbol, file, code fragment,
// source, module, or URL. Resources are comparable and usable as map keys.
type Resource struct {
	Kind ResourceKind

	// Path of the document or file the resource belongs to.
	Path string

	// Name is the discriminating name within the path: a node id for
	// KindNode and KindCode, a symbol name for KindSymbol, a module or
	// source name, or a URL.
	Name string

	// Language of a code resource, empty otherwise.
	Language string
}

// ID returns a stable key for the resource, e.g. "code://doc.md#cc-1".
func (r Resource) ID() string {
	scheme := strings.ToLower(string(r.Kind))
	switch r.Kind {
	case KindFile, KindModule, KindSource:
		return scheme + "://" + r.Path
	case KindURL:
		return r.Name
	default:
		return scheme + "://" + r.Path + "#" + r.Name
	}
}

// NodeResource is a convenience constructor for a document node resource.
func NodeResource(path, nodeID string) Resource {
	return Resource{Kind: KindNode, Path: path, Name: nodeID}
}

// CodeResource is a convenience constructor for an executable code resource.
func CodeResource(path, nodeID, language string) Resource {
	return Resource{Kind: KindCode, Path: path, Name: nodeID, Language: language}
}

// SymbolResource is a convenience constructor for a symbol resource.
func SymbolResource(path, name string) Resource {
	return Resource{Kind: KindSymbol, Path: path, Name: name}
}

// FileResource is a convenience constructor for a file resource.
func FileResource(path string) Resource {
	return Resource{Kind: KindFile, Path: path}
}

// Relation is the typed edge between two resources.
type Relation string

const (
	RelationImport  Relation = "Import"
	RelationAssign  Relation = "Assign"
	RelationUse     Relation = "Use"
	RelationRead    Relation = "Read"
	RelationWrite   Relation = "Write"
	RelationDeclare Relation = "Declare"
	RelationRequire Relation = "Require"
)

// Polarity indicates whether the subject of a triple is the source (From) or
// the target (To) of the dependency edge.
type Polarity int

const (
	// From: the object depends on the subject (subject -> object).
	From Polarity = iota
	// To: the subject depends on the object (object -> subject).
	To
)

// Direction returns the polarity of a relation. Assign, Write and Declare
// flow from the subject to the object; the rest are consumed by the subject.
func Direction(relation Relation) Polarity {
	switch relation {
	case RelationAssign, RelationWrite, RelationDeclare:
		return From
	default:
		return To
	}
}
