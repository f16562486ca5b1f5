package resolver

// Affinity is the sum type binding an invocation to a specific node,
// URI, cluster, the local peer, or nothing in particular (spec.md §3).
// Only the variants declared in this file implement it.
type Affinity interface {
	isAffinity()
	String() string
}

// NoAffinity is the zero affinity: no hint at all.
type NoAffinity struct{}

func (NoAffinity) isAffinity()    {}
func (NoAffinity) String() string { return "None" }

// URIAffinity binds to a specific transport URI.
type URIAffinity struct{ URI string }

func (URIAffinity) isAffinity()      {}
func (a URIAffinity) String() string { return "Uri(" + a.URI + ")" }

// NodeAffinity binds to a specific named node.
type NodeAffinity struct{ Name string }

func (NodeAffinity) isAffinity()      {}
func (a NodeAffinity) String() string { return "Node(" + a.Name + ")" }

// ClusterAffinity binds to a specific named cluster, without pinning a
// node within it.
type ClusterAffinity struct{ Name string }

func (ClusterAffinity) isAffinity()      {}
func (a ClusterAffinity) String() string { return "Cluster(" + a.Name + ")" }

// LocalAffinity binds to the local peer (in-process invocation). This
// module has no in-process transport of its own, so it resolves to the
// well-known LocalURI (see context.go); this is a resolved Open
// Question, see DESIGN.md.
type LocalAffinity struct{}

func (LocalAffinity) isAffinity()    {}
func (LocalAffinity) String() string { return "Local" }

// isURILike reports whether a is a URIAffinity or LocalAffinity, the
// two variants the dispatch table in spec.md §4.E groups together.
func isURILike(a Affinity) (string, bool) {
	switch v := a.(type) {
	case URIAffinity:
		return v.URI, true
	case LocalAffinity:
		return LocalURI, true
	default:
		return "", false
	}
}
