// Package filter implements the boolean filter expressions used to
// describe what a discovery probe is looking for, and the
// ServiceRecord it matches against.
package filter

import "strings"

// Wire attribute names used by ServiceRecord and FilterSpec.
const (
	AttrNode              = "node"
	AttrCluster           = "cluster"
	AttrEJBModule         = "ejb-module"
	AttrEJBModuleDistinct = "ejb-module-distinct"
	AttrSourceIP          = "source-ip"
	ServiceTypeEJB        = "ejb.jboss"
)

// Spec is a sum type over the supported filter expressions. Only the
// types defined in this package implement it.
type Spec interface {
	isSpec()
}

// Equals matches a record whose attribute values contain Value for Attr.
type Equals struct {
	Attr  string
	Value string
}

func (Equals) isSpec() {}

// All is the logical AND of its children.
type All struct {
	Children []Spec
}

func (All) isSpec() {}

// HasAttribute matches a record carrying at least one value for Attr.
type HasAttribute struct {
	Attr string
}

func (HasAttribute) isSpec() {}

// ModuleIdentifier is the (app, module, distinct) tuple implied by an
// ejb-module or ejb-module-distinct filter attribute.
type ModuleIdentifier struct {
	AppName      string
	ModuleName   string
	DistinctName string
}

// ExtractModule returns the first ModuleIdentifier implied by an Equals
// on ejb-module or ejb-module-distinct anywhere in spec (recursing into
// All children), or false if none is present.
func ExtractModule(spec Spec) (ModuleIdentifier, bool) {
	switch s := spec.(type) {
	case Equals:
		switch s.Attr {
		case AttrEJBModule:
			return parseModuleSegments(s.Value)
		case AttrEJBModuleDistinct:
			return parseModuleDistinctSegments(s.Value)
		}
		return ModuleIdentifier{}, false
	case All:
		for _, child := range s.Children {
			if mod, ok := ExtractModule(child); ok {
				return mod, true
			}
		}
		return ModuleIdentifier{}, false
	default:
		return ModuleIdentifier{}, false
	}
}

func parseModuleSegments(value string) (ModuleIdentifier, bool) {
	parts := strings.Split(value, "/")
	switch len(parts) {
	case 2:
		return ModuleIdentifier{AppName: parts[0], ModuleName: parts[1]}, true
	case 1:
		return ModuleIdentifier{ModuleName: parts[0]}, true
	default:
		return ModuleIdentifier{}, false
	}
}

func parseModuleDistinctSegments(value string) (ModuleIdentifier, bool) {
	parts := strings.Split(value, "/")
	switch len(parts) {
	case 3:
		return ModuleIdentifier{AppName: parts[0], ModuleName: parts[1], DistinctName: parts[2]}, true
	case 2:
		return ModuleIdentifier{ModuleName: parts[0], DistinctName: parts[1]}, true
	default:
		return ModuleIdentifier{}, false
	}
}

// ExtractNode returns the string value of an Equals on the node
// attribute anywhere in spec, or false if none is present.
func ExtractNode(spec Spec) (string, bool) {
	switch s := spec.(type) {
	case Equals:
		if s.Attr == AttrNode {
			return s.Value, true
		}
		return "", false
	case All:
		for _, child := range s.Children {
			if node, ok := ExtractNode(child); ok {
				return node, true
			}
		}
		return "", false
	default:
		return "", false
	}
}

// Record is a discovered endpoint and the attributes the probe that
// found it reported. Attributes is a multimap: a single key (e.g.
// "cluster" or "source-ip") may carry more than one value.
type Record struct {
	LocationURI string
	Attributes  map[string][]string
}

// Values returns the attribute values for key, or nil.
func (r Record) Values(key string) []string {
	return r.Attributes[key]
}

// Value returns the first attribute value for key, or "" if absent.
func (r Record) Value(key string) string {
	vs := r.Attributes[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Matches reports whether r satisfies spec.
func Matches(spec Spec, r Record) bool {
	switch s := spec.(type) {
	case Equals:
		for _, v := range r.Values(s.Attr) {
			if v == s.Value {
				return true
			}
		}
		return false
	case All:
		for _, child := range s.Children {
			if !Matches(child, r) {
				return false
			}
		}
		return true
	case HasAttribute:
		return len(r.Values(s.Attr)) > 0
	default:
		return false
	}
}
