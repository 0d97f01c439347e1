// Package graphmodel holds the shared data model for the provisional and
// flattened element graph: ports, elements, connections, tunnel endpoints,
// and the per-scope builder the parser and expander both operate on.
package graphmodel

import "fmt"

// Port identifies one numbered port on one element within a scope.
type Port struct {
	Element int // index into a ScopeBuilder's Elements
	Index   int // port number, 0 if omitted in source
}

func (p Port) String() string {
	return fmt.Sprintf("[%d]@%d", p.Index, p.Element)
}

// ElementRecord is one named node of the provisional or flattened graph.
type ElementRecord struct {
	Name     string
	ClassID  int
	Config   string
	Landmark string
}

// Connection is a directed edge between two ports in the same scope.
type Connection struct {
	From Port
	To   Port
}

// ExpandState is the three-state memoization marker for tunnel expansion.
type ExpandState uint8

const (
	Fresh ExpandState = iota
	Expanding
	Done
)

// TunnelEnd is one side of a tunnel endpoint pair. Every input-end is
// paired with exactly one output-end. Endpoints belonging to the same
// declared (or lazily cloned) tunnel share the NextSameHead chain of
// whichever list -- input-ends or output-ends -- they live in.
type TunnelEnd struct {
	Port         Port
	IsOutput     bool
	Paired       *TunnelEnd
	NextSameHead *TunnelEnd
	State        ExpandState
	Resolved     []Port
}

// ScopeBuilder is the mutable working state for one compound body, or for
// the top level: the element list being assembled, the connection list,
// and the heads of the two tunnel-endpoint chains for this scope.
type ScopeBuilder struct {
	Elements  []ElementRecord
	NameIndex map[string]int // element name -> index into Elements

	Connections []Connection

	// InputHead/OutputHead are this scope's tunnel-endpoint chain heads,
	// threaded through TunnelEnd.NextSameHead.
	InputHead  *TunnelEnd
	OutputHead *TunnelEnd

	// AnonymousOffset is the element-list index below which compound
	// boilerplate (the input/output pseudo-elements) lives; anonymous
	// numbering starts above it.
	AnonymousOffset int

	// CompoundDepth is the nesting depth of this scope (0 at top level).
	CompoundDepth int

	// Requirements accumulates words named by top-level require(...)
	// statements. Only meaningful for the top-level scope.
	Requirements []string
}

// NewScopeBuilder creates an empty scope builder at the given nesting
// depth. anonymousOffset should be 0 for the top level and 2 for a
// compound body (which reserves indices 0 and 1 for its input/output
// pseudo-elements).
func NewScopeBuilder(depth, anonymousOffset int) *ScopeBuilder {
	return &ScopeBuilder{
		NameIndex:       make(map[string]int),
		AnonymousOffset: anonymousOffset,
		CompoundDepth:   depth,
	}
}

// AddElement appends a new element and indexes it by name, returning its
// index. The caller is responsible for ensuring the name is not already
// in use in this scope.
func (s *ScopeBuilder) AddElement(rec ElementRecord) int {
	idx := len(s.Elements)
	s.Elements = append(s.Elements, rec)
	if rec.Name != "" {
		s.NameIndex[rec.Name] = idx
	}
	return idx
}

// FindElement returns the index of the named element in this scope, or
// (-1, false) if no such element exists.
func (s *ScopeBuilder) FindElement(name string) (int, bool) {
	idx, ok := s.NameIndex[name]
	return idx, ok
}

// NextAnonymousName produces a fresh, unique name of the form
// "<className>@<n>" for an anonymous element of the given class, per the
// parser's anonymous-naming rule: n starts at elements.size -
// anonymous_offset + 1 and increments until unique.
func (s *ScopeBuilder) NextAnonymousName(className string) string {
	n := len(s.Elements) - s.AnonymousOffset + 1
	if n < 1 {
		n = 1
	}
	for {
		candidate := fmt.Sprintf("%s@%d", className, n)
		if _, exists := s.NameIndex[candidate]; !exists {
			return candidate
		}
		n++
	}
}

// AddConnection appends a connection from 'from' to 'to'.
func (s *ScopeBuilder) AddConnection(from, to Port) {
	s.Connections = append(s.Connections, Connection{From: from, To: to})
}
