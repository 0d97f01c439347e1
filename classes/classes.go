// Package classes implements the ClassRegistry and the Compound class
// record: an ordered, scope-aware mapping from class name to class record,
// and the compound-class body type that holds everything needed for
// overload selection and expansion.
//
// Grounded on this codebase's types package (a flat Object/Scope registry
// with newest-wins name lookup), generalised to a slot-vector + free-list +
// dual-chain design: one registry-wide creation-order chain used for scope
// checkpoint/restore, and a separate per-name overload chain carried only
// by Compound records.
package classes

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/elementgraph/corelang/graphmodel"
)

// ElementFactory is the capability a Primitive class record wraps: an
// opaque producer of element instances supplied by the host program. It is
// declared locally (rather than imported from the root package) so this
// package has no dependency on the module root.
type ElementFactory interface {
	ClassName() string
	Clone() any
	Cast(name string) any
}

// ErrorSink is the subset of diagnostic reporting this package needs.
type ErrorSink interface {
	Error(landmark, format string, args ...any)
	Context(landmark, format string, args ...any) ErrorSink
	Message(landmark, format string, args ...any)
}

// Kind distinguishes the four ClassRecord variants.
type Kind uint8

const (
	KindError Kind = iota // placeholder for an unresolved/failed class reference
	KindPrimitive
	KindSynonym
	KindTunnel
	KindCompound
)

// Compound is the body of an elementclass declaration: its formals,
// element/connection lists, inferred arity, and the link to the next-older
// class record sharing its name (forming the overload chain).
type Compound struct {
	Name           string
	Landmark       string
	Depth          int
	PrevSameNameID int // id of the class record this body overloads/extends, -1 if none
	Formals        []string

	NInputs  int
	NOutputs int

	Elements    []graphmodel.ElementRecord
	Connections []graphmodel.Connection

	finished bool
}

// ClassRecord is one entry in the registry's slot vector.
type ClassRecord struct {
	Kind     Kind
	Name     string
	Landmark string

	nextInScope int // registry-wide creation-order link (newer -> older)
	removed     bool

	Factory       ElementFactory // valid when Kind == KindPrimitive
	SynonymTarget int            // valid when Kind == KindSynonym
	Compound      *Compound      // valid when Kind == KindCompound
}

const tunnelClassName = "\x00tunnel"

// ClassRegistry is the slot vector with free-list reuse, plus the
// registry-wide newest-to-oldest creation chain and the name -> newest-live
// -slot map.
type ClassRegistry struct {
	slots []ClassRecord
	free  []int

	last    int // id of the most recently added live-or-removed record, -1 if none
	nameMap map[string]int

	tunnelClassID int // lazily created sentinel Tunnel class id, -1 until created

	factoryLookup func(name string) (ElementFactory, bool)
}

// SetFactoryLookup installs the host program's primitive-class factory
// lookup: Force consults it on a registry miss before giving up, so a
// bare source reference to a primitive class name (never declared with
// "elementclass") resolves without the caller having to pre-seed every
// primitive into the registry up front.
func (r *ClassRegistry) SetFactoryLookup(fn func(name string) (ElementFactory, bool)) {
	r.factoryLookup = fn
}

// NewClassRegistry creates an empty registry.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{
		last:          -1,
		nameMap:       make(map[string]int),
		tunnelClassID: -1,
	}
}

func (r *ClassRegistry) alloc() int {
	if n := len(r.free); n > 0 {
		id := r.free[n-1]
		r.free = r.free[:n-1]
		return id
	}
	r.slots = append(r.slots, ClassRecord{})
	return len(r.slots) - 1
}

// Get returns the class record at id. The caller must have a live id (from
// Add/Lookup/Force); ids of removed/free slots are a programming error.
func (r *ClassRegistry) Get(id int) *ClassRecord {
	return &r.slots[id]
}

// Add inserts a non-compound class record (Primitive, Synonym, or Tunnel)
// under name, chaining it onto the registry's creation-order list and
// making it the newest live record for that name.
func (r *ClassRegistry) Add(name string, rec ClassRecord) int {
	rec.Name = name
	id := r.alloc()
	rec.nextInScope = r.last
	r.slots[id] = rec
	r.last = id
	r.nameMap[name] = id
	return id
}

// AddCompound inserts a compound class record under name. If chainPrev is
// true, the new record's Compound.PrevSameNameID is set to whatever class
// currently holds that name (the "... ||" extension case and every
// non-first body of a "{A || B || C}" group); otherwise PrevSameNameID is
// -1, so this compound starts a fresh overload chain even if an
// unconnected class of the same name already exists in the registry.
func (r *ClassRegistry) AddCompound(name string, comp *Compound, chainPrev bool) int {
	if chainPrev {
		if prev, ok := r.nameMap[name]; ok {
			comp.PrevSameNameID = prev
		} else {
			comp.PrevSameNameID = -1
		}
	} else {
		comp.PrevSameNameID = -1
	}
	return r.Add(name, ClassRecord{Kind: KindCompound, Landmark: comp.Landmark, Compound: comp})
}

// Lookup returns the id of the newest live class record for name, or
// (-1, false) if no such class is currently in scope.
func (r *ClassRegistry) Lookup(name string) (int, bool) {
	id, ok := r.nameMap[name]
	return id, ok
}

// Force is Lookup, but on a miss it first consults the factory lookup
// installed by SetFactoryLookup (adding a Primitive record if that
// resolves the name); only if that also misses does it report "unknown
// element class" through sink and install a placeholder error record under
// name so dependents still parse.
func (r *ClassRegistry) Force(name, landmark string, sink ErrorSink) int {
	if id, ok := r.Lookup(name); ok {
		return id
	}
	if r.factoryLookup != nil {
		if factory, ok := r.factoryLookup(name); ok {
			return r.Add(name, ClassRecord{Kind: KindPrimitive, Landmark: landmark, Factory: factory})
		}
	}
	sink.Error(landmark, "unknown element class %q", name)
	return r.Add(name, ClassRecord{Kind: KindError, Landmark: landmark})
}

// TunnelClassID returns the id of the single shared sentinel Tunnel class,
// creating it on first use. All tunnel-typed elements across every scope
// share this one class record. The sentinel is kept out of the
// creation-order chain, so Restore never removes it, even when it was
// first created inside a compound body's scope.
func (r *ClassRegistry) TunnelClassID() int {
	if r.tunnelClassID == -1 {
		id := r.alloc()
		r.slots[id] = ClassRecord{Kind: KindTunnel, Name: tunnelClassName, nextInScope: -1}
		r.nameMap[tunnelClassName] = id
		r.tunnelClassID = id
	}
	return r.tunnelClassID
}

// Checkpoint returns a cookie marking the registry's current state, for a
// later Restore to undo everything added since.
func (r *ClassRegistry) Checkpoint() int {
	return r.last
}

// Restore removes every class record added since cookie was taken,
// repairing the name map to point at the next-older live record of the
// same name (if any).
func (r *ClassRegistry) Restore(cookie int) {
	for r.last != cookie {
		r.remove(r.last)
	}
}

func (r *ClassRegistry) remove(id int) {
	rec := &r.slots[id]
	rec.removed = true

	next := rec.nextInScope
	for next != -1 && (r.slots[next].removed || r.slots[next].Name != rec.Name) {
		next = r.slots[next].nextInScope
	}
	if next == -1 {
		delete(r.nameMap, rec.Name)
	} else {
		r.nameMap[rec.Name] = next
	}

	r.last = rec.nextInScope
	r.free = append(r.free, id)
}

// Names returns the names of all currently live classes, excluding the
// sentinel tunnel class.
func (r *ClassRegistry) Names() []string {
	names := make([]string, 0, len(r.nameMap))
	for name, id := range r.nameMap {
		if name == tunnelClassName {
			continue
		}
		_ = id
		names = append(names, name)
	}
	return names
}

// FindRelevantClass walks the overload chain starting at id, newest first,
// and returns the first compound body whose (ninputs, noutputs, nformals)
// matches. If the chain terminates in a non-compound record before a match
// is found, that record is returned as the fallback. If the chain
// terminates in nothing (no fallback, no match), ok is false.
func FindRelevantClass(r *ClassRegistry, id, nInputs, nOutputs, nArgs int) (resolvedID int, rec *ClassRecord, ok bool) {
	cur := id
	for cur != -1 {
		candidate := r.Get(cur)
		if candidate.Kind == KindCompound {
			c := candidate.Compound
			if c.NInputs == nInputs && c.NOutputs == nOutputs && len(c.Formals) == nArgs {
				return cur, candidate, true
			}
			cur = c.PrevSameNameID
			continue
		}
		return cur, candidate, true
	}
	return -1, nil, false
}

// Finish computes ninputs/noutputs for a compound body from its
// connections, by inspecting uses of the pseudo-elements "input" (index 0,
// must only be used as a source) and "output" (index 1, must only be used
// as a sink). Gaps in the used port numbers are reported as
// "input/output N unused".
func (c *Compound) Finish(sink ErrorSink) {
	if c.finished {
		return
	}
	c.finished = true

	usedIn := make(map[int]bool)
	usedOut := make(map[int]bool)
	maxIn, maxOut := -1, -1

	for _, conn := range c.Connections {
		if conn.From.Element == 0 {
			usedIn[conn.From.Index] = true
			if conn.From.Index > maxIn {
				maxIn = conn.From.Index
			}
		}
		if conn.To.Element == 0 {
			sink.Error(c.Landmark, "input used as output in elementclass %q", c.Name)
		}
		if conn.To.Element == 1 {
			usedOut[conn.To.Index] = true
			if conn.To.Index > maxOut {
				maxOut = conn.To.Index
			}
		}
		if conn.From.Element == 1 {
			sink.Error(c.Landmark, "output used as input in elementclass %q", c.Name)
		}
	}

	c.NInputs = maxIn + 1
	c.NOutputs = maxOut + 1

	for p := 0; p < c.NInputs; p++ {
		if !usedIn[p] {
			sink.Error(c.Landmark, "input %d unused in elementclass %q", p, c.Name)
		}
	}
	for p := 0; p < c.NOutputs; p++ {
		if !usedOut[p] {
			sink.Error(c.Landmark, "output %d unused in elementclass %q", p, c.Name)
		}
	}
}

// CheckDuplicates reports an error for any body in ids (given oldest-first,
// as produced while parsing a single "{A || B || C}" group) that shares its
// (ninputs, noutputs, nformals) signature with an earlier one, naming the
// landmark of the first body declared with that signature.
func CheckDuplicates(r *ClassRegistry, ids []int, sink ErrorSink) {
	type sig struct{ ni, no, na int }
	seen := make(map[sig]int) // signature -> first id seen with it
	for _, id := range ids {
		rec := r.Get(id)
		if rec.Kind != KindCompound {
			continue
		}
		c := rec.Compound
		s := sig{c.NInputs, c.NOutputs, len(c.Formals)}
		if firstID, ok := seen[s]; ok {
			first := r.Get(firstID)
			sink.Error(c.Landmark, "elementclass %q[%d args, %d inputs, %d outputs] duplicates the overload declared at %s",
				c.Name, len(c.Formals), c.NInputs, c.NOutputs, first.Landmark)
			continue
		}
		seen[s] = id
	}
}

// DescribeSignature renders a compound's arity signature for overload-miss
// diagnostics, e.g. "C[1 args, 2 inputs, 1 outputs]".
func DescribeSignature(name string, nArgs, nInputs, nOutputs int) string {
	return fmt.Sprintf("%s[%d args, %d inputs, %d outputs]", name, nArgs, nInputs, nOutputs)
}

// Dump renders name's overload chain, newest first, as an indented tree --
// the "available overloads" half of an overload-miss diagnostic.
func (r *ClassRegistry) Dump(name string) string {
	id, ok := r.Lookup(name)
	if !ok {
		return name + ": (unknown)"
	}

	tree := treeprint.NewWithRoot(name)
	for cur := id; cur != -1; {
		rec := r.Get(cur)
		if rec.Kind != KindCompound {
			tree.AddNode(fmt.Sprintf("%s (%s)", rec.Name, kindName(rec.Kind)))
			break
		}
		c := rec.Compound
		tree.AddNode(fmt.Sprintf("%s @ %s", DescribeSignature(c.Name, len(c.Formals), c.NInputs, c.NOutputs), c.Landmark))
		cur = c.PrevSameNameID
	}
	return tree.String()
}

func kindName(k Kind) string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindSynonym:
		return "synonym"
	case KindTunnel:
		return "tunnel"
	case KindCompound:
		return "compound"
	default:
		return "error"
	}
}
