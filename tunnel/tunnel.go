// Package tunnel implements the TunnelEngine: pairing of named tunnel
// endpoints declared by "connectiontunnel a -> b" (and the synthetic
// endpoints compound expansion creates at its boundary), and the
// expansion logic that, during connection flattening, chases a tunnel-
// typed endpoint through to the non-tunnel ports reached through it.
//
// The resolution is a memoised depth-first walk that lazily materialises
// missing endpoint pairs on first reference and keeps a per-end
// Fresh/Expanding/Done state to stay cycle-safe.
package tunnel

import (
	"github.com/elementgraph/corelang/classes"
	"github.com/elementgraph/corelang/graphmodel"
)

// ErrorSink is the subset of diagnostic reporting this package needs,
// declared locally to avoid depending on the module root.
type ErrorSink interface {
	Error(landmark, format string, args ...any)
}

// AddTunnel implements "connectiontunnel nameIn -> nameOut": it creates
// (or reuses) a Tunnel-typed element for each name in scope, then pairs a
// fresh input-end at nameIn's port 0 with a fresh output-end at nameOut's
// port 0. Re-declaring either side (an existing end already occupying
// that exact port) is reported as an error and the declaration is
// otherwise ignored.
func AddTunnel(scope *graphmodel.ScopeBuilder, reg *classes.ClassRegistry, nameIn, nameOut, landmark string, sink ErrorSink) {
	inElem, inOK := ensureTunnelElement(scope, reg, nameIn, landmark, sink)
	outElem, outOK := ensureTunnelElement(scope, reg, nameOut, landmark, sink)
	if !inOK || !outOK {
		return
	}

	inPort := graphmodel.Port{Element: inElem, Index: 0}
	outPort := graphmodel.Port{Element: outElem, Index: 0}

	if _, ok := findExisting(scope.InputHead, inPort); ok {
		sink.Error(landmark, "redeclaration of tunnel input %q", nameIn)
		return
	}
	if _, ok := findExisting(scope.OutputHead, outPort); ok {
		sink.Error(landmark, "redeclaration of tunnel output %q", nameOut)
		return
	}

	inEnd := &graphmodel.TunnelEnd{Port: inPort, IsOutput: false}
	outEnd := &graphmodel.TunnelEnd{Port: outPort, IsOutput: true}
	inEnd.Paired = outEnd
	outEnd.Paired = inEnd

	inEnd.NextSameHead = scope.InputHead
	scope.InputHead = inEnd
	outEnd.NextSameHead = scope.OutputHead
	scope.OutputHead = outEnd
}

// ensureTunnelElement returns the index of a Tunnel-typed element named
// name in scope, creating one if the name is not yet declared. If name
// already names a non-tunnel element in scope, an error is reported and
// ok is false. Class names are not checked.
func ensureTunnelElement(scope *graphmodel.ScopeBuilder, reg *classes.ClassRegistry, name, landmark string, sink ErrorSink) (idx int, ok bool) {
	if existing, found := scope.FindElement(name); found {
		if reg.Get(scope.Elements[existing].ClassID).Kind == classes.KindTunnel {
			return existing, true
		}
		sink.Error(landmark, "%q already names a non-tunnel element", name)
		return existing, false
	}
	idx = scope.AddElement(graphmodel.ElementRecord{
		Name:     name,
		ClassID:  reg.TunnelClassID(),
		Landmark: landmark,
	})
	return idx, true
}

// findExisting walks head looking for an end at exactly port, without
// creating anything.
func findExisting(head *graphmodel.TunnelEnd, port graphmodel.Port) (*graphmodel.TunnelEnd, bool) {
	for e := head; e != nil; e = e.NextSameHead {
		if e.Port == port {
			return e, true
		}
	}
	return nil, false
}

// Find locates the TunnelEnd for (port, isOutput) in scope. If no end
// exists for that exact port but one exists for the same element at a
// different port index (a "parent" -- typically the port explicitly named
// in the declaring "connectiontunnel" or expand_into call), a fresh pair
// is allocated: a new end for port on this side, and a peer for the
// parent's paired element at the same port index on the other side. Both
// are linked into their respective chains and paired with each other.
// Find returns (nil, false) when the element has no tunnel end on the
// requested side, even if it has one on the opposite side.
func Find(scope *graphmodel.ScopeBuilder, isOutput bool, port graphmodel.Port) (*graphmodel.TunnelEnd, bool) {
	head, oppHead := scope.InputHead, scope.OutputHead
	if isOutput {
		head, oppHead = scope.OutputHead, scope.InputHead
	}

	if end, ok := findExisting(head, port); ok {
		return end, true
	}

	for e := head; e != nil; e = e.NextSameHead {
		if e.Port.Element != port.Element {
			continue
		}
		newEnd := &graphmodel.TunnelEnd{Port: port, IsOutput: isOutput}
		peerPort := graphmodel.Port{Element: e.Paired.Port.Element, Index: port.Index}
		peerEnd := &graphmodel.TunnelEnd{Port: peerPort, IsOutput: !isOutput, Paired: newEnd}
		newEnd.Paired = peerEnd

		newEnd.NextSameHead = head
		peerEnd.NextSameHead = oppHead
		if isOutput {
			scope.OutputHead = newEnd
			scope.InputHead = peerEnd
		} else {
			scope.InputHead = newEnd
			scope.OutputHead = peerEnd
		}
		return newEnd, true
	}

	return nil, false
}

// Expand resolves end to the set of non-tunnel ports reached through it,
// memoised via end.State. Expanding an end already Expanding (a cycle
// through tunnels) returns no ports without erroring -- the safe stop
// that tolerates pathological loops; a Done end returns its cached
// Resolved list.
//
// An input end resolves by gathering every connection in scope that
// sources its paired (output) port and flattening each destination; an
// output end resolves symmetrically by gathering connections that target
// its paired (input) port and flattening each source. An end that
// resolves to nothing is reported as unused, distinguishing a compound's
// unused input/output pseudo-port (scope.AnonymousOffset >= 2 and the
// port's element is the compound-body's reserved input/output index)
// from an ordinary free-standing tunnel side.
func Expand(scope *graphmodel.ScopeBuilder, reg *classes.ClassRegistry, end *graphmodel.TunnelEnd, sink ErrorSink) []graphmodel.Port {
	switch end.State {
	case graphmodel.Expanding:
		return nil
	case graphmodel.Done:
		return end.Resolved
	}
	end.State = graphmodel.Expanding

	var out []graphmodel.Port
	pairedPort := end.Paired.Port

	if !end.IsOutput {
		for _, conn := range scope.Connections {
			if conn.From == pairedPort {
				out = append(out, ExpandConnection(scope, reg, conn.To, false, sink)...)
			}
		}
	} else {
		for _, conn := range scope.Connections {
			if conn.To == pairedPort {
				out = append(out, ExpandConnection(scope, reg, conn.From, true, sink)...)
			}
		}
	}

	end.Resolved = out
	end.State = graphmodel.Done

	if len(out) == 0 {
		reportUnused(scope, end, sink)
	}
	return out
}

func reportUnused(scope *graphmodel.ScopeBuilder, end *graphmodel.TunnelEnd, sink ErrorSink) {
	elemIdx := end.Port.Element
	var landmark, name string
	if elemIdx < len(scope.Elements) {
		landmark = scope.Elements[elemIdx].Landmark
		name = scope.Elements[elemIdx].Name
	}

	if scope.AnonymousOffset >= 2 && elemIdx == 0 {
		sink.Error(landmark, "input %d unused", end.Port.Index)
		return
	}
	if scope.AnonymousOffset >= 2 && elemIdx == 1 {
		sink.Error(landmark, "output %d unused", end.Port.Index)
		return
	}
	side := "input"
	if end.IsOutput {
		side = "output"
	}
	sink.Error(landmark, "tunnel %s %q unused", side, name)
}

// ExpandConnection resolves one connection endpoint: if port's element is
// not a tunnel, port itself is the (only) resolved port. Otherwise the
// matching end is located (lazily allocating one if needed, per Find) and
// expanded. If no end can be found or allocated on the requested side but
// one already exists on the opposite side, the port is being used in the
// wrong direction and an error is reported instead.
func ExpandConnection(scope *graphmodel.ScopeBuilder, reg *classes.ClassRegistry, port graphmodel.Port, isOutput bool, sink ErrorSink) []graphmodel.Port {
	elem := scope.Elements[port.Element]
	if reg.Get(elem.ClassID).Kind != classes.KindTunnel {
		return []graphmodel.Port{port}
	}

	if end, ok := Find(scope, isOutput, port); ok {
		return Expand(scope, reg, end, sink)
	}

	if _, ok := Find(scope, !isOutput, port); ok {
		want, have := "input", "output"
		if isOutput {
			want, have = "output", "input"
		}
		sink.Error(elem.Landmark, "%q used as %s, but declared as tunnel %s", elem.Name, want, have)
	}
	return nil
}
