// Package expander implements the single left-to-right scan that turns a
// scope full of compound-typed elements into one flattened, tunnel-free
// graph, plus the final emission of that graph to a host Router.
//
// The scan is a forward index walk, not a recursion: expanding one
// element may append fresh elements to the same scope, and the scan simply
// continues forward to reach them.
package expander

import (
	"strings"

	"github.com/elementgraph/corelang/argsplit"
	"github.com/elementgraph/corelang/classes"
	"github.com/elementgraph/corelang/environment"
	"github.com/elementgraph/corelang/graphmodel"
	"github.com/elementgraph/corelang/tunnel"
)

// ErrorSink is this package's diagnostic surface. Reused from classes
// directly (as in the parser package) since this package already has a
// hard dependency on classes and the two interfaces must satisfy each
// other structurally, not just by shape.
type ErrorSink = classes.ErrorSink

// Router is the host program's sink for the flattened graph: one opaque
// element instance per primitive element, a connection list between
// them, and the words named by top-level require(...) statements.
// Declared locally, matching classes.ElementFactory's "no dependency on
// the module root" convention.
type Router interface {
	AddElement(instance any, name, config, landmark string) int
	AddConnection(fromIdx, fromPort, toIdx, toPort int)
	AddRequirement(word string)
}

// envTable tracks, per scope element index, the VariableEnvironment that
// governs $-interpolation for configs materialised at that element's call
// site. Wrapped in a struct (rather than passed as a bare slice) because
// expandInto must grow it as it appends elements, and slice growth inside
// a callee is invisible to the caller unless shared through a pointer.
type envTable struct {
	envs []*environment.Environment
	root *environment.Environment
}

func newEnvTable(nElements int) *envTable {
	root := environment.New()
	t := &envTable{root: root}
	for i := 0; i < nElements; i++ {
		t.envs = append(t.envs, root)
	}
	return t
}

func (t *envTable) get(idx int) *environment.Environment {
	if idx < len(t.envs) {
		return t.envs[idx]
	}
	return t.root
}

func (t *envTable) set(idx int, env *environment.Environment) {
	for len(t.envs) <= idx {
		t.envs = append(t.envs, t.root)
	}
	t.envs[idx] = env
}

// Flatten expands every compound-typed element of scope in place, left to
// right, tolerating scope.Elements growing as expansion splices in a
// compound's body: new elements land at the end of the list and are
// visited later in the same scan, so nested compounds resolve fully in
// one pass.
func Flatten(scope *graphmodel.ScopeBuilder, reg *classes.ClassRegistry, sink ErrorSink) {
	envs := newEnvTable(len(scope.Elements))
	for i := 0; i < len(scope.Elements); i++ {
		expandOne(scope, reg, i, envs, sink)
	}
}

func expandOne(scope *graphmodel.ScopeBuilder, reg *classes.ClassRegistry, idx int, envs *envTable, sink ErrorSink) {
	elem := scope.Elements[idx]
	rec := reg.Get(elem.ClassID)

	if rec.Kind == classes.KindSynonym {
		resolved, ok := resolveSynonymChain(reg, elem.ClassID, elem.Landmark, sink)
		if !ok {
			scope.Elements[idx].ClassID = reg.Add(elem.Name, classes.ClassRecord{Kind: classes.KindError, Landmark: elem.Landmark})
			return
		}
		scope.Elements[idx].ClassID = resolved
		elem = scope.Elements[idx]
		rec = reg.Get(resolved)
	}

	if rec.Kind != classes.KindCompound {
		return
	}

	nIn, nOut := countPorts(scope, idx)
	args := splitTrimmedArgs(elem.Config)

	resolvedID, resolvedRec, ok := classes.FindRelevantClass(reg, elem.ClassID, nIn, nOut, len(args))
	if !ok {
		reportNoOverload(reg, elem, nIn, nOut, len(args), sink)
		scope.Elements[idx].ClassID = reg.Add(elem.Name, classes.ClassRecord{Kind: classes.KindError, Landmark: elem.Landmark})
		return
	}
	if resolvedRec.Kind != classes.KindCompound {
		scope.Elements[idx].ClassID = resolvedID
		return
	}

	comp := resolvedRec.Compound
	childEnv := buildChildEnvironment(envs.get(idx), comp, args)
	expandInto(scope, reg, idx, comp, childEnv, envs, sink)
}

// countPorts infers how many of an element's input/output ports are
// actually wired at its call site, from the enclosing scope's own
// connection list -- the arity the overload resolver matches against.
func countPorts(scope *graphmodel.ScopeBuilder, elemIdx int) (nIn, nOut int) {
	maxIn, maxOut := -1, -1
	for _, c := range scope.Connections {
		if c.To.Element == elemIdx && c.To.Index > maxIn {
			maxIn = c.To.Index
		}
		if c.From.Element == elemIdx && c.From.Index > maxOut {
			maxOut = c.From.Index
		}
	}
	return maxIn + 1, maxOut + 1
}

// splitTrimmedArgs splits a compound's raw configuration text into actual
// argument strings, trimming the incidental whitespace a ", "-separated
// arg list leaves behind -- argsplit.SplitArgs itself stays whitespace-
// preserving since it is shared with SplitParenList, where the caller (a
// plain require(...) word list) does its own trimming instead.
func splitTrimmedArgs(config string) []string {
	raw := argsplit.SplitArgs(config)
	if raw == nil {
		return nil
	}
	trimmed := make([]string, len(raw))
	for i, a := range raw {
		trimmed[i] = strings.TrimSpace(a)
	}
	return trimmed
}

func resolveSynonymChain(reg *classes.ClassRegistry, id int, landmark string, sink ErrorSink) (int, bool) {
	seen := make(map[int]bool)
	for {
		rec := reg.Get(id)
		if rec.Kind != classes.KindSynonym {
			return id, true
		}
		if seen[id] {
			sink.Error(landmark, "synonym cycle detected for class %q", rec.Name)
			return id, false
		}
		seen[id] = true
		id = rec.SynonymTarget
	}
}

func reportNoOverload(reg *classes.ClassRegistry, elem graphmodel.ElementRecord, nIn, nOut, nArgs int, sink ErrorSink) {
	className := reg.Get(elem.ClassID).Name
	sink.Error(elem.Landmark, "no matching overload for %s", classes.DescribeSignature(className, nArgs, nIn, nOut))

	ctx := sink.Context(elem.Landmark, "available overloads for %q:", className)
	ctx.Message(elem.Landmark, "%s", reg.Dump(className))
}

// buildChildEnvironment constructs the environment a compound's own body
// interpolates $-references through: a depth-0, zero-formal compound (the
// overwhelmingly common case -- most elementclasses take no arguments)
// gets a fresh empty environment; anything else clones the
// call site's environment, truncates away formals declared at or below
// this compound's own depth (they are out of lexical reach once a new
// frame opens at that depth), and pushes this invocation's own bindings.
func buildChildEnvironment(parent *environment.Environment, comp *classes.Compound, actuals []string) *environment.Environment {
	if comp.Depth == 0 && len(comp.Formals) == 0 {
		return environment.New()
	}
	child := parent.Clone()
	child.LimitDepth(comp.Depth)
	child.Push(comp.Depth, comp.Formals, actuals)
	return child
}

// expandInto splices comp's body into scope in place of the compound
// element at elemIdx, per the tunnel-boundary construction: the original
// element is retyped to Tunnel and becomes the external face of two
// synthetic tunnels (one carrying traffic in through the body's "input"
// pseudo-element, one carrying it back out through "output"), every
// other body element is materialised under a prefixed name, and every
// body connection is translated through the resulting index map and
// appended to scope.
func expandInto(scope *graphmodel.ScopeBuilder, reg *classes.ClassRegistry, elemIdx int, comp *classes.Compound, env *environment.Environment, envs *envTable, sink ErrorSink) {
	name := scope.Elements[elemIdx].Name
	landmark := scope.Elements[elemIdx].Landmark

	prefix := name
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	innerInputName := prefix + "input"
	innerOutputName := prefix + "output"

	scope.Elements[elemIdx].ClassID = reg.TunnelClassID()

	tunnel.AddTunnel(scope, reg, name, innerInputName, landmark, sink)
	tunnel.AddTunnel(scope, reg, innerOutputName, name, landmark, sink)

	innerInputIdx, _ := scope.FindElement(innerInputName)
	innerOutputIdx, _ := scope.FindElement(innerOutputName)
	envs.set(innerInputIdx, env)
	envs.set(innerOutputIdx, env)

	indexMap := make([]int, len(comp.Elements))
	indexMap[0] = innerInputIdx
	indexMap[1] = innerOutputIdx

	for k := 2; k < len(comp.Elements); k++ {
		inner := comp.Elements[k]
		externalName := prefix + inner.Name
		if _, exists := scope.FindElement(externalName); exists {
			sink.Error(landmark, "element %q already declared", externalName)
			indexMap[k] = -1
			continue
		}
		cfg := env.Interpolate(inner.Config)
		newIdx := scope.AddElement(graphmodel.ElementRecord{
			Name:     externalName,
			ClassID:  inner.ClassID,
			Config:   cfg,
			Landmark: inner.Landmark,
		})
		indexMap[k] = newIdx
		envs.set(newIdx, env)
	}

	for _, c := range comp.Connections {
		fromIdx := indexMap[c.From.Element]
		toIdx := indexMap[c.To.Element]
		if fromIdx == -1 || toIdx == -1 {
			continue
		}
		scope.AddConnection(
			graphmodel.Port{Element: fromIdx, Index: c.From.Index},
			graphmodel.Port{Element: toIdx, Index: c.To.Index},
		)
	}
}

// Emit resolves every connection in a fully flattened scope (one with no
// remaining Compound-typed elements) down to non-tunnel endpoint pairs and
// forwards the result to router: one AddElement call per primitive
// element, one AddConnection call per distinct resolved pair, and one
// AddRequirement call per accumulated requirement word.
//
// Every raw connection is expanded from both ends regardless of whether
// either end is actually a tunnel (ExpandConnection is a no-op identity
// on a non-tunnel port), and the resulting pairs are deduplicated before
// emission: a tunnel's two declared names each sit on opposite ends of
// two different raw connections in scope.Connections, so processing both
// independently would otherwise resolve to, and emit, the same boundary
// pair twice.
func Emit(scope *graphmodel.ScopeBuilder, reg *classes.ClassRegistry, router Router, sink ErrorSink) bool {
	oldToNew := make([]int, len(scope.Elements))
	for i, elem := range scope.Elements {
		rec := reg.Get(elem.ClassID)
		if rec.Kind != classes.KindPrimitive {
			oldToNew[i] = -1
			continue
		}
		instance := rec.Factory.Clone()
		oldToNew[i] = router.AddElement(instance, elem.Name, elem.Config, elem.Landmark)
	}

	type pair struct{ from, to graphmodel.Port }
	seen := make(map[pair]bool)
	var order []pair

	for _, conn := range scope.Connections {
		fromPorts := tunnel.ExpandConnection(scope, reg, conn.From, true, sink)
		toPorts := tunnel.ExpandConnection(scope, reg, conn.To, false, sink)
		for _, fp := range fromPorts {
			for _, tp := range toPorts {
				key := pair{fp, tp}
				if seen[key] {
					continue
				}
				seen[key] = true
				order = append(order, key)
			}
		}
	}
	for _, pr := range order {
		fromIdx, toIdx := oldToNew[pr.from.Element], oldToNew[pr.to.Element]
		if fromIdx == -1 || toIdx == -1 {
			// One side resolved to a non-primitive (error-typed or otherwise
			// unresolved) element that never got an AddElement call; there is
			// no valid index to report, so the connection is dropped.
			continue
		}
		router.AddConnection(fromIdx, pr.from.Index, toIdx, pr.to.Index)
	}

	for _, word := range scope.Requirements {
		router.AddRequirement(word)
	}

	return true
}
