package expander

import (
	"fmt"
	"testing"

	"github.com/elementgraph/corelang/classes"
	"github.com/elementgraph/corelang/parser"
)

type fakeSink struct {
	errors []string
}

func (f *fakeSink) Error(landmark, format string, args ...any) {
	f.errors = append(f.errors, fmt.Sprintf("%s: %s", landmark, fmt.Sprintf(format, args...)))
}
func (f *fakeSink) Message(landmark, format string, args ...any) {}
func (f *fakeSink) Context(landmark, format string, args ...any) classes.ErrorSink {
	return f
}

type fakeInstance struct{ class string }

type fakeFactory struct{ class string }

func (f *fakeFactory) ClassName() string    { return f.class }
func (f *fakeFactory) Clone() any           { return &fakeInstance{class: f.class} }
func (f *fakeFactory) Cast(name string) any { return nil }

func newRegistryWithPrimitives(names ...string) *classes.ClassRegistry {
	reg := classes.NewClassRegistry()
	for _, n := range names {
		reg.Add(n, classes.ClassRecord{Kind: classes.KindPrimitive, Factory: &fakeFactory{class: n}})
	}
	return reg
}

type elementCall struct {
	name, config, landmark string
}

type connCall struct {
	fromIdx, fromPort, toIdx, toPort int
}

type fakeRouter struct {
	elements []elementCall
	conns    []connCall
	reqs     []string
}

func (r *fakeRouter) AddElement(instance any, name, config, landmark string) int {
	idx := len(r.elements)
	r.elements = append(r.elements, elementCall{name, config, landmark})
	return idx
}
func (r *fakeRouter) AddConnection(fromIdx, fromPort, toIdx, toPort int) {
	r.conns = append(r.conns, connCall{fromIdx, fromPort, toIdx, toPort})
}
func (r *fakeRouter) AddRequirement(word string) {
	r.reqs = append(r.reqs, word)
}

func flattenAndEmit(t *testing.T, src string, reg *classes.ClassRegistry) (*fakeRouter, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	p := parser.New("t.click", []byte(src), reg, sink, nil)
	scope := p.Parse()
	if len(sink.errors) != 0 {
		t.Fatalf("parse errors: %v", sink.errors)
	}
	Flatten(scope, reg, sink)
	router := &fakeRouter{}
	Emit(scope, reg, router, sink)
	return router, sink
}

func TestFormalSubstitutionFlattensToDirectChain(t *testing.T) {
	reg := newRegistryWithPrimitives("Id")
	src := `
elementclass C { $x | in :: Id($x); input -> in -> output; }
c :: C(7);
src :: Id;
dst :: Id;
src -> c -> dst;
`
	router, sink := flattenAndEmit(t, src, reg)
	if len(sink.errors) != 0 {
		t.Fatalf("unexpected errors: %v", sink.errors)
	}

	if len(router.elements) != 3 {
		t.Fatalf("elements = %+v, want 3", router.elements)
	}
	names := []string{router.elements[0].name, router.elements[1].name, router.elements[2].name}
	want := []string{"src", "dst", "c/in"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("elements[%d].name = %q, want %q", i, names[i], n)
		}
	}
	if router.elements[2].config != "7" {
		t.Errorf("c/in config = %q, want %q (interpolated from $x)", router.elements[2].config, "7")
	}

	wantConns := []connCall{
		{0, 0, 2, 0}, // src -> c/in
		{2, 0, 1, 0}, // c/in -> dst
	}
	if len(router.conns) != len(wantConns) {
		t.Fatalf("conns = %+v, want %+v", router.conns, wantConns)
	}
	for i, c := range wantConns {
		if router.conns[i] != c {
			t.Errorf("conn[%d] = %+v, want %+v", i, router.conns[i], c)
		}
	}
}

func TestOverloadSelectedByArgCountExpandsMatchingBody(t *testing.T) {
	reg := newRegistryWithPrimitives("Id")
	src := `
elementclass C {
  $x | in :: Id($x); input -> in -> output;
||
  $x, $y | a :: Id($x); b :: Id($y); input -> a -> b -> output;
}
c :: C(1, 2);
src :: Id;
dst :: Id;
src -> c -> dst;
`
	router, sink := flattenAndEmit(t, src, reg)
	if len(sink.errors) != 0 {
		t.Fatalf("unexpected errors: %v", sink.errors)
	}

	var foundA, foundB bool
	for _, e := range router.elements {
		switch e.name {
		case "c/a":
			foundA = true
			if e.config != "1" {
				t.Errorf("c/a config = %q, want %q", e.config, "1")
			}
		case "c/b":
			foundB = true
			if e.config != "2" {
				t.Errorf("c/b config = %q, want %q", e.config, "2")
			}
		case "c/in":
			t.Errorf("the single-formal overload's body was spliced in instead of the two-formal one")
		}
	}
	if !foundA || !foundB {
		t.Fatalf("elements = %+v, want both c/a and c/b", router.elements)
	}

	if len(router.conns) != 3 {
		t.Fatalf("conns = %+v, want 3 (src->c/a, c/a->c/b, c/b->dst)", router.conns)
	}
}

func TestNestedCompoundsExpandInOnePass(t *testing.T) {
	reg := newRegistryWithPrimitives("Id")
	src := `
elementclass Inner { in :: Id; input -> in -> output; }
elementclass Outer { mid :: Inner; input -> mid -> output; }
src :: Id;
dst :: Id;
o :: Outer;
src -> o -> dst;
`
	router, sink := flattenAndEmit(t, src, reg)
	if len(sink.errors) != 0 {
		t.Fatalf("unexpected errors: %v", sink.errors)
	}

	found := false
	for _, e := range router.elements {
		if e.name == "o/mid/in" {
			found = true
		}
		if e.name == "o/mid" {
			t.Errorf("o/mid should have been retyped to a tunnel and stripped, not emitted as a primitive")
		}
	}
	if !found {
		t.Fatalf("elements = %+v, want the doubly-prefixed o/mid/in primitive", router.elements)
	}
	if len(router.conns) != 2 {
		t.Fatalf("conns = %+v, want src->o/mid/in and o/mid/in->dst", router.conns)
	}
}

func TestNoMatchingOverloadReportsSignatureAndAvailableList(t *testing.T) {
	reg := newRegistryWithPrimitives("Id")
	src := `
elementclass C { in :: Id; input -> in -> output; }
c :: C;
Id -> [1] c;
`
	_, sink := flattenAndEmit0(t, src, reg)
	found := false
	for _, e := range sink.errors {
		if contains(e, "no matching overload") {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors = %v, want a no-matching-overload error", sink.errors)
	}
}

// flattenAndEmit0 is flattenAndEmit without the parse-error fast-fail, for
// tests that expect the overload resolver itself to be the error source.
func flattenAndEmit0(t *testing.T, src string, reg *classes.ClassRegistry) (*fakeRouter, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	p := parser.New("t.click", []byte(src), reg, sink, nil)
	scope := p.Parse()
	Flatten(scope, reg, sink)
	router := &fakeRouter{}
	Emit(scope, reg, router, sink)
	return router, sink
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestOverloadMissDropsConnectionsInsteadOfEmittingSentinelIndex(t *testing.T) {
	reg := newRegistryWithPrimitives("Id")
	src := `
elementclass C { in :: Id; input -> in -> output; }
c :: C;
Id -> [1] c;
c -> Id;
`
	router, sink := flattenAndEmit0(t, src, reg)
	found := false
	for _, e := range sink.errors {
		if contains(e, "no matching overload") {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors = %v, want a no-matching-overload error", sink.errors)
	}
	if len(router.conns) != 0 {
		t.Fatalf("conns = %+v, want none: c never resolved to a primitive, so it never received an AddElement index", router.conns)
	}
}

func TestRequirementsForwardedToRouter(t *testing.T) {
	reg := newRegistryWithPrimitives()
	router, sink := flattenAndEmit(t, `require(linux, userlevel);`, reg)
	if len(sink.errors) != 0 {
		t.Fatalf("unexpected errors: %v", sink.errors)
	}
	want := []string{"linux", "userlevel"}
	if len(router.reqs) != len(want) {
		t.Fatalf("requirements = %v, want %v", router.reqs, want)
	}
	for i, w := range want {
		if router.reqs[i] != w {
			t.Errorf("requirement[%d] = %q, want %q", i, router.reqs[i], w)
		}
	}
}
