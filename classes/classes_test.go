package classes

import (
	"fmt"
	"testing"
)

type fakeSink struct {
	errors   []string
	messages []string
}

func (f *fakeSink) Error(landmark, format string, args ...any) {
	f.errors = append(f.errors, landmark+": "+fmt.Sprintf(format, args...))
}
func (f *fakeSink) Message(landmark, format string, args ...any) {
	f.messages = append(f.messages, landmark+": "+fmt.Sprintf(format, args...))
}
func (f *fakeSink) Context(landmark, format string, args ...any) ErrorSink {
	f.Message(landmark, format, args...)
	return f
}

func TestAddLookupForce(t *testing.T) {
	r := NewClassRegistry()
	id := r.Add("Id", ClassRecord{Kind: KindPrimitive})
	got, ok := r.Lookup("Id")
	if !ok || got != id {
		t.Fatalf("Lookup(Id) = (%d, %v), want (%d, true)", got, ok, id)
	}

	sink := &fakeSink{}
	missing := r.Force("Missing", "f:1", sink)
	if len(sink.errors) != 1 {
		t.Fatalf("expected one unknown-class error, got %v", sink.errors)
	}
	if r.Get(missing).Kind != KindError {
		t.Errorf("Force should install a KindError placeholder")
	}
}

func TestCheckpointRestoreRepairsNameMap(t *testing.T) {
	r := NewClassRegistry()
	outer := r.Add("X", ClassRecord{Kind: KindPrimitive})

	cp := r.Checkpoint()
	inner := r.Add("X", ClassRecord{Kind: KindSynonym, SynonymTarget: outer})
	if got, _ := r.Lookup("X"); got != inner {
		t.Fatalf("expected inner X to shadow outer")
	}

	r.Restore(cp)
	if got, _ := r.Lookup("X"); got != outer {
		t.Errorf("after restore, Lookup(X) = %d, want outer %d", got, outer)
	}
}

func TestAddCompoundChaining(t *testing.T) {
	r := NewClassRegistry()
	a := &Compound{Name: "C", Landmark: "f:1", NInputs: 1, NOutputs: 1}
	aID := r.AddCompound("C", a, false)

	b := &Compound{Name: "C", Landmark: "f:2", NInputs: 1, NOutputs: 2}
	bID := r.AddCompound("C", b, true)

	if b.PrevSameNameID != aID {
		t.Fatalf("second body should chain to first: got %d, want %d", b.PrevSameNameID, aID)
	}

	resolvedID, rec, ok := FindRelevantClass(r, bID, 1, 1, 0)
	if !ok || resolvedID != aID || rec.Compound != a {
		t.Errorf("FindRelevantClass(1,1,0) should resolve to first body, got id=%d ok=%v", resolvedID, ok)
	}

	resolvedID, rec, ok = FindRelevantClass(r, bID, 1, 2, 0)
	if !ok || resolvedID != bID || rec.Compound != b {
		t.Errorf("FindRelevantClass(1,2,0) should resolve to second body, got id=%d ok=%v", resolvedID, ok)
	}

	_, _, ok = FindRelevantClass(r, bID, 5, 5, 5)
	if ok {
		t.Errorf("FindRelevantClass with no matching arity and no fallback should fail")
	}
}

func TestAddCompoundFreshChainWithoutSigilReplaces(t *testing.T) {
	r := NewClassRegistry()
	a := &Compound{Name: "C", Landmark: "f:1", NInputs: 1, NOutputs: 1}
	r.AddCompound("C", a, false)

	b := &Compound{Name: "C", Landmark: "f:2", NInputs: 2, NOutputs: 2}
	bID := r.AddCompound("C", b, false)

	if b.PrevSameNameID != -1 {
		t.Errorf("non-extension redeclaration should not chain, got PrevSameNameID=%d", b.PrevSameNameID)
	}
	if _, _, ok := FindRelevantClass(r, bID, 1, 1, 0); ok {
		t.Errorf("fresh chain should not reach the orphaned earlier body")
	}
}

func TestForceConsultsFactoryLookupBeforeErroring(t *testing.T) {
	r := NewClassRegistry()
	r.SetFactoryLookup(func(name string) (ElementFactory, bool) {
		if name == "Id" {
			return nil, true
		}
		return nil, false
	})

	sink := &fakeSink{}
	id := r.Force("Id", "f:1", sink)
	if len(sink.errors) != 0 {
		t.Fatalf("Force should not error when the factory lookup resolves the name, got %v", sink.errors)
	}
	rec := r.Get(id)
	if rec.Kind != KindPrimitive {
		t.Fatalf("Force should install a KindPrimitive record from the factory lookup, got kind %v", rec.Kind)
	}

	sink2 := &fakeSink{}
	r.Force("Ghost", "f:2", sink2)
	if len(sink2.errors) != 1 {
		t.Fatalf("Force should still error when the factory lookup also misses, got %v", sink2.errors)
	}
}

func TestDumpRendersOverloadChainNewestFirst(t *testing.T) {
	r := NewClassRegistry()
	a := &Compound{Name: "C", Landmark: "f:1", NInputs: 1, NOutputs: 1}
	r.AddCompound("C", a, false)

	b := &Compound{Name: "C", Landmark: "f:2", NInputs: 1, NOutputs: 2}
	r.AddCompound("C", b, true)

	dump := r.Dump("C")
	if !contains(dump, "f:2") || !contains(dump, "f:1") {
		t.Fatalf("Dump(C) = %q, want both overload landmarks present", dump)
	}

	if unknown := r.Dump("Nope"); !contains(unknown, "unknown") {
		t.Fatalf("Dump(Nope) = %q, want an unknown-class message", unknown)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
