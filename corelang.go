// Package corelang is the public surface of the element-graph compiler
// core: the interfaces a host program implements (ElementFactory, Router,
// ErrorSink, ClassFactoryLookup) and the single Compile entry point that
// wires the lexer, parser, and expander into a Router call sequence.
//
// Grounded on this codebase's own top-level driver convention: a small
// root package holding the externally-facing types and one orchestration
// function, with every algorithmic package kept underneath it.
package corelang

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/elementgraph/corelang/classes"
	"github.com/elementgraph/corelang/expander"
	"github.com/elementgraph/corelang/parser"
)

// ElementFactory is an opaque producer of element instances, supplied by
// the host program for every primitive class name the source may
// reference. Cast is a capability query a host can use to detect a
// factory wrapping a Synonym or Compound target without a type switch on
// a type this package doesn't own.
type ElementFactory interface {
	ClassName() string
	Clone() any
	Cast(name string) any
}

// Router receives the flattened graph: one AddElement call per surviving
// (non-tunnel) element, one AddConnection call per resolved connection,
// and one AddRequirement call per accumulated require(...) word.
type Router interface {
	AddElement(class ElementFactory, name, config, landmark string) int
	AddConnection(fromIdx, fromPort, toIdx, toPort int)
	AddRequirement(word string)
}

// ErrorSink is the diagnostic surface every package in this module
// reports through. Context returns an indented sub-sink for grouping
// related messages -- e.g. enumerating a class's available overloads
// under one "no matching overload" error.
type ErrorSink interface {
	Error(landmark, format string, args ...any)
	Message(landmark, format string, args ...any)
	Context(landmark, format string, args ...any) ErrorSink
}

// ClassFactoryLookup resolves a bare class name referenced by source
// (never declared with "elementclass") to a fresh ElementFactory.
type ClassFactoryLookup interface {
	LookupFactory(name string) (ElementFactory, bool)
}

// LexerExtra carries the optional require(word, landmark) hook a host
// program can use to validate requirement words as they're parsed,
// rather than only after the fact from the flattened Requirements list.
type LexerExtra struct {
	RequireHook func(word, landmark string)
}

// Compile parses source, flattens every compound reference down to
// primitives, and forwards the result to router. It returns true iff sink
// observed zero errors -- message-only diagnostics (Context/Message) do
// not count against success.
func Compile(source []byte, filename string, lookup ClassFactoryLookup, router Router, sink ErrorSink, extra *LexerExtra) bool {
	log := hclog.New(&hclog.LoggerOptions{
		Name:  "corelang",
		Level: hclog.Trace,
	}).Named(filename)
	log.Trace("compile starting", "bytes", len(source))

	reg := classes.NewClassRegistry()
	if lookup != nil {
		reg.SetFactoryLookup(func(name string) (classes.ElementFactory, bool) {
			return lookup.LookupFactory(name)
		})
	}

	var errCount int
	counted := countingSink{inner: sink, count: &errCount}

	var requireHook func(word, landmark string)
	if extra != nil {
		requireHook = extra.RequireHook
	}

	p := parser.New(filename, source, reg, counted, requireHook)
	scope := p.Parse()
	log.Trace("parse complete", "elements", len(scope.Elements), "connections", len(scope.Connections))

	expander.Flatten(scope, reg, counted)
	log.Trace("flatten complete", "elements", len(scope.Elements))

	expander.Emit(scope, reg, routerAdapter{router}, counted)

	log.Trace("compile finished", "errors", errCount)
	return errCount == 0
}

// routerAdapter satisfies expander.Router on top of the public Router,
// recovering the concrete ElementFactory that expander.Emit only ever
// sees as an opaque any (expander has no dependency on this package's
// types, so it can't accept ElementFactory directly).
type routerAdapter struct {
	router Router
}

func (a routerAdapter) AddElement(instance any, name, config, landmark string) int {
	factory, ok := instance.(ElementFactory)
	if !ok {
		panic(fmt.Sprintf("corelang: class registry produced a non-ElementFactory instance for %q", name))
	}
	return a.router.AddElement(factory, name, config, landmark)
}

func (a routerAdapter) AddConnection(fromIdx, fromPort, toIdx, toPort int) {
	a.router.AddConnection(fromIdx, fromPort, toIdx, toPort)
}

func (a routerAdapter) AddRequirement(word string) {
	a.router.AddRequirement(word)
}

// countingSink wraps the host's ErrorSink to count real errors separately
// from context/message-only diagnostics, so Compile's return value
// reflects only the former.
type countingSink struct {
	inner ErrorSink
	count *int
}

func (c countingSink) Error(landmark, format string, args ...any) {
	*c.count++
	c.inner.Error(landmark, format, args...)
}

func (c countingSink) Message(landmark, format string, args ...any) {
	c.inner.Message(landmark, format, args...)
}

func (c countingSink) Context(landmark, format string, args ...any) classes.ErrorSink {
	return countingSink{inner: c.inner.Context(landmark, format, args...), count: c.count}
}

// CollectingSink is the ready-made ErrorSink a host program can use
// instead of writing its own: every Error call is aggregated into a
// single *multierror.Error, retrievable via Err, and every Message call
// (generally a Context sub-message) is kept alongside for display without
// affecting Err's nil-ness.
type CollectingSink struct {
	prefix   string
	errs     *multierror.Error
	messages *[]string
}

// NewCollectingSink returns an empty CollectingSink.
func NewCollectingSink() *CollectingSink {
	empty := []string{}
	return &CollectingSink{errs: &multierror.Error{}, messages: &empty}
}

func (s *CollectingSink) Error(landmark, format string, args ...any) {
	s.errs = multierror.Append(s.errs, fmt.Errorf("%s%s: %s", s.prefix, landmark, fmt.Sprintf(format, args...)))
}

func (s *CollectingSink) Message(landmark, format string, args ...any) {
	*s.messages = append(*s.messages, fmt.Sprintf("%s%s: %s", s.prefix, landmark, fmt.Sprintf(format, args...)))
}

func (s *CollectingSink) Context(landmark, format string, args ...any) ErrorSink {
	return &CollectingSink{
		prefix:   s.prefix + fmt.Sprintf(format, args...) + " > ",
		errs:     s.errs,
		messages: s.messages,
	}
}

// Err returns the aggregated compile errors, or nil if there were none.
func (s *CollectingSink) Err() error {
	return s.errs.ErrorOrNil()
}

// Messages returns every non-error diagnostic recorded so far, in the
// order they were reported.
func (s *CollectingSink) Messages() []string {
	return append([]string(nil), *s.messages...)
}
