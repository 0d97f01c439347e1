// Package environment implements VariableEnvironment: the textual
// substitution context formal compound parameters are interpolated
// through during expansion.
package environment

import "strings"

// frame binds one compound invocation's formals to their actual argument
// strings, tagged with the nesting depth at which the formals are visible.
type frame struct {
	depth   int
	formals []string
	actuals []string
}

// Environment is a stack of frames. Interpolate resolves "$name" against
// the innermost frame that declares it, matching normal lexical shadowing.
type Environment struct {
	frames []frame
}

// New returns the empty (depth-0, no formals) environment.
func New() *Environment {
	return &Environment{}
}

// Clone returns an independent copy whose frame stack can be mutated
// (truncated, pushed) without affecting the receiver.
func (e *Environment) Clone() *Environment {
	frames := make([]frame, len(e.frames))
	for i, f := range e.frames {
		frames[i] = frame{
			depth:   f.depth,
			formals: append([]string(nil), f.formals...),
			actuals: append([]string(nil), f.actuals...),
		}
	}
	return &Environment{frames: frames}
}

// LimitDepth truncates away any frame whose depth is >= limit, modelling
// the textual scoping of formals: a compound nested inside another cannot
// see formals bound at or below its own declaration depth once expansion
// crosses back out to a sibling.
func (e *Environment) LimitDepth(limit int) {
	i := len(e.frames)
	for i > 0 && e.frames[i-1].depth >= limit {
		i--
	}
	e.frames = e.frames[:i]
}

// Push adds a new frame binding formals to actuals at the given depth.
// len(formals) must equal len(actuals).
func (e *Environment) Push(depth int, formals, actuals []string) {
	e.frames = append(e.frames, frame{depth: depth, formals: formals, actuals: actuals})
}

// lookup searches frames innermost-first for name, returning its actual
// argument string.
func (e *Environment) lookup(name string) (string, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		f := e.frames[i]
		for j, formal := range f.formals {
			if formal == name {
				return f.actuals[j], true
			}
		}
	}
	return "", false
}

// Interpolate substitutes every "$name" in s with its bound actual
// argument. "$$" is a literal "$". An unknown "$name" is left verbatim,
// including its leading "$". This is purely textual: no expression
// language, no recursion into the substituted text.
func (e *Environment) Interpolate(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] != '$' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '$' {
			b.WriteByte('$')
			i++
			continue
		}
		j := i + 1
		for j < len(s) && isNameByte(s[j]) {
			j++
		}
		if j == i+1 {
			// lone '$' not followed by a name character: left verbatim.
			b.WriteByte('$')
			continue
		}
		name := s[i+1 : j]
		if actual, ok := e.lookup(name); ok {
			b.WriteString(actual)
		} else {
			b.WriteString(s[i:j])
		}
		i = j - 1
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' || c == '@' || c == '/' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
