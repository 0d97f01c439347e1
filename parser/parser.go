// Package parser implements the top-down recursive-descent parser: it
// turns a lexeme stream into a per-scope provisional graph (a
// graphmodel.ScopeBuilder), registering class records into a
// classes.ClassRegistry and tunnel endpoints into the scope (through
// tunnel.AddTunnel) as it goes.
//
// Grounded on this codebase's syntax.Parser (the got/want/advance
// token-navigation idiom and its statement-boundary error recovery),
// generalised from a general-purpose-language grammar to this language's
// much smaller statement set.
package parser

import (
	"strconv"
	"strings"

	"github.com/elementgraph/corelang/argsplit"
	"github.com/elementgraph/corelang/classes"
	"github.com/elementgraph/corelang/graphmodel"
	"github.com/elementgraph/corelang/lexer"
	"github.com/elementgraph/corelang/token"
	"github.com/elementgraph/corelang/tunnel"
)

// ErrorSink is the diagnostic surface this package needs. This package
// already depends on classes for the registry itself, so its sink type
// is classes.ErrorSink directly rather than a separately-declared
// lookalike -- the two interfaces' Context methods would otherwise
// return distinct named types and fail to satisfy one another.
type ErrorSink = classes.ErrorSink

// Parser holds one token of lookahead (p.tok/p.lit/p.pos) over a Lexer,
// plus the class registry and current scope builder it threads
// statements into.
type Parser struct {
	lx          *lexer.Lexer
	reg         *classes.ClassRegistry
	sink        ErrorSink
	requireHook func(word, landmark string)

	tok token.Kind
	lit string
	pos token.Pos

	scope *graphmodel.ScopeBuilder
	top   *graphmodel.ScopeBuilder

	anonClassCounter int
}

// New creates a Parser over src, using reg as the class registry (so a
// caller can pre-populate it with primitive classes before parsing) and
// reporting through sink. requireHook, if non-nil, is called once per
// word named by a top-level require(...) statement.
func New(filename string, src []byte, reg *classes.ClassRegistry, sink ErrorSink, requireHook func(word, landmark string)) *Parser {
	p := &Parser{reg: reg, sink: sink, requireHook: requireHook}
	p.lx = lexer.New(filename, src, func(pos token.Pos, msg string) {
		sink.Error(pos.String(), "%s", msg)
	})
	p.next()
	return p
}

// Parse consumes the entire source and returns the populated top-level
// scope builder.
func (p *Parser) Parse() *graphmodel.ScopeBuilder {
	p.scope = graphmodel.NewScopeBuilder(0, 0)
	p.top = p.scope
	for p.tok != token.EOF {
		p.parseStatement()
	}
	return p.top
}

// ----------------------------------------------------------------------------
// Token navigation

func (p *Parser) next() {
	lex := p.lx.Lex()
	p.tok = lex.Kind
	p.lit = lex.Text
	p.pos = lex.Pos
}

func (p *Parser) got(k token.Kind) bool {
	if p.tok == k {
		p.next()
		return true
	}
	return false
}

func (p *Parser) want(k token.Kind) {
	if !p.got(k) {
		p.syntaxError("expected " + k.String())
		p.advance()
	}
}

func (p *Parser) currentLandmark() string {
	return p.pos.String()
}

func (p *Parser) syntaxError(msg string) {
	p.sink.Error(p.pos.String(), "%s", msg)
}

var syncKinds = map[token.Kind]bool{
	token.Semi:     true,
	token.RBrace:   true,
	token.DoubleBar: true,
	token.EOF:      true,
}

// advance skips to the next statement boundary for error recovery,
// consuming a trailing ';' but leaving '}'/'||'/EOF in place for the
// enclosing loop to observe.
func (p *Parser) advance() {
	for !syncKinds[p.tok] {
		p.next()
	}
	if p.tok == token.Semi {
		p.next()
	}
}

func (p *Parser) startsElem() bool {
	return p.tok == token.Identifier || p.tok == token.LBrace
}

func (p *Parser) startsConnectionChain() bool {
	return p.startsElem() || p.tok == token.LBracket
}

// ----------------------------------------------------------------------------
// Statements

func (p *Parser) parseStatement() {
	switch {
	case p.tok == token.Semi:
		p.next()
	case p.tok == token.ElementClass:
		p.parseElementClassDecl()
	case p.tok == token.ConnectionTunnel:
		p.parseTunnelDecl()
	case p.tok == token.Require:
		p.parseRequireDecl()
	case p.startsConnectionChain():
		p.parseConnectionChain()
		p.want(token.Semi)
	default:
		p.syntaxError("unexpected token")
		p.advance()
	}
}

// parseElementClassDecl parses 'elementclass' ident ('{' compound_body
// '}' | ident).
func (p *Parser) parseElementClassDecl() {
	landmark := p.currentLandmark()
	p.next() // 'elementclass'

	if p.tok != token.Identifier {
		p.syntaxError("expected class name after elementclass")
		p.advance()
		return
	}
	name := p.lit
	p.next()

	if _, exists := p.scope.FindElement(name); exists {
		p.sink.Error(landmark, "%q is already declared as an element name", name)
	}

	switch p.tok {
	case token.LBrace:
		p.next()
		extension := false
		if p.tok == token.Ellipsis {
			p.next()
			if !p.got(token.DoubleBar) {
				p.syntaxError("expected '||' after '...'")
			}
			extension = true
		}
		if extension {
			if _, ok := p.reg.Lookup(name); !ok {
				p.sink.Error(landmark, "extending unknown class %q", name)
				p.reg.Add(name, classes.ClassRecord{Kind: classes.KindError, Landmark: landmark})
			}
		}
		ids := p.parseCompoundBodyGroup(name, landmark, extension)
		classes.CheckDuplicates(p.reg, ids, p.sink)

	case token.Identifier:
		targetName := p.lit
		p.next()
		targetID := p.reg.Force(targetName, landmark, p.sink)
		p.reg.Add(name, classes.ClassRecord{Kind: classes.KindSynonym, Landmark: landmark, SynonymTarget: targetID})

	default:
		p.syntaxError("expected '{' or a class name after elementclass " + name)
		p.advance()
	}
}

// parseTunnelDecl parses 'connectiontunnel' ident '->' ident (',' ident
// '->' ident)*.
func (p *Parser) parseTunnelDecl() {
	landmark := p.currentLandmark()
	p.next() // 'connectiontunnel'

	for {
		if p.tok != token.Identifier {
			p.syntaxError("expected tunnel endpoint name")
			p.advance()
			return
		}
		nameIn := p.lit
		p.next()
		p.want(token.Arrow)
		if p.tok != token.Identifier {
			p.syntaxError("expected tunnel endpoint name")
			p.advance()
			return
		}
		nameOut := p.lit
		p.next()

		tunnel.AddTunnel(p.scope, p.reg, nameIn, nameOut, landmark, p.sink)

		if !p.got(token.Comma) {
			break
		}
	}
	p.want(token.Semi)
}

// parseRequireDecl parses 'require' '(' cfg ')'.
func (p *Parser) parseRequireDecl() {
	landmark := p.currentLandmark()
	p.next() // 'require'

	if p.tok != token.LParen {
		p.syntaxError("expected '(' after require")
		p.advance()
		return
	}
	cfg, ok := p.parseConfigParen()
	if !ok {
		return
	}
	for _, word := range argsplit.SplitParenList(cfg) {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		p.scope.Requirements = append(p.scope.Requirements, word)
		if p.requireHook != nil {
			p.requireHook(word, landmark)
		}
	}
	p.want(token.Semi)
}

// ----------------------------------------------------------------------------
// Connections

// parseConnectionChain parses (port? elem) ('->' port? elem)*, a leading
// bracket before the first element (no preceding element to attach to)
// and a trailing bracket after the last (no following element to attach
// to) are both reported as errors but otherwise ignored.
func (p *Parser) parseConnectionChain() {
	if p.tok == token.LBracket {
		lm := p.currentLandmark()
		p.parsePortBracket()
		p.sink.Error(lm, "leading input port without a preceding element")
	}

	idx, ok := p.parseElemRef()
	if !ok {
		return
	}
	outPort, outExplicit := p.parsePortOrZero()

	for p.tok == token.Arrow {
		p.next()
		inPort, _ := p.parsePortOrZero()

		if !p.startsElem() {
			p.syntaxError("expected element after '->'")
			p.advance()
			return
		}
		nextIdx, ok := p.parseElemRef()
		if !ok {
			return
		}
		p.scope.AddConnection(graphmodel.Port{Element: idx, Index: outPort}, graphmodel.Port{Element: nextIdx, Index: inPort})

		idx = nextIdx
		outPort, outExplicit = p.parsePortOrZero()
	}

	if outExplicit {
		p.sink.Error(p.scope.Elements[idx].Landmark, "trailing output port without a following element")
	}
}

func (p *Parser) parsePortBracket() int {
	p.next() // consume '['
	if p.tok != token.Identifier {
		p.syntaxError("expected port number")
		return 0
	}
	n, err := strconv.Atoi(p.lit)
	if err != nil || n < 0 {
		p.syntaxError("port index must be a non-negative integer")
		n = 0
	}
	p.next()
	p.want(token.RBracket)
	return n
}

func (p *Parser) parsePortOrZero() (int, bool) {
	if p.tok != token.LBracket {
		return 0, false
	}
	return p.parsePortBracket(), true
}

// ----------------------------------------------------------------------------
// Elements

// parseElemRef parses one elem production and returns its index in the
// current scope.
func (p *Parser) parseElemRef() (int, bool) {
	switch p.tok {
	case token.LBrace:
		return p.parseInlineClassElem()
	case token.Identifier:
		return p.parseIdentElem()
	default:
		p.syntaxError("expected element")
		return -1, false
	}
}

// parseInlineClassElem parses '{' compound_body '}' ('(' cfg ')')?: an
// anonymous compound class defined and instantiated in place.
func (p *Parser) parseInlineClassElem() (int, bool) {
	landmark := p.currentLandmark()
	p.next() // '{'

	className := p.nextAnonymousClassName()
	ids := p.parseCompoundBodyGroup(className, landmark, false)
	classes.CheckDuplicates(p.reg, ids, p.sink)
	classID := ids[len(ids)-1]

	cfg, _ := p.parseConfigParen()

	name := p.scope.NextAnonymousName(className)
	idx := p.scope.AddElement(graphmodel.ElementRecord{Name: name, ClassID: classID, Config: cfg, Landmark: landmark})
	return idx, true
}

// parseIdentElem parses ident ('(' cfg ')')? | declaration, dispatching
// on whether a ',' or '::' follows the first name.
func (p *Parser) parseIdentElem() (int, bool) {
	landmark := p.currentLandmark()
	firstName := p.lit
	p.next()

	if p.tok == token.Comma || p.tok == token.DoubleColon {
		names := []string{firstName}
		for p.tok == token.Comma {
			p.next()
			if p.tok != token.Identifier {
				p.syntaxError("expected name in declaration list")
				return -1, false
			}
			names = append(names, p.lit)
			p.next()
		}
		if !p.got(token.DoubleColon) {
			p.syntaxError("expected '::'")
			return -1, false
		}
		return p.parseDeclarationRHS(names, landmark)
	}

	if idx, ok := p.scope.FindElement(firstName); ok {
		if p.tok == token.LParen {
			lm := p.currentLandmark()
			p.parseConfigParen()
			p.sink.Error(lm, "unexpected configuration on reference to element %q", firstName)
		}
		return idx, true
	}

	classID := p.reg.Force(firstName, landmark, p.sink)
	cfg, _ := p.parseConfigParen()
	name := p.scope.NextAnonymousName(firstName)
	idx := p.scope.AddElement(graphmodel.ElementRecord{Name: name, ClassID: classID, Config: cfg, Landmark: landmark})
	return idx, true
}

// parseDeclarationRHS parses the '::' (ident | '{' compound_body '}')
// ('(' cfg ')')? tail of a declaration, binding every name in names to
// the resolved class. Returns the index of the last declared element (the
// one usable as this position's elem when the declaration sits inline in
// a connection chain).
func (p *Parser) parseDeclarationRHS(names []string, landmark string) (int, bool) {
	var classID int
	switch p.tok {
	case token.LBrace:
		p.next()
		className := p.nextAnonymousClassName()
		extension := false
		if p.tok == token.Ellipsis {
			p.next()
			p.got(token.DoubleBar)
			extension = true
		}
		ids := p.parseCompoundBodyGroup(className, landmark, extension)
		classes.CheckDuplicates(p.reg, ids, p.sink)
		classID = ids[len(ids)-1]

	case token.Identifier:
		className := p.lit
		p.next()
		classID = p.reg.Force(className, landmark, p.sink)

	default:
		p.syntaxError("expected class name or '{' after '::'")
		return -1, false
	}

	cfg, _ := p.parseConfigParen()

	lastIdx := -1
	for _, nm := range names {
		if _, exists := p.scope.FindElement(nm); exists {
			p.sink.Error(landmark, "redeclaration of element %q", nm)
			continue
		}
		if _, isClass := p.reg.Lookup(nm); isClass {
			p.sink.Error(landmark, "%q is a class name, cannot be used as an element name", nm)
			continue
		}
		lastIdx = p.scope.AddElement(graphmodel.ElementRecord{Name: nm, ClassID: classID, Config: cfg, Landmark: landmark})
	}
	return lastIdx, lastIdx != -1
}

func (p *Parser) nextAnonymousClassName() string {
	for {
		p.anonClassCounter++
		candidate := "@Class" + strconv.Itoa(p.anonClassCounter)
		if _, exists := p.reg.Lookup(candidate); !exists {
			return candidate
		}
	}
}

// ----------------------------------------------------------------------------
// Compound bodies

// parseFormals parses '$'ident (',' '$'ident)*.
func (p *Parser) parseFormals() []string {
	var formals []string
	for p.tok == token.Variable {
		formals = append(formals, p.lit)
		p.next()
		if !p.got(token.Comma) {
			break
		}
	}
	return formals
}

// parseCompoundBodyGroup parses the body of an already-opened '{' (the
// opening brace, and any leading "... ||" sigil, have already been
// consumed by the caller, which passes the resulting chainFirst flag):
// compound_body := (formals '|')? (statement)* ('||' compound_body)?,
// closing on the final '}'. It returns the ids of every ClassRecord
// created, oldest first.
func (p *Parser) parseCompoundBodyGroup(name, landmark string, chainFirst bool) []int {
	var ids []int
	first := true

	for {
		comp := &classes.Compound{Name: name, Landmark: landmark, Depth: p.scope.CompoundDepth + 1}
		if p.tok == token.Variable {
			comp.Formals = p.parseFormals()
			p.want(token.Bar)
		}

		chain := chainFirst || !first
		id := p.reg.AddCompound(name, comp, chain)
		ids = append(ids, id)

		outerScope := p.scope
		outerCheckpoint := p.reg.Checkpoint()
		p.scope = graphmodel.NewScopeBuilder(comp.Depth, 2)
		tunnelClassID := p.reg.TunnelClassID()
		p.scope.AddElement(graphmodel.ElementRecord{Name: "input", ClassID: tunnelClassID, Landmark: landmark})
		p.scope.AddElement(graphmodel.ElementRecord{Name: "output", ClassID: tunnelClassID, Landmark: landmark})

		for p.tok != token.RBrace && p.tok != token.DoubleBar && p.tok != token.EOF {
			p.parseStatement()
		}

		comp.Elements = p.scope.Elements
		comp.Connections = p.scope.Connections
		comp.Finish(p.sink)

		p.reg.Restore(outerCheckpoint)
		p.scope = outerScope

		first = false
		if p.tok == token.DoubleBar {
			p.next()
			continue
		}
		break
	}

	p.want(token.RBrace)
	return ids
}

// ----------------------------------------------------------------------------
// Configuration blobs

// parseConfigParen parses an optional '(' cfg ')', returning ("", false)
// if no '(' is present. Config text is read directly off the lexer's raw
// source via LexConfig, bypassing the normal token stream entirely: the
// lexer's raw cursor sits just past '(' the moment p.tok becomes LParen
// (scanning that single-character token already consumed it), so
// LexConfig must run before the parser's lookahead is advanced past it.
func (p *Parser) parseConfigParen() (string, bool) {
	if p.tok != token.LParen {
		return "", false
	}
	cfg := p.lx.LexConfig()
	p.next()
	if p.tok != token.RParen {
		p.syntaxError("expected ')'")
		return cfg, false
	}
	p.next()
	return cfg, true
}
