package lexer

import (
	"testing"

	"github.com/elementgraph/corelang/token"
)

func lexAll(t *testing.T, src string) ([]token.Lexeme, []string) {
	t.Helper()
	var errs []string
	lx := New("t.click", []byte(src), func(pos token.Pos, msg string) {
		errs = append(errs, msg)
	})
	var out []token.Lexeme
	for {
		lex := lx.Lex()
		out = append(out, lex)
		if lex.Kind == token.EOF {
			break
		}
	}
	return out, errs
}

func kinds(lexemes []token.Lexeme) []token.Kind {
	ks := make([]token.Kind, len(lexemes))
	for i, l := range lexemes {
		ks[i] = l.Kind
	}
	return ks
}

func TestScanBasicConnection(t *testing.T) {
	lexemes, errs := lexAll(t, `a -> b;`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := []token.Kind{token.Identifier, token.Arrow, token.Identifier, token.Semi, token.EOF}
	got := kinds(lexemes)
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kind[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestIdentifierAllowsSlashButCommentSplits(t *testing.T) {
	lexemes, _ := lexAll(t, `a/b a//comment
c`)
	if lexemes[0].Text != "a/b" {
		t.Errorf("lexemes[0].Text = %q, want a/b", lexemes[0].Text)
	}
	if lexemes[1].Text != "a" {
		t.Errorf("lexemes[1].Text = %q, want a (comment must end identifier)", lexemes[1].Text)
	}
	if lexemes[2].Text != "c" || lexemes[2].Pos.Line != 2 {
		t.Errorf("lexemes[2] = %+v, want c on line 2", lexemes[2])
	}
}

func TestReservedWordsAndVariable(t *testing.T) {
	lexemes, _ := lexAll(t, `require elementclass $x connectiontunnel`)
	want := []token.Kind{token.Require, token.ElementClass, token.Variable, token.ConnectionTunnel, token.EOF}
	got := kinds(lexemes)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kind[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if lexemes[2].Text != "x" {
		t.Errorf("variable text = %q, want x", lexemes[2].Text)
	}
}

func TestMultiCharOperators(t *testing.T) {
	lexemes, _ := lexAll(t, `:: || | ...`)
	want := []token.Kind{token.DoubleColon, token.DoubleBar, token.Bar, token.Ellipsis, token.EOF}
	got := kinds(lexemes)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kind[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLineDirectiveRewritesPosition(t *testing.T) {
	src := "a\n#line 100 \"gen.click\"\nb\n"
	lexemes, _ := lexAll(t, src)
	if lexemes[0].Pos.Line != 1 || lexemes[0].Pos.Filename != "t.click" {
		t.Errorf("lexemes[0].Pos = %+v", lexemes[0].Pos)
	}
	if lexemes[1].Pos.Line != 100 || lexemes[1].Pos.Filename != "gen.click" {
		t.Errorf("lexemes[1].Pos = %+v, want line 100 in gen.click", lexemes[1].Pos)
	}
}

func TestLineDirectiveEmptyFilenameRestoresOriginal(t *testing.T) {
	src := "#line 5 \"other.click\"\na\n#line 9 \"\"\nb\n"
	lexemes, _ := lexAll(t, src)
	if lexemes[0].Pos.Filename != "other.click" || lexemes[0].Pos.Line != 5 {
		t.Errorf("lexemes[0].Pos = %+v", lexemes[0].Pos)
	}
	if lexemes[1].Pos.Filename != "t.click" || lexemes[1].Pos.Line != 9 {
		t.Errorf("lexemes[1].Pos = %+v, want original filename restored at line 9", lexemes[1].Pos)
	}
}

func TestPushbackRoundTrips(t *testing.T) {
	lx := New("t.click", []byte("a b c"), nil)
	first := lx.Lex()
	second := lx.Lex()
	lx.Unlex(second)
	lx.Unlex(first)
	if got := lx.Lex(); got.Text != first.Text {
		t.Errorf("Lex() after Unlex = %q, want %q", got.Text, first.Text)
	}
	if got := lx.Lex(); got.Text != second.Text {
		t.Errorf("Lex() after Unlex = %q, want %q", got.Text, second.Text)
	}
}

func TestPushbackOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pushing more than pushback capacity")
		}
	}()
	lx := New("t.click", []byte("a b c d e f"), nil)
	var saved []token.Lexeme
	for i := 0; i < pushbackCapacity+1; i++ {
		saved = append(saved, lx.Lex())
	}
	for i := len(saved) - 1; i >= 0; i-- {
		lx.Unlex(saved[i])
	}
}

func TestLexConfigStopsAtBalancingParenAndRespectsQuotesAndComments(t *testing.T) {
	lx := New("t.click", []byte(`1, "a)b", /* ) */ (nested), 2)rest`), nil)
	got := lx.LexConfig()
	want := `1, "a)b", /* ) */ (nested), 2`
	if got != want {
		t.Errorf("LexConfig() = %q, want %q", got, want)
	}
	next := lx.Lex()
	if next.Kind != token.RParen {
		t.Errorf("next token after LexConfig = %v, want RParen (not consumed)", next.Kind)
	}
}

func TestUnexpectedCharacterResynchronizes(t *testing.T) {
	lexemes, errs := lexAll(t, "a ~ b")
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly one lexical error", errs)
	}
	if lexemes[0].Text != "a" || lexemes[1].Text != "b" {
		t.Errorf("lexemes = %+v, want scanning to resync past the bad character", lexemes)
	}
}
