// Package main implements graphc, a minimal demo driver for the corelang
// compiler core. It exists to prove the library is wired correctly end to
// end -- CLI/file-IO is out of the core's scope -- not as a product surface.
package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/elementgraph/corelang"
	"github.com/elementgraph/corelang/lexer"
	"github.com/elementgraph/corelang/token"
)

var (
	dumpTokens  = flag.Bool("dump-tokens", false, "print the lexeme stream and exit")
	dumpClasses = flag.Bool("dump-classes", false, "after compiling, print a note that the class registry is internal to the library (no dump is printed)")
	requireWord = flag.StringArray("require", nil, "class name to satisfy via the trivial in-memory factory lookup (repeatable)")
)

const version = "0.1.0-dev"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "graphc %s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: graphc [options] <file.graph>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "error: no input file")
		flag.Usage()
		os.Exit(1)
	}
	filename := args[0]

	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *dumpTokens {
		os.Exit(runDumpTokens(filename, src))
	}

	os.Exit(runCompile(filename, src, *requireWord, *dumpClasses))
}

// runDumpTokens scans src and prints every lexeme with its landmark.
func runDumpTokens(filename string, src []byte) int {
	var errs []string
	lx := lexer.New(filename, src, func(pos token.Pos, msg string) {
		errs = append(errs, fmt.Sprintf("%s: %s", pos, msg))
	})

	fmt.Printf("%-24s %-14s %s\n", "POSITION", "TOKEN", "TEXT")
	for {
		lex := lx.Lex()
		fmt.Printf("%-24s %-14s %s\n", lex.Pos.String(), lex.Kind.String(), formatText(lex.Text))
		if lex.Kind == token.EOF {
			break
		}
	}

	if len(errs) > 0 {
		fmt.Println()
		fmt.Println("Errors:")
		for _, e := range errs {
			fmt.Printf("  %s\n", e)
		}
		return 1
	}
	return 0
}

func formatText(s string) string {
	if s == "" {
		return `""`
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// runCompile compiles src through corelang.Compile against a trivial
// in-memory ElementFactory/Router pair that resolves any class name listed
// in knownClasses and prints every AddElement/AddConnection/AddRequirement
// call it receives.
func runCompile(filename string, src []byte, knownClasses []string, wantDumpClasses bool) int {
	router := &printingRouter{}
	sink := corelang.NewCollectingSink()
	lookup := trivialLookup{classes: knownClasses}

	ok := corelang.Compile(src, filename, lookup, router, sink, nil)

	for _, msg := range sink.Messages() {
		fmt.Println(msg)
	}
	if err := sink.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	if wantDumpClasses {
		fmt.Println("(class dump not available after Compile: the registry is internal to the library)")
	}

	if !ok {
		return 1
	}
	return 0
}

type trivialInstance struct{ class string }

type trivialFactory struct{ class string }

func (f trivialFactory) ClassName() string    { return f.class }
func (f trivialFactory) Clone() any           { return trivialInstance{class: f.class} }
func (f trivialFactory) Cast(name string) any { return nil }

type trivialLookup struct{ classes []string }

func (l trivialLookup) LookupFactory(name string) (corelang.ElementFactory, bool) {
	for _, c := range l.classes {
		if c == name {
			return trivialFactory{class: name}, true
		}
	}
	return nil, false
}

type printingRouter struct {
	nextIdx int
}

func (r *printingRouter) AddElement(class corelang.ElementFactory, name, config, landmark string) int {
	idx := r.nextIdx
	r.nextIdx++
	fmt.Printf("element %d: %s :: %s(%s) @ %s\n", idx, name, class.ClassName(), config, landmark)
	return idx
}

func (r *printingRouter) AddConnection(fromIdx, fromPort, toIdx, toPort int) {
	fmt.Printf("connection: [%d]%d -> [%d]%d\n", fromIdx, fromPort, toIdx, toPort)
}

func (r *printingRouter) AddRequirement(word string) {
	fmt.Printf("require: %s\n", word)
}
