// Package argsplit implements the two comma-separated splitters the core
// needs for configuration strings: the minimal "split a parenthesised
// argument list" helper the language surface exposes to callers reading a
// primitive's raw arguments, and the depth-0 argv splitter the expander
// uses to pull a compound element's actual arguments out of its
// configuration string.
//
// Both share the quoting rules of the lexer's LexConfig: balanced parens,
// single-quoted strings taken raw, double-quoted strings honouring \", \$
// and \\ escapes. Unlike LexConfig they also balance square brackets, and
// they do not treat comments specially. No third-party argv/shell-word splitter in
// the retrieved corpus matches this shape -- they all split whitespace-
// delimited shell argv, not a single comma list -- so this is hand-rolled,
// grounded directly on the language's own config-quoting rules.
package argsplit

// SplitParenList splits s -- the text already known to be the inside of a
// parenthesised argument list -- on top-level commas. This is the minimal
// helper the core's scope explicitly carves out: enough to let a caller
// read a primitive element's raw argument strings without the core
// type-checking them.
func SplitParenList(s string) []string {
	return splitTopLevelCommas(s)
}

// SplitArgs splits a compound element's configuration string into its
// actual arguments, with identical quoting rules to SplitParenList. An
// empty string yields zero arguments (not one empty argument), matching
// the common case of a compound invoked with no config at all.
func SplitArgs(s string) []string {
	if len(s) == 0 {
		return nil
	}
	return splitTopLevelCommas(s)
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	var cur []byte
	depth := 0

	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\'':
			start := i
			i++
			for i < len(s) && s[i] != '\'' {
				i++
			}
			if i < len(s) {
				i++ // consume closing quote
			}
			cur = append(cur, s[start:i]...)
			continue

		case c == '"':
			start := i
			i++
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '$' || s[i+1] == '\\') {
					i++
				}
				i++
			}
			if i < len(s) {
				i++ // consume closing quote
			}
			cur = append(cur, s[start:i]...)
			continue

		case c == '(' || c == '[':
			depth++
			cur = append(cur, c)
			i++
			continue

		case c == ')' || c == ']':
			if depth > 0 {
				depth--
			}
			cur = append(cur, c)
			i++
			continue

		case c == ',' && depth == 0:
			parts = append(parts, string(cur))
			cur = cur[:0]
			i++
			continue

		default:
			cur = append(cur, c)
			i++
		}
	}
	parts = append(parts, string(cur))
	return parts
}
