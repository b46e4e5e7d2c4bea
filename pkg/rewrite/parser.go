package rewrite

import (
	"strconv"
	"strings"
)

// Parse performs a lossless line-oriented translation of rewrite-directive
// text into a Document. Parsing never fails: ill-formed lines become
// NodeParseError nodes and parsing continues on the next line.
func Parse(text string) Document {
	lines := splitLines(text)
	doc := Document{Nodes: make([]Node, 0, len(lines))}

	for i, raw := range lines {
		doc.Nodes = append(doc.Nodes, parseLine(i+1, raw))
	}

	return doc
}

// splitLines splits on \n or \r\n without losing a trailing empty line's
// accounting - mirrors how Apache treats each physical line as one
// directive.
func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, "\n")
}

func parseLine(lineNo int, raw string) Node {
	trimmed := strings.TrimSpace(raw)

	if trimmed == "" {
		return Node{Kind: NodeBlank, LineNo: lineNo, RawLine: raw}
	}

	if trimmed[0] == '#' {
		return Node{
			Kind:        NodeComment,
			LineNo:      lineNo,
			RawLine:     raw,
			CommentText: strings.TrimSpace(trimmed[1:]),
		}
	}

	directive, rest := splitFirstToken(trimmed)
	upper := strings.ToUpper(directive)

	switch upper {
	case "REWRITEENGINE":
		return parseEngineToggle(lineNo, raw, rest)
	case "REWRITEBASE":
		return parseBase(lineNo, raw, rest)
	case "REWRITECOND":
		return parseCond(lineNo, raw, rest)
	case "REWRITERULE":
		return parseRule(lineNo, raw, rest)
	default:
		return Node{
			Kind:          NodeUnknown,
			LineNo:        lineNo,
			RawLine:       raw,
			DirectiveName: directive,
			Args:          strings.TrimSpace(rest),
		}
	}
}

func splitFirstToken(s string) (token string, rest string) {
	s = strings.TrimLeft(s, " \t")
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

func parseEngineToggle(lineNo int, raw, rest string) Node {
	arg := strings.TrimSpace(rest)
	switch strings.ToLower(arg) {
	case "on":
		return Node{Kind: NodeEngineToggle, LineNo: lineNo, RawLine: raw, EngineOn: true}
	case "off":
		return Node{Kind: NodeEngineToggle, LineNo: lineNo, RawLine: raw, EngineOn: false}
	default:
		return Node{Kind: NodeParseError, LineNo: lineNo, RawLine: raw, Message: "RewriteEngine requires 'on' or 'off'"}
	}
}

func parseBase(lineNo int, raw, rest string) Node {
	arg := strings.TrimSpace(rest)
	if arg == "" {
		return Node{Kind: NodeParseError, LineNo: lineNo, RawLine: raw, Message: "RewriteBase requires a base path argument"}
	}
	return Node{Kind: NodeBase, LineNo: lineNo, RawLine: raw, BasePath: arg}
}

func parseCond(lineNo int, raw, rest string) Node {
	tokens := splitArgs(rest)
	if len(tokens) < 2 {
		return Node{Kind: NodeParseError, LineNo: lineNo, RawLine: raw, Message: "RewriteCond requires a test string and a condition pattern"}
	}

	testString := tokens[0]
	pattern := tokens[1]

	negated := false
	if strings.HasPrefix(pattern, "!") {
		negated = true
		pattern = pattern[1:]
	}

	node := Node{
		Kind:        NodeCond,
		LineNo:      lineNo,
		RawLine:     raw,
		TestString:  testString,
		CondPattern: pattern,
		Negated:     negated,
	}

	if len(tokens) >= 3 {
		for _, flag := range splitFlagList(tokens[2]) {
			switch strings.ToUpper(flag) {
			case "NC", "NOCASE":
				node.CondNoCase = true
			case "OR", "ORNEXT":
				node.OrNext = true
			}
		}
	}

	return node
}

func parseRule(lineNo int, raw, rest string) Node {
	tokens := splitArgs(rest)
	if len(tokens) < 2 {
		return Node{Kind: NodeParseError, LineNo: lineNo, RawLine: raw, Message: "RewriteRule requires a pattern and a substitution"}
	}

	node := Node{
		Kind:         NodeRule,
		LineNo:       lineNo,
		RawLine:      raw,
		Pattern:      tokens[0],
		Substitution: tokens[1],
	}

	if len(tokens) >= 3 {
		node.Flags = parseRuleFlags(splitFlagList(tokens[2]))
	}

	return node
}

// splitFlagList strips an optional enclosing '[' ']' pair and splits the
// remainder on commas.
func splitFlagList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseRuleFlags(flags []string) RuleFlags {
	var rf RuleFlags

	for _, f := range flags {
		name, value, hasValue := strings.Cut(f, "=")
		upperName := strings.ToUpper(name)

		switch upperName {
		case "L", "LAST":
			rf.Last = true
		case "R", "REDIRECT":
			rf.Redirect = redirectCode(value, hasValue)
		case "NC", "NOCASE":
			rf.NoCase = true
		case "QSA", "QSAPPEND":
			rf.QSAppend = true
		case "QSD", "QSDISCARD":
			rf.QSDiscard = true
		case "NE", "NOESCAPE":
			rf.NoEscape = true
		case "N", "NEXT":
			rf.Next = true
		case "END":
			rf.End = true
		case "F", "FORBIDDEN":
			rf.Forbidden = true
		case "G", "GONE":
			rf.Gone = true
		case "C", "CHAIN":
			rf.Chain = true
		case "S", "SKIP":
			rf.Skip = skipCount(value, hasValue)
		case "PT", "PASSTHROUGH":
			rf.PassThrough = true
		case "P", "PROXY":
			rf.Proxy = true
		case "T", "TYPE":
			if hasValue {
				v := value
				rf.Type = &v
			}
		case "E":
			if hasValue {
				rf.Env = append(rf.Env, value)
			}
		case "CO":
			if hasValue {
				rf.Cookie = append(rf.Cookie, value)
			}
		}
	}

	return rf
}

func redirectCode(value string, hasValue bool) *int {
	if !hasValue || value == "" {
		v := 302
		return &v
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		n = 302
	}
	return &n
}

func skipCount(value string, hasValue bool) *int {
	if !hasValue || value == "" {
		v := 1
		return &v
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		n = 1
	}
	return &n
}

// splitArgs splits s on unquoted whitespace, honoring matched single- and
// double-quote pairs. Quote characters are consumed but their enclosed
// whitespace is preserved as a single token. Backslash escapes inside
// quotes are left as literal characters.
func splitArgs(s string) []string {
	var tokens []string
	var current strings.Builder
	inToken := false
	var quote byte

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if quote != 0 {
			if c == quote {
				quote = 0
				continue
			}
			current.WriteByte(c)
			inToken = true
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
			inToken = true
		case c == ' ' || c == '\t':
			flush()
		default:
			current.WriteByte(c)
			inToken = true
		}
	}
	flush()

	return tokens
}
