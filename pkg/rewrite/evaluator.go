package rewrite

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// evalState is the evaluator's mutable, per-call state. A fresh state is
// built for every Evaluate call; nothing persists across calls.
type evalState struct {
	currentPath string
	queryString string
	scheme      string
	host        string

	env map[string]string

	ruleCaptures [10]string
	condCaptures [10]string

	rewriteBase string

	engineEnabled bool
	stopped       bool
	hardStop      bool
	redirect      *int
	iterations    int
}

func newState(u *url.URL, serverVariables map[string]string) *evalState {
	path := strings.TrimPrefix(u.Path, "/")
	query := u.RawQuery

	env := make(map[string]string, len(serverVariables)+2)
	for k, v := range serverVariables {
		env[k] = v
	}

	requestURI := "/" + path
	if query != "" {
		requestURI += "?" + query
	}
	env["REQUEST_URI"] = requestURI
	env["QUERY_STRING"] = query

	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}

	return &evalState{
		currentPath:   path,
		queryString:   query,
		scheme:        scheme,
		host:          u.Host,
		env:           env,
		rewriteBase:   "/",
		engineEnabled: false,
	}
}

// runDocument walks doc once, emitting one trace entry per non-blank node.
func runDocument(doc Document, st *evalState, limits Limits) Output {
	var trace []TraceLine
	var pending []int
	limitExceeded := false

nodeLoop:
	for i := range doc.Nodes {
		node := &doc.Nodes[i]

		switch node.Kind {
		case NodeBlank:
			continue nodeLoop

		case NodeCond:
			pending = append(pending, i)
			continue nodeLoop

		case NodeRule:
			condLines, satisfied := evaluateCondGroupForRule(st, doc.Nodes, pending, limits)
			trace = append(trace, condLines...)
			pending = nil

			trace = append(trace, evaluateRule(st, node, satisfied, limits))

			if st.iterations > limits.MaxIterations {
				limitExceeded = true
				break nodeLoop
			}

		default:
			if len(pending) > 0 {
				trace = append(trace, evaluateCondGroupUnbound(st, doc.Nodes, pending, limits)...)
				pending = nil
			}
			trace = append(trace, evaluateOtherNode(st, node))
		}
	}

	if !limitExceeded && len(pending) > 0 {
		trace = append(trace, evaluateCondGroupUnbound(st, doc.Nodes, pending, limits)...)
	}

	return finalizeOutput(st, trace, limitExceeded)
}

func finalizeOutput(st *evalState, trace []TraceLine, limitExceeded bool) Output {
	finalURL := st.scheme + "://" + st.host + "/" + st.currentPath
	if st.queryString != "" {
		finalURL += "?" + st.queryString
	}

	status := StatusOK
	var statusCode *int
	switch {
	case st.redirect != nil:
		status = StatusRedirect
		code := *st.redirect
		statusCode = &code
	case limitExceeded:
		status = StatusLimitExceeded
	}

	return Output{
		FinalURL:   finalURL,
		Status:     status,
		StatusCode: statusCode,
		Trace:      trace,
	}
}

func traceLine(node *Node, reached, met, valid bool, message *string) TraceLine {
	return TraceLine{
		LineNo:  node.LineNo,
		RawLine: strings.TrimSpace(node.RawLine),
		Valid:   valid,
		Reached: reached,
		Met:     met,
		Message: message,
	}
}

func evaluateOtherNode(st *evalState, node *Node) TraceLine {
	switch node.Kind {
	case NodeComment:
		return traceLine(node, true, true, true, nil)

	case NodeEngineToggle:
		st.engineEnabled = node.EngineOn
		return traceLine(node, true, true, true, nil)

	case NodeBase:
		if st.engineEnabled {
			st.rewriteBase = node.BasePath
			return traceLine(node, true, true, true, nil)
		}
		return traceLine(node, false, true, true, nil)

	case NodeUnknown:
		msg := fmt.Sprintf("Unsupported directive: %s", node.DirectiveName)
		return traceLine(node, st.engineEnabled, false, true, &msg)

	case NodeParseError:
		msg := node.Message
		return traceLine(node, true, false, false, &msg)

	default:
		return traceLine(node, false, false, true, nil)
	}
}

// evaluateCondGroupForRule evaluates the conditions immediately preceding a
// rule and reports whether the group is satisfied. An empty group is
// vacuously satisfied.
func evaluateCondGroupForRule(st *evalState, nodes []Node, pending []int, limits Limits) ([]TraceLine, bool) {
	if len(pending) == 0 {
		return nil, true
	}
	if !st.engineEnabled || st.stopped {
		return unreachedCondLines(nodes, pending), false
	}
	return evaluateConditionGroup(st, nodes, pending, limits, true)
}

// evaluateCondGroupUnbound evaluates a run of conditions with no following
// rule. They are discarded for decision purposes - no rule consumes the
// result - but still produce trace entries, and do not update condCaptures
// since there is no rule whose substitution or subsequent conditions would
// observe them.
func evaluateCondGroupUnbound(st *evalState, nodes []Node, pending []int, limits Limits) []TraceLine {
	if !st.engineEnabled || st.stopped {
		return unreachedCondLines(nodes, pending)
	}
	lines, _ := evaluateConditionGroup(st, nodes, pending, limits, false)
	return lines
}

func unreachedCondLines(nodes []Node, pending []int) []TraceLine {
	lines := make([]TraceLine, len(pending))
	for i, idx := range pending {
		lines[i] = traceLine(&nodes[idx], false, false, true, nil)
	}
	return lines
}

// evaluateConditionGroup implements the OR-chain-joined-by-AND semantics:
// the group is a sequence of maximal OR chains, each satisfied if any
// member matches (short-circuiting remaining members of that chain), and
// the group is satisfied iff every chain is.
func evaluateConditionGroup(st *evalState, nodes []Node, indices []int, limits Limits, updateCaptures bool) ([]TraceLine, bool) {
	lines := make([]TraceLine, len(indices))
	groupSatisfied := true
	var lastNonEmptyCaptures []string

	i := 0
	for i < len(indices) {
		j := i
		for j < len(indices)-1 && nodes[indices[j]].OrNext {
			j++
		}

		chainSatisfied := false
		shortCircuited := false
		for k := i; k <= j; k++ {
			node := &nodes[indices[k]]
			if shortCircuited {
				lines[k] = traceLine(node, false, false, true, nil)
				continue
			}

			met, captures, valid, msg := evalSingleCond(st, node, limits)
			lines[k] = traceLine(node, true, met, valid, msg)

			if met {
				chainSatisfied = true
				shortCircuited = true
				if len(captures) > 0 {
					lastNonEmptyCaptures = captures
				}
			}
		}

		if !chainSatisfied {
			groupSatisfied = false
		}

		i = j + 1
	}

	if updateCaptures && groupSatisfied && lastNonEmptyCaptures != nil {
		for n := 0; n < 10 && n < len(lastNonEmptyCaptures); n++ {
			st.condCaptures[n] = lastNonEmptyCaptures[n]
		}
	}

	return lines, groupSatisfied
}

func evalSingleCond(st *evalState, node *Node, limits Limits) (met bool, captures []string, valid bool, message *string) {
	testString := resolveVariables(st, node.TestString)

	matcher, err := CompileFunc(node.CondPattern, node.CondNoCase, limits.MaxRegexSubjectLength)
	if err != nil {
		m := err.Error()
		return false, nil, false, &m
	}

	rawMatch, groups := matcher.MatchStringCaptures(testString)
	met = rawMatch
	if node.Negated {
		met = !rawMatch
	}
	if rawMatch && !node.Negated {
		captures = groups
	}
	return met, captures, true, nil
}

func evaluateRule(st *evalState, node *Node, conditionsSatisfied bool, limits Limits) TraceLine {
	if !st.engineEnabled || st.stopped {
		return traceLine(node, false, false, true, nil)
	}

	if !conditionsSatisfied {
		return traceLine(node, false, false, true, nil)
	}

	st.iterations++

	matchPath := computeMatchPath(st)

	matcher, err := CompileFunc(node.Pattern, node.Flags.NoCase, limits.MaxRegexSubjectLength)
	if err != nil {
		msg := err.Error()
		return traceLine(node, true, false, false, &msg)
	}

	matched, groups := matcher.MatchStringCaptures(matchPath)
	if !matched {
		return traceLine(node, true, false, true, nil)
	}

	for i := 0; i < 10; i++ {
		if i < len(groups) {
			st.ruleCaptures[i] = groups[i]
		} else {
			st.ruleCaptures[i] = ""
		}
	}

	applySubstitution(st, node.Substitution, node.Flags)
	applyFlags(st, node.Flags)

	return traceLine(node, true, true, true, nil)
}

func computeMatchPath(st *evalState) string {
	matchPath := st.currentPath
	base := strings.Trim(st.rewriteBase, "/")
	if base != "" && strings.HasPrefix(matchPath, base) {
		matchPath = strings.TrimPrefix(matchPath, base)
		matchPath = strings.TrimPrefix(matchPath, "/")
	}
	return matchPath
}

var absoluteURLPattern = regexp.MustCompile(`(?i)^https?://`)

func applySubstitution(st *evalState, rawSubstitution string, flags RuleFlags) {
	if rawSubstitution == "-" {
		return
	}

	resolved := resolveVariables(st, rawSubstitution)
	resolved = strings.ReplaceAll(resolved, "$0", st.ruleCaptures[0])

	if absoluteURLPattern.MatchString(resolved) {
		u, err := url.Parse(resolved)
		if err != nil {
			return
		}
		st.scheme = u.Scheme
		st.host = u.Host
		st.currentPath = strings.TrimPrefix(u.Path, "/")
		st.queryString = mergeQueryString(u.RawQuery, st.queryString, flags.QSAppend, flags.QSDiscard)
		return
	}

	newPath, newQuery := splitQuery(resolved)
	if !strings.HasPrefix(newPath, "/") && st.rewriteBase != "/" {
		newPath = st.rewriteBase + newPath
	}
	st.currentPath = strings.TrimPrefix(newPath, "/")
	st.queryString = mergeQueryString(newQuery, st.queryString, flags.QSAppend, flags.QSDiscard)
}

func applyFlags(st *evalState, flags RuleFlags) {
	if flags.Redirect != nil {
		code := *flags.Redirect
		st.redirect = &code
		st.stopped = true
	}
	if flags.Forbidden {
		code := 403
		st.redirect = &code
		st.stopped = true
	}
	if flags.Gone {
		code := 410
		st.redirect = &code
		st.stopped = true
	}
	if flags.Last {
		st.stopped = true
	}
	if flags.End {
		st.hardStop = true
		st.stopped = true
	}
}

// variablePattern matches the three token shapes the variable-expansion
// grammar defines: %{IDENT}, $N, and %N (N in 1..9). A single combined pass
// avoids re-expanding substituted content that might itself contain '$' or
// '%' characters.
var variablePattern = regexp.MustCompile(`%\{[A-Za-z0-9_]+\}|\$[1-9]|%[1-9]`)

func resolveVariables(st *evalState, s string) string {
	return variablePattern.ReplaceAllStringFunc(s, func(m string) string {
		switch {
		case strings.HasPrefix(m, "%{"):
			name := m[2 : len(m)-1]
			return st.env[name]
		case m[0] == '$':
			n := int(m[1] - '0')
			return st.ruleCaptures[n]
		default:
			n := int(m[1] - '0')
			return st.condCaptures[n]
		}
	})
}
