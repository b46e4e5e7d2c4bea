// Package rewrite evaluates Apache mod_rewrite directives against a
// concrete request URL. Evaluate is a pure function of its inputs: no
// network I/O, no filesystem access, no external process calls.
package rewrite

// NodeKind discriminates the directive node variants described by the
// directive-node data model. Go has no native sum type, so a node is
// represented as a single struct with a Kind discriminant and
// variant-specific fields left at their zero value when unused.
type NodeKind int

const (
	NodeBlank NodeKind = iota
	NodeComment
	NodeEngineToggle
	NodeBase
	NodeCond
	NodeRule
	NodeUnknown
	NodeParseError
)

func (k NodeKind) String() string {
	switch k {
	case NodeBlank:
		return "Blank"
	case NodeComment:
		return "Comment"
	case NodeEngineToggle:
		return "EngineToggle"
	case NodeBase:
		return "Base"
	case NodeCond:
		return "Cond"
	case NodeRule:
		return "Rule"
	case NodeUnknown:
		return "Unknown"
	case NodeParseError:
		return "ParseError"
	default:
		return "Unknown"
	}
}

// RuleFlags carries every flag a RewriteRule directive may declare. Nullable
// fields use pointers so that "absent" and "present with zero value" stay
// distinguishable, matching spec's RuleFlags.redirect (default 302 only
// when present without an explicit value).
type RuleFlags struct {
	Last        bool
	NoCase      bool
	QSAppend    bool
	QSDiscard   bool
	NoEscape    bool
	Next        bool
	End         bool
	Forbidden   bool
	Gone        bool
	Chain       bool
	PassThrough bool
	Proxy       bool

	Redirect *int
	Skip     *int
	Type     *string

	Env    []string
	Cookie []string
}

// Node is a single directive line. Every node carries the 1-based source
// line number and the exact original line text, including leading
// whitespace, per the directive-node data model.
type Node struct {
	Kind    NodeKind
	LineNo  int
	RawLine string

	// Comment
	CommentText string

	// EngineToggle
	EngineOn bool

	// Base
	BasePath string

	// Cond
	TestString  string
	CondPattern string
	CondNoCase  bool
	OrNext      bool
	Negated     bool

	// Rule
	Pattern      string
	Substitution string
	Flags        RuleFlags

	// Unknown
	DirectiveName string
	Args          string

	// ParseError
	Message string
}

// Document is the ordered sequence of directive nodes produced by the
// parser, preserving source order and original text losslessly.
type Document struct {
	Nodes []Node
}
