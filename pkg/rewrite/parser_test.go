package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Parse_lineKinds(t *testing.T) {
	text := "\n" +
		"# a comment\n" +
		"RewriteEngine On\n" +
		"RewriteBase /app/\n" +
		"RewriteCond %{HTTP_HOST} ^www\\. [NC,OR]\n" +
		"RewriteRule ^old$ /new [R=301,L]\n" +
		"RewriteEngineBroken nonsense\n" +
		"RewriteEngine maybe\n"

	doc := Parse(text)

	assert.Len(t, doc.Nodes, 9)

	assert.Equal(t, NodeBlank, doc.Nodes[0].Kind)

	assert.Equal(t, NodeComment, doc.Nodes[1].Kind)
	assert.Equal(t, "a comment", doc.Nodes[1].CommentText)

	assert.Equal(t, NodeEngineToggle, doc.Nodes[2].Kind)
	assert.True(t, doc.Nodes[2].EngineOn)

	assert.Equal(t, NodeBase, doc.Nodes[3].Kind)
	assert.Equal(t, "/app/", doc.Nodes[3].BasePath)

	cond := doc.Nodes[4]
	assert.Equal(t, NodeCond, cond.Kind)
	assert.Equal(t, "%{HTTP_HOST}", cond.TestString)
	assert.Equal(t, `^www\.`, cond.CondPattern)
	assert.True(t, cond.CondNoCase)
	assert.True(t, cond.OrNext)
	assert.False(t, cond.Negated)

	rule := doc.Nodes[5]
	assert.Equal(t, NodeRule, rule.Kind)
	assert.Equal(t, "^old$", rule.Pattern)
	assert.Equal(t, "/new", rule.Substitution)
	assert.NotNil(t, rule.Flags.Redirect)
	assert.Equal(t, 301, *rule.Flags.Redirect)
	assert.True(t, rule.Flags.Last)

	assert.Equal(t, NodeUnknown, doc.Nodes[6].Kind)
	assert.Equal(t, "RewriteEngineBroken", doc.Nodes[6].DirectiveName)

	assert.Equal(t, NodeParseError, doc.Nodes[7].Kind)
}

func Test_Parse_condNegationAndFlags(t *testing.T) {
	doc := Parse("RewriteCond %{HTTP_HOST} !^www\\. [NC]")
	require1Node(t, doc)

	cond := doc.Nodes[0]
	assert.True(t, cond.Negated)
	assert.Equal(t, `^www\.`, cond.CondPattern)
	assert.True(t, cond.CondNoCase)
}

func Test_Parse_ruleFlagValues(t *testing.T) {
	doc := Parse(`RewriteRule ^(.*)$ /dest?x=1 [E=FOO:bar,CO=baz:1,T=text/plain,S=2]`)
	require1Node(t, doc)

	rule := doc.Nodes[0]
	if assert.NotNil(t, rule.Flags.Skip) {
		assert.Equal(t, 2, *rule.Flags.Skip)
	}
	if assert.NotNil(t, rule.Flags.Type) {
		assert.Equal(t, "text/plain", *rule.Flags.Type)
	}
	assert.Equal(t, []string{"FOO:bar"}, rule.Flags.Env)
	assert.Equal(t, []string{"baz:1"}, rule.Flags.Cookie)
}

func Test_Parse_missingArgsAreParseErrors(t *testing.T) {
	cases := []string{
		"RewriteEngine",
		"RewriteBase",
		"RewriteCond %{HTTP_HOST}",
		"RewriteRule ^only-one-token$",
	}
	for _, c := range cases {
		doc := Parse(c)
		require1Node(t, doc)
		assert.Equal(t, NodeParseError, doc.Nodes[0].Kind, "input: %s", c)
	}
}

func Test_splitArgs_quoting(t *testing.T) {
	got := splitArgs(`%{HTTP_HOST} "^www example\.com$" [NC]`)
	assert.Equal(t, []string{"%{HTTP_HOST}", `^www example\.com$`, "[NC]"}, got)
}

func require1Node(t *testing.T, doc Document) {
	t.Helper()
	if len(doc.Nodes) != 1 {
		t.Fatalf("expected exactly 1 node, got %d", len(doc.Nodes))
	}
}
