package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_mergeQueryString_discardWinsOverAppend(t *testing.T) {
	got := mergeQueryString("src=legacy", "q=cats", true, true)
	assert.Equal(t, "src=legacy", got)
}

func Test_mergeQueryString_appendPrependsNewQuery(t *testing.T) {
	got := mergeQueryString("src=legacy", "q=cats", true, false)
	assert.Equal(t, "src=legacy&q=cats", got)
}

func Test_mergeQueryString_appendWithNoNewQueryKeepsOriginal(t *testing.T) {
	got := mergeQueryString("", "q=cats", true, false)
	assert.Equal(t, "q=cats", got)
}

func Test_mergeQueryString_noFlagsNewQueryReplacesOriginal(t *testing.T) {
	got := mergeQueryString("src=legacy", "q=cats", false, false)
	assert.Equal(t, "src=legacy", got)
}

func Test_mergeQueryString_noFlagsNoNewQueryKeepsOriginal(t *testing.T) {
	got := mergeQueryString("", "q=cats", false, false)
	assert.Equal(t, "q=cats", got)
}

func Test_mergeQueryString_allEmpty(t *testing.T) {
	assert.Equal(t, "", mergeQueryString("", "", false, false))
}

func Test_splitQuery_withQuery(t *testing.T) {
	path, query := splitQuery("/find?src=legacy&q=cats")
	assert.Equal(t, "/find", path)
	assert.Equal(t, "src=legacy&q=cats", query)
}

func Test_splitQuery_withoutQuery(t *testing.T) {
	path, query := splitQuery("/find")
	assert.Equal(t, "/find", path)
	assert.Equal(t, "", query)
}

func Test_splitQuery_trailingQuestionMark(t *testing.T) {
	path, query := splitQuery("/find?")
	assert.Equal(t, "/find", path)
	assert.Equal(t, "", query)
}
