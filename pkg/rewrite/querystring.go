package rewrite

import "strings"

// mergeQueryString applies a rule's query-string policy to a freshly
// rewritten query string, given the original request's query string. This
// mirrors the teacher's combine()/replace() query-parameter merge, reduced
// to the two policies RewriteRule flags actually express: QSA (append,
// original wins no conflicts - the original query simply follows the new
// one) and QSD (discard original entirely).
func mergeQueryString(newQuery, origQuery string, qsAppend, qsDiscard bool) string {
	if qsDiscard {
		return newQuery
	}

	if qsAppend && origQuery != "" {
		if newQuery == "" {
			return origQuery
		}
		return newQuery + "&" + origQuery
	}

	if newQuery == "" {
		return origQuery
	}

	return newQuery
}

// splitQuery splits raw on the first '?' into path and query components.
func splitQuery(raw string) (path, query string) {
	idx := strings.IndexByte(raw, '?')
	if idx < 0 {
		return raw, ""
	}
	return raw[:idx], raw[idx+1:]
}
