package cache

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilledornaments/htaccess-tester-core/internal/logging"
)

func Test_MatcherCache_secondCompileIsCacheHit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc := NewMatcherCache(ctx, logging.New(0, false), 3600, 86400)

	before := testutil.ToFloat64(matcherCacheHitMetric)

	m1, err := mc.Compile(`^foo$`, false, 0)
	require.NoError(t, err)
	require.NotNil(t, m1)

	m2, err := mc.Compile(`^foo$`, false, 0)
	require.NoError(t, err)

	assert.Same(t, m1, m2)
	assert.Greater(t, testutil.ToFloat64(matcherCacheHitMetric), before)
}

func Test_MatcherCache_differentKeysAreDistinctEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc := NewMatcherCache(ctx, logging.New(0, false), 3600, 86400)

	caseSensitive, err := mc.Compile(`^foo$`, false, 0)
	require.NoError(t, err)
	caseInsensitive, err := mc.Compile(`^foo$`, true, 0)
	require.NoError(t, err)

	assert.NotSame(t, caseSensitive, caseInsensitive)
}

func Test_MatcherCache_cachesCompileErrorsToo(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc := NewMatcherCache(ctx, logging.New(0, false), 3600, 86400)

	_, err1 := mc.Compile(`^(a+)+$`, false, 0)
	require.Error(t, err1)

	_, err2 := mc.Compile(`^(a+)+$`, false, 0)
	require.Error(t, err2)
	assert.Equal(t, err1, err2)
}
