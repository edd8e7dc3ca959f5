package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketExhaustion(t *testing.T) {
	t.Parallel()
	l := NewSimpleTokenBucket(3, 3)

	require.True(t, l.allow("10.0.0.1"))
	require.True(t, l.allow("10.0.0.1"))
	require.True(t, l.allow("10.0.0.1"))
	require.False(t, l.allow("10.0.0.1"))

	// Separate clients have separate buckets.
	require.True(t, l.allow("10.0.0.2"))
}

func TestTokenBucketDefaultCapacity(t *testing.T) {
	t.Parallel()
	l := NewSimpleTokenBucket(0, 5)
	for i := 0; i < 5; i++ {
		require.True(t, l.allow("c"))
	}
	require.False(t, l.allow("c"))
}
