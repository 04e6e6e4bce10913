package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURLStripsTrackingParams(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("https://X.org/job/7?utm_source=a&utm_medium=b&fbclid=z&page=2")
	require.NoError(t, err)
	assert.Equal(t, "https://x.org/job/7?page=2", got, "non-tracking params must survive")
}

func TestNormalizeURLDropsFragmentPortAndTrailingSlash(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://x.org:443/job/7/":    "https://x.org/job/7",
		"http://x.org:80/job/7#top":   "http://x.org/job/7",
		"https://x.org/":              "https://x.org",
		"https://x.org/job/7?b=2&a=1": "https://x.org/job/7?a=1&b=2",
	}
	for in, want := range cases {
		got, err := NormalizeURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://X.org/job/7/?utm_source=a#frag",
		"http://example.com:80/a/b/?gclid=1&q=x",
		"https://jobs.example.org/vacancies/123",
	}
	for _, in := range inputs {
		once, err := NormalizeURL(in)
		require.NoError(t, err)
		twice, err := NormalizeURL(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestCanonicalHashStableAcrossIrrelevantVariations(t *testing.T) {
	t.Parallel()

	a := CanonicalHash("Program Officer", "https://x.org/job/7?utm_source=a", "")
	b := CanonicalHash("Program Officer", "https://x.org/job/7/", "")
	c := CanonicalHash("  program officer ", "https://X.org/job/7#apply", "")

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestCanonicalHashDistinguishesIdentity(t *testing.T) {
	t.Parallel()

	base := CanonicalHash("Program Officer", "https://x.org/job/7", "")

	assert.NotEqual(t, base, CanonicalHash("Programme Officer", "https://x.org/job/7", ""))
	assert.NotEqual(t, base, CanonicalHash("Program Officer", "https://x.org/job/8", ""))
	assert.NotEqual(t, base, CanonicalHash("Program Officer", "https://x.org/job/7", "REF-1"))
}

func TestCanonicalHashRepeatable(t *testing.T) {
	t.Parallel()

	first := CanonicalHash("Engineer", "https://x.org/j/1", "R1")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CanonicalHash("Engineer", "https://x.org/j/1", "R1"))
	}
}

func TestCanonicalHashUnparseableURLStillHashes(t *testing.T) {
	t.Parallel()

	got := CanonicalHash("Engineer", "://not a url", "")
	assert.Len(t, got, 64)
}
