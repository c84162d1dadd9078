package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministicPerURL(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("https://museum.example/whats-on"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("https://museum.example/whats-on"))
	require.NoError(t, err)
	c, err := h.Hash([]byte("https://museum.example/whats-on/"))
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sum(nil))
}
