package crawler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.NoError(t, ClassifyStatus(http.StatusOK))
	require.NoError(t, ClassifyStatus(http.StatusMovedPermanently))
	require.ErrorIs(t, ClassifyStatus(http.StatusNotFound), ErrNotFound)
	require.ErrorIs(t, ClassifyStatus(http.StatusGone), ErrNotFound)
	for _, code := range []int{401, 403, 405, 429, 503} {
		require.ErrorIs(t, ClassifyStatus(code), ErrBlocked, "code %d", code)
	}
	require.ErrorIs(t, ClassifyStatus(http.StatusBadGateway), ErrTransient)
	require.ErrorIs(t, ClassifyStatus(http.StatusTeapot), ErrBlocked)
}

func TestIsChallengePage(t *testing.T) {
	t.Parallel()

	require.True(t, IsChallengePage([]byte("<html><title>Just a moment...</title></html>")))
	require.True(t, IsChallengePage([]byte("<title>Attention Required! | Cloudflare</title>")))
	require.False(t, IsChallengePage([]byte("<html><h1>Current exhibitions</h1></html>")))

	late := strings.Repeat("a", challengeWindow+10) + "just a moment..."
	require.False(t, IsChallengePage([]byte(late)))
}
