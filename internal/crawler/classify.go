package crawler

import (
	"bytes"
	"net/http"
)

// challengeMarkers are anti-bot interstitial phrases seen in otherwise
// successful responses.
var challengeMarkers = [][]byte{
	[]byte("just a moment..."),
	[]byte("attention required! | cloudflare"),
	[]byte("checking your browser"),
	[]byte("you are being rate limited"),
	[]byte("ddos protection by cloudflare"),
	[]byte("cf-browser-verification"),
}

// challengeWindow bounds how much of the body is scanned for markers.
const challengeWindow = 8 << 10

// ClassifyStatus maps an HTTP status code to an error kind, or nil when the
// response is usable.
func ClassifyStatus(code int) error {
	switch {
	case code == 0 || (code >= 200 && code < 400):
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusMethodNotAllowed,
		code == http.StatusTooManyRequests,
		code == http.StatusServiceUnavailable:
		return ErrBlocked
	case code >= 500:
		return ErrTransient
	default:
		return ErrBlocked
	}
}

// IsChallengePage reports whether body looks like an anti-bot interstitial.
func IsChallengePage(body []byte) bool {
	if len(body) > challengeWindow {
		body = body[:challengeWindow]
	}
	lower := bytes.ToLower(body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}
