package crawler

import (
	"errors"
	"fmt"
)

// Error kinds used across the pipeline.
var (
	// ErrNotFound marks a page that is genuinely absent (404/410). Not retried.
	ErrNotFound = errors.New("page not found")
	// ErrBlocked marks an anti-bot challenge or a refusal status code.
	ErrBlocked = errors.New("blocked by upstream")
	// ErrTransient marks timeouts, resets and server errors worth retrying.
	ErrTransient = errors.New("transient network failure")
	// ErrEmptyBody marks a response that carried no usable HTML.
	ErrEmptyBody = errors.New("empty response body")
	// ErrExtractionInvalid marks extraction output that could not be validated.
	ErrExtractionInvalid = errors.New("extraction output invalid")
	// ErrSiteUnknown is returned when a named site is not in the registry.
	ErrSiteUnknown = errors.New("site not found")
)

// FetchError describes a failed fetch attempt from one tier.
type FetchError struct {
	URL        string
	Tier       string
	StatusCode int
	Kind       error
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s via %s", e.URL, e.Tier)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Kind != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *FetchError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// ErrorKind reports the taxonomy label for err, used in logs and page reports.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrEmptyBody):
		return "empty"
	case errors.Is(err, ErrExtractionInvalid):
		return "extraction_invalid"
	default:
		return "error"
	}
}
