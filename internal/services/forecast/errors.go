package forecast

import "errors"

// Error kinds callers classify with errors.Is. The orchestrator retries
// transient kinds once per run; the rest fail the group immediately.
var (
	ErrLocationNotFound    = errors.New("location not found")
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidResponse     = errors.New("invalid upstream response")
)

// IsTransient reports whether a second attempt within the same run may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamUnavailable)
}
