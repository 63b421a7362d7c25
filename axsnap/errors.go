package axsnap

import "errors"

// Resolution and capture errors. None of these are retried internally:
// a scope mismatch or a stale ref will not change without a new capture,
// so retrying would only mask a caller bug.
var (
	// ErrInvalidRefFormat is returned for malformed ref strings.
	ErrInvalidRefFormat = errors.New("axsnap: invalid ref format")

	// ErrContextMismatch is returned when a ref is used against a page
	// belonging to a different browser context.
	ErrContextMismatch = errors.New("axsnap: ref belongs to a different context")

	// ErrPageMismatch is returned when a ref is used against the wrong page.
	ErrPageMismatch = errors.New("axsnap: ref belongs to a different page")

	// ErrStaleRef is returned when a ref is no longer present in the page's
	// ref map. The remedy is to capture a new snapshot.
	ErrStaleRef = errors.New("axsnap: stale ref, capture a new snapshot")

	// ErrUnresolvable is returned for refs whose node is present in the
	// snapshot but for which the capture provider could not supply a native
	// identifier. Distinct from ErrStaleRef: the node exists, it just cannot
	// be acted on.
	ErrUnresolvable = errors.New("axsnap: node has no native identifier")

	// ErrCaptureTimeout is returned when a capture exceeds its deadline.
	// Nothing is committed: the ref map and stored snapshot are untouched.
	ErrCaptureTimeout = errors.New("axsnap: capture deadline exceeded")

	// ErrFrameUnavailable is returned by providers for frames whose content
	// cannot be fetched (cross-origin, detached, or gone).
	ErrFrameUnavailable = errors.New("axsnap: frame content unavailable")
)
