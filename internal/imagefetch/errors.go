package imagefetch

import "errors"

var (
	// ErrNetworkUnavailable means the reachability check failed and no I/O was attempted.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrFetch covers malformed URLs, connection or read failures and non-200 responses.
	ErrFetch = errors.New("image fetch failed")
	// ErrDecode means the payload arrived but is not a decodable image.
	ErrDecode = errors.New("image decode failed")
	// ErrCancelled means the fetch was stopped before it produced an image.
	ErrCancelled = errors.New("image fetch cancelled")
	// ErrTimeout means a bounded wait expired before the image was ready.
	ErrTimeout = errors.New("image not ready before timeout")
)
