package confirm

import "errors"

// Terminal pipeline errors. Every failure ends the attempt; there is no retry
// within an attempt, the user starts a new one.
var (
	// ErrMissingReferencePhoto means the user record has no reference photo,
	// so there is nothing to verify against.
	ErrMissingReferencePhoto = errors.New("no reference photo on record")

	// ErrGeolocationUnsupported means the client cannot produce a location fix.
	ErrGeolocationUnsupported = errors.New("geolocation not supported")

	// ErrGeolocationTimeout means no location fix arrived within the window.
	ErrGeolocationTimeout = errors.New("geolocation timed out")

	// ErrGeolocationDenied means the client refused to share its location.
	ErrGeolocationDenied = errors.New("geolocation permission denied")

	// ErrOutsideAllowedArea means the fix fell outside the allowed polygon.
	ErrOutsideAllowedArea = errors.New("location outside allowed area")

	// ErrPersistenceWriteFailed means the final record update did not happen;
	// the verified return is NOT recorded.
	ErrPersistenceWriteFailed = errors.New("failed to record return")

	// ErrNotCancellable means the attempt has passed the point where the user
	// may abort it.
	ErrNotCancellable = errors.New("attempt can only be cancelled during the scan")
)
