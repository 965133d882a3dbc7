package moderation

import "errors"

var (
	// ErrInvalidInput marks a malformed check request. It is returned before
	// any side effect; the caller should not retry without fixing the request.
	ErrInvalidInput = errors.New("moderation: invalid input")

	// ErrStoreUnavailable marks a persistence failure during a decision. The
	// engine fails closed: the caller must treat the check as undecided and
	// may retry the whole decision from scratch, never replay side effects.
	ErrStoreUnavailable = errors.New("moderation: store unavailable")
)
