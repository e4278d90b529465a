package ragling

import "errors"

var (
	// ErrUnauthorized is returned when a search request carries no
	// matching API key.
	ErrUnauthorized = errors.New("ragling: invalid or missing api key")

	// ErrNotLeader is returned when an operation that requires leadership
	// (indexing) is attempted on a follower.
	ErrNotLeader = errors.New("ragling: this process is not the group leader")

	// ErrNoResults names a search that yields no matching chunks.
	// Engine.Search does not return it: an empty search comes back as an
	// empty result slice with a nil error.
	ErrNoResults = errors.New("ragling: no results found")

	// ErrClosed names an operation on a closed Engine. Engine methods do
	// not track whether Close has run and do not return it.
	ErrClosed = errors.New("ragling: engine is closed")
)
