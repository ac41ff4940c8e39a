package shadow

import "errors"

var (
	// ErrAlreadyTracked is returned by Track when id already has a
	// live binding.
	ErrAlreadyTracked = errors.New("shadow: id already tracked")

	// ErrNotTracked is returned by AddRef when id has no live
	// binding to add a reference to.
	ErrNotTracked = errors.New("shadow: id not tracked")
)
