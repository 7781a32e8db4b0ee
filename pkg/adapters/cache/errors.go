package cache

import "errors"

var (
	// ErrReadOnly is returned by SaveFlow when the wrapped registry can't write.
	ErrReadOnly = errors.New("flow registry is read-only")
	// ErrNotListable is returned by ListFlows when the wrapped registry can't enumerate.
	ErrNotListable = errors.New("flow registry cannot list flows")
)
