package models

import "errors"

var (
	// ErrInsufficientData marks a normal deferred state: not enough input yet.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUpstreamUnavailable covers price or narrative sources that failed or timed out.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrPersistenceConflict is a lost race on a keyed write.
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrMalformedInput      = errors.New("malformed input")
	// ErrFatal means the store itself is unreachable.
	ErrFatal    = errors.New("store unavailable")
	ErrNotFound = errors.New("not found")
)
