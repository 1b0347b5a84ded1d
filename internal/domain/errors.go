package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidFill   = errors.New("invalid fill parameters")

	// ErrReducingFlatPosition indicates a reducing fill arrived against a
	// flat position: either bad input ordering or a missing opening fill.
	ErrReducingFlatPosition = errors.New("reducing fill against flat position")
)
