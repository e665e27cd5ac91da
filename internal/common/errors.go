// Package common defines shared sentinel errors used across the identity
// core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// repository-level errors
	ErrorNotFound = errors.New("not found")

	// service-level errors
	ErrorConflict        = errors.New("already in use")
	ErrorInvalidArgument = errors.New("invalid argument")
)
