package health

import "github.com/cockroachdb/errors"

var (
	// ErrCheckFailed indicates a health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout indicates a health check timed out.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates a checker was not found.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrProbeMismatch indicates a backend returned a different value than was written.
	ErrProbeMismatch = errors.New("health: probe value mismatch")
)
