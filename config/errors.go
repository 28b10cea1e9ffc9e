package config

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidConfig indicates a configuration value is out of range or unknown.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingEnv indicates `${VAR}` referenced an unset variable.
	ErrMissingEnv = errors.New("config: missing environment variable")

	// ErrUnknownProvider indicates a secret reference or registration named
	// a provider that does not exist.
	ErrUnknownProvider = errors.New("config: unknown secret provider")

	// ErrDuplicateProvider indicates a provider name was registered twice.
	ErrDuplicateProvider = errors.New("config: secret provider already registered")

	// ErrEmptySecret indicates a provider resolved a reference to "".
	ErrEmptySecret = errors.New("config: secret resolved to empty value")
)
