package resolver

import "github.com/cockroachdb/errors"

// ErrNilStorage is returned by New when storage is nil.
var ErrNilStorage = errors.New("resolver: storage is nil")
