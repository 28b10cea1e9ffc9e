package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"slices"

	"github.com/cockroachdb/errors"
)

// Keyer derives cache keys from request inputs.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key derives a key for input within namespace.
	Key(namespace string, input any) (string, error)
}

// DefaultKeyer hashes a canonical JSON form of the input.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key returns "<namespace>:<hash>", where hash is the first 16 hex
// characters of SHA-256 over the canonical input.
func (k *DefaultKeyer) Key(namespace string, input any) (string, error) {
	if err := ValidateKey(namespace); err != nil {
		return "", errors.Wrap(err, "namespace")
	}

	normalized, err := normalize(input)
	if err != nil {
		return "", errors.Wrap(err, "cache: failed to canonicalize input")
	}

	h := sha256.New()
	if err := writeCanonical(h, normalized); err != nil {
		return "", errors.Wrap(err, "cache: failed to canonicalize input")
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil)[:8]), nil
}

// normalize turns structs and typed maps into the generic JSON shape so
// that equal inputs hash equally regardless of their Go type.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeCanonical(h hash.Hash, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		h.Write([]byte{'{'})
		for i, k := range keys {
			if i > 0 {
				h.Write([]byte{','})
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			h.Write(kb)
			h.Write([]byte{':'})
			inner, err := normalize(val[k])
			if err != nil {
				return err
			}
			if err := writeCanonical(h, inner); err != nil {
				return err
			}
		}
		h.Write([]byte{'}'})
		return nil

	case []any:
		h.Write([]byte{'['})
		for i, item := range val {
			if i > 0 {
				h.Write([]byte{','})
			}
			inner, err := normalize(item)
			if err != nil {
				return err
			}
			if err := writeCanonical(h, inner); err != nil {
				return err
			}
		}
		h.Write([]byte{']'})
		return nil

	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		h.Write(b)
		return nil
	}
}

var _ Keyer = (*DefaultKeyer)(nil)
