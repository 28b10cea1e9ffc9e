package cache

import (
	"context"

	"github.com/google/uuid"
)

// TagKeyPrefix namespaces tag version tokens in the backend.
const TagKeyPrefix = "tag:"

// TagKey returns the backend key holding tag's version token.
func TagKey(tag string) string {
	return TagKeyPrefix + tag
}

// FetchTagVersions returns the current token for each tag, creating tokens
// that do not exist yet. Tokens never expire.
func (s *Storage) FetchTagVersions(ctx context.Context, tags []string) (map[string]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		if _, done := out[tag]; done {
			continue
		}
		token, err := s.tagToken(ctx, tag)
		if err != nil {
			return nil, err
		}
		out[tag] = token
	}
	return out, nil
}

func (s *Storage) tagToken(ctx context.Context, tag string) (string, error) {
	key := TagKey(tag)
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		return string(raw), nil
	}

	v, err, _ := s.tagFlight.Do(key, func() (any, error) {
		raw, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if ok {
			return string(raw), nil
		}
		token := uuid.NewString()
		if err := s.backend.Set(ctx, key, []byte(token), 0); err != nil {
			return "", err
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvalidateTags replaces the token of every tag, invalidating all entries
// written under the old tokens.
func (s *Storage) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		if err := ValidateKey(tag); err != nil {
			return err
		}
		if err := s.backend.Set(ctx, TagKey(tag), []byte(uuid.NewString()), 0); err != nil {
			return newError("invalidate_tags", tag, ErrStorage, err)
		}
	}
	return nil
}

// TagsValid reports whether item's tag snapshot matches the current tokens.
// Items without tags are always valid.
func (s *Storage) TagsValid(ctx context.Context, item *CachedItem) (bool, error) {
	if item == nil || len(item.TagVersions) == 0 {
		return true, nil
	}

	tags := make([]string, 0, len(item.TagVersions))
	for tag := range item.TagVersions {
		tags = append(tags, tag)
	}
	current, err := s.FetchTagVersions(ctx, tags)
	if err != nil {
		return false, newError("tags_valid", "", ErrStorage, err)
	}
	for tag, token := range item.TagVersions {
		if current[tag] != token {
			return false, nil
		}
	}
	return true, nil
}
