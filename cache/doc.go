// Package cache stores resolved values for the resolution pipeline.
//
// A Storage wraps a raw Backend (MemoryBackend, RedisBackend, or any
// conforming implementation) and adds the policy the pipeline relies on:
//
//   - Logical vs physical TTL: an entry is fresh until Options.TTL elapses
//     but stays readable for a further Options.StaleGracePeriod so it can be
//     served stale.
//   - Compression of large payloads, recorded per entry.
//   - Tag version stamping for group invalidation (InvalidateTags).
//   - Fail-safe translation of backend errors into misses.
//
// Payloads are encoded by a pluggable Serializer. MsgpackSerializer is the
// default; CompressingSerializer and EncryptingSerializer wrap another one.
package cache
