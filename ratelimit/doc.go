// Package ratelimit provides admission control strategies for the
// resolution pipeline.
//
// Every strategy implements Limiter: IsLimited asks whether a key may run
// now, RecordExecution charges one execution against it, and Clear resets
// state. The pipeline checks before fetching and records only when it lets
// the request through, so checking alone never consumes capacity.
//
//   - TokenBucket: bursts up to Burst, refilled at Rate per second.
//   - FixedInterval: at most one execution per Interval.
//   - Redis: fixed-window counter shared across processes.
package ratelimit
