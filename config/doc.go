// Package config loads cachepipe configuration from YAML and wires a
// ready-to-use Resolver from it.
//
// Durations accept Go syntax plus days and weeks ("90s", "1d12h", "2w").
// Every string value is expanded before decoding:
//   - `${VAR}` is replaced from the environment; a missing variable is an error.
//   - `$$` emits a literal `$`.
//   - `secretref:<provider>:<ref>` is replaced by the value the named
//     SecretProvider returns, either as the whole value or inline.
//
// Providers are registered by name in a Registry. "env" and "file" are
// built in; a file's `secrets:` section configures additional instances:
//
//	secrets:
//	  file:
//	    dir: /run/secrets
//	backend:
//	  type: redis
//	  redis:
//	    addr: ${REDIS_ADDR}
//	    password: secretref:file:redis_password
//
// Build turns a Config into a Runtime holding the Resolver, its storage,
// the optional Redis client, the telemetry Observer, and a health
// Aggregator covering the wired components.
package config
