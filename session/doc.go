// Package session stores conversation history across runs. A run with a
// session ID reads the stored items before its input and appends the run's
// input and new items after it completes.
//
// Backends: InMemoryStore for tests and single process use, RedisStore for
// history shared between processes.
package session
