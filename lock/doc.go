// Package lock provides mutual exclusion for cache refreshes.
//
// Memory serialises refreshes within one process. Redis extends that across
// processes with SET NX PX. Every acquisition returns a random owner token,
// and release deletes the key only while that token still matches, so an
// expired holder cannot release a lock someone else has since taken.
package lock
