// Package specstore persists ChangeSpec records on disk, one text file
// per project, and serializes writers.
//
// Every mutation goes through WithLock: an exclusive flock on a sibling
// lock file is acquired with a bounded retry, the file is re-read fresh
// under the lock, the caller mutates the parsed records, and the whole
// file is rewritten through a temp-file rename. Readers never need the
// lock because writes are atomic.
package specstore
