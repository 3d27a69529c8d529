// Package reconcile moves changes between the local store and the remote
// store.
//
// Push drains the outbox in FIFO order, replaying each entry as one HTTP call
// and stopping at the first failure. Pull fetches everything modified since
// the watermark and applies it locally in one transaction. Neither surfaces a
// network failure as an error: the pass is abandoned, the outbox and
// watermark are left as they were, and the next trigger retries.
//
// At most one drain runs at a time per store: a mutex covers the process and
// a lease row in sync_state covers other processes opening the same database
// file, such as a CLI command run while the daemon is up.
//
// Trigger is safe to call from any goroutine and never blocks; Run owns the
// background push loop and collapses a burst of triggers into one pass.
package reconcile
