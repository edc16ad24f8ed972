package gtfs

import "sync"

// WriteIntent is the transient record of one pending mutation, created by
// Handle.Write and consumed by exactly one of Sync or Abort. Once a
// terminal call has run, no further state transition on it is legal.
// SyncN is not terminal: it leaves both flags unset.
type WriteIntent struct {
	handle *Handle
	offset int64
	length int64

	newBytes []byte // caller's payload
	oldBytes []byte // mapped bytes at [offset, offset+length) before the write

	mu      sync.Mutex
	synced  bool
	aborted bool
}
