package gtfs

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Handle is the in-memory entity bound to a single opened data file: its
// exclusive OS-level lock (held for the handle's full lifetime), its
// read/write memory mapping, and a back-reference to the owning Store for
// log-path resolution. At most one Handle per (process, file) exists, and
// across processes at most one Handle holds the file's exclusive lock at
// any instant.
type Handle struct {
	store    *Store
	name     string
	dataPath string
	logPath  string
	length   int64

	file *os.File // kept open for the flock's lifetime
	data []byte   // mmap view, length == length

	logMu sync.Mutex // serializes the append/flip/flush sequence for this file
	log   *zap.Logger

	closed bool
}

// OpenFile opens (creating if absent) the data file name inside the
// store's managed directory, growing it to length if needed, replaying
// any pending log against it, and memory-mapping the recovered result.
//
// Steps: reject long names, open-or-create,
// acquire the exclusive lock (blocking), reconcile size (grow-only,
// ShrinkRejected otherwise), apply any pending log via plain file I/O
// while still unmapped, then mmap.
func (s *Store) OpenFile(name string, length int64) (*Handle, error) {
	if length < 0 {
		return nil, ErrRangeInvalid
	}
	dataPath, logPath, err := resolvePaths(s.dir, name, s.config.maxNameLen)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("gtfs: open %s: %w", dataPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("gtfs: lock %s: %w", dataPath, err)
	}

	if err := reconcileSize(f, length); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, err
	}

	if _, statErr := os.Stat(logPath); statErr == nil {
		s.logger.Debug("recovering pending log before mapping", zap.String("file", name))
		if err := applyLog(s.dir, name, s.config.maxNameLen, true, s.config.blockingRecoveryLock); err != nil {
			unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			return nil, fmt.Errorf("gtfs: recovering %s on open: %w", name, err)
		}
	}

	var data []byte
	if length > 0 {
		data, err = unix.Mmap(int(f.Fd()), 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			return nil, fmt.Errorf("gtfs: mmap %s: %w", dataPath, err)
		}
	}

	h := &Handle{
		store:    s,
		name:     name,
		dataPath: dataPath,
		logPath:  logPath,
		length:   length,
		file:     f,
		data:     data,
		log:      s.logger.With(zap.String("file", name)),
	}

	s.mu.Lock()
	s.handles[name] = h
	s.mu.Unlock()

	h.log.Debug("file opened", zap.Int64("length", length))
	return h, nil
}

// reconcileSize implements the size reconciliation cases: grow an
// empty or short file up to length, no-op if it already matches, and
// reject a length shorter than the current on-disk size.
func reconcileSize(f *os.File, length int64) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("gtfs: stat %s: %w", f.Name(), err)
	}
	size := info.Size()
	switch {
	case size == length:
		return nil
	case length < size:
		return ErrShrinkRejected
	default: // length > size, including size == 0
		if err := f.Truncate(length); err != nil {
			return fmt.Errorf("gtfs: extend %s: %w", f.Name(), err)
		}
		return nil
	}
}

// Close applies any pending log (in case a log appeared after Open, e.g.
// this handle wrote and synced but the caller never explicitly cleaned),
// unmaps the file, releases the lock, and closes the descriptor. After
// Close returns successfully the data file on disk equals what any fresh
// open would observe.
func (h *Handle) Close() error {
	h.logMu.Lock()
	defer h.logMu.Unlock()

	if h.closed {
		return nil
	}

	if _, statErr := os.Stat(h.logPath); statErr == nil {
		if err := applyLog(h.store.dir, h.name, h.store.config.maxNameLen, true, h.store.config.blockingRecoveryLock); err != nil {
			return fmt.Errorf("gtfs: recovering %s on close: %w", h.name, err)
		}
	}

	if h.data != nil {
		if err := unix.Munmap(h.data); err != nil {
			return fmt.Errorf("gtfs: munmap %s: %w", h.dataPath, err)
		}
		h.data = nil
	}

	if err := unix.Flock(int(h.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("gtfs: unlock %s: %w", h.dataPath, err)
	}
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("gtfs: close %s: %w", h.dataPath, err)
	}
	h.closed = true

	h.store.mu.Lock()
	delete(h.store.handles, h.name)
	h.store.mu.Unlock()

	h.log.Debug("file closed")
	return nil
}

// Remove deletes the data file and best-effort removes its log. Only
// permitted once the handle's mapping has been torn down (i.e. after
// Close).
func (h *Handle) Remove() error {
	if h.data != nil || !h.closed {
		return ErrRemoveOpenRejected
	}
	if err := os.Remove(h.dataPath); err != nil {
		return fmt.Errorf("gtfs: remove %s: %w", h.dataPath, err)
	}
	os.Remove(h.logPath) // best-effort
	h.log.Debug("file removed")
	return nil
}

// Read returns a copy of the mapped bytes in [offset, offset+length).
// Reads never block on writes to the same handle: they observe the
// mapped buffer as-is.
func (h *Handle) Read(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > h.length {
		return nil, ErrRangeInvalid
	}
	out := make([]byte, length)
	copy(out, h.data[offset:offset+length])
	return out, nil
}

// Write validates the range, captures the pre-write bytes (before any
// mutation, before any bytes are overwritten), overwrites the mapped
// range with data, and returns the resulting WriteIntent. The mapped
// buffer is mutated immediately; durability requires WriteIntent.Sync.
func (h *Handle) Write(offset int64, data []byte) (*WriteIntent, error) {
	length := int64(len(data))
	if offset < 0 || length < 0 || offset+length > h.length {
		return nil, ErrRangeInvalid
	}

	oldBytes := make([]byte, length)
	copy(oldBytes, h.data[offset:offset+length])

	newBytes := make([]byte, length)
	copy(newBytes, data)

	copy(h.data[offset:offset+length], newBytes)

	h.log.Debug("write applied to mapping", zap.Int64("offset", offset), zap.Int64("length", length))

	return &WriteIntent{
		handle:   h,
		offset:   offset,
		length:   length,
		newBytes: newBytes,
		oldBytes: oldBytes,
	}, nil
}
