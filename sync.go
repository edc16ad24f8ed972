package gtfs

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Sync durably appends this intent to its file's log and flips the
// record's commit bit, in this crash-safe order:
//
//  1. open the log for append (create if absent)
//  2. record the current end-of-log position P
//  3. write the header with committed=0, then the payload (I1)
//  4. fsync (I2: payload and tentative header are now durable)
//  5. rewrite the header at P with committed=1 (I3)
//  6. fsync again
//  7. mark the intent synced, return its length
//
// The handle's logMu serializes this whole sequence against any other
// intent of the same handle syncing and against the handle's Close
// (which replays the log). Abort does not take logMu.
func (w *WriteIntent) Sync() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.synced || w.aborted {
		return -1, ErrStateViolation
	}

	h := w.handle
	h.logMu.Lock()
	defer h.logMu.Unlock()

	f, err := openLogForAppend(h.logPath)
	if err != nil {
		return -1, err
	}
	defer f.Close()

	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return -1, fmt.Errorf("gtfs: seeking to end of %s: %w", h.logPath, err)
	}

	header := recordHeader{Offset: int32(w.offset), Length: int32(w.length), Committed: 0}
	if _, err := f.Write(encodeHeader(header)); err != nil {
		return -1, fmt.Errorf("gtfs: writing tentative header to %s: %w", h.logPath, err)
	}
	if _, err := f.Write(w.newBytes); err != nil {
		return -1, fmt.Errorf("gtfs: writing payload to %s: %w", h.logPath, err)
	}

	if err := f.Sync(); err != nil {
		return -1, fmt.Errorf("gtfs: fsync tentative record in %s: %w", h.logPath, err)
	}

	header.Committed = 1
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return -1, fmt.Errorf("gtfs: seeking back to commit bit in %s: %w", h.logPath, err)
	}
	if _, err := f.Write(encodeHeader(header)); err != nil {
		return -1, fmt.Errorf("gtfs: flipping commit bit in %s: %w", h.logPath, err)
	}

	if err := f.Sync(); err != nil {
		return -1, fmt.Errorf("gtfs: fsync commit bit in %s: %w", h.logPath, err)
	}

	w.synced = true
	h.log.Debug("write synced", zap.Int64("offset", w.offset), zap.Int64("length", w.length))
	return w.length, nil
}

// SyncN implements the bonus sync_write_file_n_bytes primitive: it
// appends a tentative header and only the first n bytes of the intent's
// payload to the log, and deliberately never flips the commit bit. It
// exists to produce a reproducible torn/discarded-on-replay write for
// exercising the recovery discard paths of a crash-window analysis;
// it does not mark the intent synced, since the record it wrote
// can never be replayed.
func (w *WriteIntent) SyncN(n int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.synced || w.aborted {
		return ErrStateViolation
	}
	if n < 0 || n > w.length {
		return ErrRangeInvalid
	}

	h := w.handle
	h.logMu.Lock()
	defer h.logMu.Unlock()

	f, err := openLogForAppend(h.logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("gtfs: seeking to end of %s: %w", h.logPath, err)
	}

	header := recordHeader{Offset: int32(w.offset), Length: int32(w.length), Committed: 0}
	if _, err := f.Write(encodeHeader(header)); err != nil {
		return fmt.Errorf("gtfs: writing tentative header to %s: %w", h.logPath, err)
	}
	if _, err := f.Write(w.newBytes[:n]); err != nil {
		return fmt.Errorf("gtfs: writing partial payload to %s: %w", h.logPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("gtfs: fsync partial record in %s: %w", h.logPath, err)
	}

	h.log.Debug("partial write flushed without commit", zap.Int64("offset", w.offset), zap.Int64("n", n))
	return nil
}

// Abort restores the pre-write bytes into the mapped buffer and marks the
// intent aborted. Aborting an already-synced intent is a programmer fault
// (ErrStateViolation), not a retriable error.
func (w *WriteIntent) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.synced || w.aborted {
		return ErrStateViolation
	}

	h := w.handle
	copy(h.data[w.offset:w.offset+w.length], w.oldBytes)
	w.aborted = true
	h.log.Debug("write aborted", zap.Int64("offset", w.offset), zap.Int64("length", w.length))
	return nil
}

// openLogForAppend opens a file's log for read/write, creating it if it
// doesn't exist yet. The file is not opened with O_APPEND and starts at
// offset 0; callers seek to the end before appending.
func openLogForAppend(logPath string) (*os.File, error) {
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("gtfs: opening log %s: %w", logPath, err)
	}
	return f, nil
}
