package gtfs

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// applyLog replays every committed record of name's log into its data
// file, fsyncs, and removes the log. If lockHeld is false
// (the caller, e.g. Store.Clean, does not already hold the file's
// exclusive lock), applyLog acquires it itself, blocking or not per
// blocking, and releases it before returning.
//
// Removing the log file is the signal that replay was made durable: an
// incomplete replay (any error below) leaves the log in place so a later
// attempt is idempotent — re-applying already-applied records overwrites
// the same offsets with the same bytes.
func applyLog(dir, name string, maxNameLen int, lockHeld bool, blocking bool) error {
	dataPath, logPath, err := resolvePaths(dir, name, maxNameLen)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(dataPath, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			// No data file to apply against: nothing to do.
			return nil
		}
		return fmt.Errorf("gtfs: open %s for apply: %w", dataPath, err)
	}
	defer f.Close()

	if !lockHeld {
		if blocking {
			if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
				return fmt.Errorf("gtfs: lock %s for apply: %w", dataPath, err)
			}
		} else {
			if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
				return fmt.Errorf("gtfs: lock %s for apply: %w", dataPath, err)
			}
		}
		defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}

	records, err := readLog(logPath)
	if err != nil {
		return fmt.Errorf("gtfs: reading log %s: %w", logPath, err)
	}

	for _, rec := range records {
		if rec.header.Committed != 1 {
			continue
		}
		if _, err := f.WriteAt(rec.payload, int64(rec.header.Offset)); err != nil {
			return fmt.Errorf("gtfs: applying record at offset %d to %s: %w", rec.header.Offset, dataPath, err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("gtfs: fsync %s after apply: %w", dataPath, err)
	}

	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("gtfs: removing log %s after apply: %w", logPath, err)
	}
	return nil
}

// Clean enumerates every log file in the managed directory and applies
// each in turn, stopping and returning the first failure. Logs applied
// earlier in the pass stay removed and logs not yet attempted are left
// untouched — each file's log is applied independently.
func (s *Store) Clean() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("gtfs: reading %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := isLogFileName(entry.Name())
		if !ok {
			continue
		}
		s.logger.Debug("clean: applying log", zap.String("file", name))
		if err := applyLog(s.dir, name, s.config.maxNameLen, false, s.config.blockingRecoveryLock); err != nil {
			return fmt.Errorf("gtfs: clean: applying log for %s: %w", name, err)
		}
	}
	return nil
}

// CleanNBytes is a coarse log-truncation maintenance primitive: it
// shrinks every log file's tail by n bytes, removing the log outright if
// it is n bytes long or shorter. It has no durability guarantee
// for the truncated records.
func (s *Store) CleanNBytes(n int64) error {
	if n <= 0 {
		return ErrRangeInvalid
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("gtfs: reading %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := isLogFileName(entry.Name()); !ok {
			continue
		}
		logPath := s.dir + string(os.PathSeparator) + entry.Name()
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("gtfs: stat %s: %w", logPath, err)
		}
		if info.Size() <= n {
			if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("gtfs: removing %s: %w", logPath, err)
			}
			continue
		}
		if err := os.Truncate(logPath, info.Size()-n); err != nil {
			return fmt.Errorf("gtfs: truncating %s: %w", logPath, err)
		}
	}
	return nil
}
