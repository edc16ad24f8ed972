package gtfs

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// storeConfig holds the options gathered from Open's variadic Option
// arguments.
type storeConfig struct {
	verbose              bool
	maxNameLen           int
	blockingRecoveryLock bool
}

// Option configures a Store at Open time.
type Option func(*storeConfig)

// WithVerbose turns on development-mode structured logging for every
// operation the Store performs, generalizing the VERBOSE_PRINT tracing of
// the system this package implements.
func WithVerbose(v bool) Option {
	return func(c *storeConfig) { c.verbose = v }
}

// WithMaxNameLen overrides the maximum data file name length (default
// 255). Exposed mainly so tests can exercise ErrNameTooLong without
// constructing a 256-byte name.
func WithMaxNameLen(n int) Option {
	return func(c *storeConfig) { c.maxNameLen = n }
}

// WithBlockingRecoveryLock controls whether a standalone apply pass (one
// not already holding the target file's lock, e.g. from Store.Clean)
// blocks waiting for the lock or fails immediately if another process
// holds it. Default true, matching Store.OpenFile's own blocking
// acquisition.
func WithBlockingRecoveryLock(blocking bool) Option {
	return func(c *storeConfig) { c.blockingRecoveryLock = blocking }
}

func defaultConfig() *storeConfig {
	return &storeConfig{
		verbose:              false,
		maxNameLen:           maxNameLenDefault,
		blockingRecoveryLock: true,
	}
}

// Store is the top-level object bound to a managed directory: the entry
// point for opening files, running recovery, and removing files.
type Store struct {
	dir    string
	config *storeConfig
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle // name -> open handle; maintained by OpenFile/Close, not read by Clean
}

// Open resolves dir, ensures it exists, and returns a Store bound to it.
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	var logger *zap.Logger
	var err error
	if cfg.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	if err != nil {
		return nil, fmt.Errorf("gtfs: building logger: %w", err)
	}

	s := &Store{
		dir:     dir,
		config:  cfg,
		logger:  logger.With(zap.String("dir", dir)),
		handles: make(map[string]*Handle),
	}
	s.logger.Debug("store opened")
	return s, nil
}

// Dir returns the store's managed directory.
func (s *Store) Dir() string { return s.dir }
