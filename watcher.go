// watcher.go: Polling a values file and applying it to an object
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// WatchConfig configures a ValuesWatcher.
type WatchConfig struct {
	// PollInterval is how often the file is checked. Default: 1s
	PollInterval time.Duration

	// CacheTTL bounds how long a stat result is reused. It is capped to
	// PollInterval. Default: PollInterval / 2
	CacheTTL time.Duration

	// OnApplied is called on the loop goroutine after each batch caused by
	// a file change is published.
	OnApplied func(Batch)

	// ErrorHandler receives read and parse failures. Default: log.Printf
	ErrorHandler ErrorHandler
}

// WithDefaults applies sensible defaults to the watch configuration
func (c *WatchConfig) WithDefaults() *WatchConfig {
	config := *c
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.CacheTTL <= 0 || config.CacheTTL > config.PollInterval {
		config.CacheTTL = config.PollInterval / 2
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultErrorHandler
	}
	return &config
}

// fileStat caches file metadata between polls.
type fileStat struct {
	modTime  time.Time
	size     int64
	exists   bool
	cachedAt int64 // timecache nano timestamp
}

func (fs *fileStat) isExpired(ttl time.Duration) bool {
	return timecache.CachedTimeNano()-fs.cachedAt > int64(ttl)
}

// ValuesWatcher polls a JSON or YAML values file and, whenever it changes,
// dispatches SetAll with its content onto the loop that owns the object.
// Deleting the file leaves the object untouched.
type ValuesWatcher struct {
	config WatchConfig
	path   string
	format Format
	loop   *Loop
	obj    *Object

	mu       sync.Mutex
	lastStat fileStat
	cached   fileStat

	applied atomic.Int64

	running   atomic.Bool
	stopped   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewValuesWatcher creates a watcher for path. obj must be owned by loop.
func NewValuesWatcher(path string, loop *Loop, obj *Object, config WatchConfig) (*ValuesWatcher, error) {
	if loop == nil || obj == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "values watcher requires a loop and an object")
	}
	absPath, err := validatePath(path)
	if err != nil {
		return nil, err
	}
	format := DetectFormat(absPath)
	if format == FormatUnknown {
		return nil, errors.New(ErrCodeUnsupportedFormat, "cannot detect values format from extension").
			WithContext("path", path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ValuesWatcher{
		config:    *config.WithDefaults(),
		path:      absPath,
		format:    format,
		loop:      loop,
		obj:       obj,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Path returns the absolute path being watched.
func (w *ValuesWatcher) Path() string { return w.path }

// Applied returns how many file versions have been dispatched.
func (w *ValuesWatcher) Applied() int64 { return w.applied.Load() }

// Start begins polling. The file is checked once immediately. A stopped
// watcher cannot be restarted.
func (w *ValuesWatcher) Start() error {
	if w.stopped.Load() {
		return errors.New(ErrCodeLoopStopped, "values watcher has been stopped and cannot be restarted")
	}
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeLoopBusy, "values watcher is already running")
	}
	go w.watchLoop()
	return nil
}

// Stop stops polling and waits for the polling goroutine to exit.
func (w *ValuesWatcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeLoopStopped, "values watcher is not running")
	}
	w.stopped.Store(true)
	w.cancel()
	close(w.stopCh)
	<-w.stoppedCh
	return nil
}

// Close is an alias for Stop.
func (w *ValuesWatcher) Close() error {
	return w.Stop()
}

// IsRunning reports whether the watcher is polling.
func (w *ValuesWatcher) IsRunning() bool {
	return w.running.Load()
}

// Check polls the file once. It reports whether a new version was dispatched.
func (w *ValuesWatcher) Check() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := w.getStat()
	if err != nil && !os.IsNotExist(err) {
		return false, errors.Wrap(err, ErrCodeWatchError, "failed to stat values file").
			WithContext("path", w.path)
	}
	if !current.exists {
		w.lastStat = current
		return false, nil
	}
	if w.lastStat.exists && current.modTime.Equal(w.lastStat.modTime) && current.size == w.lastStat.size {
		return false, nil
	}

	data, err := os.ReadFile(w.path) // #nosec G304 -- path validated in NewValuesWatcher
	if err != nil {
		return false, errors.Wrap(err, ErrCodeWatchError, "failed to read values file").
			WithContext("path", w.path)
	}
	values, err := ParseValues(data, w.format)
	if err != nil {
		// Remember the broken version so it is not reparsed every poll
		w.lastStat = current
		return false, errors.Wrap(err, ErrCodeWatchError, "failed to parse values file").
			WithContext("path", w.path)
	}

	onApplied := w.config.OnApplied
	if err := w.loop.Dispatch(func() {
		if w.obj.IsDisposed() {
			return
		}
		w.obj.SetAll(values, onApplied)
	}); err != nil {
		return false, err
	}

	w.lastStat = current
	w.applied.Add(1)
	return true, nil
}

// getStat returns the cached stat or refreshes it once the TTL has passed.
func (w *ValuesWatcher) getStat() (fileStat, error) {
	if w.cached.cachedAt != 0 && !w.cached.isExpired(w.config.CacheTTL) {
		return w.cached, nil
	}

	info, err := os.Stat(w.path)
	stat := fileStat{
		cachedAt: timecache.CachedTimeNano(),
		exists:   err == nil,
	}
	if err == nil {
		stat.modTime = info.ModTime()
		stat.size = info.Size()
	}
	w.cached = stat
	return stat, err
}

// ClearCache forces the next Check to stat the file.
func (w *ValuesWatcher) ClearCache() {
	w.mu.Lock()
	w.cached = fileStat{}
	w.mu.Unlock()
}

func (w *ValuesWatcher) watchLoop() {
	defer close(w.stoppedCh)

	w.poll()
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *ValuesWatcher) poll() {
	if _, err := w.Check(); err != nil {
		w.config.ErrorHandler(err, w.path)
	}
}
