// Package daemon runs background sync for the local store.
//
// The daemon:
// 1. Watches the directory holding the database for writes
// 2. Syncs all entity types once writes settle (debounced)
// 3. Syncs periodically regardless of writes
// 4. Handles graceful shutdown
//
// Settled writes only trigger a sync when the store's edit revision moved
// since the last sync started, so the sync's own writes (id migration, the
// synced flag) do not retrigger it while user edits made during a sync do.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	qsync "github.com/questlog/questlog/internal/sync"
)

// Target is what the daemon syncs. *app.App satisfies it.
type Target interface {
	SyncAll(ctx context.Context) ([]*qsync.Result, error)
	Authenticated() bool
	LocalRevision(ctx context.Context) (int64, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval is how often to sync even without local writes
	Interval time.Duration

	// DebounceInterval is how long writes must be quiet before syncing.
	// This batches rapid updates together
	DebounceInterval time.Duration

	// SyncOnStart runs one sync before watching
	SyncOnStart bool

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		SyncOnStart:      true,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates file watching and backend synchronization.
type Daemon struct {
	target Target
	dbPath string
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> last write
	changeQueueMu sync.Mutex

	syncMu    sync.Mutex
	syncedRev atomic.Int64 // revision the last sync started from, -1 if none
	syncs     atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon that syncs target whenever the database at dbPath
// changes.
func New(target Target, dbPath string) (*Daemon, error) {
	return NewWithConfig(target, dbPath, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(target Target, dbPath string, config *Config) (*Daemon, error) {
	if target == nil {
		return nil, fmt.Errorf("target cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		target:      target,
		dbPath:      dbPath,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}
	d.syncedRev.Store(-1)
	return d, nil
}

// Start runs the daemon. It blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.config.SyncOnStart {
		d.TriggerSync("startup")
	}

	dir := filepath.Dir(d.dbPath)
	if err := d.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	d.config.Logger.Printf("Watching: %s (interval %v, debounce %v)", dir, d.config.Interval, d.config.DebounceInterval)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. Safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// SyncCount returns the number of syncs run so far.
func (d *Daemon) SyncCount() int64 {
	return d.syncs.Load()
}

// TriggerSync runs one sync of every entity type. Runs never overlap.
func (d *Daemon) TriggerSync(reason string) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	// Writes queued so far are covered by this run; later ones stay queued.
	d.clearQueue()

	if !d.target.Authenticated() {
		d.config.Logger.Printf("Skipping %s sync: not logged in", reason)
		return
	}

	rev, err := d.target.LocalRevision(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Warning: failed to read store revision: %v", err)
		rev = -1
	}
	defer d.syncedRev.Store(rev)

	d.config.Logger.Printf("Sync (%s)", reason)
	d.syncs.Add(1)
	results, err := d.target.SyncAll(d.ctx)
	for _, r := range results {
		for _, msg := range r.Errors {
			d.config.Logger.Printf("Warning: %s", msg)
		}
	}
	var partial *qsync.PartialError
	switch {
	case err == nil:
		d.config.Logger.Printf("Sync complete")
	case errors.As(err, &partial):
		d.config.Logger.Printf("Sync finished with errors: %v", err)
	default:
		d.config.Logger.Printf("Error syncing: %v", err)
	}
}

// isStoreFile reports whether path is the database or one of its WAL files.
func (d *Daemon) isStoreFile(path string) bool {
	base := filepath.Base(d.dbPath)
	name := filepath.Base(path)
	return name == base || strings.HasPrefix(name, base+"-")
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !d.isStoreFile(event.Name) {
				continue
			}
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a write with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

func (d *Daemon) clearQueue() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	for path := range d.changeQueue {
		delete(d.changeQueue, path)
	}
}

// processChangeQueue syncs once queued writes have been quiet long enough.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	tick := d.config.DebounceInterval / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if !d.settled() {
				continue
			}
			if d.edited() {
				d.TriggerSync("local change")
			} else {
				d.clearQueue()
			}
		}
	}
}

// settled reports whether writes are queued and the newest is older than
// the debounce interval.
func (d *Daemon) settled() bool {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	if len(d.changeQueue) == 0 {
		return false
	}
	now := time.Now()
	for _, at := range d.changeQueue {
		if now.Sub(at) < d.config.DebounceInterval {
			return false
		}
	}
	return true
}

// edited reports whether the store changed since the last sync started.
// An unreadable revision counts as a change.
func (d *Daemon) edited() bool {
	last := d.syncedRev.Load()
	if last < 0 {
		return true
	}
	rev, err := d.target.LocalRevision(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Warning: failed to read store revision: %v", err)
		return true
	}
	return rev != last
}

// periodicSync syncs on a fixed interval.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.TriggerSync("interval")
		}
	}
}
