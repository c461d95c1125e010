// Package cache implements the artifact cache of a fit cycle: a directory of
// gob-encoded payloads keyed by case, estimator and role. Writes are atomic
// and never overwrite; readers either see a complete payload or a not-found
// error. Completion of a write is also signalled on a per-key channel, which
// the fsnotify watcher extends to writes made by other processes.
package cache

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
	"github.com/YuminosukeSato/mlstack/pkg/telemetry"
)

// DefaultMemoTTL is how long decoded payloads stay memoized.
const DefaultMemoTTL = 10 * time.Minute

const tempPrefix = ".tmp-"

// ErrNotFound is returned (wrapped) by Load when a key has not been written.
var ErrNotFound = errors.New("artifact not found in cache")

// IsNotFound reports whether err means that an artifact does not exist yet.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

type signal struct {
	ch   chan struct{}
	once sync.Once
	err  error
}

func (s *signal) fire() {
	s.once.Do(func() { close(s.ch) })
}

// Cache is a directory-backed artifact store. It is safe for concurrent use.
type Cache struct {
	dir    string
	owned  bool
	logger log.Logger

	memo *ttlcache.Cache[string, any]

	mu      sync.Mutex
	signals map[string]*signal
	watcher *fsnotify.Watcher
	closed  bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger  log.Logger
	memoTTL time.Duration
}

// WithLogger sets the logger of the cache.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMemoTTL sets how long decoded payloads are memoized. Zero disables
// memoization.
func WithMemoTTL(d time.Duration) Option {
	return func(o *options) {
		o.memoTTL = d
	}
}

// New opens (creating if needed) the cache directory dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory %s", dir)
	}
	return newCache(dir, false, opts)
}

// NewTemp creates a fresh cache directory named after a new cycle id under
// parent (os.TempDir() if empty). Remove deletes it.
func NewTemp(parent string, opts ...Option) (*Cache, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	dir := filepath.Join(parent, "mlstack-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory %s", dir)
	}
	return newCache(dir, true, opts)
}

func newCache(dir string, owned bool, opts []Option) (*Cache, error) {
	o := options{memoTTL: DefaultMemoTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}

	c := &Cache{
		dir:     dir,
		owned:   owned,
		logger:  o.logger.With(log.ComponentKey, "cache", log.CacheDirKey, dir),
		signals: make(map[string]*signal),
	}
	if o.memoTTL > 0 {
		c.memo = ttlcache.New(
			ttlcache.WithTTL[string, any](o.memoTTL),
		)
		go c.memo.Start()
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file path of key.
func (c *Cache) Path(key Key) string {
	return filepath.Join(c.dir, key.Filename())
}

// Exists reports whether key has been written.
func (c *Cache) Exists(key Key) bool {
	_, err := os.Stat(c.Path(key))
	return err == nil
}

// Save persists payload under key. The payload is encoded to a temporary
// file, synced and linked into place, so it is durable and complete when
// Save returns. Saving a key twice fails with errors.ErrArtifactExists.
func (c *Cache) Save(key Key, payload any) (err error) {
	defer func() { telemetry.RecordCacheOp(telemetry.CacheSave, err) }()

	path := c.Path(key)
	tmp, err := os.CreateTemp(c.dir, tempPrefix+key.Filename()+"-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %s", key)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := bufio.NewWriter(tmp)
	if err := model.Encode(w, payload); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to save %s", key)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to write %s", key)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", key)
	}

	// link fails if the target exists, which keeps one writer per key
	if err := os.Link(tmpName, path); err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(errors.ErrArtifactExists, "%s", path)
		}
		return errors.Wrapf(err, "failed to publish %s", key)
	}

	c.logger.Debug("artifact saved", log.CacheFileKey, key.Filename())
	c.signalFor(key.Filename()).fire()
	return nil
}

// Load reads the artifact stored under key into a value of type T. It
// returns an error satisfying IsNotFound if the key does not exist.
func Load[T any](c *Cache, key Key) (T, error) {
	var zero T
	name := key.Filename()

	if c.memo != nil {
		if item := c.memo.Get(name); item != nil {
			if v, ok := item.Value().(T); ok {
				telemetry.RecordCacheHit()
				return v, nil
			}
		}
	}

	f, err := os.Open(c.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return zero, errors.Wrapf(ErrNotFound, "%s", c.Path(key))
		}
		telemetry.RecordCacheOp(telemetry.CacheLoad, err)
		return zero, errors.Wrapf(err, "failed to open %s", key)
	}
	defer f.Close()

	var v T
	if err := model.Decode(bufio.NewReader(f), &v); err != nil {
		telemetry.RecordCacheOp(telemetry.CacheLoad, err)
		return zero, errors.Wrapf(err, "failed to load %s", key)
	}
	telemetry.RecordCacheOp(telemetry.CacheLoad, nil)

	if c.memo != nil {
		c.memo.Set(name, v, ttlcache.DefaultTTL)
	}
	return v, nil
}

// Ready returns a channel that is closed once key has been written, either
// by Save on this cache or, while Watch is active, by another process.
func (c *Cache) Ready(key Key) <-chan struct{} {
	s := c.signalFor(key.Filename())
	if c.Exists(key) {
		s.fire()
	}
	return s.ch
}

func (c *Cache) signalFor(name string) *signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.signals[name]
	if !ok {
		s = &signal{ch: make(chan struct{})}
		c.signals[name] = s
	}
	return s
}

// Fail records that key will never be written because its producer failed
// and wakes everyone waiting on Ready(key).
func (c *Cache) Fail(key Key, cause error) {
	s := c.signalFor(key.Filename())
	c.mu.Lock()
	if s.err == nil {
		s.err = cause
	}
	c.mu.Unlock()
	s.fire()
}

// Failure returns the error recorded by Fail for key, if any.
func (c *Cache) Failure(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.signals[key.Filename()]; ok {
		return s.err
	}
	return nil
}

// Watch starts watching the cache directory for artifacts written by other
// processes. It stops when ctx is done or the cache is closed.
func (c *Cache) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create cache watcher")
	}
	if err := w.Add(c.dir); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "failed to watch %q", c.dir)
	}

	c.mu.Lock()
	if c.closed || c.watcher != nil {
		c.mu.Unlock()
		_ = w.Close()
		if c.closed {
			return errors.New("cache is closed")
		}
		return nil
	}
	c.watcher = w
	c.mu.Unlock()

	go c.watch(ctx, w)
	return nil
}

func (c *Cache) watch(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, tempPrefix) {
				continue
			}
			c.signalFor(name).fire()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err != nil {
				c.logger.Error("cache watcher failed", err)
			}
		case <-ctx.Done():
			c.mu.Lock()
			if c.watcher == w {
				c.watcher = nil
			}
			c.mu.Unlock()
			_ = w.Close()
			return
		}
	}
}

// Close stops the watcher and the memo. Artifacts stay on disk.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if c.memo != nil {
		c.memo.Stop()
		c.memo.DeleteAll()
	}
	if w != nil {
		return errors.Wrap(w.Close(), "failed to close cache watcher")
	}
	return nil
}

// Remove closes the cache and deletes its directory. Caches opened with
// New keep their directory; only artifact and temporary files are removed.
func (c *Cache) Remove() error {
	if err := c.Close(); err != nil {
		return err
	}
	if c.owned {
		return errors.Wrapf(os.RemoveAll(c.dir), "failed to remove %s", c.dir)
	}
	return c.clearFiles()
}

// Reset empties the cache for a new fit cycle: artifact and temporary files
// left by earlier cycles are deleted, memoized payloads are dropped and
// readiness and failure signals start over.
func (c *Cache) Reset() error {
	if err := c.clearFiles(); err != nil {
		return err
	}
	if c.memo != nil {
		c.memo.DeleteAll()
	}
	c.mu.Lock()
	c.signals = make(map[string]*signal)
	c.mu.Unlock()
	return nil
}

func (c *Cache) clearFiles() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", c.dir)
	}
	removed := 0
	for _, e := range entries {
		if !isArtifactName(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove %s", e.Name())
		}
		removed++
	}
	if removed > 0 {
		c.logger.Debug("stale artifacts removed", log.CacheFileKey, removed)
	}
	return nil
}

func isArtifactName(name string) bool {
	return strings.HasPrefix(name, tempPrefix) ||
		strings.HasSuffix(name, Separator+string(RoleTransformer)) ||
		strings.HasSuffix(name, Separator+string(RoleEstimator))
}
