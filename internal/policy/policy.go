// Package policy provides the per-era access policy table: how many passes a
// content unit costs and whether it is exclusive (never pass-accessible). The
// table is authored as a YAML file and treated as read-only data by the rest
// of the service; changes take effect through reloads, never through writes.
package policy

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/flotilla-games/entitlement-service/internal/safego"
)

// UnitPolicy is the access policy for one content unit.
type UnitPolicy struct {
	// PassesRequired is the pass cost of one consumption. Zero means free.
	PassesRequired int `mapstructure:"passes_required"`
	// Exclusive units can never be entered with passes, only owned outright.
	Exclusive bool `mapstructure:"exclusive"`
}

// Cache holds the parsed policy table with a TTL and an fsnotify watcher.
// Reads are served from memory; a stale table is re-read from disk lazily on
// the next Get, and a file change triggers an immediate reload. Units absent
// from the file get the fallback policy.
type Cache struct {
	path     string
	ttl      time.Duration
	fallback UnitPolicy

	mu       sync.RWMutex
	units    map[string]UnitPolicy
	loadedAt time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCache loads the policy file and starts watching it for changes. An empty
// path is allowed and yields a fallback-only cache with no watcher, which
// suits tests and minimal deployments.
func NewCache(path string, ttl time.Duration, fallback UnitPolicy) (*Cache, error) {
	c := &Cache{
		path:     path,
		ttl:      ttl,
		fallback: fallback,
		units:    map[string]UnitPolicy{},
		done:     make(chan struct{}),
	}

	if path == "" {
		c.loadedAt = time.Now()
		return c, nil
	}

	if err := c.reload(); err != nil {
		return nil, fmt.Errorf("failed to load policy file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create policy watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch policy file: %w", err)
	}
	c.watcher = watcher

	safego.Go(c.watch)

	return c, nil
}

// Get returns the policy for a unit, re-reading the file first if the cached
// table is older than the TTL. Unknown units get the fallback.
func (c *Cache) Get(unit string) UnitPolicy {
	c.mu.RLock()
	stale := c.path != "" && c.ttl > 0 && time.Since(c.loadedAt) > c.ttl
	c.mu.RUnlock()

	if stale {
		if err := c.reload(); err != nil {
			slog.Warn("policy reload failed, serving cached table", "error", err)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.units[unit]; ok {
		return p
	}
	return c.fallback
}

// Fallback returns the default policy applied to unknown units.
func (c *Cache) Fallback() UnitPolicy {
	return c.fallback
}

// reload re-reads the file and swaps the table atomically.
func (c *Cache) reload() error {
	v := viper.New()
	v.SetConfigFile(c.path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	units := map[string]UnitPolicy{}
	if err := v.UnmarshalKey("units", &units); err != nil {
		return err
	}

	c.mu.Lock()
	c.units = units
	c.loadedAt = time.Now()
	c.mu.Unlock()

	slog.Debug("policy table loaded", "path", c.path, "units", len(units))
	return nil
}

// watch reloads the table when the file changes. Editors often replace files
// rather than write in place, so the path is re-added after rename/remove.
func (c *Cache) watch() {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := c.reload(); err != nil {
					slog.Warn("policy reload on file change failed", "error", err)
				}
			}
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				if err := c.watcher.Add(c.path); err != nil {
					slog.Warn("policy file re-watch failed", "error", err)
				}
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("policy watcher error", "error", err)
		}
	}
}

// Close stops the watcher. Safe to call on a fallback-only cache.
func (c *Cache) Close() error {
	close(c.done)
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
