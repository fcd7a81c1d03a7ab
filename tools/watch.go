package tools

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/becomeliminal/nim-orchestrator/core"
)

// Catalog keeps the latest capability snapshot for listing endpoints.
// The decision loop always calls Registry.Discover directly; Catalog only
// saves read-only surfaces from rescanning the disk on every request.
type Catalog struct {
	registry *Registry
	debounce time.Duration

	mu       sync.RWMutex
	snapshot []core.ToolDescriptor
	updated  time.Time
}

// NewCatalog creates a catalog and takes an initial snapshot.
func NewCatalog(ctx context.Context, registry *Registry) *Catalog {
	c := &Catalog{registry: registry, debounce: 250 * time.Millisecond}
	c.Refresh(ctx)
	return c
}

// Snapshot returns the cached descriptors.
func (c *Catalog) Snapshot() []core.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]core.ToolDescriptor(nil), c.snapshot...)
}

// Updated reports when the snapshot was last taken.
func (c *Catalog) Updated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// Refresh rescans the registry. On failure the previous snapshot is kept.
func (c *Catalog) Refresh(ctx context.Context) {
	snapshot, err := c.registry.Discover(ctx)
	if err != nil {
		log.Printf("[TOOLS] Catalog refresh failed: %v", err)
		return
	}
	c.mu.Lock()
	c.snapshot = snapshot
	c.updated = time.Now()
	c.mu.Unlock()
}

// Watch refreshes the catalog whenever the capability root or one of its
// capability directories changes. It returns once the watcher is running and
// stops when ctx is cancelled. A missing root is created so it can be watched.
func (c *Catalog) Watch(ctx context.Context) error {
	root := c.registry.Root()
	if root == "" {
		return nil
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return err
	}
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if e.IsDir() {
			watcher.Add(filepath.Join(root, e.Name()))
		}
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// New capability directories need their own watch so that a
				// later meta.json or entry point write is noticed.
				if event.Op.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(root) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						watcher.Add(event.Name)
					}
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(c.debounce, func() {
					log.Printf("[TOOLS] Capability change detected: %s", event.Name)
					c.Refresh(ctx)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[TOOLS] Watcher error: %v", err)
			}
		}
	}()
	return nil
}
