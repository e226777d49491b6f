package importer

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/meshforge/internal/assets"
	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/internal/prefab"
	"github.com/Faultbox/meshforge/pkg/encoding"
)

// ErrImportAborted is returned to callers waiting on an import that panicked.
var ErrImportAborted = errors.New("import aborted")

type result struct {
	prefab *prefab.Prefab
	report *diag.Report
}

type call struct {
	done chan struct{}
	res  result
	err  error
}

// Context caches imported prefabs by path. Concurrent loads of one path run
// the importer once; the other callers wait for its result. Cached prefabs
// are shared and must not be modified.
type Context struct {
	importer *Importer
	log      *zap.Logger

	mu       sync.RWMutex
	cache    *assets.Cache[result]
	inflight map[string]*call
}

// NewContext creates a prefab cache over importer.
func NewContext(importer *Importer, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{
		importer: importer,
		log:      log,
		cache:    assets.NewCache[result](),
		inflight: make(map[string]*call),
	}
}

// Load returns the prefab for path, importing it on first use. Failed
// imports are not cached.
func (c *Context) Load(path string) (*prefab.Prefab, *diag.Report, error) {
	key := encoding.NormalizePath(path)

	c.mu.RLock()
	r, ok := c.cache.Get(key)
	c.mu.RUnlock()
	if ok {
		return r.prefab, r.report, nil
	}

	c.mu.Lock()
	if r, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		return r.prefab, r.report, nil
	}
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-cl.done
		return cl.res.prefab, cl.res.report, cl.err
	}
	cl := &call{done: make(chan struct{}), err: ErrImportAborted}
	c.inflight[key] = cl
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		if cl.err == nil {
			c.cache.Set(key, cl.res)
		}
		c.mu.Unlock()
		close(cl.done)
	}()

	cl.res.prefab, cl.res.report, cl.err = c.importer.Import(path)

	if cl.err != nil {
		c.log.Warn("import failed", zap.String("path", path), zap.Error(cl.err))
	}
	return cl.res.prefab, cl.res.report, cl.err
}

// Release drops path from the cache and reports whether it was cached.
func (c *Context) Release(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Delete(encoding.NormalizePath(path))
}

// ReleaseAll empties the cache.
func (c *Context) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Clear()
}

// Len returns the number of cached prefabs.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Len()
}
