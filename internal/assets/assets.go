// Package assets resolves asset paths against directories and MPAK archives.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/meshforge/internal/config"
	"github.com/Faultbox/meshforge/pkg/encoding"
	"github.com/Faultbox/meshforge/pkg/pak"
)

// ErrNotFound is returned when no source holds the requested path.
var ErrNotFound = errors.New("asset not found")

// Source is one place assets can be read from.
type Source interface {
	Name() string
	// Read returns the content of path or an error wrapping ErrNotFound.
	Read(path string) ([]byte, error)
	// List returns every path the source holds, slash separated.
	List() ([]string, error)
	Close() error
}

// Manager reads assets from a stack of sources.
// Sources are searched in reverse order (last added = highest priority).
type Manager struct {
	sources []Source
	cache   *Cache[[]byte]
	log     *zap.Logger
	mu      sync.RWMutex
}

// NewManager creates a manager. With cache set, loaded bytes are kept until
// Close or Forget.
func NewManager(cache bool, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{log: log}
	if cache {
		m.cache = NewCache[[]byte]()
	}
	return m
}

// FromConfig creates a manager over the configured directories and archives.
func FromConfig(cfg config.SourcesConfig, cache bool, log *zap.Logger) (*Manager, error) {
	m := NewManager(cache, log)
	for _, dir := range cfg.Dirs {
		if err := m.AddDir(dir); err != nil {
			m.Close()
			return nil, err
		}
	}
	for _, path := range cfg.Paks {
		if err := m.AddArchive(path); err != nil {
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

// AddSource pushes s on top of the search stack.
func (m *Manager) AddSource(s Source) {
	m.mu.Lock()
	m.sources = append(m.sources, s)
	m.mu.Unlock()
	m.log.Debug("added source", zap.String("source", s.Name()))
}

// AddDir adds a directory source.
func (m *Manager) AddDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("adding directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding directory %s: not a directory", dir)
	}
	m.AddSource(&dirSource{root: dir})
	return nil
}

// AddArchive opens an MPAK archive and adds it as a source.
func (m *Manager) AddArchive(path string) error {
	archive, err := pak.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", path, err)
	}
	m.AddSource(&pakSource{name: path, archive: archive})
	return nil
}

// Load returns the content of path from the highest priority source that
// holds it.
func (m *Manager) Load(path string) ([]byte, error) {
	key := encoding.NormalizePath(path)
	if m.cache != nil {
		if data, ok := m.cache.Get(key); ok {
			return data, nil
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.sources) - 1; i >= 0; i-- {
		data, err := m.sources[i].Read(path)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.sources[i].Name(), err)
		}
		if m.cache != nil {
			m.cache.Set(key, data)
		}
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Forget drops path from the cache.
func (m *Manager) Forget(path string) {
	if m.cache != nil {
		m.cache.Delete(encoding.NormalizePath(path))
	}
}

// List returns the union of every source's paths, normalized and sorted.
func (m *Manager) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, s := range m.sources {
		names, err := s.List()
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", s.Name(), err)
		}
		for _, n := range names {
			seen[encoding.NormalizePath(n)] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Sources returns source names in search order.
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.sources))
	for i := len(m.sources) - 1; i >= 0; i-- {
		out = append(out, m.sources[i].Name())
	}
	return out
}

// CacheStats returns cache hits and misses, zero when caching is off.
func (m *Manager) CacheStats() (hits, misses int) {
	if m.cache == nil {
		return 0, 0
	}
	return m.cache.Stats()
}

// Close closes all sources and clears the cache.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, s := range m.sources {
		err = multierr.Append(err, s.Close())
	}
	m.sources = nil
	if m.cache != nil {
		m.cache.Clear()
	}
	return err
}

type dirSource struct {
	root string
}

func (d *dirSource) Name() string { return d.root }

func (d *dirSource) Read(path string) ([]byte, error) {
	rel := strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "./")
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

func (d *dirSource) List() ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

func (d *dirSource) Close() error { return nil }

type pakSource struct {
	name    string
	archive *pak.Archive
}

func (p *pakSource) Name() string { return p.name }

func (p *pakSource) Read(path string) ([]byte, error) {
	data, err := p.archive.Read(path)
	if errors.Is(err, pak.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

func (p *pakSource) List() ([]string, error) { return p.archive.List(), nil }

func (p *pakSource) Close() error { return p.archive.Close() }
