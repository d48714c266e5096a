// Package workbooks is the sheet loader: it resolves a source, parses it into
// a table.Workbook, and caches parsed workbooks per source identity.
package workbooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinodismyname/sheetboard/config"
	"github.com/vinodismyname/sheetboard/internal/security"
	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Entry is a cached, parsed workbook paired with metadata for TTL eviction.
// The workbook is immutable and may be shared by any number of sessions.
type Entry struct {
	Key      string
	Name     string
	Workbook *table.Workbook
	LoadedAt time.Time

	mu        sync.Mutex
	expiresAt time.Time
	lastUsed  time.Time
}

func (e *Entry) touch(now time.Time, ttl time.Duration) {
	e.mu.Lock()
	e.lastUsed = now
	e.expiresAt = now.Add(ttl)
	e.mu.Unlock()
}

func (e *Entry) stamps() (lastUsed, expiresAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed, e.expiresAt
}

// WorkbookGate coordinates capacity for cached workbooks (backed by runtime.Controller).
type WorkbookGate interface {
	AcquireWorkbook(ctx context.Context) error
	ReleaseWorkbook()
}

// PathValidator abstracts filesystem path validation. Implementations should
// return a canonical absolute path if allowed, or an error when denied.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// LoadObserver is notified of every load outcome ("hit", "miss", "error").
type LoadObserver func(result string)

// Manager resolves sources and owns the parsed-workbook cache.
type Manager struct {
	mu           sync.RWMutex
	entries      map[string]*Entry
	ttl          time.Duration
	cleanupEvery time.Duration
	maxEntries   int
	clock        func() time.Time
	gate         WorkbookGate
	stopCh       chan struct{}
	stopOnce     sync.Once
	cleanupWG    sync.WaitGroup
	validator    PathValidator
	dataDir      string
	hints        []string
	maxUpload    int64
	observe      LoadObserver
}

// NewManager constructs a loader with a TTL-bearing cache of at most
// maxEntries workbooks. Pass ttl, cleanupEvery or maxEntries <= 0 to use
// defaults from config. Gate can be nil for tests; clock defaults to time.Now.
func NewManager(ttl, cleanupEvery time.Duration, maxEntries int, gate WorkbookGate, clock func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultWorkbookIdleTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = config.DefaultWorkbookCleanupPeriod
	}
	if maxEntries <= 0 {
		maxEntries = config.DefaultMaxCachedWorkbooks
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		entries:      make(map[string]*Entry),
		ttl:          ttl,
		cleanupEvery: cleanupEvery,
		maxEntries:   maxEntries,
		clock:        clock,
		gate:         gate,
		stopCh:       make(chan struct{}),
		dataDir:      config.DefaultDataDir,
		hints:        config.DefaultSourceHints,
		maxUpload:    config.DefaultMaxUploadBytes,
	}
}

// SetValidator installs the allow-list check applied to explicit and
// discovered paths.
func (m *Manager) SetValidator(v PathValidator) { m.validator = v }

// SetDiscovery configures the directory and filename hints used when a load
// names no source.
func (m *Manager) SetDiscovery(dir string, hints []string) {
	if dir != "" {
		m.dataDir = dir
	}
	if len(hints) > 0 {
		m.hints = hints
	}
}

// SetMaxUploadBytes bounds the size of uploaded workbooks.
func (m *Manager) SetMaxUploadBytes(n int64) {
	if n > 0 {
		m.maxUpload = n
	}
}

// SetObserver registers a callback for load outcomes, used for metrics.
func (m *Manager) SetObserver(fn LoadObserver) { m.observe = fn }

// Start launches periodic eviction of expired entries.
func (m *Manager) Start() {
	m.cleanupWG.Add(1)
	ticker := time.NewTicker(m.cleanupEvery)
	go func() {
		defer m.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops background cleanup and drops every cached entry.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	done := make(chan struct{})
	go func() { m.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		delete(m.entries, key)
		m.release()
	}
	return nil
}

// ErrEntryNotFound indicates an unknown or expired cache key.
var ErrEntryNotFound = errors.New("workbooks: entry not found")

// Load resolves src, returning the cached workbook for its identity or
// parsing it on a miss. A failed load never leaves a partial entry behind.
func (m *Manager) Load(ctx context.Context, src Source) (*Entry, error) {
	entry, hit, err := m.load(ctx, src)
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	if m.observe != nil {
		m.observe(result)
	}
	log := zerolog.Ctx(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", src.Label()).Msg("workbook load failed")
		return nil, err
	}
	log.Debug().Str("source", entry.Name).Str("key", entry.Key).Bool("cache_hit", hit).Int("sheets", entry.Workbook.Len()).Msg("workbook loaded")
	return entry, nil
}

func (m *Manager) load(ctx context.Context, src Source) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	name := src.Label()
	var (
		key   string
		parse func() (*table.Workbook, error)
	)
	if src.IsUpload() {
		if int64(len(src.Data)) > m.maxUpload {
			return nil, false, fmt.Errorf("workbooks: %s is %d bytes, limit %d: %w", name, len(src.Data), m.maxUpload, dasherr.ErrUploadTooLarge)
		}
		key = dataKey(src.Data)
		data := src.Data
		parse = func() (*table.Workbook, error) { return ParseBytes(name, data) }
	} else {
		path := src.Path
		if path == "" {
			found, err := Discover(m.dataDir, m.hints)
			if err != nil {
				return nil, false, err
			}
			path = found
		}
		canonical, err := m.validatePath(path)
		if err != nil {
			return nil, false, err
		}
		if src.Name == "" {
			name = Source{Path: canonical}.Label()
		}
		key, err = fileKey(canonical)
		if err != nil {
			return nil, false, dasherr.NewNotFound(path, err)
		}
		parse = func() (*table.Workbook, error) { return ParseFile(canonical) }
	}

	if e, ok := m.Get(key); ok {
		return e, true, nil
	}

	m.makeRoom()
	if err := m.acquire(ctx); err != nil {
		return nil, false, err
	}
	wb, err := parse()
	if err != nil {
		m.release()
		return nil, false, err
	}
	now := m.clock()
	e := &Entry{Key: key, Name: name, Workbook: wb, LoadedAt: now, lastUsed: now, expiresAt: now.Add(m.ttl)}

	m.mu.Lock()
	if existing, ok := m.entries[key]; ok {
		// A concurrent load of the same source won.
		m.mu.Unlock()
		m.release()
		existing.touch(now, m.ttl)
		return existing, true, nil
	}
	m.entries[key] = e
	m.mu.Unlock()
	return e, false, nil
}

func (m *Manager) validatePath(path string) (string, error) {
	if m.validator == nil {
		return path, nil
	}
	canonical, err := m.validator.ValidateOpenPath(path)
	if err != nil {
		if errors.Is(err, security.ErrNotFound) {
			return "", dasherr.NewNotFound(path, err)
		}
		return "", err
	}
	return canonical, nil
}

// Get returns the entry when present and refreshes its TTL.
func (m *Manager) Get(key string) (*Entry, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	// Refresh TTL on access (idle timeout semantics)
	e.touch(m.clock(), m.ttl)
	return e, true
}

// Evict removes one entry by key, releasing capacity via the gate.
func (m *Manager) Evict(key string) error {
	m.mu.Lock()
	_, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	if !ok {
		return ErrEntryNotFound
	}
	m.release()
	return nil
}

// makeRoom evicts least-recently-used entries until one slot is free.
func (m *Manager) makeRoom() {
	for {
		m.mu.RLock()
		if len(m.entries) < m.maxEntries {
			m.mu.RUnlock()
			return
		}
		var (
			oldestKey string
			oldest    time.Time
		)
		for key, e := range m.entries {
			used, _ := e.stamps()
			if oldestKey == "" || used.Before(oldest) {
				oldestKey, oldest = key, used
			}
		}
		m.mu.RUnlock()
		if err := m.Evict(oldestKey); err != nil {
			// Removed concurrently; re-check capacity.
			continue
		}
	}
}

// EvictExpired scans for expired entries and drops them.
func (m *Manager) EvictExpired() {
	now := m.clock()
	var expired []string

	m.mu.RLock()
	for key, e := range m.entries {
		if _, exp := e.stamps(); now.After(exp) {
			expired = append(expired, key)
		}
	}
	m.mu.RUnlock()

	for _, key := range expired {
		_ = m.Evict(key)
	}
}

// Count returns the current number of cached workbooks.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.gate == nil {
		return nil
	}
	return m.gate.AcquireWorkbook(ctx)
}

func (m *Manager) release() {
	if m.gate == nil {
		return
	}
	m.gate.ReleaseWorkbook()
}
