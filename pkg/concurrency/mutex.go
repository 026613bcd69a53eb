package concurrency

import (
	"sync"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
)

// slowLockThreshold is how long a lock acquisition can take before it's
// logged as contended. Set low enough to catch real contention in tests
// without flooding logs under normal load.
const slowLockThreshold = 100 * time.Millisecond

// MutexConfig names a mutex for diagnostics.
type MutexConfig struct {
	// Name identifies the mutex in contention logs.
	Name string
}

// SmartMutex is a sync.Mutex that logs when acquiring the lock takes longer
// than slowLockThreshold, to surface contention hot spots without requiring
// a profiler.
type SmartMutex struct {
	mu   sync.Mutex
	name string
}

// NewSmartMutex creates a named mutex.
func NewSmartMutex(cfg MutexConfig) *SmartMutex {
	return &SmartMutex{name: cfg.Name}
}

func (m *SmartMutex) Lock() {
	start := time.Now()
	m.mu.Lock()
	if waited := time.Since(start); waited > slowLockThreshold {
		logger.L().Warn("lock contention", "mutex", m.name, "waited", waited)
	}
}

func (m *SmartMutex) Unlock() {
	m.mu.Unlock()
}

func (m *SmartMutex) TryLock() bool {
	return m.mu.TryLock()
}

// SmartRWMutex is a sync.RWMutex with the same contention logging as
// SmartMutex.
type SmartRWMutex struct {
	mu   sync.RWMutex
	name string
}

// NewSmartRWMutex creates a named read/write mutex.
func NewSmartRWMutex(cfg MutexConfig) *SmartRWMutex {
	return &SmartRWMutex{name: cfg.Name}
}

func (m *SmartRWMutex) Lock() {
	start := time.Now()
	m.mu.Lock()
	if waited := time.Since(start); waited > slowLockThreshold {
		logger.L().Warn("write lock contention", "mutex", m.name, "waited", waited)
	}
}

func (m *SmartRWMutex) Unlock() {
	m.mu.Unlock()
}

func (m *SmartRWMutex) RLock() {
	start := time.Now()
	m.mu.RLock()
	if waited := time.Since(start); waited > slowLockThreshold {
		logger.L().Warn("read lock contention", "mutex", m.name, "waited", waited)
	}
}

func (m *SmartRWMutex) RUnlock() {
	m.mu.RUnlock()
}
