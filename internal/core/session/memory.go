package session

import (
	"context"
	"sync"
	"time"

	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

// MemoryStore 記憶體對話儲存，閒置超過 ttl 的對話由背景清理移除
type MemoryStore struct {
	ttl             time.Duration
	cleanupInterval time.Duration
	mu              sync.RWMutex
	store           map[string]memoryEntry
	stats           memoryStats
	now             func() time.Time
	done            chan struct{}
	closeOnce       sync.Once
	closed          bool
}

// memoryEntry 對話條目
type memoryEntry struct {
	session      *Session
	lastActivity time.Time
}

// memoryStats 統計
type memoryStats struct {
	created   int64
	resets    int64
	evictions int64
}

// NewMemoryStore 創建記憶體對話儲存；cleanupInterval 大於 0 時啟動清理協程
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	return newMemoryStore(ttl, cleanupInterval, time.Now)
}

func newMemoryStore(ttl, cleanupInterval time.Duration, now func() time.Time) *MemoryStore {
	m := &MemoryStore{
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		store:           make(map[string]memoryEntry),
		now:             now,
		done:            make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go m.startCleanup()
	}

	common.LogInfo("對話儲存已初始化",
		zap.String("backend", "memory"),
		zap.Duration("存活時間", ttl),
		zap.Duration("清理間隔", cleanupInterval),
	)
	return m
}

// Get 取得對話副本；不存在或已過期時建立新對話
func (m *MemoryStore) Get(ctx context.Context, identity string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	now := m.now()
	entry, exists := m.store[identity]
	if exists && now.Sub(entry.lastActivity) > m.ttl {
		delete(m.store, identity)
		m.stats.evictions++
		exists = false
	}
	if !exists {
		s := New(identity)
		s.UpdatedAt = now
		entry = memoryEntry{session: s, lastActivity: now}
		m.store[identity] = entry
		m.stats.created++
	}

	entry.lastActivity = now
	m.store[identity] = entry
	return entry.session.Clone(), nil
}

// Save 以副本整份取代
func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	now := m.now()
	c := s.Clone()
	c.UpdatedAt = now
	m.store[s.Identity] = memoryEntry{session: c, lastActivity: now}
	return nil
}

// Reset 以全新的閒置對話取代
func (m *MemoryStore) Reset(ctx context.Context, identity string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	now := m.now()
	s := New(identity)
	s.UpdatedAt = now
	m.store[identity] = memoryEntry{session: s, lastActivity: now}
	m.stats.resets++
	return s.Clone(), nil
}

// startCleanup 定期清理閒置對話
func (m *MemoryStore) startCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.done:
			return
		}
	}
}

// Sweep 移除閒置超過 ttl 的對話，回傳移除數量
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count := 0
	for key, entry := range m.store {
		if now.Sub(entry.lastActivity) > m.ttl {
			delete(m.store, key)
			count++
			m.stats.evictions++
		}
	}

	if count > 0 {
		common.LogInfo("Cleaned up idle sessions",
			zap.Int("count", count),
			zap.Int64("total_evictions", m.stats.evictions),
			zap.Int("remaining_size", len(m.store)),
		)
	}
	return count
}

// Stats 對話儲存統計
func (m *MemoryStore) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"backend":   "memory",
		"size":      len(m.store),
		"created":   m.stats.created,
		"resets":    m.stats.resets,
		"evictions": m.stats.evictions,
		"ttl":       m.ttl.String(),
	}
}

// Close 停止清理協程並清空對話
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed = true
		m.store = make(map[string]memoryEntry)
		common.LogInfo("對話儲存已關閉",
			zap.Int64("建立次數", m.stats.created),
			zap.Int64("淘汰次數", m.stats.evictions),
		)
	})
	return nil
}
