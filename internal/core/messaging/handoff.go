package messaging

import (
	"sync"
	"time"
)

// Handoff 人工協調時段：通知顧客後一段時間內，機器人不回覆該聯絡人
type Handoff struct {
	window time.Duration
	mu     sync.Mutex
	until  map[string]time.Time
	now    func() time.Time
}

// NewHandoff 創建協調時段管理；window 為 0 時停用
func NewHandoff(window time.Duration) *Handoff {
	return &Handoff{
		window: window,
		until:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// Open 開啟或延長協調時段
func (h *Handoff) Open(identity string) {
	if h.window <= 0 {
		return
	}
	key := identityKey(identity)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.until[key] = h.now().Add(h.window)
}

// Active 是否在協調時段內；過期條目順便移除
func (h *Handoff) Active(identity string) bool {
	key := identityKey(identity)

	h.mu.Lock()
	defer h.mu.Unlock()

	until, ok := h.until[key]
	if !ok {
		return false
	}
	if !h.now().Before(until) {
		delete(h.until, key)
		return false
	}
	return true
}

// Close 結束協調時段，恢復機器人回覆
func (h *Handoff) Close(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.until, identityKey(identity))
}

// Count 目前的協調時段數
func (h *Handoff) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.until)
}

// identityKey 以數字部分比對，讓 "521..." 與 "521...@c.us" 視為同一人
func identityKey(identity string) string {
	ref := ChatRef(identity)
	if ref == "@c.us" {
		return identity
	}
	return ref
}
