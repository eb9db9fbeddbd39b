// Package events 將訂單變動即時推送給看板
package events

import (
	"sync"
	"time"

	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

// OrdersUpdate 訂單建立、更新、刪除事件
const OrdersUpdate = "orders:update"

// Broadcaster 即發即忘的事件推送
type Broadcaster interface {
	Emit(eventType string, payload interface{})
}

// Event 推送給訂閱者的事件
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub 事件分發中心；訂閱者接收過慢時丟棄事件，不阻塞發送端
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	buffer      int
	emitted     int64
	dropped     int64
	closed      bool
}

// NewHub 創建事件分發中心，buffer 為每個訂閱者的緩衝大小
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subscribers: make(map[string]chan Event),
		buffer:      buffer,
	}
}

// Emit 推送事件給所有訂閱者
func (h *Hub) Emit(eventType string, payload interface{}) {
	evt := Event{
		ID:        common.GenerateUUID(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.emitted++

	for id, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.dropped++
			common.LogWarn("事件訂閱者緩衝已滿，丟棄事件",
				zap.String("subscriber_id", id),
				zap.String("event_type", eventType),
			)
		}
	}
}

// Subscribe 訂閱事件；呼叫回傳的 cancel 以取消訂閱
func (h *Hub) Subscribe() (<-chan Event, func()) {
	id := common.GenerateUUID()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[id] = ch
	h.mu.Unlock()

	common.LogDebug("Event subscriber added", zap.String("subscriber_id", id))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Stats 統計
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"subscribers": len(h.subscribers),
		"emitted":     h.emitted,
		"dropped":     h.dropped,
	}
}

// Close 關閉所有訂閱
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Nop 不推送任何事件
type Nop struct{}

// Emit 忽略事件
func (Nop) Emit(string, interface{}) {}
