package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

// Message 佇列中的外送訊息
type Message struct {
	To     string
	Text   string
	OnDone func(error)
}

// Status 佇列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
	ProcessedCount int64 `json:"processed_count"`
	FailedCount    int64 `json:"failed_count"`
}

// Outbox 外送訊息佇列，由固定數量的 worker 傳送；失敗只記錄不往上拋
type Outbox struct {
	sender      Sender
	queue       chan *Message
	workers     int
	sendTimeout time.Duration
	processed   int64
	failed      int64
	mu          sync.RWMutex
	closed      bool
	wg          sync.WaitGroup
}

// NewOutbox 創建外送訊息佇列並啟動 worker
func NewOutbox(sender Sender, workers, queueSize int, sendTimeout time.Duration) *Outbox {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}

	o := &Outbox{
		sender:      sender,
		queue:       make(chan *Message, queueSize),
		workers:     workers,
		sendTimeout: sendTimeout,
	}
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}

	common.LogInfo("外送訊息佇列已啟動",
		zap.Int("workers", workers),
		zap.Int("max_queue_size", queueSize),
	)
	return o
}

// Enqueue 將訊息加入佇列；onDone 於傳送完成後在 worker 中呼叫，可為 nil
func (o *Outbox) Enqueue(to, text string, onDone func(error)) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return common.ErrQueueClosed
	}

	select {
	case o.queue <- &Message{To: to, Text: text, OnDone: onDone}:
		common.LogDebug("Message enqueued",
			zap.String("to", to),
			zap.Int("queue_length", len(o.queue)),
		)
		return nil
	default:
		common.LogWarn("Outbound queue is full",
			zap.String("to", to),
			zap.Int("max_queue_size", cap(o.queue)),
		)
		return common.ErrQueueFull
	}
}

// worker 逐一傳送訊息
func (o *Outbox) worker(id int) {
	defer o.wg.Done()

	for msg := range o.queue {
		err := o.send(msg)
		if err != nil {
			atomic.AddInt64(&o.failed, 1)
			common.LogSendFailure(msg.To, err)
		} else {
			atomic.AddInt64(&o.processed, 1)
		}

		if msg.OnDone != nil {
			o.callback(id, msg, err)
		}
	}
}

func (o *Outbox) send(msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			common.LogError("Sender panicked", zap.Any("panic", r))
			err = common.ErrInternalError
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), o.sendTimeout)
	defer cancel()
	return o.sender.SendMessage(ctx, msg.To, msg.Text)
}

func (o *Outbox) callback(workerID int, msg *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			common.LogError("Outbound callback panicked",
				zap.Int("worker_id", workerID),
				zap.String("to", msg.To),
				zap.Any("panic", r),
			)
		}
	}()
	msg.OnDone(err)
}

// Status 佇列狀態
func (o *Outbox) Status() *Status {
	return &Status{
		QueueLength:    len(o.queue),
		MaxQueueSize:   cap(o.queue),
		Workers:        o.workers,
		ProcessedCount: atomic.LoadInt64(&o.processed),
		FailedCount:    atomic.LoadInt64(&o.failed),
	}
}

// Close 停止接收新訊息並等待佇列送完
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	o.wg.Wait()
	common.LogInfo("外送訊息佇列已關閉",
		zap.Int64("processed_count", atomic.LoadInt64(&o.processed)),
		zap.Int64("failed_count", atomic.LoadInt64(&o.failed)),
	)
}
