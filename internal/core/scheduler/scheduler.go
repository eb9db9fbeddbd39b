// Package scheduler 定期傳送促銷與售後追蹤訊息；只排入外送佇列，不碰對話狀態
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gomitas-bot/internal/core/order"
	"gomitas-bot/internal/infrastructure/config"
	"gomitas-bot/internal/pkg/common"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CustomerLister 顧客名冊
type CustomerLister interface {
	ListCustomers(ctx context.Context) ([]order.Customer, error)
}

// OrderTracker 售後追蹤需要的訂單操作
type OrderTracker interface {
	List(ctx context.Context) ([]order.Order, error)
	MarkFollowUpSent(ctx context.Context, id string, at time.Time) (*order.Order, error)
}

// Scheduler 排程器
type Scheduler struct {
	cfg       config.SchedulerConfig
	cron      *cron.Cron
	customers CustomerLister
	orders    OrderTracker
	notifier  order.Notifier
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
}

// New 創建排程器
func New(cfg config.SchedulerConfig, customers CustomerLister, orders OrderTracker, notifier order.Notifier) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cfg: cfg,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		customers: customers,
		orders:    orders,
		notifier:  notifier,
		now:       time.Now,
		inFlight:  make(map[string]bool),
	}
}

// Start 註冊並啟動排程
func (s *Scheduler) Start() error {
	if s.cfg.PromoCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.PromoCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := s.SendPromotionToAll(ctx, s.cfg.PromoText); err != nil {
				common.LogError("Weekly promotion failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("invalid promo cron %q: %w", s.cfg.PromoCron, err)
		}
	}

	if s.cfg.FollowUpCron != "" && s.cfg.FollowUpDelay > 0 {
		if _, err := s.cron.AddFunc(s.cfg.FollowUpCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			s.RunFollowUps(ctx)
		}); err != nil {
			return fmt.Errorf("invalid follow-up cron %q: %w", s.cfg.FollowUpCron, err)
		}
	}

	s.cron.Start()
	common.LogInfo("排程器已啟動",
		zap.String("promo_cron", s.cfg.PromoCron),
		zap.String("follow_up_cron", s.cfg.FollowUpCron),
		zap.Duration("follow_up_delay", s.cfg.FollowUpDelay),
	)
	return nil
}

// Stop 停止排程並等待執行中的工作
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		common.LogWarn("Scheduler stop timed out")
	}
}

// SendPromotionToAll 對所有有電話的顧客排入促銷訊息，回傳排入數量
func (s *Scheduler) SendPromotionToAll(ctx context.Context, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, common.NewValidationError("promotion text is required")
	}

	customers, err := s.customers.ListCustomers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list customers: %w", err)
	}

	seen := make(map[string]bool, len(customers))
	queued := 0
	for _, c := range customers {
		phone := order.Digits(c.Phone)
		if phone == "" || seen[phone] {
			continue
		}
		seen[phone] = true

		if err := s.notifier.Enqueue(phone, text, nil); err != nil {
			common.LogSendFailure(phone, err)
			continue
		}
		queued++
	}

	common.LogInfo("Promotion queued",
		zap.Int("customers", len(customers)),
		zap.Int("queued", queued),
	)
	return queued, nil
}

// RunFollowUps 對送達超過設定時間且尚未追蹤的訂單排入追蹤訊息，回傳排入數量。
// 傳送成功後才標記 followUpSentAt；傳送中的訂單不重複排入。
func (s *Scheduler) RunFollowUps(ctx context.Context) int {
	orders, err := s.orders.List(ctx)
	if err != nil {
		common.LogError("Failed to list orders for follow-up", zap.Error(err))
		return 0
	}

	cutoff := s.now().Add(-s.cfg.FollowUpDelay)
	queued := 0
	for _, o := range orders {
		if !s.dueForFollowUp(o, cutoff) {
			continue
		}
		phone := order.Digits(o.Customer.Phone)
		if phone == "" || !s.claim(o.ID) {
			continue
		}

		name := o.Customer.Name
		if name == "" {
			name = "cliente"
		}
		text := renderFollowUp(s.cfg.FollowUpText, name, o.ID)

		orderID := o.ID
		err := s.notifier.Enqueue(phone, text, func(err error) {
			defer s.release(orderID)
			if err != nil {
				return
			}
			markCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := s.orders.MarkFollowUpSent(markCtx, orderID, s.now().UTC()); err != nil {
				common.LogError("Failed to mark follow-up sent",
					zap.String("order_id", orderID),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			s.release(orderID)
			common.LogSendFailure(phone, err)
			continue
		}
		queued++
	}

	if queued > 0 {
		common.LogInfo("Follow-ups queued", zap.Int("count", queued))
	}
	return queued
}

func (s *Scheduler) dueForFollowUp(o order.Order, cutoff time.Time) bool {
	return o.Status == order.StatusDelivered &&
		o.DeliveredAt != nil &&
		o.DeliveredAt.Before(cutoff) &&
		o.FollowUpSentAt == nil
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// renderFollowUp 代入 {name} 與 {id}；其餘文字原樣保留
func renderFollowUp(tmpl, name, orderID string) string {
	return strings.NewReplacer("{name}", name, "{id}", orderID).Replace(tmpl)
}

// cronLogger 將 cron 的日誌導向 zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	common.Logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	common.Logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
