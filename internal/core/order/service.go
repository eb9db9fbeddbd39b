package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gomitas-bot/internal/core/events"
	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

// 訂單來源
const (
	SourceChat    = "chat"
	SourceWeb     = "web"
	SourceWebhook = "webhook"
)

// Notifier 外送訊息佇列
type Notifier interface {
	Enqueue(to, text string, onDone func(error)) error
}

// HandoffOpener 開啟人工協調時段
type HandoffOpener interface {
	Open(identity string)
}

// UpdateEvent orders:update 事件內容
type UpdateEvent struct {
	Type  string `json:"type"`
	Order *Order `json:"order,omitempty"`
	ID    string `json:"id,omitempty"`
}

// CreateRequest 網頁或外部服務建立訂單
type CreateRequest struct {
	ID       string    `json:"id"`
	Customer *Customer `json:"customer"`
	Items    []Item    `json:"items"`
	Note     string    `json:"note"`
}

// Service 訂單服務
type Service struct {
	repo        Repository
	broadcaster events.Broadcaster
	notifier    Notifier
	handoff     HandoffOpener
	countryCode string
	now         func() time.Time
}

// NewService 創建訂單服務；broadcaster、notifier、handoff 可為 nil
func NewService(repo Repository, broadcaster events.Broadcaster, notifier Notifier, handoff HandoffOpener, countryCode string) *Service {
	if broadcaster == nil {
		broadcaster = events.Nop{}
	}
	return &Service{
		repo:        repo,
		broadcaster: broadcaster,
		notifier:    notifier,
		handoff:     handoff,
		countryCode: countryCode,
		now:         time.Now,
	}
}

// Create 持久化已建好的訂單並推送事件
func (s *Service) Create(ctx context.Context, o *Order) (*Order, error) {
	if len(o.Items) == 0 {
		return nil, ErrEmptyItems
	}

	created, err := s.repo.Create(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("failed to persist order %s: %w", o.ID, err)
	}

	s.broadcaster.Emit(events.OrdersUpdate, UpdateEvent{Type: "created", Order: created})
	common.LogInfo("Order created",
		zap.String("order_id", created.ID),
		zap.String("source", created.Source),
		zap.Int("items", len(created.Items)),
		zap.Float64("total", created.Total),
	)
	return created, nil
}

// CreateFromWeb 網頁表單下單
func (s *Service) CreateFromWeb(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.Customer == nil || strings.TrimSpace(req.Customer.Phone) == "" || len(req.Items) == 0 {
		return nil, common.NewValidationError("customer{ name, phone } and items[] required")
	}
	o, err := s.build(req, SourceWeb)
	if err != nil {
		return nil, err
	}
	o.Customer.Phone = NormalizePhone(o.Customer.Phone, s.countryCode)
	if o.Customer.ID == "" {
		o.Customer.ID = o.Customer.Phone
	}
	return s.Create(ctx, o)
}

// CreateFromWebhook 外部自動化服務下單
func (s *Service) CreateFromWebhook(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.Customer == nil || req.Items == nil {
		return nil, common.NewValidationError("customer and items required")
	}
	o, err := s.build(req, SourceWebhook)
	if err != nil {
		return nil, err
	}
	if len(o.Items) == 0 {
		return nil, common.NewValidationError("items must not be empty")
	}
	return s.Create(ctx, o)
}

func (s *Service) build(req CreateRequest, source string) (*Order, error) {
	items := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		if strings.TrimSpace(it.Name) == "" {
			return nil, common.NewValidationError("item name is required")
		}
		if it.Price < 0 {
			return nil, common.NewValidationError(fmt.Sprintf("invalid price for %s", it.Name))
		}
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		items = append(items, it)
	}

	id := strings.ToUpper(strings.TrimSpace(req.ID))
	if id == "" {
		id = GenerateID()
	}

	name := strings.TrimSpace(req.Customer.Name)
	if name == "" {
		name = "Cliente"
	}

	return &Order{
		ID:        id,
		Status:    StatusNew,
		CreatedAt: s.now().UTC(),
		Customer: Customer{
			ID:    req.Customer.ID,
			Name:  name,
			Phone: req.Customer.Phone,
		},
		Items:  items,
		Total:  ItemsTotal(items),
		Note:   req.Note,
		Source: source,
	}, nil
}

// List 列出訂單，新的在前
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.repo.List(ctx)
}

// UpdateStatus 變更狀態；完成時通知顧客並開啟協調時段
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, st)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Emit(events.OrdersUpdate, UpdateEvent{Type: "updated", Order: updated})

	if st == StatusDone {
		s.notifyReady(updated)
	}
	return updated, nil
}

// notifyReady 通知顧客訂單已完成；傳送失敗只記錄
func (s *Service) notifyReady(o *Order) {
	phone := Digits(o.Customer.Phone)
	if phone == "" || s.notifier == nil {
		return
	}

	name := o.Customer.Name
	if name == "" {
		name = "cliente"
	}
	text := fmt.Sprintf("Hola %s, tu pedido #%s está listo — Total: $%.2f.\nResponde este mensaje para coordinar la entrega. ¡Gracias por tu compra!",
		name, o.ID, o.Total)

	orderID := o.ID
	err := s.notifier.Enqueue(phone, text, func(err error) {
		if err != nil {
			common.LogWarn("No se pudo notificar al cliente",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		common.LogWarn("Failed to enqueue ready notification",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return
	}

	if s.handoff != nil {
		s.handoff.Open(phone)
	}
}

// MarkFollowUpSent 記錄已送出售後追蹤訊息
func (s *Service) MarkFollowUpSent(ctx context.Context, id string, at time.Time) (*Order, error) {
	updated, err := s.repo.Update(ctx, id, Patch{FollowUpSentAt: &at})
	if err != nil {
		return nil, err
	}
	s.broadcaster.Emit(events.OrdersUpdate, UpdateEvent{Type: "updated", Order: updated})
	return updated, nil
}

// Delete 刪除訂單，只允許完成或已送達的訂單
func (s *Service) Delete(ctx context.Context, id string) (*Order, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.Deletable() {
		return nil, common.ErrOrderNotDeletable
	}

	removed, err := s.repo.Remove(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to remove order %s: %w", id, err)
	}
	s.broadcaster.Emit(events.OrdersUpdate, UpdateEvent{Type: "deleted", ID: removed.ID})
	return removed, nil
}
