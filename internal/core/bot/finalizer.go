package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gomitas-bot/internal/core/order"
	"gomitas-bot/internal/core/session"
	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

var (
	// ErrEmptyCart 購物車為空
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPersistOrder 訂單未能持久化，購物車保留
	ErrPersistOrder = errors.New("order could not be persisted")
)

// OrderCreator 持久化訂單並通知看板
type OrderCreator interface {
	Create(ctx context.Context, o *order.Order) (*order.Order, error)
}

// Finalizer 購物車轉訂單：建立 → 持久化 → 成功後才重設對話
type Finalizer struct {
	orders OrderCreator
	store  session.Store
	now    func() time.Time
}

// NewFinalizer 創建訂單確認器
func NewFinalizer(orders OrderCreator, store session.Store) *Finalizer {
	return &Finalizer{
		orders: orders,
		store:  store,
		now:    time.Now,
	}
}

// Build 由購物車建立訂單，不做任何持久化
func (f *Finalizer) Build(sess *session.Session, displayName string) *order.Order {
	items := make([]order.Item, len(sess.Cart))
	for i, l := range sess.Cart {
		items[i] = order.Item{
			Name:         l.Name,
			Quantity:     l.Quantity,
			Price:        l.Price,
			Presentation: l.Presentation,
			Weight:       l.Weight,
			Type:         string(l.Type),
			Flavor:       l.Flavor,
		}
	}

	return &order.Order{
		ID:        order.GenerateID(),
		Status:    order.StatusNew,
		CreatedAt: f.now().UTC(),
		Customer: order.Customer{
			ID:    sess.Identity,
			Name:  displayName,
			Phone: sess.Identity,
		},
		Items:  items,
		Total:  sess.CartTotal(),
		Source: order.SourceChat,
	}
}

// Finalize 建立並持久化訂單；持久化失敗時不動對話，讓顧客可以重試
func (f *Finalizer) Finalize(ctx context.Context, sess *session.Session, displayName string) (*order.Order, error) {
	if len(sess.Cart) == 0 {
		return nil, ErrEmptyCart
	}

	candidate := f.Build(sess, displayName)
	created, err := f.orders.Create(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistOrder, err)
	}

	if _, err := f.store.Reset(ctx, sess.Identity); err != nil {
		// 訂單已成立；改寫入全新對話，避免再次確認時重複下單
		common.LogError("Failed to reset session after order",
			zap.String("order_id", created.ID),
			zap.String("identity", sess.Identity),
			zap.Error(err),
		)
		if err := f.store.Save(ctx, session.New(sess.Identity)); err != nil {
			common.LogError("Failed to clear session after order",
				zap.String("order_id", created.ID),
				zap.String("identity", sess.Identity),
				zap.Error(err),
			)
		}
	}
	return created, nil
}
