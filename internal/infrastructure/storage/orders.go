// Package storage 以 JSON 檔案保存訂單與顧客
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"gomitas-bot/internal/core/order"
	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

// FileOrderRepository orders.json（新的在前）與 customers.json
type FileOrderRepository struct {
	orders    *DataStore[[]order.Order]
	customers *DataStore[[]order.Customer]
	now       func() time.Time
}

// NewFileOrderRepository 於 dataDir 下建立或開啟訂單與顧客檔案
func NewFileOrderRepository(dataDir string) (*FileOrderRepository, error) {
	orders, err := NewDataStore(filepath.Join(dataDir, "orders.json"), []order.Order{})
	if err != nil {
		return nil, err
	}
	customers, err := NewDataStore(filepath.Join(dataDir, "customers.json"), []order.Customer{})
	if err != nil {
		orders.Close()
		return nil, err
	}

	common.LogInfo("訂單儲存已初始化", zap.String("data_dir", dataDir))
	return &FileOrderRepository{
		orders:    orders,
		customers: customers,
		now:       time.Now,
	}, nil
}

// Create 新增訂單至最前面，並登錄新顧客；只有訂單寫入失敗才回傳錯誤
func (r *FileOrderRepository) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	created := *o
	err := r.orders.Queue(ctx, func() error {
		orders, err := r.orders.Read()
		if err != nil {
			return err
		}
		if indexOf(orders, created.ID) >= 0 {
			return common.ErrConflict.Wrap(fmt.Errorf("order %s already exists", created.ID))
		}

		orders = append([]order.Order{created}, orders...)
		return r.orders.Write(orders)
	})
	if err != nil {
		return nil, err
	}

	// 訂單已寫入；顧客名冊失敗只記錄，不讓呼叫端重試而重複建立訂單
	if err := r.upsertCustomer(context.WithoutCancel(ctx), created.Customer); err != nil {
		common.LogError("Failed to register customer",
			zap.String("order_id", created.ID),
			zap.String("phone", created.Customer.Phone),
			zap.Error(err),
		)
	}
	return &created, nil
}

// upsertCustomer 電話不存在時新增顧客
func (r *FileOrderRepository) upsertCustomer(ctx context.Context, c order.Customer) error {
	if c.Phone == "" {
		return nil
	}
	return r.customers.Queue(ctx, func() error {
		customers, err := r.customers.Read()
		if err != nil {
			return err
		}
		for _, existing := range customers {
			if existing.Phone == c.Phone {
				return nil
			}
		}
		return r.customers.Write(append([]order.Customer{c}, customers...))
	})
}

// List 所有訂單
func (r *FileOrderRepository) List(ctx context.Context) ([]order.Order, error) {
	orders, err := r.orders.Read()
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return orders, nil
}

// Get 依編號取得訂單
func (r *FileOrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	orders, err := r.orders.Read()
	if err != nil {
		return nil, err
	}
	idx := indexOf(orders, id)
	if idx < 0 {
		return nil, common.ErrOrderNotFound
	}
	o := orders[idx]
	return &o, nil
}

// UpdateStatus 更新狀態；首次變為 delivered 時記錄送達時間
func (r *FileOrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	return r.mutate(ctx, id, func(o *order.Order, now time.Time) {
		o.Status = status
		if status == order.StatusDelivered && o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	})
}

// Update 套用部分更新
func (r *FileOrderRepository) Update(ctx context.Context, id string, patch order.Patch) (*order.Order, error) {
	return r.mutate(ctx, id, func(o *order.Order, _ time.Time) {
		patch.Apply(o)
	})
}

func (r *FileOrderRepository) mutate(ctx context.Context, id string, fn func(o *order.Order, now time.Time)) (*order.Order, error) {
	var updated order.Order
	err := r.orders.Queue(ctx, func() error {
		orders, err := r.orders.Read()
		if err != nil {
			return err
		}
		idx := indexOf(orders, id)
		if idx < 0 {
			return common.ErrOrderNotFound
		}

		now := r.now().UTC()
		fn(&orders[idx], now)
		orders[idx].UpdatedAt = &now
		if err := r.orders.Write(orders); err != nil {
			return err
		}
		updated = orders[idx]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Remove 刪除訂單
func (r *FileOrderRepository) Remove(ctx context.Context, id string) (*order.Order, error) {
	var removed order.Order
	err := r.orders.Queue(ctx, func() error {
		orders, err := r.orders.Read()
		if err != nil {
			return err
		}
		idx := indexOf(orders, id)
		if idx < 0 {
			return common.ErrOrderNotFound
		}
		removed = orders[idx]
		return r.orders.Write(append(orders[:idx], orders[idx+1:]...))
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// Purge 移除 createdAt 早於 cutoff 且為 done 的訂單
func (r *FileOrderRepository) Purge(ctx context.Context, cutoff time.Time, dryRun bool) (int, int, error) {
	var removed, total int
	err := r.orders.Queue(ctx, func() error {
		orders, err := r.orders.Read()
		if err != nil {
			return err
		}
		total = len(orders)

		kept := make([]order.Order, 0, len(orders))
		for _, o := range orders {
			if o.Status == order.StatusDone && !o.CreatedAt.IsZero() && o.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, o)
		}

		if dryRun || removed == 0 {
			return nil
		}
		return r.orders.Write(kept)
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, total, nil
}

// ListCustomers 所有顧客
func (r *FileOrderRepository) ListCustomers(ctx context.Context) ([]order.Customer, error) {
	customers, err := r.customers.Read()
	if err != nil {
		return nil, err
	}
	if customers == nil {
		customers = []order.Customer{}
	}
	return customers, nil
}

// Ping 確認檔案可讀
func (r *FileOrderRepository) Ping(ctx context.Context) error {
	_, err := r.orders.Read()
	return err
}

// Close 停止寫入協程
func (r *FileOrderRepository) Close() {
	r.orders.Close()
	r.customers.Close()
}

func indexOf(orders []order.Order, id string) int {
	for i := range orders {
		if orders[i].ID == id {
			return i
		}
	}
	return -1
}
