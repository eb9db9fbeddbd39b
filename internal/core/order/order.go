package order

import (
	"context"
	"errors"
	"time"

	"gomitas-bot/internal/pkg/common"
)

var (
	// ErrEmptyItems 訂單沒有品項
	ErrEmptyItems = errors.New("order has no items")
	// ErrMissingCustomer 訂單缺少顧客電話
	ErrMissingCustomer = errors.New("order customer phone is required")
)

// Status 訂單狀態
type Status string

const (
	StatusNew       Status = "new"
	StatusPreparing Status = "preparing"
	StatusDone      Status = "done"
	StatusDelivered Status = "delivered"
)

// ParseStatus 驗證狀態字串
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNew, StatusPreparing, StatusDone, StatusDelivered:
		return st, nil
	default:
		return "", common.ErrInvalidStatus
	}
}

// Deletable 只有完成或已送達的訂單可刪除
func (s Status) Deletable() bool {
	return s == StatusDone || s == StatusDelivered
}

// Customer 顧客
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Item 訂單品項
type Item struct {
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
	Presentation string  `json:"presentation,omitempty"`
	Weight       string  `json:"weight,omitempty"`
	Type         string  `json:"type,omitempty"`
	Flavor       string  `json:"flavor,omitempty"`
}

// Order 訂單
type Order struct {
	ID             string     `json:"id"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	FollowUpSentAt *time.Time `json:"followUpSentAt,omitempty"`
	Customer       Customer   `json:"customer"`
	Items          []Item     `json:"items"`
	Total          float64    `json:"total"`
	Note           string     `json:"note,omitempty"`
	Source         string     `json:"source,omitempty"`
}

// ItemsTotal Σ 單價 × 數量
func ItemsTotal(items []Item) float64 {
	total := 0.0
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		total += it.Price * float64(qty)
	}
	return total
}

// Patch 部分更新；nil 欄位不變
type Patch struct {
	Note           *string    `json:"note,omitempty"`
	FollowUpSentAt *time.Time `json:"followUpSentAt,omitempty"`
}

// Apply 套用部分更新
func (p Patch) Apply(o *Order) {
	if p.Note != nil {
		o.Note = *p.Note
	}
	if p.FollowUpSentAt != nil {
		t := *p.FollowUpSentAt
		o.FollowUpSentAt = &t
	}
}

// Repository 訂單儲存；所有寫入必須序列化並在回傳前持久化
type Repository interface {
	Create(ctx context.Context, o *Order) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	Update(ctx context.Context, id string, patch Patch) (*Order, error)
	Remove(ctx context.Context, id string) (*Order, error)
	// Purge 移除 createdAt 早於 cutoff 且為 done 的訂單；dryRun 時只計算
	Purge(ctx context.Context, cutoff time.Time, dryRun bool) (removed, total int, err error)
}

// CustomerDirectory 建立訂單時自動登錄的顧客名冊
type CustomerDirectory interface {
	ListCustomers(ctx context.Context) ([]Customer, error)
}

// GenerateID 產生訂單編號
var GenerateID = common.GenerateOrderID
