package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/core/parse"
)

// ErrStoreClosed 儲存已關閉
var ErrStoreClosed = errors.New("session store closed")

// State 對話狀態
type State string

const (
	StateIdle                 State = "idle"
	StateChoosingCategory     State = "choosingCategory"
	StateChoosingPresentation State = "choosingPresentation"
	StateChoosingItem         State = "choosingItem"
	StateChoosingFlavor       State = "choosingFlavor"
	StateChoosingFlavorMulti  State = "choosingFlavorMulti"
	StateConfirming           State = "confirming"
)

// AllStates 所有對話狀態
var AllStates = []State{
	StateIdle,
	StateChoosingCategory,
	StateChoosingPresentation,
	StateChoosingItem,
	StateChoosingFlavor,
	StateChoosingFlavorMulti,
	StateConfirming,
}

// Store 對話狀態儲存
type Store interface {
	// Get 取得對話；不存在時建立閒置且購物車為空的新對話
	Get(ctx context.Context, identity string) (*Session, error)
	// Save 以整份取代既有對話（巢狀的 pending 結構一併取代）
	Save(ctx context.Context, s *Session) error
	// Reset 以全新的閒置對話取代
	Reset(ctx context.Context, identity string) (*Session, error)
	Close() error
}

// Session 單一顧客的對話狀態
type Session struct {
	Identity        string        `json:"identity"`
	State           State         `json:"state"`
	Cart            Cart          `json:"cart"`
	CategoryIdx     int           `json:"category_idx"`
	PresentationIdx int           `json:"presentation_idx"`
	Pending         *PendingItem  `json:"pending,omitempty"`
	PendingMulti    *PendingMulti `json:"pending_multi,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// PendingItem 等待選擇口味的單一商品
type PendingItem struct {
	ItemIdx  int `json:"item_idx"`
	Quantity int `json:"quantity"`
}

// PendingMulti 逐份選擇口味的批次
type PendingMulti struct {
	ItemIdx  int           `json:"item_idx"`
	QtyTotal int           `json:"qty_total"`
	QtyDone  int           `json:"qty_done"`
	Counts   []FlavorCount `json:"counts"`
}

// FlavorCount 某口味的份數
type FlavorCount struct {
	Flavor string `json:"flavor"`
	Qty    int    `json:"qty"`
}

// AddFlavor 累加口味份數，保留首次出現的順序
func AddFlavor(counts []FlavorCount, flavor string, n int) []FlavorCount {
	for i := range counts {
		if counts[i].Flavor == flavor {
			counts[i].Qty += n
			return counts
		}
	}
	return append(counts, FlavorCount{Flavor: flavor, Qty: n})
}

// New 建立閒置且購物車為空的對話
func New(identity string) *Session {
	return &Session{
		Identity:  identity,
		State:     StateIdle,
		Cart:      Cart{},
		UpdatedAt: time.Now(),
	}
}

// Clone 深拷貝，讓儲存與處理中的副本互不影響
func (s *Session) Clone() *Session {
	c := *s
	c.Cart = append(Cart{}, s.Cart...)
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	if s.PendingMulti != nil {
		m := *s.PendingMulti
		m.Counts = append([]FlavorCount(nil), s.PendingMulti.Counts...)
		c.PendingMulti = &m
	}
	return &c
}

// AddToCart 加入購物車，鍵值相同時合併數量
func (s *Session) AddToCart(line CartLine) {
	s.Cart.Add(line)
}

// RemoveFromCart 從最後加入的相符品項扣除數量
func (s *Session) RemoveFromCart(token string, qty int) (CartLine, int, bool) {
	return s.Cart.Remove(token, qty)
}

// ClearCart 清空購物車
func (s *Session) ClearCart() {
	s.Cart = Cart{}
}

// CartTotal 購物車總金額
func (s *Session) CartTotal() float64 {
	return s.Cart.Total()
}

// CartItemCount 購物車總份數
func (s *Session) CartItemCount() int {
	return s.Cart.ItemCount()
}

// CartLine 購物車品項
type CartLine struct {
	Name         string                `json:"name"`
	Price        float64               `json:"price"`
	Quantity     int                   `json:"quantity"`
	Presentation string                `json:"presentation"`
	Weight       string                `json:"weight"`
	Type         menu.PresentationType `json:"type"`
	Flavor       string                `json:"flavor,omitempty"`
}

// Key 合併用鍵值
func (l CartLine) Key() string {
	return strings.Join([]string{
		l.Name,
		l.Presentation,
		string(l.Type),
		l.Flavor,
		strconv.FormatFloat(l.Price, 'f', -1, 64),
	}, "|")
}

// Subtotal 小計
func (l CartLine) Subtotal() float64 {
	return l.Price * float64(l.Quantity)
}

// Cart 購物車，依加入順序排列
type Cart []CartLine

// Add 加入品項；鍵值相同時數量相加，否則附加在最後。回傳是否合併。
func (c *Cart) Add(line CartLine) bool {
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	key := line.Key()
	for i := range *c {
		if (*c)[i].Key() == key {
			(*c)[i].Quantity += line.Quantity
			return true
		}
	}
	*c = append(*c, line)
	return false
}

// Remove 由後往前找第一個名稱相符的品項，扣除 min(qty, 品項數量)，歸零時移除；qty 為 0 時不扣除。
// 回傳被扣除的品項（扣除前的資料）與實際扣除的數量。
func (c *Cart) Remove(token string, qty int) (CartLine, int, bool) {
	token = parse.Normalize(token)
	if token == "" {
		return CartLine{}, 0, false
	}
	if qty < 0 {
		qty = 0
	}

	for i := len(*c) - 1; i >= 0; i-- {
		line := (*c)[i]
		name := parse.Normalize(line.Name)
		if !strings.Contains(name, token) && !strings.Contains(token, name) {
			continue
		}
		removed := qty
		if removed > line.Quantity {
			removed = line.Quantity
		}
		(*c)[i].Quantity -= removed
		if (*c)[i].Quantity <= 0 {
			*c = append((*c)[:i], (*c)[i+1:]...)
		}
		return line, removed, true
	}
	return CartLine{}, 0, false
}

// Total 總金額
func (c Cart) Total() float64 {
	total := 0.0
	for _, l := range c {
		total += l.Subtotal()
	}
	return total
}

// ItemCount 總份數
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c {
		n += l.Quantity
	}
	return n
}
