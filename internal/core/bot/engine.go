// Package bot 將聊天訊息轉為購物車與訂單：全域指令、快速下單、逐步選單與訂單確認
package bot

import (
	"context"
	"hash/fnv"
	"runtime/debug"
	"strings"
	"sync"

	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/core/parse"
	"gomitas-bot/internal/core/session"
	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

// MaxQuantity 單一品項一次可加入的最大數量
const MaxQuantity = 99

const lockStripes = 256

// Message 收到的聊天訊息
type Message struct {
	From string `json:"from"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Engine 對話引擎；同一聯絡人的訊息依序處理，不同聯絡人可並行
type Engine struct {
	catalog   *menu.Catalog
	store     session.Store
	finalizer *Finalizer
	orderURL  string
	locks     [lockStripes]sync.Mutex
}

// NewEngine 創建對話引擎
func NewEngine(catalog *menu.Catalog, store session.Store, orders OrderCreator, orderURL string) *Engine {
	return &Engine{
		catalog:   catalog,
		store:     store,
		finalizer: NewFinalizer(orders, store),
		orderURL:  orderURL,
	}
}

// turn 單一訊息的處理狀態
type turn struct {
	ctx  context.Context
	sess *session.Session
	name string
	raw  string
	norm string
	// persisted 表示對話已由 Reset 寫回，不再 Save
	persisted bool
}

// HandleMessage 處理一則訊息並回傳至少一則回覆；任何錯誤都不會往上拋
func (e *Engine) HandleMessage(ctx context.Context, msg Message) (replies []string) {
	identity := strings.TrimSpace(msg.From)

	defer func() {
		if r := recover(); r != nil {
			common.LogError("Panic while handling message",
				zap.String("identity", identity),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			replies = []string{replyUnavailable}
		}
	}()

	if identity == "" {
		return []string{replyNotUnderstood}
	}

	mu := e.lockFor(identity)
	mu.Lock()
	defer mu.Unlock()

	sess, err := e.store.Get(ctx, identity)
	if err != nil {
		common.LogError("Failed to load session", zap.String("identity", identity), zap.Error(err))
		return []string{replyUnavailable}
	}

	name := strings.TrimSpace(msg.Name)
	if name == "" {
		name = "Cliente"
	}

	t := &turn{
		ctx:  ctx,
		sess: sess,
		name: name,
		raw:  strings.TrimSpace(msg.Text),
	}
	t.norm = parse.Normalize(t.raw)

	state := sess.State
	replies = e.dispatch(t)

	if !t.persisted {
		if err := e.store.Save(ctx, t.sess); err != nil {
			common.LogError("Failed to save session", zap.String("identity", identity), zap.Error(err))
		}
	}

	common.LogDebug("Message handled",
		zap.String("identity", identity),
		zap.String("text", t.raw),
		zap.String("from_state", string(state)),
		zap.String("to_state", string(t.sess.State)),
	)
	return replies
}

// dispatch 全域指令 → 確認中 → 快速下單 → 逐步選單
func (e *Engine) dispatch(t *turn) []string {
	if replies, ok := e.handleCommand(t); ok {
		return replies
	}

	if t.sess.State == session.StateConfirming {
		return []string{replyConfirmSummary(t.sess.Cart)}
	}

	if replies, ok := e.tryExpressOrder(t); ok {
		return replies
	}

	return e.handleState(t)
}

func (e *Engine) lockFor(identity string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return &e.locks[h.Sum32()%lockStripes]
}

// clampQuantity 0 視為 1；超過上限回傳 false
func clampQuantity(qty int) (int, bool) {
	if qty <= 0 {
		return 1, true
	}
	if qty > MaxQuantity {
		return qty, false
	}
	return qty, true
}

// cartLine 由菜單商品建立購物車品項
func cartLine(pres menu.Presentation, item menu.Item, qty int, flavor string) session.CartLine {
	return session.CartLine{
		Name:         item.Name,
		Price:        item.Price,
		Quantity:     qty,
		Presentation: pres.Name,
		Weight:       pres.Weight,
		Type:         pres.Type,
		Flavor:       flavor,
	}
}
