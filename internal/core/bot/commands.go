package bot

import (
	"errors"
	"strconv"
	"strings"

	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/core/parse"
	"gomitas-bot/internal/core/session"
	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

var (
	greetingWords = wordSet("hola", "buenas", "hello", "hi", "menu")
	helpWords     = wordSet("ayuda", "help")
	startWords    = wordSet("pedir", "ordenar", "order", "catalogo", "categorias")
	removeWords   = wordSet("quitar", "remove")
	clearPhrases  = wordSet("vaciar", "vaciar carrito", "clear", "clear cart")
	cancelPhrases = wordSet("cancelar", "cancel")
	viewPhrases   = wordSet("ver", "view", "ver carrito", "carrito")
	finalPhrases  = wordSet("finalizar", "finalize")
	confirmWords  = wordSet("confirmar", "confirm")
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// handleCommand 全域指令；任何狀態都可使用，除取消與確認外不影響購物車
func (e *Engine) handleCommand(t *turn) ([]string, bool) {
	first := parse.FirstWord(t.norm)

	switch {
	case greetingWords[t.norm], helpWords[first]:
		return []string{replyOrderLink(e.orderURL)}, true
	case startWords[t.norm]:
		return e.startGuided(t), true
	case clearPhrases[t.norm]:
		t.sess.ClearCart()
		e.leaveConfirmingIfEmpty(t)
		return []string{replyCleared}, true
	case removeWords[first]:
		return e.removeItem(t), true
	case cancelPhrases[t.norm]:
		return e.cancel(t), true
	case viewPhrases[t.norm]:
		return []string{replyViewCart(t.name, t.sess.Cart)}, true
	case finalPhrases[t.norm]:
		return e.finalize(t), true
	case confirmWords[t.norm]:
		return e.confirm(t), true
	}
	return nil, false
}

func (e *Engine) startGuided(t *turn) []string {
	t.sess.State = session.StateChoosingCategory
	t.sess.Pending = nil
	t.sess.PendingMulti = nil
	return []string{menu.FormatCategories(e.catalog)}
}

// removeItem quitar [cantidad] producto
func (e *Engine) removeItem(t *turn) []string {
	words := strings.Fields(t.norm)[1:]
	if len(words) == 0 {
		return []string{replyRemoveUsage}
	}

	qty := 1
	if parse.IsDigits(words[0]) {
		n, err := strconv.Atoi(words[0])
		if err != nil || n < 1 {
			return []string{replyRemoveUsage}
		}
		qty = n
		words = words[1:]
	}
	token := strings.Join(words, " ")
	if token == "" {
		return []string{replyRemoveUsage}
	}

	line, removed, ok := t.sess.RemoveFromCart(token, qty)
	if !ok {
		return []string{replyRemoveNotFound}
	}
	e.leaveConfirmingIfEmpty(t)
	return []string{replyRemoved(line, removed, t.sess.Cart)}
}

// leaveConfirmingIfEmpty 確認中的購物車被清空時回到閒置
func (e *Engine) leaveConfirmingIfEmpty(t *turn) {
	if t.sess.State == session.StateConfirming && len(t.sess.Cart) == 0 {
		t.sess.State = session.StateIdle
	}
}

func (e *Engine) cancel(t *turn) []string {
	fresh, err := e.store.Reset(t.ctx, t.sess.Identity)
	if err != nil {
		common.LogError("Failed to reset session", zap.String("identity", t.sess.Identity), zap.Error(err))
		return []string{replyUnavailable}
	}
	t.sess = fresh
	t.persisted = true
	return []string{replyCancelled}
}

func (e *Engine) finalize(t *turn) []string {
	if len(t.sess.Cart) == 0 {
		return []string{replyEmptyCart}
	}
	t.sess.State = session.StateConfirming
	t.sess.Pending = nil
	t.sess.PendingMulti = nil
	return []string{replyConfirmSummary(t.sess.Cart)}
}

// confirm 只在確認中有效；持久化失敗時保留購物車與狀態
func (e *Engine) confirm(t *turn) []string {
	if t.sess.State != session.StateConfirming {
		return []string{replyConfirmFirst}
	}

	created, err := e.finalizer.Finalize(t.ctx, t.sess, t.name)
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			return []string{replyEmptyCart}
		}
		common.LogError("Failed to finalize order",
			zap.String("identity", t.sess.Identity),
			zap.Int("items", t.sess.CartItemCount()),
			zap.Error(err),
		)
		return []string{replyPersistFailed}
	}

	// 交由 HandleMessage 再寫回一次全新對話
	t.sess = session.New(t.sess.Identity)
	return []string{replyOrderCreated(t.name, created.ID, created.Total)}
}
