package bot

import (
	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/core/parse"
	"gomitas-bot/internal/core/session"
)

// handleState 逐步選單：依目前狀態處理數字回覆，無效回覆重新顯示同一份清單
func (e *Engine) handleState(t *turn) []string {
	switch t.sess.State {
	case session.StateChoosingCategory:
		return e.chooseCategory(t)
	case session.StateChoosingPresentation:
		return e.choosePresentation(t)
	case session.StateChoosingItem:
		return e.chooseItem(t)
	case session.StateChoosingFlavor:
		return e.chooseFlavor(t)
	case session.StateChoosingFlavorMulti:
		return e.chooseFlavorMulti(t)
	case session.StateConfirming:
		return []string{replyConfirmSummary(t.sess.Cart)}
	default:
		return []string{replyNotUnderstood}
	}
}

// restart 索引已不在菜單範圍內（例如菜單更新），回到分類清單
func (e *Engine) restart(t *turn) []string {
	return e.startGuided(t)
}

func (e *Engine) chooseCategory(t *turn) []string {
	idx, ok := parse.ParseIndex(t.norm, len(e.catalog.Categories))
	if !ok {
		return []string{menu.FormatCategories(e.catalog)}
	}
	t.sess.State = session.StateChoosingPresentation
	t.sess.CategoryIdx = idx
	return []string{menu.FormatPresentations(e.catalog, idx)}
}

func (e *Engine) choosePresentation(t *turn) []string {
	ci := t.sess.CategoryIdx
	if ci < 0 || ci >= len(e.catalog.Categories) {
		return e.restart(t)
	}
	idx, ok := parse.ParseIndex(t.norm, len(e.catalog.Categories[ci].Presentations))
	if !ok {
		return []string{menu.FormatPresentations(e.catalog, ci)}
	}
	t.sess.State = session.StateChoosingItem
	t.sess.PresentationIdx = idx
	return []string{menu.FormatItems(e.catalog, ci, idx)}
}

func (e *Engine) chooseItem(t *turn) []string {
	pres, ok := e.catalog.Presentation(t.sess.CategoryIdx, t.sess.PresentationIdx)
	if !ok {
		return e.restart(t)
	}

	n, rawQty, ok := parse.ParseSelection(t.norm)
	if !ok || n < 1 || n > len(pres.Items) {
		return []string{menu.FormatItems(e.catalog, t.sess.CategoryIdx, t.sess.PresentationIdx)}
	}
	qty, ok := clampQuantity(rawQty)
	if !ok {
		return []string{replyTooMany(MaxQuantity)}
	}
	itemIdx := n - 1

	if !pres.RequiresFlavor() {
		line := cartLine(pres, pres.Items[itemIdx], qty, "")
		t.sess.AddToCart(line)
		return []string{replyAdded(line, t.sess.Cart, hintGuided)}
	}

	if qty > 1 {
		t.sess.State = session.StateChoosingFlavorMulti
		t.sess.Pending = nil
		t.sess.PendingMulti = &session.PendingMulti{ItemIdx: itemIdx, QtyTotal: qty}
		return []string{menu.FormatFlavors(e.catalog, 1, qty)}
	}

	t.sess.State = session.StateChoosingFlavor
	t.sess.PendingMulti = nil
	t.sess.Pending = &session.PendingItem{ItemIdx: itemIdx, Quantity: qty}
	return []string{menu.FormatFlavors(e.catalog, 0, 0)}
}

// pickFlavor 接受口味編號或名稱
func (e *Engine) pickFlavor(norm string) (string, bool) {
	names := e.catalog.FlavorNames()
	if idx, ok := parse.ParseIndex(norm, len(names)); ok {
		return names[idx], true
	}
	if parse.FirstWord(norm) != norm {
		return "", false
	}
	return parse.MatchFlavor(norm, names, e.catalog.FlavorAliases)
}

// pendingItem 取得等待口味的商品；索引無效時 ok 為 false
func (e *Engine) pendingItem(t *turn, itemIdx int) (menu.Presentation, menu.Item, bool) {
	pres, ok := e.catalog.Presentation(t.sess.CategoryIdx, t.sess.PresentationIdx)
	if !ok || itemIdx < 0 || itemIdx >= len(pres.Items) {
		return menu.Presentation{}, menu.Item{}, false
	}
	return pres, pres.Items[itemIdx], true
}

func (e *Engine) chooseFlavor(t *turn) []string {
	if t.sess.Pending == nil {
		return e.restart(t)
	}
	pres, item, ok := e.pendingItem(t, t.sess.Pending.ItemIdx)
	if !ok {
		return e.restart(t)
	}

	flavor, ok := e.pickFlavor(t.norm)
	if !ok {
		return []string{menu.FormatFlavors(e.catalog, 0, 0)}
	}

	line := cartLine(pres, item, t.sess.Pending.Quantity, flavor)
	t.sess.AddToCart(line)
	t.sess.Pending = nil
	t.sess.State = session.StateChoosingItem
	return []string{replyAdded(line, t.sess.Cart, hintGuided)}
}

// chooseFlavorMulti 每次回覆加入一份；最後一份後回報口味分配
func (e *Engine) chooseFlavorMulti(t *turn) []string {
	batch := t.sess.PendingMulti
	if batch == nil || batch.QtyTotal < 1 {
		return e.restart(t)
	}
	pres, item, ok := e.pendingItem(t, batch.ItemIdx)
	if !ok {
		return e.restart(t)
	}

	flavor, ok := e.pickFlavor(t.norm)
	if !ok {
		return []string{menu.FormatFlavors(e.catalog, batch.QtyDone+1, batch.QtyTotal)}
	}

	t.sess.AddToCart(cartLine(pres, item, 1, flavor))
	batch.QtyDone++
	batch.Counts = session.AddFlavor(batch.Counts, flavor, 1)

	if batch.QtyDone < batch.QtyTotal {
		return []string{menu.FormatFlavors(e.catalog, batch.QtyDone+1, batch.QtyTotal)}
	}

	summary := cartLine(pres, item, batch.QtyTotal, "")
	counts := batch.Counts
	t.sess.PendingMulti = nil
	t.sess.State = session.StateChoosingItem
	return []string{replyAddedSplit(summary, counts, t.sess.Cart, hintGuided)}
}
