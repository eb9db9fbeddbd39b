package bot

import (
	"strings"

	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/core/parse"
	"gomitas-bot/internal/core/session"
)

// expressMatch 快速下單命中的商品位置
type expressMatch struct {
	catIdx, presIdx, itemIdx int
	pres                     menu.Presentation
	item                     menu.Item
}

// detectType 依 DetectionOrder 找出訊息提到的包裝方式
func (e *Engine) detectType(norm string) (menu.PresentationType, bool) {
	for _, typ := range menu.DetectionOrder {
		if parse.ContainsAny(norm, e.catalog.TypeKeywords[typ]) {
			return typ, true
		}
	}
	return "", false
}

// matchItem 依菜單順序掃描該包裝方式的商品，第一個名稱出現在訊息中的商品勝出
func (e *Engine) matchItem(norm string, typ menu.PresentationType) (expressMatch, bool) {
	for ci, cat := range e.catalog.Categories {
		for pi, pres := range cat.Presentations {
			if pres.Type != typ {
				continue
			}
			for ii, item := range pres.Items {
				name := parse.Normalize(item.Name)
				if name != "" && strings.Contains(norm, name) {
					return expressMatch{catIdx: ci, presIdx: pi, itemIdx: ii, pres: pres, item: item}, true
				}
			}
		}
	}
	return expressMatch{}, false
}

// tryExpressOrder 一行下單，例如 "enchiladas panditas 2" 或 "ahogadas xtremes x3 fresa, cereza"
func (e *Engine) tryExpressOrder(t *turn) ([]string, bool) {
	typ, ok := e.detectType(t.norm)
	if !ok {
		return nil, false
	}
	m, ok := e.matchItem(t.norm, typ)
	if !ok {
		return nil, false
	}

	rawQty, end := parse.ParseQuantity(t.raw)
	qty, ok := clampQuantity(rawQty)
	if !ok {
		return []string{replyTooMany(MaxQuantity)}, true
	}

	if !m.pres.RequiresFlavor() {
		line := cartLine(m.pres, m.item, qty, "")
		t.sess.AddToCart(line)
		return []string{replyAdded(line, t.sess.Cart, hintExpress)}, true
	}

	flavorText := t.raw
	if end >= 0 {
		flavorText = t.raw[end:]
	}
	flavors := parse.ParseFlavorList(flavorText, e.catalog.FlavorNames(), e.catalog.FlavorAliases)

	if len(flavors) == 0 {
		t.sess.State = session.StateChoosingFlavorMulti
		t.sess.CategoryIdx = m.catIdx
		t.sess.PresentationIdx = m.presIdx
		t.sess.Pending = nil
		t.sess.PendingMulti = &session.PendingMulti{ItemIdx: m.itemIdx, QtyTotal: qty}
		return []string{menu.FormatFlavors(e.catalog, 1, qty)}, true
	}

	// 依序循環分配：第 i 份取 flavors[i % len]
	var counts []session.FlavorCount
	for i := 0; i < qty; i++ {
		counts = session.AddFlavor(counts, flavors[i%len(flavors)], 1)
	}
	for _, c := range counts {
		t.sess.AddToCart(cartLine(m.pres, m.item, c.Qty, c.Flavor))
	}

	summary := cartLine(m.pres, m.item, qty, "")
	return []string{replyAddedSplit(summary, counts, t.sess.Cart, hintExpress)}, true
}
