package bot

import (
	"fmt"
	"strings"

	"gomitas-bot/internal/core/session"
)

const (
	replyNotUnderstood  = `No entendí. Escribe "menu" para empezar o "ayuda".`
	replyCleared        = `Carrito vaciado. Escribe "menu" para seguir agregando.`
	replyCancelled      = `Pedido cancelado. Escribe "menu" para empezar de nuevo.`
	replyEmptyCart      = `Tu carrito está vacío. Escribe "menu" para agregar productos.`
	replyRemoveUsage    = `Formato: quitar [cantidad] [producto], por ejemplo: quitar 1 xtremes`
	replyRemoveNotFound = `No encontré ese producto en tu carrito. Escribe "ver" para revisar.`
	replyConfirmFirst   = `Primero escribe "finalizar" para revisar tu pedido y luego "confirmar".`
	replyPersistFailed  = `No pudimos registrar tu pedido en este momento. Tu carrito sigue guardado; escribe "confirmar" para intentar de nuevo.`
	replyUnavailable    = `Tuvimos un problema técnico. Intenta de nuevo en unos minutos.`

	hintExpress = `Escribe "ver" para carrito o "finalizar".`
	hintGuided  = `Escribe otro número para agregar más, "ver" para carrito o "finalizar".`
)

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func replyOrderLink(url string) string {
	return "🛒 Haz tu pedido aquí:\n" + url
}

func replyTooMany(max int) string {
	return fmt.Sprintf("La cantidad máxima por producto es %d. Intenta con una cantidad menor.", max)
}

// cartSummary Carrito: N producto(s) — Total $T
func cartSummary(cart session.Cart) string {
	return fmt.Sprintf("Carrito: %d producto(s) — Total %s", cart.ItemCount(), money(cart.Total()))
}

// lineDetail (presentación peso[, sabor])
func lineDetail(l session.CartLine) string {
	if l.Flavor != "" {
		return fmt.Sprintf("(%s %s, %s)", l.Presentation, l.Weight, l.Flavor)
	}
	return fmt.Sprintf("(%s %s)", l.Presentation, l.Weight)
}

func cartLines(cart session.Cart) string {
	if len(cart) == 0 {
		return "(vacío)"
	}
	lines := make([]string, len(cart))
	for i, l := range cart {
		lines[i] = fmt.Sprintf("- %d x %s %s %s", l.Quantity, l.Name, lineDetail(l), money(l.Subtotal()))
	}
	return strings.Join(lines, "\n")
}

func replyViewCart(name string, cart session.Cart) string {
	return fmt.Sprintf("Carrito de %s:\n%s\nTotal: %s\n\nEscribe \"finalizar\" para confirmar, \"menu\" para agregar más, \"quitar ...\" o \"vaciar carrito\".",
		name, cartLines(cart), money(cart.Total()))
}

func replyConfirmSummary(cart session.Cart) string {
	return fmt.Sprintf("Confirma tu pedido:\n%s\nTotal: %s\n\nEscribe \"confirmar\" para crear la orden o \"quitar ...\" / \"vaciar carrito\" para ajustar.",
		cartLines(cart), money(cart.Total()))
}

// replyAdded Agregado: 2 x panditas (Enchiladas 100 gr) $50.00
func replyAdded(l session.CartLine, cart session.Cart, hint string) string {
	return fmt.Sprintf("Agregado: %d x %s %s %s\n%s\n\n%s",
		l.Quantity, l.Name, lineDetail(l), money(l.Subtotal()), cartSummary(cart), hint)
}

// replyAddedSplit Agregado: 3 x Xtremes (Ahogadas 150 gr) — 2 con fresa, 1 con cereza — $135.00
func replyAddedSplit(l session.CartLine, counts []session.FlavorCount, cart session.Cart, hint string) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%d con %s", c.Qty, c.Flavor)
	}
	return fmt.Sprintf("Agregado: %d x %s (%s %s) — %s — %s\n%s\n\n%s",
		l.Quantity, l.Name, l.Presentation, l.Weight, strings.Join(parts, ", "), money(l.Subtotal()), cartSummary(cart), hint)
}

func replyRemoved(l session.CartLine, removed int, cart session.Cart) string {
	detail := l.Presentation
	if l.Flavor != "" {
		detail += ", " + l.Flavor
	}
	return fmt.Sprintf("Quitado: %d x %s (%s).\n%s", removed, l.Name, detail, cartSummary(cart))
}

func replyOrderCreated(name, id string, total float64) string {
	return fmt.Sprintf("¡Gracias %s! Tu pedido fue recibido. ID: %s\nTotal: %s\nTe avisamos cuando esté listo.", name, id, money(total))
}
