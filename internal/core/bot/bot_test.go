package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/core/order"
	"gomitas-bot/internal/core/session"
)

func fixtureCatalog() *menu.Catalog {
	return &menu.Catalog{
		Categories: []menu.Category{
			{
				Name: "Clásicas",
				Presentations: []menu.Presentation{
					{Name: "Enchiladas", Type: menu.Dry, Weight: "100 gr", Items: []menu.Item{
						{Name: "panditas", Price: 25},
						{Name: "gusanos", Price: 25},
					}},
					{Name: "Ahogadas", Type: menu.Wet, Weight: "150 gr", Items: []menu.Item{
						{Name: "gusanos", Price: 35},
						{Name: "aros", Price: 35},
					}},
				},
			},
			{
				Name: "Premium",
				Presentations: []menu.Presentation{
					{Name: "Enchiladas", Type: menu.Dry, Weight: "100 gr", Items: []menu.Item{
						{Name: "panditas premium", Price: 40},
						{Name: "X", Price: 25},
					}},
				},
			},
		},
		Flavors: []menu.Flavor{
			{Name: "normal", Label: "Clásico"},
			{Name: "fresa", Label: "Fresa"},
			{Name: "cereza", Label: "Cereza"},
		},
		FlavorAliases: map[string]string{"clasico": "normal", "cerezas": "cereza"},
		TypeKeywords: map[menu.PresentationType][]string{
			menu.Wet: {"ahogada", "wet"},
			menu.Dry: {"enchilada", "dry"},
		},
	}
}

type fakeOrders struct {
	mu      sync.Mutex
	created []*order.Order
	err     error
}

func (f *fakeOrders) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, o)
	return o, nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newTestEngine(t *testing.T) (*Engine, session.Store, *fakeOrders) {
	t.Helper()
	store := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(func() { store.Close() })
	orders := &fakeOrders{}
	return NewEngine(fixtureCatalog(), store, orders, "https://shop.test/order"), store, orders
}

func send(t *testing.T, e *Engine, from, text string) string {
	t.Helper()
	replies := e.HandleMessage(context.Background(), Message{From: from, Name: "Ana", Text: text})
	if len(replies) == 0 || replies[0] == "" {
		t.Fatalf("no reply for %q", text)
	}
	return strings.Join(replies, "\n")
}

func load(t *testing.T, store session.Store, id string) *session.Session {
	t.Helper()
	s, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestExpressDryOrder(t *testing.T) {
	e, store, _ := newTestEngine(t)

	reply := send(t, e, "u1", "dry X 2")
	if !strings.Contains(reply, "Agregado: 2 x X") {
		t.Errorf("reply = %q", reply)
	}

	s := load(t, store, "u1")
	if len(s.Cart) != 1 {
		t.Fatalf("cart = %+v", s.Cart)
	}
	l := s.Cart[0]
	if l.Name != "X" || l.Quantity != 2 || l.Price != 25 {
		t.Errorf("line = %+v", l)
	}
	if s.CartTotal() != 50 {
		t.Errorf("total = %v, want 50", s.CartTotal())
	}
	if s.State != session.StateIdle {
		t.Errorf("state = %s", s.State)
	}
}

func TestExpressFirstMatchWins(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantName  string
		wantPrice float64
		wantType  menu.PresentationType
	}{
		{"earlier category wins", "enchiladas panditas premium 1", "panditas", 25, menu.Dry},
		{"item order within presentation", "enchiladas gusanos y panditas", "panditas", 25, menu.Dry},
		{"wet keyword checked first", "ahogadas enchiladas gusanos 1 fresa", "gusanos", 35, menu.Wet},
		{"only later category has item", "dry x 1", "X", 25, menu.Dry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store, _ := newTestEngine(t)
			send(t, e, "u1", tt.text)
			s := load(t, store, "u1")
			if len(s.Cart) != 1 {
				t.Fatalf("cart = %+v", s.Cart)
			}
			l := s.Cart[0]
			if l.Name != tt.wantName || l.Price != tt.wantPrice || l.Type != tt.wantType {
				t.Errorf("line = %+v", l)
			}
		})
	}
}

func TestExpressWetWithFlavorList(t *testing.T) {
	e, store, _ := newTestEngine(t)

	reply := send(t, e, "u1", "ahogadas aros x3 fresa, cerezas")
	if !strings.Contains(reply, "2 con fresa, 1 con cereza") {
		t.Errorf("reply = %q", reply)
	}

	s := load(t, store, "u1")
	got := map[string]int{}
	for _, l := range s.Cart {
		got[l.Flavor] += l.Quantity
	}
	if got["fresa"] != 2 || got["cereza"] != 1 || len(s.Cart) != 2 {
		t.Errorf("cart = %+v", s.Cart)
	}
	if s.CartTotal() != 105 {
		t.Errorf("total = %v", s.CartTotal())
	}
}

func TestMultiFlavorBatch(t *testing.T) {
	e, store, _ := newTestEngine(t)

	reply := send(t, e, "u1", "wet gusanos 3")
	if !strings.Contains(reply, "Chamoy (1/3)") {
		t.Fatalf("reply = %q", reply)
	}
	if s := load(t, store, "u1"); s.State != session.StateChoosingFlavorMulti || s.PendingMulti.QtyTotal != 3 {
		t.Fatalf("session = %+v", s)
	}

	if r := send(t, e, "u1", "1"); !strings.Contains(r, "Chamoy (2/3)") {
		t.Errorf("step 2 reply = %q", r)
	}
	if r := send(t, e, "u1", "nada"); !strings.Contains(r, "Chamoy (2/3)") {
		t.Errorf("invalid choice should re-prompt, got %q", r)
	}
	send(t, e, "u1", "1")
	final := send(t, e, "u1", "2")
	if !strings.Contains(final, "3 x gusanos") || !strings.Contains(final, "2 con normal, 1 con fresa") {
		t.Errorf("summary = %q", final)
	}

	s := load(t, store, "u1")
	if s.CartItemCount() != 3 {
		t.Errorf("item count = %d, want 3", s.CartItemCount())
	}
	if s.State != session.StateChoosingItem || s.PendingMulti != nil {
		t.Errorf("state = %s pending = %+v", s.State, s.PendingMulti)
	}
}

func TestGuidedFlow(t *testing.T) {
	e, store, _ := newTestEngine(t)

	steps := []struct {
		text      string
		wantReply string
		wantState session.State
	}{
		{"pedir", "Elige categoría", session.StateChoosingCategory},
		{"7", "Elige categoría", session.StateChoosingCategory},
		{"1", "Elige presentación", session.StateChoosingPresentation},
		{"abc", "Elige presentación", session.StateChoosingPresentation},
		{"1", "Elige producto", session.StateChoosingItem},
		{"2x3", "Agregado: 3 x gusanos", session.StateChoosingItem},
		{"9", "Elige producto", session.StateChoosingItem},
		{"menu", "https://shop.test/order", session.StateChoosingItem},
		{"pedir", "Elige categoría", session.StateChoosingCategory},
		{"1", "Elige presentación", session.StateChoosingPresentation},
		{"2", "Elige producto", session.StateChoosingItem},
		{"1", "Elige chamoy", session.StateChoosingFlavor},
		{"5", "Elige chamoy", session.StateChoosingFlavor},
		{"fresa", "Agregado: 1 x gusanos (Ahogadas 150 gr, fresa)", session.StateChoosingItem},
		{"finalizar", "Confirma tu pedido", session.StateConfirming},
		{"1", "Confirma tu pedido", session.StateConfirming},
	}

	for _, st := range steps {
		reply := send(t, e, "u1", st.text)
		if !strings.Contains(reply, st.wantReply) {
			t.Errorf("%q: reply = %q, want contains %q", st.text, reply, st.wantReply)
		}
		if s := load(t, store, "u1"); s.State != st.wantState {
			t.Fatalf("%q: state = %s, want %s", st.text, s.State, st.wantState)
		}
	}

	if s := load(t, store, "u1"); s.CartTotal() != 3*25+35 {
		t.Errorf("total = %v", s.CartTotal())
	}
}

func TestGreetingAndHelpReplyWithOrderLink(t *testing.T) {
	e, store, _ := newTestEngine(t)
	send(t, e, "u1", "dry X 2")
	send(t, e, "u1", "pedir")

	for _, text := range []string{"hola", "Buenas", "menú", "hi", "ayuda", "help", "ayuda por favor"} {
		if r := send(t, e, "u1", text); r != replyOrderLink("https://shop.test/order") {
			t.Errorf("%q reply = %q", text, r)
		}
	}

	s := load(t, store, "u1")
	if s.State != session.StateChoosingCategory || s.CartItemCount() != 2 {
		t.Errorf("session changed by greeting/help: %+v", s)
	}
}

func TestRemoveSemantics(t *testing.T) {
	tests := []struct {
		name      string
		remove    string
		wantLines int
		wantQty   int
	}{
		{"partial", "remove 1 X", 1, 2},
		{"more than present", "remove 5 X", 0, 0},
		{"default one", "quitar x", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store, _ := newTestEngine(t)
			send(t, e, "u1", "dry X 3")
			reply := send(t, e, "u1", tt.remove)
			if !strings.Contains(reply, "Quitado") {
				t.Errorf("reply = %q", reply)
			}
			s := load(t, store, "u1")
			if len(s.Cart) != tt.wantLines {
				t.Fatalf("cart = %+v", s.Cart)
			}
			if tt.wantLines > 0 && s.Cart[0].Quantity != tt.wantQty {
				t.Errorf("quantity = %d, want %d", s.Cart[0].Quantity, tt.wantQty)
			}
		})
	}

	e, store, _ := newTestEngine(t)
	if r := send(t, e, "u2", "quitar"); r != replyRemoveUsage {
		t.Errorf("usage reply = %q", r)
	}

	send(t, e, "u3", "dry X 3")
	for _, text := range []string{"quitar 0 x", "quitar 99999999999999999999 x", "quitar 2"} {
		if r := send(t, e, "u3", text); r != replyRemoveUsage {
			t.Errorf("%q reply = %q, want usage", text, r)
		}
	}
	if s := load(t, store, "u3"); s.CartItemCount() != 3 {
		t.Errorf("cart count after rejected removes = %d, want 3", s.CartItemCount())
	}

	if r := send(t, e, "u2", "quitar 1 panditas"); r != replyRemoveNotFound {
		t.Errorf("not found reply = %q", r)
	}
}

func TestFinalizeGating(t *testing.T) {
	e, store, orders := newTestEngine(t)

	if r := send(t, e, "u1", "finalizar"); r != replyEmptyCart {
		t.Errorf("empty finalize reply = %q", r)
	}
	if s := load(t, store, "u1"); s.State != session.StateIdle {
		t.Errorf("empty finalize changed state to %s", s.State)
	}

	send(t, e, "u1", "dry X 2")
	if r := send(t, e, "u1", "confirmar"); r != replyConfirmFirst {
		t.Errorf("confirm outside confirming = %q", r)
	}
	if orders.count() != 0 {
		t.Fatal("order created without finalize")
	}

	send(t, e, "u1", "finalizar")
	reply := send(t, e, "u1", "confirmar")
	if !strings.Contains(reply, "¡Gracias Ana!") || !strings.Contains(reply, "$50.00") {
		t.Errorf("confirm reply = %q", reply)
	}
	if orders.count() != 1 {
		t.Fatalf("orders created = %d", orders.count())
	}

	o := orders.created[0]
	if o.Status != order.StatusNew || o.Source != order.SourceChat || o.Total != 50 || len(o.ID) != 8 {
		t.Errorf("order = %+v", o)
	}
	if o.Customer.ID != "u1" || o.Customer.Name != "Ana" || o.Items[0].Type != "dry" {
		t.Errorf("order customer/items = %+v %+v", o.Customer, o.Items)
	}

	s := load(t, store, "u1")
	if s.State != session.StateIdle || len(s.Cart) != 0 {
		t.Errorf("session not reset: %+v", s)
	}
}

func TestConfirmPersistFailureKeepsCart(t *testing.T) {
	e, store, orders := newTestEngine(t)
	orders.err = errors.New("disk full")

	send(t, e, "u1", "dry X 2")
	send(t, e, "u1", "finalizar")
	if r := send(t, e, "u1", "confirmar"); r != replyPersistFailed {
		t.Errorf("reply = %q", r)
	}

	s := load(t, store, "u1")
	if s.State != session.StateConfirming || s.CartTotal() != 50 {
		t.Fatalf("session after failure = %+v", s)
	}

	orders.err = nil
	if r := send(t, e, "u1", "confirmar"); !strings.Contains(r, "ID:") {
		t.Errorf("retry reply = %q", r)
	}
	if orders.count() != 1 {
		t.Errorf("orders = %d", orders.count())
	}
}

// resetFailingStore 模擬訂單成立後 Reset 失敗
type resetFailingStore struct {
	*session.MemoryStore
}

func (s resetFailingStore) Reset(ctx context.Context, identity string) (*session.Session, error) {
	return nil, errors.New("reset unavailable")
}

func TestConfirmResetFailureDoesNotDuplicateOrder(t *testing.T) {
	mem := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(func() { mem.Close() })
	store := resetFailingStore{mem}
	orders := &fakeOrders{}
	e := NewEngine(fixtureCatalog(), store, orders, "https://shop.test/order")

	send(t, e, "u1", "dry X 2")
	send(t, e, "u1", "finalizar")
	if r := send(t, e, "u1", "confirmar"); !strings.Contains(r, "ID:") {
		t.Fatalf("confirm reply = %q", r)
	}
	if r := send(t, e, "u1", "confirmar"); r != replyConfirmFirst {
		t.Errorf("second confirm reply = %q, want %q", r, replyConfirmFirst)
	}
	if orders.count() != 1 {
		t.Errorf("orders = %d, want 1", orders.count())
	}
	if s := load(t, store, "u1"); s.State != session.StateIdle || len(s.Cart) != 0 {
		t.Errorf("session after confirm = %+v", s)
	}
}

func TestFinalizerClearsSessionWhenResetFails(t *testing.T) {
	mem := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(func() { mem.Close() })
	store := resetFailingStore{mem}
	ctx := context.Background()

	sess, _ := store.Get(ctx, "u1")
	sess.State = session.StateConfirming
	sess.AddToCart(session.CartLine{Name: "X", Price: 25, Quantity: 2, Presentation: "Enchiladas", Type: menu.Dry})
	if err := store.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}

	f := NewFinalizer(&fakeOrders{}, store)
	if _, err := f.Finalize(ctx, sess, "Ana"); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	stored := load(t, store, "u1")
	if stored.State != session.StateIdle || len(stored.Cart) != 0 {
		t.Errorf("stored session = %+v, want fresh", stored)
	}
}

func TestClearAndCancel(t *testing.T) {
	e, store, _ := newTestEngine(t)

	send(t, e, "u1", "dry X 2")
	send(t, e, "u1", "finalizar")
	if r := send(t, e, "u1", "vaciar carrito"); r != replyCleared {
		t.Errorf("clear reply = %q", r)
	}
	if s := load(t, store, "u1"); len(s.Cart) != 0 || s.State != session.StateIdle {
		t.Errorf("after clear: %+v", s)
	}

	send(t, e, "u1", "pedir")
	send(t, e, "u1", "dry X 1")
	if r := send(t, e, "u1", "cancelar"); r != replyCancelled {
		t.Errorf("cancel reply = %q", r)
	}
	if s := load(t, store, "u1"); len(s.Cart) != 0 || s.State != session.StateIdle {
		t.Errorf("after cancel: %+v", s)
	}
}

func TestQuantityLimits(t *testing.T) {
	e, store, _ := newTestEngine(t)

	if r := send(t, e, "u1", "dry X 150"); r != replyTooMany(MaxQuantity) {
		t.Errorf("reply = %q", r)
	}
	send(t, e, "u1", "dry X x0")
	s := load(t, store, "u1")
	if s.CartItemCount() != 1 {
		t.Errorf("quantity 0 should count as 1, cart = %+v", s.Cart)
	}
}

// 每個狀態對任何輸入都必須有回覆，且結果仍是已知狀態
func TestStateMachineTotality(t *testing.T) {
	inputs := []string{
		"", "   ", "0", "999", "-1", "abc", "1", "2", "1x2", "1x500", "fresa",
		"ver", "finalizar", "confirmar", "cancelar", "quitar", "quitar 1 X",
		"vaciar carrito", "ayuda", "hola", "pedir", "dry X 2", "wet aros 2",
		"¿¡ÁÉÍ!?", strings.Repeat("9", 40),
	}
	known := make(map[session.State]bool)
	for _, st := range session.AllStates {
		known[st] = true
	}

	seeds := []struct {
		name string
		cat  int
		pres int
	}{
		{"valid", 0, 1},
		{"stale", 42, 7},
	}

	for _, seed := range seeds {
		for _, state := range session.AllStates {
			for _, in := range inputs {
				e, store, _ := newTestEngine(t)
				s := session.New("u1")
				s.State = state
				s.CategoryIdx = seed.cat
				s.PresentationIdx = seed.pres
				s.Cart.Add(session.CartLine{Name: "X", Price: 25, Quantity: 1, Presentation: "Enchiladas", Type: menu.Dry})
				s.Pending = &session.PendingItem{ItemIdx: 0, Quantity: 1}
				s.PendingMulti = &session.PendingMulti{ItemIdx: 0, QtyTotal: 2}
				if err := store.Save(context.Background(), s); err != nil {
					t.Fatal(err)
				}

				replies := e.HandleMessage(context.Background(), Message{From: "u1", Text: in})
				if len(replies) == 0 || replies[0] == "" {
					t.Errorf("%s/%s/%q: no reply", seed.name, state, in)
					continue
				}
				if replies[0] == replyUnavailable {
					t.Errorf("%s/%s/%q: unexpected failure reply", seed.name, state, in)
				}
				if got := load(t, store, "u1"); !known[got.State] {
					t.Errorf("%s/%s/%q: unknown state %q", seed.name, state, in, got.State)
				}
			}
		}
	}
}

func TestEmptyIdentity(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if r := e.HandleMessage(context.Background(), Message{Text: "hola"}); r[0] != replyNotUnderstood {
		t.Errorf("reply = %q", r)
	}
}

func TestConcurrentMessages(t *testing.T) {
	e, store, _ := newTestEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			e.HandleMessage(context.Background(), Message{From: fmt.Sprintf("user-%d", i), Text: "dry X 2"})
		}(i)
		go func() {
			defer wg.Done()
			e.HandleMessage(context.Background(), Message{From: "shared", Text: "dry X 1"})
		}()
	}
	wg.Wait()

	for i := 0; i < 30; i++ {
		if s := load(t, store, fmt.Sprintf("user-%d", i)); s.CartTotal() != 50 {
			t.Errorf("user-%d total = %v", i, s.CartTotal())
		}
	}
	if s := load(t, store, "shared"); s.CartItemCount() != 30 {
		t.Errorf("shared item count = %d, want 30 (lost update)", s.CartItemCount())
	}
}

func TestFinalizerBuild(t *testing.T) {
	f := NewFinalizer(&fakeOrders{}, nil)
	f.now = func() time.Time { return time.Date(2025, 10, 31, 18, 0, 0, 0, time.UTC) }

	s := session.New("5215511111111")
	s.Cart.Add(session.CartLine{Name: "aros", Price: 35, Quantity: 2, Presentation: "Ahogadas", Weight: "150 gr", Type: menu.Wet, Flavor: "fresa"})

	o := f.Build(s, "Luis")
	if o.Total != 70 || o.Items[0].Flavor != "fresa" || o.Items[0].Type != "wet" {
		t.Errorf("order = %+v", o)
	}
	if !o.CreatedAt.Equal(f.now()) || o.Customer.Phone != "5215511111111" {
		t.Errorf("order meta = %+v", o)
	}

	if _, err := f.Finalize(context.Background(), session.New("u"), "x"); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("err = %v", err)
	}
}
