package session

import (
	"context"
	"testing"
	"time"

	"gomitas-bot/internal/core/menu"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func line(name string, qty int, price float64, typ menu.PresentationType, flavor string) CartLine {
	pres := "Enchiladas"
	if typ == menu.Wet {
		pres = "Ahogadas"
	}
	return CartLine{
		Name:         name,
		Price:        price,
		Quantity:     qty,
		Presentation: pres,
		Weight:       "100 gr",
		Type:         typ,
		Flavor:       flavor,
	}
}

func TestCart_AddMerge(t *testing.T) {
	tests := []struct {
		name      string
		a, b      CartLine
		wantLines int
		wantQty   int
	}{
		{"same key merges", line("panditas", 1, 25, menu.Dry, ""), line("panditas", 2, 25, menu.Dry, ""), 1, 3},
		{"different flavor", line("xtremes", 1, 45, menu.Wet, "fresa"), line("xtremes", 1, 45, menu.Wet, "cereza"), 2, 2},
		{"different type", line("panditas", 1, 25, menu.Dry, ""), line("panditas", 1, 25, menu.Wet, ""), 2, 2},
		{"different price", line("panditas", 1, 25, menu.Dry, ""), line("panditas", 1, 30, menu.Dry, ""), 2, 2},
		{"different name", line("panditas", 1, 25, menu.Dry, ""), line("gusanos", 1, 25, menu.Dry, ""), 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Cart
			c.Add(tt.a)
			c.Add(tt.b)
			if len(c) != tt.wantLines {
				t.Errorf("lines = %d, want %d", len(c), tt.wantLines)
			}
			if c.ItemCount() != tt.wantQty {
				t.Errorf("ItemCount() = %d, want %d", c.ItemCount(), tt.wantQty)
			}
		})
	}
}

func TestCart_Remove(t *testing.T) {
	tests := []struct {
		name        string
		qty         int
		wantRemoved int
		wantLines   int
		wantLeft    int
	}{
		{"partial", 1, 1, 1, 2},
		{"exact", 3, 3, 0, 0},
		{"more than present", 5, 3, 0, 0},
		{"zero removes nothing", 0, 0, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Cart{line("Xtremes", 3, 45, menu.Wet, "fresa")}
			_, removed, ok := c.Remove("xtremes", tt.qty)
			if !ok {
				t.Fatal("Remove() found nothing")
			}
			if removed != tt.wantRemoved {
				t.Errorf("removed = %d, want %d", removed, tt.wantRemoved)
			}
			if len(c) != tt.wantLines {
				t.Errorf("lines = %d, want %d", len(c), tt.wantLines)
			}
			if c.ItemCount() != tt.wantLeft {
				t.Errorf("ItemCount() = %d, want %d", c.ItemCount(), tt.wantLeft)
			}
			for _, l := range c {
				if l.Quantity < 0 {
					t.Errorf("negative quantity: %+v", l)
				}
			}
		})
	}
}

func TestCart_RemoveMostRecentMatch(t *testing.T) {
	c := Cart{
		line("panditas", 2, 25, menu.Dry, ""),
		line("gusanos", 1, 25, menu.Dry, ""),
		line("panditas", 4, 35, menu.Wet, "fresa"),
	}

	got, removed, ok := c.Remove("Panditas", 1)
	if !ok || removed != 1 {
		t.Fatalf("Remove() = (%v, %d, %v)", got, removed, ok)
	}
	if got.Type != menu.Wet {
		t.Errorf("removed from %q line, want the last added (wet)", got.Type)
	}
	if c[0].Quantity != 2 || c[2].Quantity != 3 {
		t.Errorf("unexpected quantities: %+v", c)
	}

	if _, _, ok := c.Remove("tiburones", 1); ok {
		t.Error("Remove() matched a product that is not in the cart")
	}
	if _, _, ok := c.Remove("  ", 1); ok {
		t.Error("Remove() matched an empty token")
	}
}

func TestCart_TotalConsistency(t *testing.T) {
	var c Cart
	c.Add(line("panditas", 2, 25, menu.Dry, ""))
	c.Add(line("xtremes", 1, 45, menu.Wet, "fresa"))
	c.Add(line("xtremes", 2, 45, menu.Wet, "cereza"))
	c.Add(line("panditas", 1, 25, menu.Dry, ""))
	c.Remove("xtremes", 1)
	c.Remove("panditas", 10)

	want := 0.0
	for _, l := range c {
		want += l.Price * float64(l.Quantity)
	}
	if c.Total() != want {
		t.Errorf("Total() = %v, want %v", c.Total(), want)
	}
	if c.Total() != 90 {
		t.Errorf("Total() = %v, want 90", c.Total())
	}
}

func TestAddFlavor_KeepsFirstSeenOrder(t *testing.T) {
	var counts []FlavorCount
	counts = AddFlavor(counts, "fresa", 1)
	counts = AddFlavor(counts, "normal", 1)
	counts = AddFlavor(counts, "fresa", 2)

	if len(counts) != 2 || counts[0].Flavor != "fresa" || counts[0].Qty != 3 || counts[1].Flavor != "normal" {
		t.Errorf("AddFlavor() = %+v", counts)
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := New("521")
	s.AddToCart(line("panditas", 1, 25, menu.Dry, ""))
	s.PendingMulti = &PendingMulti{ItemIdx: 1, QtyTotal: 3, Counts: []FlavorCount{{"fresa", 1}}}

	c := s.Clone()
	c.Cart[0].Quantity = 9
	c.PendingMulti.Counts[0].Qty = 9

	if s.Cart[0].Quantity != 1 || s.PendingMulti.Counts[0].Qty != 1 {
		t.Error("Clone() shares nested state with the original")
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(time.Hour, time.Hour, time.Now)
	defer store.Close()

	s, err := store.Get(ctx, "5215512345678")
	if err != nil {
		t.Fatal(err)
	}
	if s.State != StateIdle || len(s.Cart) != 0 {
		t.Fatalf("new session = %+v", s)
	}

	// 未儲存的修改不影響儲存內容
	s.State = StateChoosingItem
	again, _ := store.Get(ctx, "5215512345678")
	if again.State != StateIdle {
		t.Error("Get() returned a shared session")
	}

	s.AddToCart(line("panditas", 2, 25, menu.Dry, ""))
	s.Pending = &PendingItem{ItemIdx: 1, Quantity: 1}
	if err := store.Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	// 巢狀欄位整個取代
	s.Pending = nil
	if err := store.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, "5215512345678")
	if got.State != StateChoosingItem || got.CartItemCount() != 2 || got.Pending != nil {
		t.Errorf("after Save: %+v", got)
	}

	reset, err := store.Reset(ctx, "5215512345678")
	if err != nil {
		t.Fatal(err)
	}
	if reset.State != StateIdle || len(reset.Cart) != 0 {
		t.Errorf("after Reset: %+v", reset)
	}
}

func TestMemoryStore_EvictsIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newMemoryStore(30*time.Minute, time.Hour, clock)
	defer store.Close()

	s, _ := store.Get(ctx, "a")
	s.AddToCart(line("panditas", 1, 25, menu.Dry, ""))
	store.Save(ctx, s)
	store.Get(ctx, "b")

	store.mu.Lock()
	now = now.Add(20 * time.Minute)
	store.mu.Unlock()
	store.Get(ctx, "b")

	store.mu.Lock()
	now = now.Add(15 * time.Minute)
	store.mu.Unlock()
	if n := store.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}

	got, _ := store.Get(ctx, "a")
	if len(got.Cart) != 0 {
		t.Error("idle session was not evicted")
	}
	if store.Stats()["evictions"].(int64) != 1 {
		t.Errorf("Stats() = %v", store.Stats())
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Hour)
	store.Close()
	store.Close()

	if _, err := store.Get(context.Background(), "x"); err != ErrStoreClosed {
		t.Errorf("Get() after Close error = %v, want %v", err, ErrStoreClosed)
	}
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, 10*time.Minute)
	defer store.Close()

	s, err := store.Get(ctx, "5215512345678")
	if err != nil {
		t.Fatal(err)
	}
	if s.State != StateIdle {
		t.Fatalf("new session state = %q", s.State)
	}
	if !mr.Exists("session:5215512345678") {
		t.Fatal("new session was not written")
	}

	s.State = StateChoosingFlavorMulti
	s.CategoryIdx = 1
	s.PresentationIdx = 1
	s.PendingMulti = &PendingMulti{ItemIdx: 0, QtyTotal: 3, QtyDone: 1, Counts: []FlavorCount{{"fresa", 1}}}
	s.AddToCart(line("Xtremes", 1, 45, menu.Wet, "fresa"))
	if err := store.Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "5215512345678")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateChoosingFlavorMulti || got.PendingMulti == nil || got.PendingMulti.QtyDone != 1 {
		t.Errorf("round trip lost state: %+v", got)
	}
	if got.CartTotal() != 45 {
		t.Errorf("CartTotal() = %v, want 45", got.CartTotal())
	}
	if ttl := mr.TTL("session:5215512345678"); ttl != 10*time.Minute {
		t.Errorf("TTL = %v, want 10m", ttl)
	}

	mr.FastForward(11 * time.Minute)
	expired, err := store.Get(ctx, "5215512345678")
	if err != nil {
		t.Fatal(err)
	}
	if expired.State != StateIdle || len(expired.Cart) != 0 {
		t.Errorf("expired session not recreated: %+v", expired)
	}

	if _, err := store.Reset(ctx, "5215512345678"); err != nil {
		t.Fatal(err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
