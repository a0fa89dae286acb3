package cooldown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	saves   int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]Entry)}
}

func (s *memStore) SaveCooldown(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Owner] = e
	s.saves++
	return nil
}

func (s *memStore) LatestCooldown(_ context.Context, owner string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[owner]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func testGate(store Store) (*Gate, *time.Time) {
	g := NewGate(store, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

// TestLossBlocksForThirteenMinutes verifies that a losing round blocks the
// owner for exactly the loss window.
func TestLossBlocksForThirteenMinutes(t *testing.T) {
	g, now := testGate(nil)
	ctx := context.Background()

	e, err := g.CloseTrades(ctx, "acct-1", []ClosedTrade{{ContractID: "c1", PnL: -25}})
	if err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}
	if e == nil || e.Kind != KindLoss {
		t.Fatalf("entry = %+v, want loss cooldown", e)
	}

	ok, remaining, err := g.CanOpenTrade(ctx, "acct-1")
	if err != nil {
		t.Fatalf("CanOpenTrade: %v", err)
	}
	if ok {
		t.Fatal("owner should be blocked right after a loss")
	}
	if remaining != LossCooldown {
		t.Errorf("remaining = %v, want %v", remaining, LossCooldown)
	}

	// One minute before expiry: still blocked.
	*now = now.Add(12 * time.Minute)
	ok, remaining, _ = g.CanOpenTrade(ctx, "acct-1")
	if ok {
		t.Fatal("owner should still be blocked at 12 minutes")
	}
	if remaining != time.Minute {
		t.Errorf("remaining = %v, want 1m", remaining)
	}

	// At expiry: allowed again.
	*now = now.Add(time.Minute)
	ok, remaining, _ = g.CanOpenTrade(ctx, "acct-1")
	if !ok {
		t.Fatal("owner should be allowed once the window expires")
	}
	if remaining != 0 {
		t.Errorf("remaining = %v, want 0", remaining)
	}
}

// TestMixedBatchNetsToWinCooldown verifies that a batch closing +50 and -10
// settles as a win and applies the shorter window.
func TestMixedBatchNetsToWinCooldown(t *testing.T) {
	g, _ := testGate(nil)
	ctx := context.Background()

	e, err := g.CloseTrades(ctx, "acct-1", []ClosedTrade{
		{ContractID: "c1", Instrument: "BTCUSDT", PnL: 50},
		{ContractID: "c2", Instrument: "ETHUSDT", PnL: -10},
	})
	if err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}
	if e.Kind != KindWin {
		t.Errorf("kind = %s, want %s", e.Kind, KindWin)
	}
	if e.NetPnL != 40 {
		t.Errorf("net = %v, want 40", e.NetPnL)
	}

	_, remaining, _ := g.CanOpenTrade(ctx, "acct-1")
	if remaining != WinCooldown {
		t.Errorf("remaining = %v, want %v", remaining, WinCooldown)
	}
}

// TestFlatBatchStartsNoCooldown verifies that a round netting to zero leaves
// the owner unblocked.
func TestFlatBatchStartsNoCooldown(t *testing.T) {
	g, _ := testGate(nil)
	ctx := context.Background()

	e, err := g.CloseTrades(ctx, "acct-1", []ClosedTrade{
		{ContractID: "c1", PnL: 15},
		{ContractID: "c2", PnL: -15},
	})
	if err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}
	if e != nil {
		t.Fatalf("entry = %+v, want nil", e)
	}
	ok, _, _ := g.CanOpenTrade(ctx, "acct-1")
	if !ok {
		t.Error("owner should be allowed after a flat round")
	}
}

// TestEmptyBatchIsNoop verifies that closing zero trades changes nothing.
func TestEmptyBatchIsNoop(t *testing.T) {
	g, _ := testGate(nil)
	e, err := g.CloseTrades(context.Background(), "acct-1", nil)
	if err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}
	if e != nil {
		t.Errorf("entry = %+v, want nil", e)
	}
}

// TestOwnersAreIndependent verifies that one owner's cooldown never blocks
// another.
func TestOwnersAreIndependent(t *testing.T) {
	g, _ := testGate(nil)
	ctx := context.Background()

	if _, err := g.CloseTrades(ctx, "acct-1", []ClosedTrade{{PnL: -5}}); err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}
	ok, _, _ := g.CanOpenTrade(ctx, "acct-2")
	if !ok {
		t.Error("unrelated owner should not be blocked")
	}
	ok, _, _ = g.CanOpenTrade(ctx, "acct-1")
	if ok {
		t.Error("losing owner should be blocked")
	}
}

// TestCooldownSurvivesRestartViaStore verifies that a gate rebuilt over the
// same store still blocks inside the persisted window.
func TestCooldownSurvivesRestartViaStore(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	g1, now := testGate(store)
	if _, err := g1.CloseTrades(ctx, "acct-1", []ClosedTrade{{PnL: -5}}); err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}

	g2 := NewGate(store, zerolog.Nop())
	g2.now = func() time.Time { return *now }
	ok, remaining, err := g2.CanOpenTrade(ctx, "acct-1")
	if err != nil {
		t.Fatalf("CanOpenTrade: %v", err)
	}
	if ok {
		t.Fatal("restarted gate should honor the persisted cooldown")
	}
	if remaining != LossCooldown {
		t.Errorf("remaining = %v, want %v", remaining, LossCooldown)
	}
}

// TestNewRoundReplacesWindow verifies that a fresh batch restarts the clock
// from the new settlement.
func TestNewRoundReplacesWindow(t *testing.T) {
	g, now := testGate(nil)
	ctx := context.Background()

	if _, err := g.CloseTrades(ctx, "acct-1", []ClosedTrade{{PnL: 20}}); err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}
	*now = now.Add(9 * time.Minute)
	if _, err := g.CloseTrades(ctx, "acct-1", []ClosedTrade{{PnL: -3}}); err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}

	_, remaining, _ := g.CanOpenTrade(ctx, "acct-1")
	if remaining != LossCooldown {
		t.Errorf("remaining = %v, want %v after new losing round", remaining, LossCooldown)
	}
}

// TestConcurrentChecksSerialize verifies that parallel checks against one
// owner all observe a consistent window.
func TestConcurrentChecksSerialize(t *testing.T) {
	g, _ := testGate(nil)
	ctx := context.Background()
	if _, err := g.CloseTrades(ctx, "acct-1", []ClosedTrade{{PnL: -5}}); err != nil {
		t.Fatalf("CloseTrades: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, remaining, err := g.CanOpenTrade(ctx, "acct-1")
			if err != nil {
				t.Errorf("CanOpenTrade: %v", err)
			}
			if ok || remaining != LossCooldown {
				t.Errorf("ok=%v remaining=%v, want blocked for full window", ok, remaining)
			}
		}()
	}
	wg.Wait()
}
