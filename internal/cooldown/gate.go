package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Cooldown durations applied after a trading round closes. A losing round
// blocks new entries longer than a winning one.
const (
	LossCooldown = 13 * time.Minute
	WinCooldown  = 10 * time.Minute
)

// Kind labels why a cooldown was applied.
type Kind string

const (
	KindLoss Kind = "loss"
	KindWin  Kind = "win"
)

// Entry is one owner's active cooldown window.
type Entry struct {
	Owner     string    `json:"owner"`
	Kind      Kind      `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	NetPnL    float64   `json:"net_pnl"`
}

// ClosedTrade is the settlement view of a single closed position, as reported
// by the broker when a round finishes.
type ClosedTrade struct {
	ContractID string  `json:"contract_id"`
	Instrument string  `json:"instrument"`
	PnL        float64 `json:"pnl"`
}

// Store persists cooldown entries so a restart does not forget an active
// window. Implementations must return a nil entry when the owner has none.
type Store interface {
	SaveCooldown(ctx context.Context, e Entry) error
	LatestCooldown(ctx context.Context, owner string) (*Entry, error)
}

// Gate decides whether an owner may open new trades. All trades closed in one
// batch settle as a single round: the sign of the summed PnL picks the
// cooldown kind. Checks and batch closes for the same owner are serialized.
type Gate struct {
	log   zerolog.Logger
	store Store
	now   func() time.Time

	mu     sync.Mutex
	owners map[string]*ownerState
}

type ownerState struct {
	mu      sync.Mutex
	current *Entry
}

// NewGate creates a cooldown gate. The store may be nil, in which case
// entries live only in memory.
func NewGate(store Store, log zerolog.Logger) *Gate {
	return &Gate{
		log:    log.With().Str("component", "cooldown").Logger(),
		store:  store,
		now:    time.Now,
		owners: make(map[string]*ownerState),
	}
}

func (g *Gate) owner(owner string) *ownerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.owners[owner]
	if !ok {
		st = &ownerState{}
		g.owners[owner] = st
	}
	return st
}

// CloseTrades settles a batch of closed trades as one round and starts the
// matching cooldown window. A batch that nets to exactly zero starts no
// cooldown. Returns the entry that was started, or nil.
func (g *Gate) CloseTrades(ctx context.Context, owner string, trades []ClosedTrade) (*Entry, error) {
	if len(trades) == 0 {
		return nil, nil
	}

	st := g.owner(owner)
	st.mu.Lock()
	defer st.mu.Unlock()

	var net float64
	for _, t := range trades {
		net += t.PnL
	}

	var kind Kind
	var dur time.Duration
	switch {
	case net < 0:
		kind, dur = KindLoss, LossCooldown
	case net > 0:
		kind, dur = KindWin, WinCooldown
	default:
		g.log.Info().Str("owner", owner).Int("trades", len(trades)).
			Msg("round settled flat, no cooldown")
		return nil, nil
	}

	now := g.now().UTC()
	e := Entry{
		Owner:     owner,
		Kind:      kind,
		StartedAt: now,
		ExpiresAt: now.Add(dur),
		NetPnL:    net,
	}
	st.current = &e

	if g.store != nil {
		if err := g.store.SaveCooldown(ctx, e); err != nil {
			return &e, err
		}
	}

	g.log.Info().
		Str("owner", owner).
		Str("kind", string(kind)).
		Float64("net_pnl", net).
		Time("expires_at", e.ExpiresAt).
		Msg("cooldown started")
	return &e, nil
}

// CanOpenTrade reports whether the owner may open a new position. When
// blocked it also returns the remaining wait. Expired windows are treated as
// absent; an owner with no history is always allowed.
func (g *Gate) CanOpenTrade(ctx context.Context, owner string) (bool, time.Duration, error) {
	st := g.owner(owner)
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.current
	if e == nil && g.store != nil {
		loaded, err := g.store.LatestCooldown(ctx, owner)
		if err != nil {
			return false, 0, err
		}
		e = loaded
		st.current = loaded
	}
	if e == nil {
		return true, 0, nil
	}

	remaining := e.ExpiresAt.Sub(g.now().UTC())
	if remaining <= 0 {
		st.current = nil
		return true, 0, nil
	}
	return false, remaining, nil
}
