// Package position owns the set of open positions: tranche accounting,
// live P&L and full or partial closes with realized P&L booked into the
// risk gate.
package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/idhash"
	"solana-token-trader/internal/observability"
	"solana-token-trader/internal/storage"
)

// DefaultDustQuantity is the token quantity below which a position is
// considered fully closed.
const DefaultDustQuantity = 1e-6

// RiskRecorder receives trade counts and realized P&L.
type RiskRecorder interface {
	RecordTrade(ctx context.Context) error
	RecordRealizedPnl(ctx context.Context, delta float64) error
}

// Config configures a Manager. Store, Journal, Metrics and Risk are optional.
type Config struct {
	DustQuantity float64
	Risk         RiskRecorder
	Store        storage.PositionStore
	Journal      storage.TradeJournal
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time // nil = time.Now
	NewID        func() string    // nil = uuid.NewString
}

// Entry describes the first fill of a new position.
type Entry struct {
	Mint      string
	Symbol    string
	Price     float64 // fill price, SOL per token
	Quantity  float64 // tokens received
	CostBasis float64 // SOL spent
	Signature string
}

// CloseResult describes the outcome of ClosePosition.
type CloseResult struct {
	RealizedPnl  float64
	QuantitySold float64
	Proceeds     float64
	Closed       bool
	Remaining    *domain.Position // nil when Closed
	Event        domain.ExitEvent
}

// slot guards one position. It is never locked while Manager.mu is held.
type slot struct {
	mu      sync.Mutex
	pos     *domain.Position
	removed bool
}

// Manager is safe for concurrent use. Mutations on one position, including
// their store writes, are serialized; different positions proceed independently.
type Manager struct {
	cfg Config

	mu     sync.RWMutex
	byID   map[string]*slot
	byMint map[string]string
}

// NewManager creates an empty manager.
func NewManager(cfg Config) *Manager {
	if cfg.DustQuantity <= 0 {
		cfg.DustQuantity = DefaultDustQuantity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Manager{
		cfg:    cfg,
		byID:   make(map[string]*slot),
		byMint: make(map[string]string),
	}
}

// Restore loads persisted open positions into memory. Positions already
// present are kept. Returns the number restored.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.cfg.Store == nil {
		return 0, nil
	}

	open, err := m.cfg.Store.LoadOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("load open positions: %w", err)
	}

	m.mu.Lock()
	restored := 0
	for _, p := range open {
		if _, ok := m.byID[p.ID]; ok {
			continue
		}
		if _, ok := m.byMint[p.Mint]; ok {
			m.cfg.Logger.Warn().Str("mint", p.Mint).Str("position_id", p.ID).Msg("duplicate open position for mint skipped")
			continue
		}
		m.byID[p.ID] = &slot{pos: p}
		m.byMint[p.Mint] = p.ID
		restored++
	}
	n := len(m.byID)
	m.mu.Unlock()

	m.cfg.Metrics.SetOpenPositions(n)
	return restored, nil
}

// CreatePosition opens a position with one tranche and counts the trade in
// the risk gate.
func (m *Manager) CreatePosition(ctx context.Context, e Entry) (*domain.Position, error) {
	if e.Price <= 0 || e.Quantity <= 0 || e.CostBasis <= 0 || e.Mint == "" {
		return nil, ErrInvalidEntry
	}

	now := m.cfg.Now()
	p := &domain.Position{
		ID:             m.cfg.NewID(),
		Mint:           e.Mint,
		Symbol:         e.Symbol,
		EntryPrice:     e.CostBasis / e.Quantity,
		CurrentPrice:   e.Price,
		Quantity:       e.Quantity,
		CostBasis:      e.CostBasis,
		HighestPrice:   e.Price,
		HighestPriceAt: now,
		EntryTime:      now,
		UpdatedAt:      now,
		Tranches: []domain.Tranche{{
			Size:      e.CostBasis,
			Price:     e.Price,
			Quantity:  e.Quantity,
			Timestamp: now,
			Signature: e.Signature,
		}},
		Status: domain.PositionStatusActive,
	}
	recomputePnl(p)

	s := &slot{pos: p}
	s.mu.Lock()
	defer s.mu.Unlock()

	m.mu.Lock()
	if _, exists := m.byMint[e.Mint]; exists {
		m.mu.Unlock()
		return nil, ErrPositionExists
	}
	m.byID[p.ID] = s
	m.byMint[p.Mint] = p.ID
	n := len(m.byID)
	m.mu.Unlock()

	m.persist(ctx, p)
	snapshot := p.Clone()

	if m.cfg.Risk != nil {
		if err := m.cfg.Risk.RecordTrade(ctx); err != nil {
			m.cfg.Logger.Warn().Err(err).Str("mint", p.Mint).Msg("record trade failed")
		}
	}
	m.cfg.Metrics.SetOpenPositions(n)

	m.cfg.Logger.Info().
		Str("position_id", p.ID).
		Str("mint", p.Mint).
		Float64("entry_price", p.EntryPrice).
		Float64("quantity", p.Quantity).
		Float64("cost_basis", p.CostBasis).
		Msg("position opened")

	return snapshot, nil
}

// AddTranche appends a fill and recomputes quantity, cost basis and the
// cost-weighted entry price.
func (m *Manager) AddTranche(ctx context.Context, id string, price, size float64, signature string) (*domain.Position, error) {
	if price <= 0 || size <= 0 {
		return nil, ErrInvalidEntry
	}

	s, err := m.lock(id)
	if err != nil {
		return nil, err
	}
	p := s.pos
	now := m.cfg.Now()

	qty := size / price
	p.Tranches = append(p.Tranches, domain.Tranche{
		Size:      size,
		Price:     price,
		Quantity:  qty,
		Timestamp: now,
		Signature: signature,
	})
	p.Quantity += qty
	p.CostBasis += size
	p.EntryPrice = p.CostBasis / p.Quantity
	if p.Status == domain.PositionStatusPartialFill || p.Status == domain.PositionStatusPendingEntry {
		p.Status = domain.PositionStatusActive
	}
	p.UpdatedAt = now
	recomputePnl(p)

	m.persist(ctx, p)
	snapshot := p.Clone()
	s.mu.Unlock()

	m.cfg.Logger.Info().
		Str("position_id", id).
		Int("tranche", len(snapshot.Tranches)).
		Float64("size", size).
		Float64("price", price).
		Float64("entry_price", snapshot.EntryPrice).
		Msg("tranche added")

	return snapshot, nil
}

// UpdatePosition applies a fresh price, tracks the highest price and
// recomputes unrealized P&L. The store is written only when a new high is set.
func (m *Manager) UpdatePosition(ctx context.Context, id string, price float64) (*domain.Position, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}

	s, err := m.lock(id)
	if err != nil {
		return nil, err
	}
	p := s.pos
	now := m.cfg.Now()

	p.CurrentPrice = price
	newHigh := price > p.HighestPrice
	if newHigh {
		p.HighestPrice = price
		p.HighestPriceAt = now
	}
	p.UpdatedAt = now
	recomputePnl(p)

	if newHigh {
		m.persist(ctx, p)
	}
	snapshot := p.Clone()
	s.mu.Unlock()

	return snapshot, nil
}

// ClosePosition sells percent of the remaining quantity at sellPrice.
// Quantity and cost basis shrink proportionally and realized P&L is booked
// into the risk gate. The position closes when percent is 100 or the
// remainder is dust. tp1 and tp2 reasons set the matching rung flag.
func (m *Manager) ClosePosition(
	ctx context.Context,
	id string,
	sellPrice float64,
	percent float64,
	reason domain.ExitReason,
	signature string,
) (CloseResult, error) {
	if sellPrice <= 0 {
		return CloseResult{}, ErrInvalidPrice
	}
	if percent <= 0 || math.IsNaN(percent) {
		return CloseResult{}, ErrInvalidPercent
	}
	if percent > 100 {
		percent = 100
	}

	s, err := m.lock(id)
	if err != nil {
		return CloseResult{}, err
	}
	p := s.pos
	now := m.cfg.Now()

	fraction := percent / 100
	soldQty := p.Quantity * fraction
	costReleased := p.CostBasis * fraction
	if percent >= 100 {
		soldQty = p.Quantity
		costReleased = p.CostBasis
	}
	proceeds := soldQty * sellPrice
	realized := proceeds - costReleased

	p.Quantity -= soldQty
	p.CostBasis -= costReleased
	p.ClosedQuantity += soldQty
	p.CurrentPrice = sellPrice
	p.UpdatedAt = now

	closed := percent >= 100 || p.Quantity < m.cfg.DustQuantity
	if closed {
		// Unsold dust is marked at the sell price.
		realized += p.Quantity*sellPrice - p.CostBasis
		p.ClosedQuantity += p.Quantity
		p.Quantity = 0
		p.CostBasis = 0
		p.Status = domain.PositionStatusClosed
	} else {
		p.Status = domain.PositionStatusPartialExit
	}
	p.RealizedPnl += realized

	switch reason {
	case domain.ExitReasonTP1:
		p.RungsHit.TP1 = true
	case domain.ExitReasonTP2:
		p.RungsHit.TP2 = true
	}
	recomputePnl(p)

	event := domain.ExitEvent{
		EventID:      idhash.ComputeExitEventID(p.ID, reason, percent, soldQty, now.UnixMilli()),
		PositionID:   p.ID,
		Mint:         p.Mint,
		Reason:       reason,
		PercentSold:  percent,
		QuantitySold: soldQty,
		SellPrice:    sellPrice,
		Proceeds:     proceeds,
		RealizedPnl:  realized,
		Remaining:    p.Quantity,
		Closed:       closed,
		Signature:    signature,
		Timestamp:    now,
	}

	snapshot := p.Clone()
	if closed {
		s.removed = true
		m.mu.Lock()
		delete(m.byID, p.ID)
		if m.byMint[p.Mint] == p.ID {
			delete(m.byMint, p.Mint)
		}
		m.mu.Unlock()
		m.remove(ctx, id)
	} else {
		m.persist(ctx, p)
	}
	s.mu.Unlock()

	if m.cfg.Risk != nil {
		if err := m.cfg.Risk.RecordRealizedPnl(ctx, realized); err != nil {
			m.cfg.Logger.Warn().Err(err).Str("position_id", id).Msg("record realized pnl failed")
		}
	}
	if closed {
		m.cfg.Metrics.SetOpenPositions(m.Count())
	}
	m.record(ctx, &event)

	action := domain.ExitActionPartialExit
	if closed {
		action = domain.ExitActionFullExit
	}
	m.cfg.Metrics.RecordExit(string(reason), string(action), realized)

	m.cfg.Logger.Info().
		Str("position_id", id).
		Str("mint", snapshot.Mint).
		Str("reason", string(reason)).
		Float64("percent", percent).
		Float64("sell_price", sellPrice).
		Float64("realized_pnl", realized).
		Float64("remaining", snapshot.Quantity).
		Bool("closed", closed).
		Msg("position exit")

	res := CloseResult{
		RealizedPnl:  realized,
		QuantitySold: soldQty,
		Proceeds:     proceeds,
		Closed:       closed,
		Event:        event,
	}
	if !closed {
		res.Remaining = snapshot
	}
	return res, nil
}

// GetActivePositions returns copies of all open positions ordered by entry time.
func (m *Manager) GetActivePositions() []*domain.Position {
	m.mu.RLock()
	slots := make([]*slot, 0, len(m.byID))
	for _, s := range m.byID {
		slots = append(slots, s)
	}
	m.mu.RUnlock()

	result := make([]*domain.Position, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		if !s.removed {
			result = append(result, s.pos.Clone())
		}
		s.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryTime.Equal(result[j].EntryTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].EntryTime.Before(result[j].EntryTime)
	})
	return result
}

// GetPosition returns a copy of the open position with the given ID.
func (m *Manager) GetPosition(id string) (*domain.Position, error) {
	s, err := m.lock(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.pos.Clone(), nil
}

// GetPositionByMint returns a copy of the open position on mint.
func (m *Manager) GetPositionByMint(mint string) (*domain.Position, error) {
	m.mu.RLock()
	id, ok := m.byMint[mint]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrPositionNotFound
	}
	return m.GetPosition(id)
}

// Count returns the number of open positions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// HasOpenPosition reports whether mint has an open position.
func (m *Manager) HasOpenPosition(mint string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byMint[mint]
	return ok
}

// lock returns the slot for id with its mutex held.
func (m *Manager) lock(id string) (*slot, error) {
	m.mu.RLock()
	s, ok := m.byID[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}

	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	return s, nil
}

func (m *Manager) persist(ctx context.Context, p *domain.Position) {
	if m.cfg.Store == nil {
		return
	}
	if err := m.cfg.Store.Save(ctx, p); err != nil {
		m.cfg.Logger.Warn().Err(err).Str("position_id", p.ID).Msg("persist position failed")
	}
}

func (m *Manager) remove(ctx context.Context, id string) {
	if m.cfg.Store == nil {
		return
	}
	if err := m.cfg.Store.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.cfg.Logger.Warn().Err(err).Str("position_id", id).Msg("delete position failed")
	}
}

func (m *Manager) record(ctx context.Context, e *domain.ExitEvent) {
	if m.cfg.Journal == nil {
		return
	}
	if err := m.cfg.Journal.Record(ctx, e); err != nil {
		m.cfg.Logger.Warn().Err(err).Str("event_id", e.EventID).Msg("journal exit event failed")
	}
}

// recomputePnl refreshes unrealized P&L from quantity, price and cost basis.
func recomputePnl(p *domain.Position) {
	p.UnrealizedPnl = p.Quantity*p.CurrentPrice - p.CostBasis
	if p.CostBasis > 0 {
		p.UnrealizedPnlPct = p.UnrealizedPnl / p.CostBasis * 100
	} else {
		p.UnrealizedPnlPct = 0
	}
}
