package discovery

import (
	"encoding/json"
	"fmt"
	"time"

	"solana-token-trader/internal/domain"
)

// Pump.fun bonding curve constants, in whole tokens. The curve starts with
// initialVirtualTokens and completes when realTokensForSale are sold.
const (
	initialVirtualTokens = 1_073_000_000
	realTokensForSale    = 793_100_000
)

// ParseMessage decodes a PumpPortal message. Control messages such as the
// subscription acknowledgement return ok=false.
func ParseMessage(data []byte) (*NewTokenEvent, bool, error) {
	var e NewTokenEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decode message: %w", err)
	}
	if e.Mint == "" || (e.TxType != "" && e.TxType != "create") {
		return nil, false, nil
	}
	return &e, true, nil
}

// CurveProgress returns bonding curve completion in percent from the virtual
// token reserve, or false when the reserve is not reported.
func CurveProgress(vTokens float64) (float64, bool) {
	if vTokens <= 0 {
		return 0, false
	}
	sold := initialVirtualTokens - vTokens
	pct := sold / realTokensForSale * 100
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return pct, true
}

// ToCandidate builds a candidate from a creation event observed at now.
// Zero-valued event fields are left unset in the snapshot.
func ToCandidate(ev *NewTokenEvent, now time.Time) domain.Candidate {
	c := domain.Candidate{
		Mint:         ev.Mint,
		Symbol:       ev.Symbol,
		Name:         ev.Name,
		Source:       domain.SourcePumpPortal,
		DiscoveredAt: now,
	}

	// A creation event is observed at creation time.
	created := now
	c.Snapshot.CreatedAt = &created
	if p, ok := CurveProgress(ev.VTokensInBondingCurve); ok {
		c.Snapshot.BondingCurveProgress = &p
	}
	if ev.MarketCapSol > 0 {
		mc := ev.MarketCapSol
		c.Snapshot.MarketCapSOL = &mc
	}
	trades := int64(0)
	if ev.InitialBuy > 0 {
		trades = 1
	}
	c.Snapshot.TradeCount = &trades
	return c
}
