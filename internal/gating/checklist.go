package gating

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/solana"
)

// RunFullChecklist fetches the mint account, holder distribution and recent
// candles concurrently and evaluates every rule. All failing rules are
// reported. A fetch error fails the whole call so the caller can retry later.
func (g *Gate) RunFullChecklist(ctx context.Context, mint string) (domain.ChecklistResult, error) {
	mintKey, err := solana.ParsePublicKey(mint)
	if err != nil {
		return domain.ChecklistResult{FailureReasons: []string{ReasonInvalidMint}}, nil
	}

	var (
		account *solana.AccountInfo
		largest []solana.TokenAccountBalance
		supply  *solana.TokenAmount
		candles []domain.Candle
	)

	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		account, err = g.chain.GetAccountInfo(ectx, mint)
		return err
	})
	if g.cfg.MaxSingleHolderPct > 0 || g.cfg.MaxTopHoldersPct > 0 {
		eg.Go(func() error {
			var err error
			largest, err = g.chain.GetTokenLargestAccounts(ectx, mint)
			return err
		})
		eg.Go(func() error {
			var err error
			supply, err = g.chain.GetTokenSupply(ectx, mint)
			return err
		})
	}
	if g.cfg.MomentumCandles > 0 {
		eg.Go(func() error {
			var err error
			candles, err = g.candles.FetchCandles(ectx, mint, int(g.cfg.MomentumInterval/time.Second), g.cfg.MomentumCandles)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.ChecklistResult{}, fmt.Errorf("checklist for %s: %w", mint, err)
	}

	var failures []string
	failures = append(failures, g.checkAuthorities(account)...)
	if supply != nil {
		failures = append(failures, g.checkHolders(mintKey, largest, supply)...)
	}
	if g.cfg.MomentumCandles > 0 {
		failures = append(failures, checkMomentum(candles)...)
	}

	result := domain.ChecklistResult{Passed: len(failures) == 0, FailureReasons: failures}
	g.cfg.Logger.Debug().
		Str("mint", mint).
		Bool("passed", result.Passed).
		Strs("failures", failures).
		Msg("checklist evaluated")
	return result, nil
}

func (g *Gate) checkAuthorities(account *solana.AccountInfo) []string {
	if account == nil {
		return []string{FailMintNotFound}
	}
	info, err := solana.ParseMintAccount(account.Data)
	if err != nil {
		return []string{FailMintNotFound}
	}

	var failures []string
	if g.cfg.RequireMintRevoked && info.MintAuthority != "" {
		failures = append(failures, FailMintAuthority)
	}
	if g.cfg.RequireFreezeRevoked && info.FreezeAuthority != "" {
		failures = append(failures, FailFreezeAuthority)
	}
	return failures
}

// checkHolders measures concentration among holders other than the
// bonding curve, which holds the unsold supply.
func (g *Gate) checkHolders(mint solana.PublicKey, largest []solana.TokenAccountBalance, supply *solana.TokenAmount) []string {
	if supply.UIAmount <= 0 {
		return nil
	}

	excluded := map[string]bool{}
	if curve, err := solana.BondingCurveAddress(mint); err == nil {
		excluded[curve.String()] = true
		if ata, err := solana.AssociatedTokenAddress(curve, mint); err == nil {
			excluded[ata.String()] = true
		}
	}

	shares := make([]domain.HolderShare, 0, len(largest))
	for _, h := range largest {
		if excluded[h.Address] || h.UIAmount <= 0 {
			continue
		}
		shares = append(shares, domain.HolderShare{
			Address: h.Address,
			Amount:  h.UIAmount,
			Percent: h.UIAmount / supply.UIAmount * 100,
		})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Amount > shares[j].Amount })

	var failures []string
	if g.cfg.MaxSingleHolderPct > 0 && len(shares) > 0 && shares[0].Percent > g.cfg.MaxSingleHolderPct {
		failures = append(failures, FailSingleHolder)
	}
	if g.cfg.MaxTopHoldersPct > 0 {
		var top float64
		for i := 0; i < len(shares) && i < g.cfg.TopHolders; i++ {
			top += shares[i].Percent
		}
		if top > g.cfg.MaxTopHoldersPct {
			failures = append(failures, FailTopHolders)
		}
	}
	return failures
}

// checkMomentum requires the last close above the first open and some
// traded volume across the window.
func checkMomentum(candles []domain.Candle) []string {
	if len(candles) == 0 {
		return []string{FailNoPriceHistory}
	}

	var failures []string
	if candles[len(candles)-1].Close <= candles[0].Open {
		failures = append(failures, FailNoMomentum)
	}
	var volume float64
	for _, c := range candles {
		volume += c.Volume
	}
	if volume <= 0 {
		failures = append(failures, FailNoVolume)
	}
	return failures
}
