package staking

import "math/big"

// maxPayout returns the worst-case total obligation if every token of
// candidateTotalStaked sat untouched for the maximum number of full years
// obtainable within the inactivity limit.
//
// maxRewardYears floors to whole years, so an inactivity limit just under a
// year boundary understates the true worst case. Existing deployments depend
// on this exact bound; do not replace it with a finer-grained one.
func (e *Engine) maxPayout(g *Global, candidateTotalStaked *big.Int) *big.Int {
	maxRewardYears := e.inactivityLimit / SecondsPerYear
	totalAPYOverPeriod := new(big.Int).Mul(
		new(big.Int).SetUint64(g.APY),
		big.NewInt(maxRewardYears),
	)
	factor := totalAPYOverPeriod.Add(totalAPYOverPeriod, big.NewInt(percentDenominator))
	payout := new(big.Int).Mul(candidateTotalStaked, factor)
	return payout.Quo(payout, big.NewInt(percentDenominator))
}

// poolCovers reports whether the token pool can admit the candidate total.
func (e *Engine) poolCovers(g *Global, candidateTotalStaked *big.Int) bool {
	return g.TokenPool.Cmp(e.maxPayout(g, candidateTotalStaked)) >= 0
}
