package staking

import (
	"math/big"
	"testing"
)

func TestMaxPayoutWholeYears(t *testing.T) {
	cases := []struct {
		name      string
		apy       uint64
		limit     int64
		candidate int64
		want      int64
	}{
		{name: "one year at 10%", apy: 10, limit: SecondsPerYear, candidate: 1000, want: 1100},
		{name: "two years at 10%", apy: 10, limit: 2 * SecondsPerYear, candidate: 1000, want: 1200},
		{name: "three years at 7%", apy: 7, limit: 3 * SecondsPerYear, candidate: 1000, want: 1210},
		{name: "payout truncates", apy: 10, limit: SecondsPerYear, candidate: 5, want: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.apy, tc.limit)
			g := env.state.global.Clone()
			got := env.engine.maxPayout(g, big.NewInt(tc.candidate))
			if got.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("expected %d, got %s", tc.want, got)
			}
		})
	}
}

// A limit just under a year boundary floors to zero reward years, so the
// bound collapses to the bare principal. Deployments depend on this exact
// under-approximation.
func TestMaxPayoutFloorsPartialYears(t *testing.T) {
	env := newTestEnv(t, 10, SecondsPerYear-1)
	g := env.state.global.Clone()
	got := env.engine.maxPayout(g, big.NewInt(1000))
	if got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1000 with a sub-year window, got %s", got)
	}
}

func TestPoolCoversBoundary(t *testing.T) {
	env := newTestEnv(t, 10, SecondsPerYear)
	g := env.state.global.Clone()

	g.TokenPool = big.NewInt(1100)
	if !env.engine.poolCovers(g, big.NewInt(1000)) {
		t.Fatal("a pool exactly at the worst case must admit the deposit")
	}
	g.TokenPool = big.NewInt(1099)
	if env.engine.poolCovers(g, big.NewInt(1000)) {
		t.Fatal("a pool one token short must reject the deposit")
	}
}
