package staking

import (
	"errors"
	"math/big"
	"testing"
)

func TestRewardForFullYearIsExact(t *testing.T) {
	reward := rewardFor(big.NewInt(1000), 10, SecondsPerYear)
	if reward.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 for 1000 at 10%% over a year, got %s", reward)
	}
}

func TestRewardForPartialYearTruncates(t *testing.T) {
	cases := []struct {
		name    string
		balance int64
		apy     uint64
		elapsed int64
		want    int64
	}{
		{name: "half year", balance: 1000, apy: 10, elapsed: SecondsPerYear / 2, want: 50},
		{name: "quarter year", balance: 1000, apy: 10, elapsed: SecondsPerYear / 4, want: 25},
		{name: "one second tiny principal", balance: 10, apy: 10, elapsed: 1, want: 0},
		{name: "yearly floor before elapsed scaling", balance: 15, apy: 10, elapsed: SecondsPerYear, want: 1},
		{name: "zero elapsed", balance: 1000, apy: 10, elapsed: 0, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reward := rewardFor(big.NewInt(tc.balance), tc.apy, tc.elapsed)
			if reward.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("expected %d, got %s", tc.want, reward)
			}
		})
	}
}

func TestAccrueIsMonotonicAndIdempotent(t *testing.T) {
	env := newTestEnv(t, 10, SecondsPerYear)
	g := env.state.global.Clone()
	acct := &Account{
		Balance:         big.NewInt(1000),
		AccruedReward:   big.NewInt(0),
		DepositTime:     testBaseTime,
		LastAccrualTime: testBaseTime,
		Active:          true,
	}

	now := testBaseTime + SecondsPerYear/2
	first, err := env.engine.accrueAccount(g, acct, now)
	if err != nil {
		t.Fatalf("first accrue: %v", err)
	}
	if first.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected 50, got %s", first)
	}

	// Same timestamp again: zero additional reward, total unchanged.
	second, err := env.engine.accrueAccount(g, acct, now)
	if err != nil {
		t.Fatalf("second accrue: %v", err)
	}
	if second.Sign() != 0 {
		t.Fatalf("repeated accrual at the same now must add nothing, got %s", second)
	}
	if acct.AccruedReward.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("accrued reward must never decrease, got %s", acct.AccruedReward)
	}

	// Accrual is linear on principal only: a further half year on the same
	// balance adds the same 50 even though 50 is already accrued.
	later, err := env.engine.accrueAccount(g, acct, now+SecondsPerYear/2)
	if err != nil {
		t.Fatalf("third accrue: %v", err)
	}
	if later.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected another 50 without compounding, got %s", later)
	}
}

func TestAccruePreconditions(t *testing.T) {
	env := newTestEnv(t, 10, SecondsPerYear)

	active := func() *Account {
		return &Account{
			Balance:         big.NewInt(1000),
			AccruedReward:   big.NewInt(0),
			DepositTime:     testBaseTime,
			LastAccrualTime: testBaseTime,
			Active:          true,
		}
	}

	cases := []struct {
		name   string
		global *Global
		acct   *Account
		now    int64
	}{
		{
			name:   "inactive account",
			global: env.state.global.Clone(),
			acct:   NewAccount(),
			now:    testBaseTime,
		},
		{
			name:   "zero balance",
			global: env.state.global.Clone(),
			acct: &Account{
				Balance: big.NewInt(0), AccruedReward: big.NewInt(0),
				DepositTime: testBaseTime, LastAccrualTime: testBaseTime, Active: true,
			},
			now: testBaseTime,
		},
		{
			name:   "zero apy",
			global: &Global{Owner: env.owner, APY: 0, TokenPool: big.NewInt(0), TotalStaked: big.NewInt(0)},
			acct:   active(),
			now:    testBaseTime,
		},
		{
			name:   "stale beyond inactivity limit",
			global: env.state.global.Clone(),
			acct:   active(),
			now:    testBaseTime + SecondsPerYear + 1,
		},
		{
			name:   "clock behind record",
			global: env.state.global.Clone(),
			acct:   active(),
			now:    testBaseTime - 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.accrueAccount(tc.global, tc.acct, tc.now)
			if !errors.Is(err, ErrInvariantViolation) {
				t.Fatalf("expected ErrInvariantViolation, got %v", err)
			}
		})
	}
}
