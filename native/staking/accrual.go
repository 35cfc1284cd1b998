package staking

import (
	"fmt"
	"math/big"
)

// accrueAccount applies the reward earned between the account's last accrual
// time and now, mutating the record in place. The returned amount is the newly
// credited reward.
//
// Accrual is strictly linear: reward is computed on principal only, never on
// previously accrued reward. The fixed-point order divides after both
// multiplications to minimize truncation loss:
//
//	yearly = floor(balance * apy / 100)
//	reward = floor(yearly * elapsed / SecondsPerYear)
//
// Callers must branch around stale accounts before calling: an account whose
// accrual clock has gone past the inactivity limit must be forfeited, never
// silently accrued. Every precondition failure is an ErrInvariantViolation
// because the controller is responsible for never reaching this code with a
// stale, empty, or inactive record.
func (e *Engine) accrueAccount(g *Global, acct *Account, now int64) (*big.Int, error) {
	if g == nil || acct == nil {
		return nil, fmt.Errorf("%w: accrual on nil record", ErrInvariantViolation)
	}
	if !acct.Active {
		return nil, fmt.Errorf("%w: accrual on inactive account", ErrInvariantViolation)
	}
	if acct.Balance == nil || acct.Balance.Sign() == 0 {
		return nil, fmt.Errorf("%w: accrual on zero balance", ErrInvariantViolation)
	}
	if g.APY == 0 {
		return nil, fmt.Errorf("%w: accrual with zero apy", ErrInvariantViolation)
	}
	elapsed := now - acct.LastAccrualTime
	if elapsed < 0 {
		return nil, fmt.Errorf("%w: accrual clock behind record", ErrInvariantViolation)
	}
	if elapsed > e.inactivityLimit {
		return nil, fmt.Errorf("%w: stale account must be forfeited, not accrued", ErrInvariantViolation)
	}

	reward := rewardFor(acct.Balance, g.APY, elapsed)
	acct.AccruedReward = new(big.Int).Add(acct.AccruedReward, reward)
	acct.LastAccrualTime = now
	return reward, nil
}

// rewardFor computes the integer reward for the given principal, annual yield
// and elapsed seconds.
func rewardFor(balance *big.Int, apy uint64, elapsed int64) *big.Int {
	yearly := new(big.Int).Mul(balance, new(big.Int).SetUint64(apy))
	yearly = yearly.Quo(yearly, big.NewInt(percentDenominator))
	reward := yearly.Mul(yearly, big.NewInt(elapsed))
	return reward.Quo(reward, big.NewInt(SecondsPerYear))
}
