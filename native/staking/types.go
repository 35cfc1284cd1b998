package staking

import "math/big"

// Account is the staking record for a single identity. A record that was never
// activated and a record reset by withdrawal or forfeiture are identical: the
// zero value with Active false.
type Account struct {
	// Balance is the principal currently staked, excluding unclaimed reward.
	Balance *big.Int
	// AccruedReward is reward computed but not yet withdrawn.
	AccruedReward *big.Int
	// DepositTime is the unix timestamp of the most recent deposit or reset.
	// It defines the inactivity clock.
	DepositTime int64
	// LastAccrualTime is the unix timestamp through which rewards have been
	// computed. Never behind DepositTime for an active account.
	LastAccrualTime int64
	// Active is true from first deposit until withdrawal or forfeiture.
	Active bool
}

// NewAccount returns a zeroed, inactive staking record.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0), AccruedReward: big.NewInt(0)}
}

// Clone returns a deep copy of the account record.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{
		Balance:         big.NewInt(0),
		AccruedReward:   big.NewInt(0),
		DepositTime:     a.DepositTime,
		LastAccrualTime: a.LastAccrualTime,
		Active:          a.Active,
	}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	if a.AccruedReward != nil {
		clone.AccruedReward = new(big.Int).Set(a.AccruedReward)
	}
	return clone
}

// Normalize replaces nil amounts with zero so callers can mutate in place.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	if a.AccruedReward == nil {
		a.AccruedReward = big.NewInt(0)
	}
	return a
}

// reset returns the record to its zero, inactive state.
func (a *Account) reset() {
	a.Balance = big.NewInt(0)
	a.AccruedReward = big.NewInt(0)
	a.DepositTime = 0
	a.LastAccrualTime = 0
	a.Active = false
}

// Global carries the ledger-wide accounting state shared by every account.
type Global struct {
	// Owner is the operator identity allowed to run custodial operations.
	Owner [20]byte
	// APY is the annual yield in whole percentage points. Never zero after
	// initialization.
	APY uint64
	// TokenPool is the reserve earmarked to cover rewards and principal.
	TokenPool *big.Int
	// TotalStaked is the sum of all active accounts' balances, excluding
	// accrued reward. Divergence from the true sum is a ledger bug.
	TotalStaked *big.Int
}

// NewGlobal returns an initialized global record for the given owner and yield.
func NewGlobal(owner [20]byte, apy uint64) *Global {
	return &Global{Owner: owner, APY: apy, TokenPool: big.NewInt(0), TotalStaked: big.NewInt(0)}
}

// Clone returns a deep copy of the global record.
func (g *Global) Clone() *Global {
	if g == nil {
		return nil
	}
	clone := &Global{Owner: g.Owner, APY: g.APY, TokenPool: big.NewInt(0), TotalStaked: big.NewInt(0)}
	if g.TokenPool != nil {
		clone.TokenPool = new(big.Int).Set(g.TokenPool)
	}
	if g.TotalStaked != nil {
		clone.TotalStaked = new(big.Int).Set(g.TotalStaked)
	}
	return clone
}

// Normalize replaces nil amounts with zero so callers can mutate in place.
func (g *Global) Normalize() *Global {
	if g == nil {
		return nil
	}
	if g.TokenPool == nil {
		g.TokenPool = big.NewInt(0)
	}
	if g.TotalStaked == nil {
		g.TotalStaked = big.NewInt(0)
	}
	return g
}
