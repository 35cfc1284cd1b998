package staking

import (
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"stakeledger/core/events"
)

// State is the persistence surface required by the staking engine. AccountGet
// returns the zero, inactive record for unknown identities rather than an
// error. RegistryAppend is idempotent: an identity appears in the registry at
// most once no matter how often it re-activates.
type State interface {
	AccountGet(addr [20]byte) (*Account, error)
	AccountPut(addr [20]byte, account *Account) error
	Registry() ([][20]byte, error)
	RegistryAppend(addr [20]byte) error
	Global() (*Global, error)
	PutGlobal(global *Global) error
}

// TokenLedger is the external fungible-token collaborator. Both methods may
// fail (insufficient balance or allowance) and any failure aborts the
// enclosing staking operation.
type TokenLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
}

var zeroAddress [20]byte

// Engine drives every state transition of the staking ledger. All mutating
// operations are guarded by a single process-wide operation-in-progress flag:
// a reentrant call from the external token ledger, or a concurrent call racing
// the current one, fails with ErrOperationInProgress instead of observing
// partial state.
type Engine struct {
	state           State
	token           TokenLedger
	emitter         events.Emitter
	moduleAddress   [20]byte
	inactivityLimit int64
	nowFn           func() int64
	inProgress      atomic.Bool
}

// NewEngine constructs a staking engine operating the custody account at
// moduleAddr with the given inactivity window in seconds.
func NewEngine(moduleAddr [20]byte, inactivityLimit int64) *Engine {
	return &Engine{
		moduleAddress:   moduleAddr,
		inactivityLimit: inactivityLimit,
		emitter:         events.NoopEmitter{},
		nowFn:           func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetToken configures the external token ledger consumed by the engine.
func (e *Engine) SetToken(token TokenLedger) { e.token = token }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// ModuleAddress returns the custody account the engine holds pooled funds on.
func (e *Engine) ModuleAddress() [20]byte { return e.moduleAddress }

// InactivityLimit returns the forfeiture window in seconds.
func (e *Engine) InactivityLimit() int64 { return e.inactivityLimit }

// Initialize seeds the global ledger record when none exists yet. It is
// idempotent so daemons can call it unconditionally at startup.
func (e *Engine) Initialize(owner [20]byte, apy uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if apy == 0 {
		return fmt.Errorf("%w: apy must be positive", ErrInvalidParameter)
	}
	if owner == zeroAddress {
		return fmt.Errorf("%w: owner required", ErrInvalidParameter)
	}
	existing, err := e.state.Global()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return e.state.PutGlobal(NewGlobal(owner, apy))
}

func (e *Engine) begin() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	if !e.inProgress.CompareAndSwap(false, true) {
		return ErrOperationInProgress
	}
	return nil
}

func (e *Engine) end() { e.inProgress.Store(false) }

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) flush(pending []events.Event) {
	if e.emitter == nil {
		return
	}
	for _, evt := range pending {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) loadGlobal() (*Global, error) {
	g, err := e.state.Global()
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: ledger not initialized", ErrInvariantViolation)
	}
	return g.Clone(), nil
}

func (e *Engine) loadAccount(addr [20]byte) (*Account, error) {
	acct, err := e.state.AccountGet(addr)
	if err != nil {
		return nil, err
	}
	return acct.Clone(), nil
}

func (e *Engine) expired(acct *Account, now int64) bool {
	return now-acct.DepositTime >= e.inactivityLimit
}

// DepositForUser credits amount of stake to the user's account on the owner's
// behalf. The deposit is admitted only when the token pool covers the
// worst-case payout for the resulting total stake. A stale account is
// forfeited to the owner first and the deposit then lands on a fresh record.
//
// The deposit itself moves no tokens: principal and reward are both backed by
// the pool funded through RefillTokenPool.
func (e *Engine) DepositForUser(caller, user [20]byte, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	now := e.now()
	g, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if caller != g.Owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidParameter)
	}

	candidate := new(big.Int).Add(g.TotalStaked, amount)
	if !e.poolCovers(g, candidate) {
		return fmt.Errorf("%w: pool %s cannot cover worst-case payout %s",
			ErrInsufficientPool, g.TokenPool, e.maxPayout(g, candidate))
	}

	acct, err := e.loadAccount(user)
	if err != nil {
		return err
	}
	acctBefore := acct.Clone()
	globalBefore := g.Clone()

	var (
		pending   []events.Event
		forfeited *big.Int
	)
	switch {
	case !acct.Active:
		// A leftover registry entry after a later write failure is benign:
		// appends are idempotent and sweeps skip inactive records.
		if err := e.state.RegistryAppend(user); err != nil {
			return err
		}
		acct.Active = true
		acct.LastAccrualTime = now

	case e.expired(acct, now):
		// The window lapsed: reclaim principal and reward for the owner,
		// then treat the call as a fresh deposit on a clean record. The
		// forfeiture transfer itself runs after the ledger writes.
		forfeited = new(big.Int).Add(acct.Balance, acct.AccruedReward)
		pending = append(pending, events.AccountForfeited{
			Account:   user,
			Principal: new(big.Int).Set(acct.Balance),
			Reward:    new(big.Int).Set(acct.AccruedReward),
			Timestamp: now,
		})
		g.TotalStaked = new(big.Int).Sub(g.TotalStaked, acct.Balance)
		acct.reset()
		acct.Active = true
		acct.LastAccrualTime = now

	default:
		// A zero-balance active record has nothing to accrue; calling the
		// accrual engine with it would trip its precondition check.
		if acct.Balance.Sign() > 0 {
			reward, err := e.accrueAccount(g, acct, now)
			if err != nil {
				return err
			}
			if reward.Sign() > 0 {
				pending = append(pending, events.RewardAccrued{
					Account:   user,
					Reward:    reward,
					Accrued:   new(big.Int).Set(acct.AccruedReward),
					Timestamp: now,
				})
			}
		} else {
			acct.LastAccrualTime = now
		}
	}

	acct.Balance = new(big.Int).Add(acct.Balance, amount)
	acct.DepositTime = now
	g.TotalStaked = new(big.Int).Add(g.TotalStaked, amount)

	if err := e.state.AccountPut(user, acct); err != nil {
		return err
	}
	if err := e.state.PutGlobal(g); err != nil {
		return err
	}

	// External interaction last, exactly as in Withdraw: the guard is still
	// held, and on failure the staged ledger changes are rolled back so the
	// whole deposit reverts.
	if forfeited != nil && forfeited.Sign() > 0 {
		if err := e.token.Transfer(e.moduleAddress, g.Owner, forfeited); err != nil {
			if restoreErr := e.state.AccountPut(user, acctBefore); restoreErr != nil {
				return fmt.Errorf("%w: rollback failed: %v", ErrInvariantViolation, restoreErr)
			}
			if restoreErr := e.state.PutGlobal(globalBefore); restoreErr != nil {
				return fmt.Errorf("%w: rollback failed: %v", ErrInvariantViolation, restoreErr)
			}
			return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
		}
	}

	pending = append(pending, events.StakeDeposited{
		Account:     user,
		Amount:      new(big.Int).Set(amount),
		NewBalance:  new(big.Int).Set(acct.Balance),
		TotalStaked: new(big.Int).Set(g.TotalStaked),
		Timestamp:   now,
	})
	e.flush(pending)
	return nil
}

// Withdraw pays the caller their principal plus accrued reward and resets the
// record to its zero state. An account whose inactivity window lapsed cannot
// self-withdraw; it must be swept by the owner instead.
func (e *Engine) Withdraw(caller [20]byte) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	now := e.now()
	g, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	acct, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}
	if !acct.Active {
		return nil, ErrNotFound
	}
	if acct.Balance.Sign() == 0 {
		return nil, ErrZeroBalance
	}
	if e.expired(acct, now) {
		return nil, ErrWindowExpired
	}

	acctBefore := acct.Clone()
	globalBefore := g.Clone()

	reward, err := e.accrueAccount(g, acct, now)
	if err != nil {
		return nil, err
	}
	principal := new(big.Int).Set(acct.Balance)
	totalReward := new(big.Int).Set(acct.AccruedReward)
	payout := new(big.Int).Add(principal, totalReward)
	if g.TokenPool.Cmp(payout) < 0 {
		return nil, fmt.Errorf("%w: token pool %s under payout %s",
			ErrInvariantViolation, g.TokenPool, payout)
	}

	g.TotalStaked = new(big.Int).Sub(g.TotalStaked, principal)
	g.TokenPool = new(big.Int).Sub(g.TokenPool, payout)
	acct.reset()

	if err := e.state.AccountPut(caller, acct); err != nil {
		return nil, err
	}
	if err := e.state.PutGlobal(g); err != nil {
		return nil, err
	}

	// External interaction last. The guard is still held, so a token that
	// calls back into the engine is rejected; on failure the staged ledger
	// changes are rolled back so the whole operation reverts.
	if err := e.token.Transfer(e.moduleAddress, caller, payout); err != nil {
		if restoreErr := e.state.AccountPut(caller, acctBefore); restoreErr != nil {
			return nil, fmt.Errorf("%w: rollback failed: %v", ErrInvariantViolation, restoreErr)
		}
		if restoreErr := e.state.PutGlobal(globalBefore); restoreErr != nil {
			return nil, fmt.Errorf("%w: rollback failed: %v", ErrInvariantViolation, restoreErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
	}

	pending := []events.Event{}
	if reward.Sign() > 0 {
		pending = append(pending, events.RewardAccrued{
			Account:   caller,
			Reward:    reward,
			Accrued:   totalReward,
			Timestamp: now,
		})
	}
	pending = append(pending, events.StakeWithdrawn{
		Account:   caller,
		Principal: principal,
		Reward:    totalReward,
		Timestamp: now,
	})
	e.flush(pending)
	return payout, nil
}

// SetAPY changes the annual yield for future accrual only. Already accrued
// reward is never recomputed.
func (e *Engine) SetAPY(caller [20]byte, newAPY uint64) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	g, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if caller != g.Owner {
		return ErrUnauthorized
	}
	if newAPY == 0 {
		return fmt.Errorf("%w: apy must be positive", ErrInvalidParameter)
	}
	oldAPY := g.APY
	g.APY = newAPY
	if err := e.state.PutGlobal(g); err != nil {
		return err
	}
	e.flush([]events.Event{events.APYUpdated{OldAPY: oldAPY, NewAPY: newAPY}})
	return nil
}

// RefillTokenPool pulls amount from the owner's external token balance into
// the reward pool. The owner must have approved the module address as a
// spender beforehand.
func (e *Engine) RefillTokenPool(caller [20]byte, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	g, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if caller != g.Owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: refill amount must be positive", ErrInvalidParameter)
	}
	if err := e.token.TransferFrom(e.moduleAddress, g.Owner, e.moduleAddress, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
	}
	g.TokenPool = new(big.Int).Add(g.TokenPool, amount)
	if err := e.state.PutGlobal(g); err != nil {
		return err
	}
	e.flush([]events.Event{events.PoolRefilled{
		Amount:    new(big.Int).Set(amount),
		TokenPool: new(big.Int).Set(g.TokenPool),
	}})
	return nil
}

// SweepExpiredAccounts forfeits every currently-active account whose
// inactivity window lapsed and transfers the reclaimed funds to the owner in
// one batch. Running it again immediately forfeits nothing and moves nothing.
//
// The token pool is deliberately NOT decremented here, unlike Withdraw:
// existing deployments account swept funds against the pool earmark only at
// refill time, and changing that would break their reconciliation.
func (e *Engine) SweepExpiredAccounts(caller [20]byte) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	now := e.now()
	g, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	if caller != g.Owner {
		return nil, ErrUnauthorized
	}
	registry, err := e.state.Registry()
	if err != nil {
		return nil, err
	}

	type preimage struct {
		addr [20]byte
		acct *Account
	}
	var (
		staged         []preimage
		pending        []events.Event
		sweptPrincipal = big.NewInt(0)
		sweptReward    = big.NewInt(0)
	)
	rollback := func() error {
		for _, pre := range staged {
			if err := e.state.AccountPut(pre.addr, pre.acct); err != nil {
				return fmt.Errorf("%w: rollback failed: %v", ErrInvariantViolation, err)
			}
		}
		return nil
	}

	for _, addr := range registry {
		acct, err := e.loadAccount(addr)
		if err != nil {
			if rbErr := rollback(); rbErr != nil {
				return nil, rbErr
			}
			return nil, err
		}
		if !acct.Active || !e.expired(acct, now) {
			continue
		}
		before := acct.Clone()
		principal := new(big.Int).Set(acct.Balance)
		reward := new(big.Int).Set(acct.AccruedReward)
		acct.reset()
		if err := e.state.AccountPut(addr, acct); err != nil {
			if rbErr := rollback(); rbErr != nil {
				return nil, rbErr
			}
			return nil, err
		}
		staged = append(staged, preimage{addr: addr, acct: before})
		sweptPrincipal = sweptPrincipal.Add(sweptPrincipal, principal)
		sweptReward = sweptReward.Add(sweptReward, reward)
		pending = append(pending, events.AccountForfeited{
			Account:   addr,
			Principal: principal,
			Reward:    reward,
			Timestamp: now,
		})
	}

	total := new(big.Int).Add(sweptPrincipal, sweptReward)
	if len(staged) == 0 {
		return total, nil
	}

	globalBefore := g.Clone()
	g.TotalStaked = new(big.Int).Sub(g.TotalStaked, sweptPrincipal)
	if err := e.state.PutGlobal(g); err != nil {
		if rbErr := rollback(); rbErr != nil {
			return nil, rbErr
		}
		return nil, err
	}

	if total.Sign() > 0 {
		if err := e.token.Transfer(e.moduleAddress, g.Owner, total); err != nil {
			if rbErr := rollback(); rbErr != nil {
				return nil, rbErr
			}
			if restoreErr := e.state.PutGlobal(globalBefore); restoreErr != nil {
				return nil, fmt.Errorf("%w: rollback failed: %v", ErrInvariantViolation, restoreErr)
			}
			return nil, fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
		}
	}

	pending = append(pending, events.OwnerSwept{
		Accounts:  len(staged),
		Principal: sweptPrincipal,
		Reward:    sweptReward,
		Timestamp: now,
	})
	e.flush(pending)
	return total, nil
}

// DecreaseUserBalance is the owner's administrative clawback. It adjusts the
// ledger only; no tokens move, because the corresponding tokens logically left
// the pool at refill time or the decrease is an intentional penalty.
func (e *Engine) DecreaseUserBalance(caller, user [20]byte, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	g, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if caller != g.Owner {
		return ErrUnauthorized
	}
	acct, err := e.loadAccount(user)
	if err != nil {
		return err
	}
	if !acct.Active {
		return ErrNotFound
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: decrease amount must be positive", ErrInvalidParameter)
	}
	if acct.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	acct.Balance = new(big.Int).Sub(acct.Balance, amount)
	g.TotalStaked = new(big.Int).Sub(g.TotalStaked, amount)

	if err := e.state.AccountPut(user, acct); err != nil {
		return err
	}
	if err := e.state.PutGlobal(g); err != nil {
		return err
	}
	e.flush([]events.Event{events.BalanceDecreased{
		Account:    user,
		Amount:     new(big.Int).Set(amount),
		NewBalance: new(big.Int).Set(acct.Balance),
	}})
	return nil
}

// GetUserInfo returns a copy of the staking record for the given identity.
// Unknown identities yield the zero, inactive record.
func (e *Engine) GetUserInfo(user [20]byte) (*Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadAccount(user)
}

// GlobalInfo returns a copy of the global ledger record.
func (e *Engine) GlobalInfo() (*Global, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadGlobal()
}

// TransferOwnership hands the operator role to newOwner.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	g, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if caller != g.Owner {
		return ErrUnauthorized
	}
	if newOwner == zeroAddress {
		return fmt.Errorf("%w: new owner required", ErrInvalidParameter)
	}
	oldOwner := g.Owner
	g.Owner = newOwner
	if err := e.state.PutGlobal(g); err != nil {
		return err
	}
	e.flush([]events.Event{events.OwnershipTransferred{OldOwner: oldOwner, NewOwner: newOwner}})
	return nil
}
