package events

import "math/big"

const (
	// TypeStakeDeposited is emitted when the owner credits stake to an
	// account, covering both first deposits and top-ups.
	TypeStakeDeposited = "staking.deposit.made"
	// TypeStakeWithdrawn is emitted when an account holder withdraws their
	// principal plus accrued reward.
	TypeStakeWithdrawn = "staking.withdrawal.made"
	// TypeRewardAccrued is emitted when time-proportional reward is applied
	// to an account record.
	TypeRewardAccrued = "staking.reward.accrued"
	// TypeAPYUpdated is emitted when the owner changes the annual yield.
	TypeAPYUpdated = "staking.apy.updated"
	// TypePoolRefilled is emitted when the owner tops up the reward pool.
	TypePoolRefilled = "staking.pool.refilled"
	// TypeOwnerSwept is emitted once per sweep pass with the batch totals
	// transferred back to the owner.
	TypeOwnerSwept = "staking.owner.swept"
	// TypeAccountForfeited is emitted for every account reclaimed after its
	// inactivity window expired, whether during a sweep or a fresh deposit.
	TypeAccountForfeited = "staking.account.forfeited"
	// TypeBalanceDecreased is emitted when the owner administratively claws
	// back part of an account's recorded balance.
	TypeBalanceDecreased = "staking.balance.decreased"
	// TypeOwnershipTransferred is emitted on an owner handoff.
	TypeOwnershipTransferred = "staking.owner.transferred"
)

// StakeDeposited captures a deposit credited to an account by the owner.
type StakeDeposited struct {
	Account     [20]byte
	Amount      *big.Int
	NewBalance  *big.Int
	TotalStaked *big.Int
	Timestamp   int64
}

// EventType implements the Event interface.
func (StakeDeposited) EventType() string { return TypeStakeDeposited }

// StakeWithdrawn captures a self-service withdrawal of principal and reward.
type StakeWithdrawn struct {
	Account   [20]byte
	Principal *big.Int
	Reward    *big.Int
	Timestamp int64
}

// EventType implements the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// RewardAccrued captures reward applied to an account for elapsed time.
type RewardAccrued struct {
	Account   [20]byte
	Reward    *big.Int
	Accrued   *big.Int
	Timestamp int64
}

// EventType implements the Event interface.
func (RewardAccrued) EventType() string { return TypeRewardAccrued }

// APYUpdated captures an owner-initiated yield change.
type APYUpdated struct {
	OldAPY uint64
	NewAPY uint64
}

// EventType implements the Event interface.
func (APYUpdated) EventType() string { return TypeAPYUpdated }

// PoolRefilled captures a reward pool top-up pulled from the owner.
type PoolRefilled struct {
	Amount    *big.Int
	TokenPool *big.Int
}

// EventType implements the Event interface.
func (PoolRefilled) EventType() string { return TypePoolRefilled }

// OwnerSwept captures the batch totals of a sweep pass.
type OwnerSwept struct {
	Accounts  int
	Principal *big.Int
	Reward    *big.Int
	Timestamp int64
}

// EventType implements the Event interface.
func (OwnerSwept) EventType() string { return TypeOwnerSwept }

// AccountForfeited captures a single account reclaimed after expiry.
type AccountForfeited struct {
	Account   [20]byte
	Principal *big.Int
	Reward    *big.Int
	Timestamp int64
}

// EventType implements the Event interface.
func (AccountForfeited) EventType() string { return TypeAccountForfeited }

// BalanceDecreased captures an administrative clawback on an account.
type BalanceDecreased struct {
	Account    [20]byte
	Amount     *big.Int
	NewBalance *big.Int
}

// EventType implements the Event interface.
func (BalanceDecreased) EventType() string { return TypeBalanceDecreased }

// OwnershipTransferred captures an owner handoff.
type OwnershipTransferred struct {
	OldOwner [20]byte
	NewOwner [20]byte
}

// EventType implements the Event interface.
func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }
