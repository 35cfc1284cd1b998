package staking

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("staking: unauthorized")
	// ErrNotFound is returned when an operation targets an unregistered or
	// inactive account.
	ErrNotFound = errors.New("staking: account not found")
	// ErrInvalidParameter is returned for zero or out-of-range arguments.
	ErrInvalidParameter = errors.New("staking: invalid parameter")
	// ErrInsufficientPool is returned when the solvency guard rejects a
	// deposit because the pool cannot cover the worst-case payout.
	ErrInsufficientPool = errors.New("staking: insufficient token pool")
	// ErrInsufficientBalance is returned when a clawback exceeds the
	// recorded balance.
	ErrInsufficientBalance = errors.New("staking: insufficient balance")
	// ErrZeroBalance is returned when a withdrawal targets an account with
	// nothing staked.
	ErrZeroBalance = errors.New("staking: zero balance")
	// ErrWindowExpired is returned when a self-service operation is
	// attempted after the inactivity forfeiture point.
	ErrWindowExpired = errors.New("staking: inactivity window expired")
	// ErrInvariantViolation signals a broken internal precondition. It
	// indicates a ledger bug, never a user error.
	ErrInvariantViolation = errors.New("staking: invariant violation")
	// ErrExternalTransferFailed wraps a rejection from the token ledger.
	ErrExternalTransferFailed = errors.New("staking: external transfer failed")
	// ErrOperationInProgress is returned when an operation enters the
	// engine while another one still holds the non-reentrancy guard.
	ErrOperationInProgress = errors.New("staking: operation in progress")
)

var (
	errNilState = errors.New("staking engine: state not configured")
	errNilToken = errors.New("staking engine: token ledger not configured")
)
