// Package token provides an in-process fungible-token ledger with ERC20-style
// balance and allowance semantics. The staking engine consumes it through the
// narrow staking.TokenLedger interface.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// ErrInvalidAmount is returned when a transfer amount is nil or not
	// positive.
	ErrInvalidAmount = errors.New("token: amount must be positive")
	// ErrInsufficientFunds is returned when the source balance cannot cover
	// a transfer.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrInsufficientAllowance is returned when the spender's approved
	// budget cannot cover a delegated transfer.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Ledger tracks balances and spender allowances for a single fungible token.
// All methods are safe for concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	symbol     string
	balances   map[[20]byte]*big.Int
	allowances map[[20]byte]map[[20]byte]*big.Int
}

// NewLedger creates an empty ledger for the given token symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:     symbol,
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[[20]byte]map[[20]byte]*big.Int),
	}
}

// Symbol returns the token symbol the ledger was created with.
func (l *Ledger) Symbol() string { return l.symbol }

// Mint credits amount to the given account out of thin air. Intended for
// genesis seeding and tests.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = new(big.Int).Add(l.balance(addr), amount)
	return nil
}

// BalanceOf returns the current balance of the given account.
func (l *Ledger) BalanceOf(addr [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balance(addr))
}

// Approve grants spender the right to move up to amount from owner's balance.
// It overwrites any previous allowance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	grants, ok := l.allowances[owner]
	if !ok {
		grants = make(map[[20]byte]*big.Int)
		l.allowances[owner] = grants
	}
	grants[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns the remaining budget spender may move from owner.
func (l *Ledger) Allowance(owner, spender [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.allowance(owner, spender))
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// TransferFrom moves amount from one account to another on behalf of spender,
// consuming the spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := l.allowance(from, spender)
	if remaining.Cmp(amount) < 0 {
		return fmt.Errorf("%w: approved %s, requested %s", ErrInsufficientAllowance, remaining, amount)
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] = new(big.Int).Sub(remaining, amount)
	return nil
}

func (l *Ledger) balance(addr [20]byte) *big.Int {
	if bal, ok := l.balances[addr]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}

func (l *Ledger) allowance(owner, spender [20]byte) *big.Int {
	if grants, ok := l.allowances[owner]; ok {
		if budget, ok := grants[spender]; ok && budget != nil {
			return budget
		}
	}
	return big.NewInt(0)
}

func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	source := l.balance(from)
	if source.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, source, amount)
	}
	l.balances[from] = new(big.Int).Sub(source, amount)
	l.balances[to] = new(big.Int).Add(l.balance(to), amount)
	return nil
}
