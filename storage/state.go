package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"stakeledger/native/staking"
)

const (
	accountKeyPrefix = "staking/account/"
	registryKey      = "staking/registry"
	globalKey        = "staking/global"
)

// Store persists the staking ledger in a Database and implements
// staking.State. Amounts are serialized as decimal strings so records survive
// arbitrary magnitudes without float drift.
type Store struct {
	db Database
}

// NewStore wraps the given database as a staking state backend.
func NewStore(db Database) *Store {
	return &Store{db: db}
}

type storedAccount struct {
	Balance         string `json:"balance"`
	AccruedReward   string `json:"accruedReward"`
	DepositTime     int64  `json:"depositTime"`
	LastAccrualTime int64  `json:"lastAccrualTime"`
	Active          bool   `json:"active"`
}

type storedGlobal struct {
	Owner       string `json:"owner"`
	APY         uint64 `json:"apy"`
	TokenPool   string `json:"tokenPool"`
	TotalStaked string `json:"totalStaked"`
}

func accountKey(addr [20]byte) []byte {
	return []byte(accountKeyPrefix + hex.EncodeToString(addr[:]))
}

func parseAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("storage: malformed %s amount %q", field, raw)
	}
	return value, nil
}

// AccountGet returns the staking record for addr, or the zero inactive record
// when the identity has never been written.
func (s *Store) AccountGet(addr [20]byte) (*staking.Account, error) {
	raw, err := s.db.Get(accountKey(addr))
	if errors.Is(err, ErrKeyNotFound) {
		return staking.NewAccount(), nil
	}
	if err != nil {
		return nil, err
	}
	var rec storedAccount
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode account: %w", err)
	}
	balance, err := parseAmount("balance", rec.Balance)
	if err != nil {
		return nil, err
	}
	reward, err := parseAmount("accruedReward", rec.AccruedReward)
	if err != nil {
		return nil, err
	}
	return &staking.Account{
		Balance:         balance,
		AccruedReward:   reward,
		DepositTime:     rec.DepositTime,
		LastAccrualTime: rec.LastAccrualTime,
		Active:          rec.Active,
	}, nil
}

// AccountPut writes the staking record for addr.
func (s *Store) AccountPut(addr [20]byte, account *staking.Account) error {
	if account == nil {
		return fmt.Errorf("storage: nil account")
	}
	account = account.Clone()
	raw, err := json.Marshal(storedAccount{
		Balance:         account.Balance.String(),
		AccruedReward:   account.AccruedReward.String(),
		DepositTime:     account.DepositTime,
		LastAccrualTime: account.LastAccrualTime,
		Active:          account.Active,
	})
	if err != nil {
		return fmt.Errorf("storage: encode account: %w", err)
	}
	return s.db.Put(accountKey(addr), raw)
}

// Registry returns every identity that has ever activated, in activation
// order.
func (s *Store) Registry() ([][20]byte, error) {
	raw, err := s.db.Get([]byte(registryKey))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var encoded []string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("storage: decode registry: %w", err)
	}
	registry := make([][20]byte, 0, len(encoded))
	for _, entry := range encoded {
		decoded, err := hex.DecodeString(entry)
		if err != nil || len(decoded) != 20 {
			return nil, fmt.Errorf("storage: malformed registry entry %q", entry)
		}
		var addr [20]byte
		copy(addr[:], decoded)
		registry = append(registry, addr)
	}
	return registry, nil
}

// RegistryAppend adds addr to the registry. Appending an identity that is
// already present is a no-op, so re-activations never duplicate entries.
func (s *Store) RegistryAppend(addr [20]byte) error {
	registry, err := s.Registry()
	if err != nil {
		return err
	}
	for _, existing := range registry {
		if existing == addr {
			return nil
		}
	}
	encoded := make([]string, 0, len(registry)+1)
	for _, existing := range registry {
		encoded = append(encoded, hex.EncodeToString(existing[:]))
	}
	encoded = append(encoded, hex.EncodeToString(addr[:]))
	raw, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("storage: encode registry: %w", err)
	}
	return s.db.Put([]byte(registryKey), raw)
}

// Global returns the ledger-wide record, or nil when the ledger has not been
// initialized yet.
func (s *Store) Global() (*staking.Global, error) {
	raw, err := s.db.Get([]byte(globalKey))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec storedGlobal
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode global: %w", err)
	}
	ownerBytes, err := hex.DecodeString(rec.Owner)
	if err != nil || len(ownerBytes) != 20 {
		return nil, fmt.Errorf("storage: malformed owner %q", rec.Owner)
	}
	pool, err := parseAmount("tokenPool", rec.TokenPool)
	if err != nil {
		return nil, err
	}
	staked, err := parseAmount("totalStaked", rec.TotalStaked)
	if err != nil {
		return nil, err
	}
	global := &staking.Global{APY: rec.APY, TokenPool: pool, TotalStaked: staked}
	copy(global.Owner[:], ownerBytes)
	return global, nil
}

// PutGlobal writes the ledger-wide record.
func (s *Store) PutGlobal(global *staking.Global) error {
	if global == nil {
		return fmt.Errorf("storage: nil global record")
	}
	global = global.Clone()
	raw, err := json.Marshal(storedGlobal{
		Owner:       hex.EncodeToString(global.Owner[:]),
		APY:         global.APY,
		TokenPool:   global.TokenPool.String(),
		TotalStaked: global.TotalStaked.String(),
	})
	if err != nil {
		return fmt.Errorf("storage: encode global: %w", err)
	}
	return s.db.Put([]byte(globalKey), raw)
}
