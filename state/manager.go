package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"loanledger/core/types"
	"loanledger/crypto"
	"loanledger/native/lending"
	"loanledger/storage"
)

// Manager persists ledger records as RLP-encoded values in a key-value store.
// It implements the lending engine's state boundary: Get methods decode fresh
// copies on every call, and Apply commits a whole changeset through one
// storage batch, so a failed operation leaves the stored bytes untouched and
// a failed commit never lands half of its writes.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type storedPool struct {
	TotalCollateral *big.Int
	TotalSupplied   *big.Int
	TotalBorrowed   *big.Int
}

type storedPosition struct {
	Collateral *big.Int
	Debt       *big.Int
	OpenedAt   uint64
	Active     bool
}

type storedSupply struct {
	Amount *big.Int
}

type storedAccount struct {
	BalanceAsset      *big.Int
	BalanceCollateral *big.Int
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func encodeRecord(record interface{}) ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return nil, fmt.Errorf("state: encode record: %w", err)
	}
	return encoded, nil
}

// GetPool loads the pool aggregates, or nil before the first write.
func (m *Manager) GetPool() (*lending.Pool, error) {
	stored := new(storedPool)
	ok, err := m.get(poolKey, stored)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.Pool{
		TotalCollateral: stored.TotalCollateral,
		TotalSupplied:   stored.TotalSupplied,
		TotalBorrowed:   stored.TotalBorrowed,
	}, nil
}

// GetPosition loads the principal's position, or nil when absent.
func (m *Manager) GetPosition(addr crypto.Address) (*lending.Position, error) {
	stored := new(storedPosition)
	ok, err := m.get(withPrefix(positionPrefix, addr.Bytes()), stored)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.Position{
		Address:    addr,
		Collateral: stored.Collateral,
		Debt:       stored.Debt,
		OpenedAt:   stored.OpenedAt,
		Active:     stored.Active,
	}, nil
}

// GetSupplyBalance loads the supplier's liquidity balance, or nil when
// absent.
func (m *Manager) GetSupplyBalance(addr crypto.Address) (*lending.SupplyBalance, error) {
	stored := new(storedSupply)
	ok, err := m.get(withPrefix(supplyPrefix, addr.Bytes()), stored)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.SupplyBalance{Address: addr, Amount: stored.Amount}, nil
}

// Apply commits an operation's record writes as a single storage batch.
// Encoding failures surface before anything is staged; the batch itself lands
// in full or not at all.
func (m *Manager) Apply(change *lending.Changeset) error {
	if change == nil {
		return nil
	}
	batch := m.db.NewBatch()
	if change.Pool != nil {
		change.Pool.EnsureDefaults()
		encoded, err := encodeRecord(&storedPool{
			TotalCollateral: change.Pool.TotalCollateral,
			TotalSupplied:   change.Pool.TotalSupplied,
			TotalBorrowed:   change.Pool.TotalBorrowed,
		})
		if err != nil {
			return err
		}
		batch.Put(poolKey, encoded)
	}
	for _, position := range change.Positions {
		if position == nil {
			continue
		}
		position.EnsureDefaults()
		encoded, err := encodeRecord(&storedPosition{
			Collateral: position.Collateral,
			Debt:       position.Debt,
			OpenedAt:   position.OpenedAt,
			Active:     position.Active,
		})
		if err != nil {
			return err
		}
		batch.Put(withPrefix(positionPrefix, position.Address.Bytes()), encoded)
	}
	for _, addr := range change.DeletedPositions {
		batch.Delete(withPrefix(positionPrefix, addr.Bytes()))
	}
	for _, balance := range change.SupplyBalances {
		if balance == nil {
			continue
		}
		balance.EnsureDefaults()
		encoded, err := encodeRecord(&storedSupply{Amount: balance.Amount})
		if err != nil {
			return err
		}
		batch.Put(withPrefix(supplyPrefix, balance.Address.Bytes()), encoded)
	}
	return m.db.Write(batch)
}

// GetAccount loads the transferable balances for an address. Unknown
// addresses return a zeroed account.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	stored := new(storedAccount)
	ok, err := m.get(withPrefix(accountPrefix, addr.Bytes()), stored)
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if ok {
		account.BalanceAsset = stored.BalanceAsset
		account.BalanceCollateral = stored.BalanceCollateral
	}
	account.EnsureDefaults()
	return account, nil
}

// AccountUpdate pairs an address with its replacement record for batched
// account writes.
type AccountUpdate struct {
	Address crypto.Address
	Account *types.Account
}

// PutAccounts stores several account records in one atomic batch, so a
// transfer's debit and credit always land together.
func (m *Manager) PutAccounts(updates ...AccountUpdate) error {
	batch := m.db.NewBatch()
	for _, update := range updates {
		if update.Account == nil {
			continue
		}
		update.Account.EnsureDefaults()
		encoded, err := encodeRecord(&storedAccount{
			BalanceAsset:      update.Account.BalanceAsset,
			BalanceCollateral: update.Account.BalanceCollateral,
		})
		if err != nil {
			return err
		}
		batch.Put(withPrefix(accountPrefix, update.Address.Bytes()), encoded)
	}
	return m.db.Write(batch)
}

// PutAccount stores the transferable balances for a single address.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	return m.PutAccounts(AccountUpdate{Address: addr, Account: account})
}
