package types

import "math/big"

// Account holds the transferable balances for a single ledger address. The
// principal asset is the one lent out of the pool; the collateral asset is the
// one pledged against debt. Amounts are denominated in wei (1e18 scale).
type Account struct {
	BalanceAsset      *big.Int
	BalanceCollateral *big.Int
}

// EnsureDefaults replaces nil balances with zero so callers can operate on the
// account without nil checks.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.BalanceAsset == nil {
		a.BalanceAsset = big.NewInt(0)
	}
	if a.BalanceCollateral == nil {
		a.BalanceCollateral = big.NewInt(0)
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{}
	if a.BalanceAsset != nil {
		clone.BalanceAsset = new(big.Int).Set(a.BalanceAsset)
	}
	if a.BalanceCollateral != nil {
		clone.BalanceCollateral = new(big.Int).Set(a.BalanceCollateral)
	}
	return clone
}
