package state

import (
	"errors"
	"math/big"

	"loanledger/crypto"
	"loanledger/native/lending"
)

// ErrInsufficientFunds is returned when the debited account cannot cover the
// transfer. Nothing moves on failure.
var ErrInsufficientFunds = errors.New("custodian: insufficient funds")

// VaultCustodian implements the lending Custodian against account balances in
// the state manager. Custody is modeled as two vault addresses, one per
// asset, that hold everything the pool controls.
type VaultCustodian struct {
	mgr             *Manager
	assetVault      crypto.Address
	collateralVault crypto.Address
}

// NewVaultCustodian constructs a custodian moving balances between principals
// and the given vault addresses.
func NewVaultCustodian(mgr *Manager, assetVault, collateralVault crypto.Address) *VaultCustodian {
	return &VaultCustodian{mgr: mgr, assetVault: assetVault, collateralVault: collateralVault}
}

func (c *VaultCustodian) vaultFor(asset lending.Asset) crypto.Address {
	if asset == lending.AssetCollateral {
		return c.collateralVault
	}
	return c.assetVault
}

func balanceFor(asset lending.Asset, balanceAsset, balanceCollateral *big.Int) *big.Int {
	if asset == lending.AssetCollateral {
		return balanceCollateral
	}
	return balanceAsset
}

func (c *VaultCustodian) move(from, to crypto.Address, asset lending.Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	fromAcc, err := c.mgr.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := c.mgr.GetAccount(to)
	if err != nil {
		return err
	}

	fromBal := balanceFor(asset, fromAcc.BalanceAsset, fromAcc.BalanceCollateral)
	toBal := balanceFor(asset, toAcc.BalanceAsset, toAcc.BalanceCollateral)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}

	newFrom := new(big.Int).Sub(fromBal, amount)
	newTo := new(big.Int).Add(toBal, amount)
	if asset == lending.AssetCollateral {
		fromAcc.BalanceCollateral = newFrom
		toAcc.BalanceCollateral = newTo
	} else {
		fromAcc.BalanceAsset = newFrom
		toAcc.BalanceAsset = newTo
	}

	return c.mgr.PutAccounts(
		AccountUpdate{Address: from, Account: fromAcc},
		AccountUpdate{Address: to, Account: toAcc},
	)
}

// TransferIn pulls amount of asset from the principal into the vault.
func (c *VaultCustodian) TransferIn(from crypto.Address, asset lending.Asset, amount *big.Int) error {
	return c.move(from, c.vaultFor(asset), asset, amount)
}

// TransferOut releases amount of asset from the vault to the principal.
func (c *VaultCustodian) TransferOut(to crypto.Address, asset lending.Asset, amount *big.Int) error {
	return c.move(c.vaultFor(asset), to, asset, amount)
}
