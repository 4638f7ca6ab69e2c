package events

import (
	"math/big"
	"strconv"

	"loanledger/core/types"
	"loanledger/crypto"
)

const (
	// TypeLendingSupplied is emitted when a supplier deposits principal-asset
	// liquidity into the pool.
	TypeLendingSupplied = "lending.supplied"
	// TypeLendingSupplyWithdrawn is emitted when a supplier withdraws
	// liquidity.
	TypeLendingSupplyWithdrawn = "lending.supply.withdrawn"
	// TypeLendingCollateralDeposited is emitted when collateral is locked for
	// a principal.
	TypeLendingCollateralDeposited = "lending.collateral.deposited"
	// TypeLendingCollateralWithdrawn is emitted when collateral is released
	// back to a principal.
	TypeLendingCollateralWithdrawn = "lending.collateral.withdrawn"
	// TypeLendingPositionOpened is emitted when a credit-line position opens
	// and borrows atomically.
	TypeLendingPositionOpened = "lending.position.opened"
	// TypeLendingBorrowed is emitted when an existing position takes on debt.
	TypeLendingBorrowed = "lending.borrowed"
	// TypeLendingRepaid is emitted when outstanding debt is reduced.
	TypeLendingRepaid = "lending.repaid"
	// TypeLendingLiquidated is emitted when a third party seizes collateral
	// to cover a borrower's debt.
	TypeLendingLiquidated = "lending.liquidated"
	// TypeLendingPauseChanged is emitted when the owner flips the module
	// pause switch.
	TypeLendingPauseChanged = "lending.pause.changed"
)

// LendingSupplied captures a committed liquidity deposit.
type LendingSupplied struct {
	Supplier      crypto.Address
	Amount        *big.Int
	TotalSupplied *big.Int
}

// EventType implements the Event interface.
func (LendingSupplied) EventType() string { return TypeLendingSupplied }

// LendingSupplyWithdrawn captures a committed liquidity withdrawal.
type LendingSupplyWithdrawn struct {
	Supplier      crypto.Address
	Amount        *big.Int
	TotalSupplied *big.Int
}

// EventType implements the Event interface.
func (LendingSupplyWithdrawn) EventType() string { return TypeLendingSupplyWithdrawn }

// LendingCollateralDeposited captures a committed collateral lock.
type LendingCollateralDeposited struct {
	Principal  crypto.Address
	Amount     *big.Int
	Collateral *big.Int
}

// EventType implements the Event interface.
func (LendingCollateralDeposited) EventType() string { return TypeLendingCollateralDeposited }

// LendingCollateralWithdrawn captures a committed collateral release.
type LendingCollateralWithdrawn struct {
	Principal  crypto.Address
	Amount     *big.Int
	Collateral *big.Int
}

// EventType implements the Event interface.
func (LendingCollateralWithdrawn) EventType() string { return TypeLendingCollateralWithdrawn }

// LendingPositionOpened captures an atomic open-and-borrow.
type LendingPositionOpened struct {
	Principal  crypto.Address
	Collateral *big.Int
	Borrowed   *big.Int
	OpenedAt   uint64
}

// EventType implements the Event interface.
func (LendingPositionOpened) EventType() string { return TypeLendingPositionOpened }

// LendingBorrowed captures a committed borrow against an existing position.
type LendingBorrowed struct {
	Borrower crypto.Address
	Amount   *big.Int
	Debt     *big.Int
}

// EventType implements the Event interface.
func (LendingBorrowed) EventType() string { return TypeLendingBorrowed }

// LendingRepaid captures a committed repayment. Closed reports whether the
// repayment cleared the debt and deleted the position; CollateralReturned is
// the collateral released by that terminal transition.
type LendingRepaid struct {
	Borrower           crypto.Address
	Amount             *big.Int
	Debt               *big.Int
	Closed             bool
	CollateralReturned *big.Int
}

// EventType implements the Event interface.
func (LendingRepaid) EventType() string { return TypeLendingRepaid }

// LendingLiquidated captures a committed liquidation.
type LendingLiquidated struct {
	Liquidator crypto.Address
	Borrower   crypto.Address
	Covered    *big.Int
	Seized     *big.Int
	Closed     bool
}

// EventType implements the Event interface.
func (LendingLiquidated) EventType() string { return TypeLendingLiquidated }

// LendingPauseChanged captures a privileged pause toggle.
type LendingPauseChanged struct {
	Actor  crypto.Address
	Paused bool
}

// EventType implements the Event interface.
func (LendingPauseChanged) EventType() string { return TypeLendingPauseChanged }

// ToRecord flattens a typed event into the generic attribute form served to
// external observers.
func ToRecord(evt Event) types.Event {
	record := types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	set := func(key string, value string) {
		record.Attributes[key] = value
	}
	amount := func(key string, value *big.Int) {
		if value != nil {
			record.Attributes[key] = value.String()
		}
	}
	switch e := evt.(type) {
	case LendingSupplied:
		set("supplier", e.Supplier.String())
		amount("amount", e.Amount)
		amount("totalSupplied", e.TotalSupplied)
	case LendingSupplyWithdrawn:
		set("supplier", e.Supplier.String())
		amount("amount", e.Amount)
		amount("totalSupplied", e.TotalSupplied)
	case LendingCollateralDeposited:
		set("principal", e.Principal.String())
		amount("amount", e.Amount)
		amount("collateral", e.Collateral)
	case LendingCollateralWithdrawn:
		set("principal", e.Principal.String())
		amount("amount", e.Amount)
		amount("collateral", e.Collateral)
	case LendingPositionOpened:
		set("principal", e.Principal.String())
		amount("collateral", e.Collateral)
		amount("borrowed", e.Borrowed)
		set("openedAt", strconv.FormatUint(e.OpenedAt, 10))
	case LendingBorrowed:
		set("borrower", e.Borrower.String())
		amount("amount", e.Amount)
		amount("debt", e.Debt)
	case LendingRepaid:
		set("borrower", e.Borrower.String())
		amount("amount", e.Amount)
		amount("debt", e.Debt)
		set("closed", strconv.FormatBool(e.Closed))
		amount("collateralReturned", e.CollateralReturned)
	case LendingLiquidated:
		set("liquidator", e.Liquidator.String())
		set("borrower", e.Borrower.String())
		amount("covered", e.Covered)
		amount("seized", e.Seized)
		set("closed", strconv.FormatBool(e.Closed))
	case LendingPauseChanged:
		set("actor", e.Actor.String())
		set("paused", strconv.FormatBool(e.Paused))
	}
	return record
}
