package lending

import (
	"math/big"

	"loanledger/crypto"
)

// Pool captures the aggregate accounting state for one lending pool. Amount
// values are denominated in wei (1e18 scale) and expressed as big integers so
// the ledger never loses precision.
type Pool struct {
	// TotalCollateral is the collateral pledged across all active positions.
	TotalCollateral *big.Int
	// TotalSupplied is the aggregate principal-asset liquidity deposited by
	// suppliers.
	TotalSupplied *big.Int
	// TotalBorrowed tracks the outstanding principal borrowed across all
	// positions.
	TotalBorrowed *big.Int
}

// EnsureDefaults replaces nil aggregates with zero values.
func (p *Pool) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.TotalCollateral == nil {
		p.TotalCollateral = big.NewInt(0)
	}
	if p.TotalSupplied == nil {
		p.TotalSupplied = big.NewInt(0)
	}
	if p.TotalBorrowed == nil {
		p.TotalBorrowed = big.NewInt(0)
	}
}

// Clone returns a deep copy of the pool aggregates.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := &Pool{}
	if p.TotalCollateral != nil {
		clone.TotalCollateral = new(big.Int).Set(p.TotalCollateral)
	}
	if p.TotalSupplied != nil {
		clone.TotalSupplied = new(big.Int).Set(p.TotalSupplied)
	}
	if p.TotalBorrowed != nil {
		clone.TotalBorrowed = new(big.Int).Set(p.TotalBorrowed)
	}
	return clone
}

// AvailableLiquidity is the principal the pool can still lend out.
func (p *Pool) AvailableLiquidity() *big.Int {
	if p == nil || p.TotalSupplied == nil || p.TotalBorrowed == nil {
		return big.NewInt(0)
	}
	liquidity := new(big.Int).Sub(p.TotalSupplied, p.TotalBorrowed)
	if liquidity.Sign() < 0 {
		return big.NewInt(0)
	}
	return liquidity
}

// Position maintains the collateral and debt record for a single principal.
// A principal holds at most one open position; closed positions are deleted
// from the ledger rather than archived.
type Position struct {
	// Address is the principal the position belongs to.
	Address crypto.Address
	// Collateral is the collateral-asset amount held on the principal's
	// behalf.
	Collateral *big.Int
	// Debt is the outstanding principal-asset amount owed.
	Debt *big.Int
	// OpenedAt records the block height when the position was created.
	OpenedAt uint64
	// Active marks the position as open. Stored positions are always active;
	// closing deletes the record.
	Active bool
}

// EnsureDefaults replaces nil amounts with zero values.
func (p *Position) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.Collateral == nil {
		p.Collateral = big.NewInt(0)
	}
	if p.Debt == nil {
		p.Debt = big.NewInt(0)
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address, OpenedAt: p.OpenedAt, Active: p.Active}
	if p.Collateral != nil {
		clone.Collateral = new(big.Int).Set(p.Collateral)
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// SupplyBalance records the principal-asset liquidity a supplier has deposited
// into the pool. It is kept separate from Position so closing a position never
// disturbs supplied liquidity.
type SupplyBalance struct {
	Address crypto.Address
	Amount  *big.Int
}

// EnsureDefaults replaces a nil amount with zero.
func (s *SupplyBalance) EnsureDefaults() {
	if s == nil {
		return
	}
	if s.Amount == nil {
		s.Amount = big.NewInt(0)
	}
}

// Clone returns a deep copy of the supply balance.
func (s *SupplyBalance) Clone() *SupplyBalance {
	if s == nil {
		return nil
	}
	clone := &SupplyBalance{Address: s.Address}
	if s.Amount != nil {
		clone.Amount = new(big.Int).Set(s.Amount)
	}
	return clone
}

// Changeset collects every record write one operation commits. The state
// boundary applies a changeset as a single atomic unit: either every entry
// lands or none does. A nil Pool leaves the aggregates untouched.
type Changeset struct {
	Pool             *Pool
	Positions        []*Position
	DeletedPositions []crypto.Address
	SupplyBalances   []*SupplyBalance
}
