package lending

import (
	"fmt"
	"math/big"
	"sync"

	"loanledger/core/events"
	"loanledger/crypto"
	nativecommon "loanledger/native/common"
)

const moduleName = "lending"

// ledgerState is the persistence boundary of the engine. Implementations are
// pure storage: no validation happens here, Get methods must return defensive
// copies, and Apply must commit a changeset all-or-nothing so a failed commit
// can never leave records half-applied.
type ledgerState interface {
	GetPool() (*Pool, error)
	GetPosition(addr crypto.Address) (*Position, error)
	GetSupplyBalance(addr crypto.Address) (*SupplyBalance, error)
	Apply(change *Changeset) error
}

// Engine orchestrates every state transition of the lending ledger. All
// operations execute as one serialized atomic unit: the engine mutex is held
// from entry to exit, including while custodian and eligibility calls are
// outstanding, so no concurrent operation can observe intermediate state.
// Record writes funnel through one Apply per operation; when the commit fails
// after a custodian transfer already ran, the transfer is compensated.
type Engine struct {
	mu          sync.Mutex
	state       ledgerState
	custodian   Custodian
	policy      Policy
	gate        EligibilityGate
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	owner       crypto.Address
	paused      bool
	blockHeight uint64
}

// NewEngine constructs a lending engine owned by the given identity and
// governed by the supplied collateralization policy. The policy is fixed for
// the lifetime of the engine.
func NewEngine(owner crypto.Address, policy Policy) *Engine {
	return &Engine{
		owner:   owner,
		policy:  policy,
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state ledgerState) {
	if e == nil {
		return
	}
	e.state = state
}

// SetCustodian wires the asset-transfer capability used to move value in and
// out of the pool.
func (e *Engine) SetCustodian(custodian Custodian) {
	if e == nil {
		return
	}
	e.custodian = custodian
}

// SetEligibilityGate configures the admission oracle consulted when positions
// open. A nil gate admits every principal regardless of the policy threshold.
func (e *Engine) SetEligibilityGate(gate EligibilityGate) {
	if e == nil {
		return
	}
	e.gate = gate
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires an external pause view checked alongside the engine's own
// switch.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBlockHeight records the logical timestamp stamped onto newly opened
// positions.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

// SetPaused flips the module pause switch. Only the owner may call it.
func (e *Engine) SetPaused(actor crypto.Address, paused bool) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !actor.Equal(e.owner) {
		return ErrNotAuthorized
	}
	e.paused = paused
	e.emitter.Emit(events.LendingPauseChanged{Actor: actor, Paused: paused})
	return nil
}

func (e *Engine) guard() error {
	if e.state == nil {
		return errNilState
	}
	if e.custodian == nil {
		return errNilCustodian
	}
	if e.paused {
		return nativecommon.ErrModulePaused
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// commit applies the changeset. When the commit fails, the undo functions run
// in reverse execution order to compensate custodian transfers that already
// moved value, then the commit failure is reported.
func (e *Engine) commit(change *Changeset, undo ...func() error) error {
	err := e.state.Apply(change)
	if err == nil {
		return nil
	}
	for i := len(undo) - 1; i >= 0; i-- {
		if undoErr := undo[i](); undoErr != nil {
			return fmt.Errorf("lending engine: commit failed (%v) and custodian compensation failed: %v", err, undoErr)
		}
	}
	return fmt.Errorf("lending engine: commit failed: %w", err)
}

// Supply deposits principal-asset liquidity into the pool on behalf of the
// supplier. The supplied balance is not collateral and carries no
// collateralization check.
func (e *Engine) Supply(supplier crypto.Address, amount *big.Int) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return err
	}
	if !isPositive(amount) {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	balance, err := e.ensureSupplyBalance(supplier)
	if err != nil {
		return err
	}

	if err := e.custodian.TransferIn(supplier, AssetPrincipal, amount); err != nil {
		return fmt.Errorf("lending engine: custodian transfer in: %w", err)
	}

	balance.Amount = addAmount(balance.Amount, amount)
	pool.TotalSupplied = addAmount(pool.TotalSupplied, amount)

	change := &Changeset{Pool: pool, SupplyBalances: []*SupplyBalance{balance}}
	if err := e.commit(change, func() error {
		return e.custodian.TransferOut(supplier, AssetPrincipal, amount)
	}); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingSupplied{
		Supplier:      supplier,
		Amount:        new(big.Int).Set(amount),
		TotalSupplied: new(big.Int).Set(pool.TotalSupplied),
	})
	return nil
}

// WithdrawSupply releases principal-asset liquidity back to the supplier. The
// payout is bounded by the supplier's balance and by the liquidity the pool
// has not lent out.
func (e *Engine) WithdrawSupply(supplier crypto.Address, amount *big.Int) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return err
	}
	if !isPositive(amount) {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	balance, err := e.ensureSupplyBalance(supplier)
	if err != nil {
		return err
	}

	remaining, ok := checkedSub(balance.Amount, amount)
	if !ok {
		return ErrInsufficientBalance
	}
	if pool.AvailableLiquidity().Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	if err := e.custodian.TransferOut(supplier, AssetPrincipal, amount); err != nil {
		return fmt.Errorf("lending engine: custodian transfer out: %w", err)
	}

	balance.Amount = remaining
	pool.TotalSupplied = new(big.Int).Sub(pool.TotalSupplied, amount)

	change := &Changeset{Pool: pool, SupplyBalances: []*SupplyBalance{balance}}
	if err := e.commit(change, func() error {
		return e.custodian.TransferIn(supplier, AssetPrincipal, amount)
	}); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingSupplyWithdrawn{
		Supplier:      supplier,
		Amount:        new(big.Int).Set(amount),
		TotalSupplied: new(big.Int).Set(pool.TotalSupplied),
	})
	return nil
}

// DepositCollateral locks collateral for the principal, creating the position
// on first deposit. It is only available under policies that borrow in a
// separate step.
func (e *Engine) DepositCollateral(principal crypto.Address, amount *big.Int) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return err
	}
	if e.policy.AtomicOpen() {
		return ErrOperationNotSupported
	}
	if !isPositive(amount) {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	position, err := e.state.GetPosition(principal)
	if err != nil {
		return err
	}
	if position == nil {
		position = &Position{Address: principal, OpenedAt: e.blockHeight, Active: true}
	}
	position.EnsureDefaults()

	if err := e.custodian.TransferIn(principal, AssetCollateral, amount); err != nil {
		return fmt.Errorf("lending engine: custodian transfer in: %w", err)
	}

	position.Collateral = addAmount(position.Collateral, amount)
	pool.TotalCollateral = addAmount(pool.TotalCollateral, amount)

	change := &Changeset{Pool: pool, Positions: []*Position{position}}
	if err := e.commit(change, func() error {
		return e.custodian.TransferOut(principal, AssetCollateral, amount)
	}); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingCollateralDeposited{
		Principal:  principal,
		Amount:     new(big.Int).Set(amount),
		Collateral: new(big.Int).Set(position.Collateral),
	})
	return nil
}

// OpenPosition admits the principal through the eligibility gate, locks their
// collateral and pays out the policy's loan-to-value fraction in the same
// operation. Only available under policies that open atomically.
func (e *Engine) OpenPosition(principal crypto.Address, collateral *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return nil, err
	}
	if !e.policy.AtomicOpen() {
		return nil, ErrOperationNotSupported
	}
	if !isPositive(collateral) {
		return nil, ErrInvalidAmount
	}

	if err := e.checkEligibility(principal); err != nil {
		return nil, err
	}

	existing, err := e.state.GetPosition(principal)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPositionAlreadyActive
	}

	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}

	borrowed := e.policy.InitialBorrowOnOpen(collateral)
	if borrowed.Sign() > 0 && pool.AvailableLiquidity().Cmp(borrowed) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	if err := e.custodian.TransferIn(principal, AssetCollateral, collateral); err != nil {
		return nil, fmt.Errorf("lending engine: custodian transfer in: %w", err)
	}
	undo := []func() error{func() error {
		return e.custodian.TransferOut(principal, AssetCollateral, collateral)
	}}
	if borrowed.Sign() > 0 {
		if err := e.custodian.TransferOut(principal, AssetPrincipal, borrowed); err != nil {
			// Undo the collateral leg so the failed open leaves no trace.
			if undoErr := undo[0](); undoErr != nil {
				return nil, fmt.Errorf("lending engine: payout failed (%v) and collateral refund failed: %w", err, undoErr)
			}
			return nil, fmt.Errorf("lending engine: custodian transfer out: %w", err)
		}
		undo = append(undo, func() error {
			return e.custodian.TransferIn(principal, AssetPrincipal, borrowed)
		})
	}

	position := &Position{
		Address:    principal,
		Collateral: new(big.Int).Set(collateral),
		Debt:       new(big.Int).Set(borrowed),
		OpenedAt:   e.blockHeight,
		Active:     true,
	}
	pool.TotalCollateral = addAmount(pool.TotalCollateral, collateral)
	pool.TotalBorrowed = addAmount(pool.TotalBorrowed, borrowed)

	change := &Changeset{Pool: pool, Positions: []*Position{position}}
	if err := e.commit(change, undo...); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingPositionOpened{
		Principal:  principal,
		Collateral: new(big.Int).Set(collateral),
		Borrowed:   new(big.Int).Set(borrowed),
		OpenedAt:   position.OpenedAt,
	})
	return new(big.Int).Set(borrowed), nil
}

// Borrow pays principal out to a borrower with deposited collateral, keeping
// the resulting debt within the policy ceiling. Only available under policies
// that borrow in a separate step.
func (e *Engine) Borrow(borrower crypto.Address, amount *big.Int) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return err
	}
	if e.policy.AtomicOpen() {
		return ErrOperationNotSupported
	}
	if !isPositive(amount) {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	position, err := e.state.GetPosition(borrower)
	if err != nil {
		return err
	}
	if position == nil || !isPositive(position.Collateral) {
		return ErrNoCollateral
	}
	position.EnsureDefaults()

	newDebt := addAmount(position.Debt, amount)
	if newDebt.Cmp(e.policy.MaxBorrow(position.Collateral)) > 0 {
		return ErrExceedsBorrowLimit
	}
	if pool.AvailableLiquidity().Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	if err := e.custodian.TransferOut(borrower, AssetPrincipal, amount); err != nil {
		return fmt.Errorf("lending engine: custodian transfer out: %w", err)
	}

	position.Debt = newDebt
	pool.TotalBorrowed = addAmount(pool.TotalBorrowed, amount)

	change := &Changeset{Pool: pool, Positions: []*Position{position}}
	if err := e.commit(change, func() error {
		return e.custodian.TransferIn(borrower, AssetPrincipal, amount)
	}); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingBorrowed{
		Borrower: borrower,
		Amount:   new(big.Int).Set(amount),
		Debt:     new(big.Int).Set(position.Debt),
	})
	return nil
}

// Repay transfers principal back into the pool and reduces the borrower's
// debt. Repaying more than is owed fails rather than clamping. Under a
// close-on-full-repay policy, clearing the debt returns the collateral and
// deletes the position in the same operation.
func (e *Engine) Repay(borrower crypto.Address, amount *big.Int) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return err
	}
	if !isPositive(amount) {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	position, err := e.state.GetPosition(borrower)
	if err != nil {
		return err
	}
	if position == nil {
		return ErrNoActivePosition
	}
	position.EnsureDefaults()

	remainingDebt, ok := checkedSub(position.Debt, amount)
	if !ok {
		return ErrAmountExceedsDebt
	}

	if err := e.custodian.TransferIn(borrower, AssetPrincipal, amount); err != nil {
		return fmt.Errorf("lending engine: custodian transfer in: %w", err)
	}
	undo := []func() error{func() error {
		return e.custodian.TransferOut(borrower, AssetPrincipal, amount)
	}}

	closes := remainingDebt.Sign() == 0 && e.policy.ClosesOnFullRepay()
	collateralReturned := big.NewInt(0)
	if closes {
		collateralReturned = new(big.Int).Set(position.Collateral)
		if collateralReturned.Sign() > 0 {
			if err := e.custodian.TransferOut(borrower, AssetCollateral, collateralReturned); err != nil {
				// Refund the repayment so the failed close leaves no trace.
				if undoErr := undo[0](); undoErr != nil {
					return fmt.Errorf("lending engine: collateral return failed (%v) and repayment refund failed: %w", err, undoErr)
				}
				return fmt.Errorf("lending engine: custodian transfer out: %w", err)
			}
			returned := collateralReturned
			undo = append(undo, func() error {
				return e.custodian.TransferIn(borrower, AssetCollateral, returned)
			})
		}
	}

	position.Debt = remainingDebt
	pool.TotalBorrowed = new(big.Int).Sub(pool.TotalBorrowed, amount)

	change := &Changeset{Pool: pool}
	if closes {
		pool.TotalCollateral = new(big.Int).Sub(pool.TotalCollateral, collateralReturned)
		change.DeletedPositions = []crypto.Address{borrower}
	} else {
		change.Positions = []*Position{position}
	}
	if err := e.commit(change, undo...); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingRepaid{
		Borrower:           borrower,
		Amount:             new(big.Int).Set(amount),
		Debt:               new(big.Int).Set(position.Debt),
		Closed:             closes,
		CollateralReturned: collateralReturned,
	})
	return nil
}

// WithdrawCollateral releases collateral back to the principal while keeping
// the remaining collateral at or above the policy floor for the outstanding
// debt. Only available under policies that borrow in a separate step.
func (e *Engine) WithdrawCollateral(principal crypto.Address, amount *big.Int) error {
	if e == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return err
	}
	if e.policy.AtomicOpen() {
		return ErrOperationNotSupported
	}
	if !isPositive(amount) {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	position, err := e.state.GetPosition(principal)
	if err != nil {
		return err
	}
	if position == nil {
		return ErrNoActivePosition
	}
	position.EnsureDefaults()

	remaining, ok := checkedSub(position.Collateral, amount)
	if !ok {
		return ErrInsufficientCollateral
	}
	if remaining.Cmp(e.policy.RequiredCollateral(position.Debt)) < 0 {
		return ErrInsufficientCollateral
	}

	if err := e.custodian.TransferOut(principal, AssetCollateral, amount); err != nil {
		return fmt.Errorf("lending engine: custodian transfer out: %w", err)
	}

	position.Collateral = remaining
	pool.TotalCollateral = new(big.Int).Sub(pool.TotalCollateral, amount)

	change := &Changeset{Pool: pool}
	if position.Collateral.Sign() == 0 && position.Debt.Sign() == 0 {
		change.DeletedPositions = []crypto.Address{principal}
	} else {
		change.Positions = []*Position{position}
	}
	if err := e.commit(change, func() error {
		return e.custodian.TransferIn(principal, AssetCollateral, amount)
	}); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingCollateralWithdrawn{
		Principal:  principal,
		Amount:     new(big.Int).Set(amount),
		Collateral: new(big.Int).Set(position.Collateral),
	})
	return nil
}

// Liquidate lets a third party cover part of an undercollateralized
// borrower's debt in exchange for collateral. Under a proportional policy the
// liquidator receives RequiredCollateral(amountToCover); under a full-seizure
// policy the cover must clear the whole debt and the entire position is
// transferred and deleted.
func (e *Engine) Liquidate(liquidator, borrower crypto.Address, amountToCover *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return nil, err
	}
	if !isPositive(amountToCover) {
		return nil, ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	position, err := e.state.GetPosition(borrower)
	if err != nil {
		return nil, err
	}
	if position == nil || !isPositive(position.Debt) {
		return nil, ErrNoDebt
	}
	position.EnsureDefaults()

	if position.Collateral.Cmp(e.policy.RequiredCollateral(position.Debt)) >= 0 {
		return nil, ErrNotLiquidatable
	}
	if amountToCover.Cmp(position.Debt) > 0 {
		return nil, ErrAmountExceedsDebt
	}

	fullSeizure := e.policy.SeizesFullCollateral()
	if fullSeizure && amountToCover.Cmp(position.Debt) != 0 {
		return nil, ErrFullCoverRequired
	}

	var seized *big.Int
	if fullSeizure {
		seized = new(big.Int).Set(position.Collateral)
	} else {
		seized = e.policy.RequiredCollateral(amountToCover)
		if seized.Cmp(position.Collateral) > 0 {
			return nil, ErrInsufficientCollateral
		}
	}

	if err := e.custodian.TransferIn(liquidator, AssetPrincipal, amountToCover); err != nil {
		return nil, fmt.Errorf("lending engine: custodian transfer in: %w", err)
	}
	undo := []func() error{func() error {
		return e.custodian.TransferOut(liquidator, AssetPrincipal, amountToCover)
	}}
	if seized.Sign() > 0 {
		if err := e.custodian.TransferOut(liquidator, AssetCollateral, seized); err != nil {
			// Refund the cover so the failed seizure leaves no trace.
			if undoErr := undo[0](); undoErr != nil {
				return nil, fmt.Errorf("lending engine: collateral payout failed (%v) and cover refund failed: %w", err, undoErr)
			}
			return nil, fmt.Errorf("lending engine: custodian transfer out: %w", err)
		}
		undo = append(undo, func() error {
			return e.custodian.TransferIn(liquidator, AssetCollateral, seized)
		})
	}

	position.Debt = new(big.Int).Sub(position.Debt, amountToCover)
	position.Collateral = new(big.Int).Sub(position.Collateral, seized)
	pool.TotalBorrowed = new(big.Int).Sub(pool.TotalBorrowed, amountToCover)
	pool.TotalCollateral = new(big.Int).Sub(pool.TotalCollateral, seized)

	closed := position.Debt.Sign() == 0 && (fullSeizure || position.Collateral.Sign() == 0)
	change := &Changeset{Pool: pool}
	if closed {
		change.DeletedPositions = []crypto.Address{borrower}
	} else {
		change.Positions = []*Position{position}
	}
	if err := e.commit(change, undo...); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingLiquidated{
		Liquidator: liquidator,
		Borrower:   borrower,
		Covered:    new(big.Int).Set(amountToCover),
		Seized:     new(big.Int).Set(seized),
		Closed:     closed,
	})
	return new(big.Int).Set(seized), nil
}

// Position returns a copy of the principal's position, or nil when absent.
func (e *Engine) Position(principal crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	position, err := e.state.GetPosition(principal)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}
	position.EnsureDefaults()
	return position, nil
}

// PoolAggregates returns a copy of the pool-wide totals.
func (e *Engine) PoolAggregates() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensurePool()
}

// SupplyBalanceOf returns a copy of the supplier's liquidity balance.
func (e *Engine) SupplyBalanceOf(supplier crypto.Address) (*SupplyBalance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureSupplyBalance(supplier)
}

func (e *Engine) checkEligibility(principal crypto.Address) error {
	minScore, required := e.policy.MinimumScore()
	if !required || e.gate == nil {
		return nil
	}
	score, err := e.gate.Score(principal)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if score < minScore {
		return ErrEligibilityTooLow
	}
	return nil
}

func (e *Engine) ensurePool() (*Pool, error) {
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &Pool{}
	}
	pool.EnsureDefaults()
	return pool, nil
}

func (e *Engine) ensureSupplyBalance(addr crypto.Address) (*SupplyBalance, error) {
	balance, err := e.state.GetSupplyBalance(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		balance = &SupplyBalance{Address: addr}
	}
	balance.EnsureDefaults()
	return balance, nil
}
