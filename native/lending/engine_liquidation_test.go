package lending

import (
	"errors"
	"math/big"
	"testing"

	"loanledger/crypto"
)

func seedUndercollateralized(t *testing.T, engine *Engine, state *mockLedgerState, borrower crypto.Address, collateral, debt *big.Int) {
	t.Helper()
	state.positions[state.key(borrower)] = &Position{
		Address:    borrower,
		Collateral: new(big.Int).Set(collateral),
		Debt:       new(big.Int).Set(debt),
		Active:     true,
	}
	state.pool = &Pool{
		TotalCollateral: new(big.Int).Set(collateral),
		TotalSupplied:   new(big.Int).Set(debt),
		TotalBorrowed:   new(big.Int).Set(debt),
	}
}

func TestLiquidateSeizesProportionalCollateral(t *testing.T) {
	// ratio 0.25, collateral 40, debt 200: the floor is 50, so the position
	// is liquidatable. Covering 50 seizes 50 * 0.25 = 12.5.
	engine, state, custodian := newPoolEngine(t, wadFraction(25))
	liquidator := makeAddress(crypto.LoanPrefix, 0x30)
	borrower := makeAddress(crypto.LoanPrefix, 0x20)
	seedUndercollateralized(t, engine, state, borrower, wei(40), wei(200))

	seized, err := engine.Liquidate(liquidator, borrower, wei(50))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	want := new(big.Int).Quo(wei(25), big.NewInt(2)) // 12.5 at wad scale
	if seized.Cmp(want) != 0 {
		t.Fatalf("seized %s, want %s", seized, want)
	}

	position := state.positions[state.key(borrower)]
	if position.Debt.Cmp(wei(150)) != 0 {
		t.Fatalf("unexpected remaining debt: %s", position.Debt)
	}
	remaining := new(big.Int).Sub(wei(40), want)
	if position.Collateral.Cmp(remaining) != 0 {
		t.Fatalf("unexpected remaining collateral: %s", position.Collateral)
	}
	checkAggregates(t, state)

	// The liquidator paid the cover in and took the collateral out.
	last := custodian.calls[len(custodian.calls)-1]
	if !last.out || last.asset != AssetCollateral || last.amount.Cmp(want) != 0 {
		t.Fatalf("unexpected collateral payout: %+v", last)
	}
}

func TestLiquidateHealthyPositionRejected(t *testing.T) {
	engine, state, _ := newPoolEngine(t, wadFraction(25))
	liquidator := makeAddress(crypto.LoanPrefix, 0x30)
	borrower := makeAddress(crypto.LoanPrefix, 0x20)
	// Collateral 100 >= floor 200*0.25 = 50: healthy.
	seedUndercollateralized(t, engine, state, borrower, wei(100), wei(200))

	if _, err := engine.Liquidate(liquidator, borrower, wei(50)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}
}

func TestLiquidateRequiresDebt(t *testing.T) {
	engine, state, _ := newPoolEngine(t, wadFraction(25))
	liquidator := makeAddress(crypto.LoanPrefix, 0x30)
	borrower := makeAddress(crypto.LoanPrefix, 0x20)

	if _, err := engine.Liquidate(liquidator, borrower, wei(10)); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("expected ErrNoDebt for missing position, got %v", err)
	}

	state.positions[state.key(borrower)] = &Position{Address: borrower, Collateral: wei(10), Active: true}
	state.pool = &Pool{TotalCollateral: wei(10)}
	if _, err := engine.Liquidate(liquidator, borrower, wei(10)); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("expected ErrNoDebt for debt-free position, got %v", err)
	}
}

func TestLiquidateCoverBoundedByDebt(t *testing.T) {
	engine, state, _ := newPoolEngine(t, wadFraction(25))
	liquidator := makeAddress(crypto.LoanPrefix, 0x30)
	borrower := makeAddress(crypto.LoanPrefix, 0x20)
	seedUndercollateralized(t, engine, state, borrower, wei(40), wei(200))

	if _, err := engine.Liquidate(liquidator, borrower, wei(201)); !errors.Is(err, ErrAmountExceedsDebt) {
		t.Fatalf("expected ErrAmountExceedsDebt, got %v", err)
	}
}

func TestLiquidateFullSeizureClosesPosition(t *testing.T) {
	engine, state, custodian := newCreditEngine(t, wadFraction(80), wadFraction(110), 0)
	liquidator := makeAddress(crypto.LoanPrefix, 0x30)
	borrower := makeAddress(crypto.LoanPrefix, 0x20)
	// threshold 1.1: debt 80 needs 88 collateral, the position holds 80.
	seedUndercollateralized(t, engine, state, borrower, wei(80), wei(80))

	seized, err := engine.Liquidate(liquidator, borrower, wei(80))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if seized.Cmp(wei(80)) != 0 {
		t.Fatalf("full seizure took %s, want %s", seized, wei(80))
	}
	if _, ok := state.positions[state.key(borrower)]; ok {
		t.Fatalf("position not deleted after full seizure")
	}
	if state.pool.TotalBorrowed.Sign() != 0 || state.pool.TotalCollateral.Sign() != 0 {
		t.Fatalf("aggregates not cleared: %s %s", state.pool.TotalBorrowed, state.pool.TotalCollateral)
	}
	checkAggregates(t, state)

	last := custodian.calls[len(custodian.calls)-1]
	if !last.out || last.asset != AssetCollateral || last.amount.Cmp(wei(80)) != 0 {
		t.Fatalf("unexpected collateral payout: %+v", last)
	}
}

func TestLiquidatePartialCoverRejectedUnderFullSeizure(t *testing.T) {
	engine, state, _ := newCreditEngine(t, wadFraction(80), wadFraction(110), 0)
	liquidator := makeAddress(crypto.LoanPrefix, 0x30)
	borrower := makeAddress(crypto.LoanPrefix, 0x20)
	seedUndercollateralized(t, engine, state, borrower, wei(80), wei(80))
	before := state.snapshot()

	if _, err := engine.Liquidate(liquidator, borrower, wei(40)); !errors.Is(err, ErrFullCoverRequired) {
		t.Fatalf("expected ErrFullCoverRequired, got %v", err)
	}
	if state.snapshot() != before {
		t.Fatalf("rejected liquidation mutated state")
	}
}

func TestLiquidateRefundsCoverWhenPayoutFails(t *testing.T) {
	engine, state, custodian := newPoolEngine(t, wadFraction(25))
	liquidator := makeAddress(crypto.LoanPrefix, 0x30)
	borrower := makeAddress(crypto.LoanPrefix, 0x20)
	seedUndercollateralized(t, engine, state, borrower, wei(40), wei(200))
	before := state.snapshot()

	custodian.failOut = errors.New("payout rejected")
	custodian.failOutAt = 1
	if _, err := engine.Liquidate(liquidator, borrower, wei(50)); err == nil {
		t.Fatalf("expected payout failure to surface")
	}
	if state.snapshot() != before {
		t.Fatalf("failed liquidation mutated state")
	}
	last := custodian.calls[len(custodian.calls)-1]
	if !last.out || last.asset != AssetPrincipal || last.amount.Cmp(wei(50)) != 0 {
		t.Fatalf("cover was not refunded: %+v", last)
	}
}
