package lending

import (
	"math/big"
	"testing"
)

func TestFixedRatioPolicyFormulas(t *testing.T) {
	policy := NewFixedRatioPolicy(wadFraction(25))

	if got := policy.MaxBorrow(wei(400)); got.Cmp(wei(100)) != 0 {
		t.Fatalf("MaxBorrow(400) = %s, want %s", got, wei(100))
	}
	if got := policy.RequiredCollateral(wei(200)); got.Cmp(wei(50)) != 0 {
		t.Fatalf("RequiredCollateral(200) = %s, want %s", got, wei(50))
	}
	if got := policy.InitialBorrowOnOpen(wei(400)); got.Sign() != 0 {
		t.Fatalf("pool variant must not borrow at open, got %s", got)
	}
	if policy.AtomicOpen() || policy.ClosesOnFullRepay() || policy.SeizesFullCollateral() {
		t.Fatalf("pool variant flags wrong: %+v", policy)
	}
	if _, required := policy.MinimumScore(); required {
		t.Fatalf("pool variant must not consult the eligibility gate")
	}
}

func TestCreditLinePolicyFormulas(t *testing.T) {
	policy := NewCreditLinePolicy(wadFraction(80), wadFraction(110), 30)

	if got := policy.InitialBorrowOnOpen(wei(100)); got.Cmp(wei(80)) != 0 {
		t.Fatalf("InitialBorrowOnOpen(100) = %s, want %s", got, wei(80))
	}
	if got := policy.MaxBorrow(wei(100)); got.Cmp(wei(80)) != 0 {
		t.Fatalf("MaxBorrow(100) = %s, want %s", got, wei(80))
	}
	if got := policy.RequiredCollateral(wei(80)); got.Cmp(wei(88)) != 0 {
		t.Fatalf("RequiredCollateral(80) = %s, want %s", got, wei(88))
	}
	if !policy.AtomicOpen() || !policy.ClosesOnFullRepay() || !policy.SeizesFullCollateral() {
		t.Fatalf("credit variant flags wrong: %+v", policy)
	}
	minScore, required := policy.MinimumScore()
	if !required || minScore != 30 {
		t.Fatalf("MinimumScore() = %d, %v", minScore, required)
	}
}

func TestWadMulTruncates(t *testing.T) {
	// 3 * 1/3-ish truncates towards zero instead of rounding up.
	third := new(big.Int).Quo(wad, big.NewInt(3))
	got := wadMul(big.NewInt(3), third)
	if got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("wadMul(3, wad/3) = %s, want 2", got)
	}
	if got := wadMul(nil, wad); got.Sign() != 0 {
		t.Fatalf("wadMul with nil operand = %s, want 0", got)
	}
}

func TestCheckedSub(t *testing.T) {
	if diff, ok := checkedSub(big.NewInt(5), big.NewInt(3)); !ok || diff.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("checkedSub(5,3) = %v, %v", diff, ok)
	}
	if _, ok := checkedSub(big.NewInt(3), big.NewInt(5)); ok {
		t.Fatalf("checkedSub must fail on underflow")
	}
	if _, ok := checkedSub(nil, big.NewInt(1)); ok {
		t.Fatalf("checkedSub must fail on nil operands")
	}
}

func TestZeroRatioPolicyForbidsBorrowing(t *testing.T) {
	policy := NewFixedRatioPolicy(nil)
	if got := policy.MaxBorrow(wei(1000)); got.Sign() != 0 {
		t.Fatalf("zero ratio must forbid borrowing, got %s", got)
	}
}
