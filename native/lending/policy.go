package lending

import "math/big"

// Policy parameterizes the collateralization rules of an engine instance.
// The two deployment variants share one engine and differ only in the policy
// they are constructed with: the pool variant admits everyone and borrows in a
// separate step, the credit-line variant gates admission on an eligibility
// score and borrows atomically at opening.
type Policy interface {
	// MaxBorrow returns the debt ceiling a position may carry for the given
	// collateral.
	MaxBorrow(collateral *big.Int) *big.Int
	// RequiredCollateral returns the minimum collateral that must back the
	// given debt for the position to remain healthy.
	RequiredCollateral(debt *big.Int) *big.Int
	// InitialBorrowOnOpen returns the amount paid out when a position opens.
	// A zero result means opening does not borrow.
	InitialBorrowOnOpen(collateral *big.Int) *big.Int
	// AtomicOpen reports whether positions open and borrow in one operation.
	// When true the separate deposit/borrow/withdraw-collateral flows are
	// unavailable.
	AtomicOpen() bool
	// ClosesOnFullRepay reports whether repaying the entire debt returns the
	// collateral and deletes the position in the same operation.
	ClosesOnFullRepay() bool
	// SeizesFullCollateral reports whether liquidation takes the entire
	// position rather than collateral proportional to the covered debt.
	SeizesFullCollateral() bool
	// MinimumScore returns the admission threshold and whether the policy
	// consults the eligibility gate at all.
	MinimumScore() (uint64, bool)
}

// FixedRatioPolicy implements the always-admit pool variant. The ratio is the
// wad-scaled collateral fraction required per unit of debt; it also bounds how
// much of the deposited collateral may be borrowed against.
type FixedRatioPolicy struct {
	ratioWad *big.Int
}

// NewFixedRatioPolicy constructs the pool policy from a wad-scaled
// collateral ratio (e.g. 0.25e18 requires 25% collateral coverage).
func NewFixedRatioPolicy(ratioWad *big.Int) *FixedRatioPolicy {
	p := &FixedRatioPolicy{ratioWad: big.NewInt(0)}
	if ratioWad != nil {
		p.ratioWad = new(big.Int).Set(ratioWad)
	}
	return p
}

// RatioWad returns the configured collateral ratio.
func (p *FixedRatioPolicy) RatioWad() *big.Int {
	return new(big.Int).Set(p.ratioWad)
}

func (p *FixedRatioPolicy) MaxBorrow(collateral *big.Int) *big.Int {
	return wadMul(collateral, p.ratioWad)
}

func (p *FixedRatioPolicy) RequiredCollateral(debt *big.Int) *big.Int {
	return wadMul(debt, p.ratioWad)
}

func (p *FixedRatioPolicy) InitialBorrowOnOpen(*big.Int) *big.Int {
	return big.NewInt(0)
}

func (p *FixedRatioPolicy) AtomicOpen() bool { return false }

func (p *FixedRatioPolicy) ClosesOnFullRepay() bool { return false }

func (p *FixedRatioPolicy) SeizesFullCollateral() bool { return false }

func (p *FixedRatioPolicy) MinimumScore() (uint64, bool) { return 0, false }

// CreditLinePolicy implements the eligibility-gated variant: opening a
// position immediately borrows loanToValue of the deposited collateral, a full
// repay returns the collateral and closes the position, and liquidation seizes
// the whole position once it falls below the liquidation threshold.
type CreditLinePolicy struct {
	loanToValueWad *big.Int
	thresholdWad   *big.Int
	minScore       uint64
}

// NewCreditLinePolicy constructs the gated policy. loanToValueWad is the
// wad-scaled fraction of collateral paid out at opening; thresholdWad is the
// wad-scaled collateral-per-debt floor below which the position becomes
// liquidatable.
func NewCreditLinePolicy(loanToValueWad, thresholdWad *big.Int, minScore uint64) *CreditLinePolicy {
	p := &CreditLinePolicy{
		loanToValueWad: big.NewInt(0),
		thresholdWad:   big.NewInt(0),
		minScore:       minScore,
	}
	if loanToValueWad != nil {
		p.loanToValueWad = new(big.Int).Set(loanToValueWad)
	}
	if thresholdWad != nil {
		p.thresholdWad = new(big.Int).Set(thresholdWad)
	}
	return p
}

// LoanToValueWad returns the configured loan-to-value fraction.
func (p *CreditLinePolicy) LoanToValueWad() *big.Int {
	return new(big.Int).Set(p.loanToValueWad)
}

func (p *CreditLinePolicy) MaxBorrow(collateral *big.Int) *big.Int {
	return wadMul(collateral, p.loanToValueWad)
}

func (p *CreditLinePolicy) RequiredCollateral(debt *big.Int) *big.Int {
	return wadMul(debt, p.thresholdWad)
}

func (p *CreditLinePolicy) InitialBorrowOnOpen(collateral *big.Int) *big.Int {
	return wadMul(collateral, p.loanToValueWad)
}

func (p *CreditLinePolicy) AtomicOpen() bool { return true }

func (p *CreditLinePolicy) ClosesOnFullRepay() bool { return true }

func (p *CreditLinePolicy) SeizesFullCollateral() bool { return true }

func (p *CreditLinePolicy) MinimumScore() (uint64, bool) { return p.minScore, true }
